package wsframe

import "math/bits"

// sha1Sum 按 RFC 3174 计算 SHA-1 摘要，只服务于握手 accept 值的计算
func sha1Sum(data []byte) [20]byte {
	h0, h1, h2, h3, h4 := uint32(0x67452301), uint32(0xEFCDAB89), uint32(0x98BADCFE), uint32(0x10325476), uint32(0xC3D2E1F0)

	// 填充：0x80 + 若干 0x00，使长度 ≡ 56 (mod 64)，末尾 8 字节为大端位长度
	bitLen := uint64(len(data)) * 8
	msg := make([]byte, len(data), len(data)+72)
	copy(msg, data)
	msg = append(msg, 0x80)
	for len(msg)%64 != 56 {
		msg = append(msg, 0)
	}
	for i := 7; i >= 0; i-- {
		msg = append(msg, byte(bitLen>>(8*uint(i))))
	}

	var w [80]uint32
	for chunk := 0; chunk < len(msg); chunk += 64 {
		for i := 0; i < 16; i++ {
			j := chunk + i*4
			w[i] = uint32(msg[j])<<24 | uint32(msg[j+1])<<16 | uint32(msg[j+2])<<8 | uint32(msg[j+3])
		}
		for i := 16; i < 80; i++ {
			w[i] = bits.RotateLeft32(w[i-3]^w[i-8]^w[i-14]^w[i-16], 1)
		}

		a, b, c, d, e := h0, h1, h2, h3, h4
		for i := 0; i < 80; i++ {
			var f, k uint32
			switch {
			case i < 20:
				f = (b & c) | (^b & d)
				k = 0x5A827999
			case i < 40:
				f = b ^ c ^ d
				k = 0x6ED9EBA1
			case i < 60:
				f = (b & c) | (b & d) | (c & d)
				k = 0x8F1BBCDC
			default:
				f = b ^ c ^ d
				k = 0xCA62C1D6
			}
			t := bits.RotateLeft32(a, 5) + f + e + k + w[i]
			e, d, c, b, a = d, c, bits.RotateLeft32(b, 30), a, t
		}
		h0 += a
		h1 += b
		h2 += c
		h3 += d
		h4 += e
	}

	var out [20]byte
	for i, h := range [5]uint32{h0, h1, h2, h3, h4} {
		out[i*4] = byte(h >> 24)
		out[i*4+1] = byte(h >> 16)
		out[i*4+2] = byte(h >> 8)
		out[i*4+3] = byte(h)
	}
	return out
}
