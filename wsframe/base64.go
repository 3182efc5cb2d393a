package wsframe

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// base64Encode 标准 Base64（带 '=' 填充）
func base64Encode(src []byte) string {
	out := make([]byte, 0, (len(src)+2)/3*4)
	for i := 0; i < len(src); i += 3 {
		rem := len(src) - i
		n := uint32(src[i]) << 16
		if rem > 1 {
			n |= uint32(src[i+1]) << 8
		}
		if rem > 2 {
			n |= uint32(src[i+2])
		}
		out = append(out, base64Alphabet[n>>18&63], base64Alphabet[n>>12&63])
		if rem > 1 {
			out = append(out, base64Alphabet[n>>6&63])
		} else {
			out = append(out, '=')
		}
		if rem > 2 {
			out = append(out, base64Alphabet[n&63])
		} else {
			out = append(out, '=')
		}
	}
	return string(out)
}

func isBase64Char(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '+' || c == '/'
}
