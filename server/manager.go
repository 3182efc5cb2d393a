package server

// SessionManager 管理连接表与固定数量的玩家槽位。
// 只由 Tick 循环协程访问，因此不加锁。
type SessionManager struct {
	slots   []*Session
	conns   map[uint64]*Session
	nextID  uint64
	maxSlot int
}

func NewSessionManager(maxPlayers int) *SessionManager {
	return &SessionManager{
		slots:   make([]*Session, maxPlayers),
		conns:   make(map[uint64]*Session),
		maxSlot: maxPlayers,
	}
}

// NextConnID 单调递增的连接 id
func (m *SessionManager) NextConnID() uint64 {
	m.nextID++
	return m.nextID
}

// Add 登记一个新连接（尚未占用槽位）
func (m *SessionManager) Add(s *Session) {
	m.conns[s.ConnID] = s
}

func (m *SessionManager) Lookup(id uint64) *Session {
	return m.conns[id]
}

// Assign 为连接分配最小的空闲槽位；满员返回 false，不占用任何槽位
func (m *SessionManager) Assign(s *Session) bool {
	if s.Slot >= 0 {
		return true
	}
	for i, cur := range m.slots {
		if cur == nil {
			m.slots[i] = s
			s.Slot = i
			return true
		}
	}
	return false
}

// Release 移除连接并释放其槽位，槽位可立即复用
func (m *SessionManager) Release(s *Session) {
	delete(m.conns, s.ConnID)
	if s.Slot >= 0 && s.Slot < len(m.slots) && m.slots[s.Slot] == s {
		m.slots[s.Slot] = nil
	}
}

// Slot 返回占用该槽位的会话
func (m *SessionManager) Slot(i int) *Session {
	if i < 0 || i >= len(m.slots) {
		return nil
	}
	return m.slots[i]
}

// Active 按槽位顺序返回已分配槽位的会话
func (m *SessionManager) Active() []*Session {
	out := make([]*Session, 0, len(m.slots))
	for _, s := range m.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// All 返回全部连接（含握手中的）
func (m *SessionManager) All() []*Session {
	out := make([]*Session, 0, len(m.conns))
	for _, s := range m.conns {
		out = append(out, s)
	}
	return out
}

func (m *SessionManager) Count() int    { return len(m.conns) }
func (m *SessionManager) Capacity() int { return m.maxSlot }
