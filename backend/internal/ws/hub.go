package ws

import (
	"sync"

	"canvasServer/backend/internal/cache"
)

type Hub struct {
	// 接口实例（Redis 实现的客户端句柄）。它本身不“存数据”，
	// 而是提供对外部存储的读写能力，用来落地/共享在线状态与光标信息
	presence cache.PresenceCache
	// 读写锁，保护 rooms 在并发下安全访问。加入/离开房间、广播时都会先加锁。
	mu sync.RWMutex
	// roomID -> set of connections
	// 房间键是“解析后”的频道标识：docID 或 docID:sessionToken。
	// 建立了分享令牌的参与者和未带令牌的参与者在不同房间里，互不可见。
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定房间
func (h *Hub) Join(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		// 房间里存的是连接而不是 userID：
		// 一个用户可开多个标签页/设备（多连接），广播要逐连接发
		h.rooms[roomID] = make(map[*Conn]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

// Leave 将连接从指定房间移除
func (h *Hub) Leave(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// BroadcastAction 把动作广播给房间里除发送者以外的所有连接。
func (h *Hub) BroadcastAction(roomID string, sender *Conn, msg ActionBroadcastMessage) {
	h.mu.RLock()
	conns := h.rooms[roomID]
	h.mu.RUnlock()
	for c := range conns {
		if c == sender {
			continue
		}
		c.SendMessage_Enqueue(msg)
	}
}

func (h *Hub) BroadcastPresence(roomID, docID string, members []PresenceMember) {
	h.mu.RLock()
	conns := h.rooms[roomID]
	h.mu.RUnlock()
	msg := ServerMessage{Type: "presence", DocID: docID, Members: members}
	for c := range conns {
		c.SendMessage_Enqueue(msg)
	}
}
