package ws

import "encoding/json"

// 客户端入站信封：一个 type 判别符 + 各类型各取所需的字段。
type ClientMessage struct {
	Type         string          `json:"type"`
	DocID        string          `json:"docId,omitempty"`
	DocTitle     string          `json:"docTitle,omitempty"`
	SessionToken string          `json:"sessionToken,omitempty"`
	Action       json.RawMessage `json:"action,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ServerMessage struct {
	Type     string           `json:"type"`
	DocID    string           `json:"docId,omitempty"`
	Room     string           `json:"room,omitempty"`
	Members  []PresenceMember `json:"members,omitempty"`
	Document json.RawMessage  `json:"document,omitempty"`
	Content  string           `json:"content,omitempty"`
}

// 广播给同房间内其他连接的动作事件
// - 发送者身份带外附上（senderId），不嵌在动作载荷里
// - 前端收到后把 action 交给本地 reducer 应用
type ActionBroadcastMessage struct {
	Type     string          `json:"type"` // 固定 "action"
	DocID    string          `json:"docId"`
	SenderID string          `json:"senderId"`
	Action   json.RawMessage `json:"action"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// 隐式实现 OutboundMessage 接口
func (m ServerMessage) MessageType() string          { return m.Type }
func (m ActionBroadcastMessage) MessageType() string { return m.Type }
