package collab

import (
	"encoding/json"
	"time"
)

// CanvasOpEvent 已应用的画布动作事件，发往 Kafka 供下游服务消费（索引/审计）。
// presence 类动作（光标、选区）不产生事件。
type CanvasOpEvent struct {
	EventType  string          `json:"eventType"` // 固定 "ACTION_APPLIED"
	DocID      string          `json:"docId"`
	OpID       string          `json:"opId"` // 本次动作的唯一ID（用于幂等/追踪）
	ActionType string          `json:"actionType"`
	SenderID   string          `json:"senderId"`
	Action     json.RawMessage `json:"action"` // 线上信封原文
	AppliedAt  time.Time       `json:"appliedAt"`
}
