package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 动作种类。闭集：reducer 对每一种都要显式处理。
const (
	KindNodeCreate = "node:create"
	KindNodeUpdate = "node:update"
	KindNodeDelete = "node:delete"
	KindEdgeCreate = "edge:create"
	KindEdgeDelete = "edge:delete"
	KindBackground = "space:background"
	KindTitle      = "space:title"
	KindCursorMove = "cursor:move"
	KindNodeSelect = "node:select"
)

var ErrUnknownAction = errors.New("UNKNOWN_ACTION_TYPE")

// Action 参与者之间交换的单条消息。纯数据，没有行为。
// 消息本身不带序号或向量时钟：顺序保证只有“同一频道内的到达顺序”。
type Action interface {
	ActionType() string
}

type NodeCreate struct {
	Node Node `json:"node"`
}

type NodeUpdate struct {
	ID    string `json:"id"`
	Props Props  `json:"props"`
}

type NodeDelete struct {
	ID string `json:"id"`
}

type EdgeCreate struct {
	Edge Edge `json:"edge"`
}

// EdgeDelete 按 (from,to) 对匹配，不按边 ID：同一对节点间的边一次全删。
type EdgeDelete struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type BackgroundSet struct {
	Color string `json:"color"`
}

type TitleSet struct {
	Title string `json:"title"`
}

// CursorMove / NodeSelect 只改 presence，不碰文档。
// 发送者身份由传输层带外提供，不嵌在载荷里。
type CursorMove struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

type NodeSelect struct {
	IDs   []string `json:"ids"`
	Color string   `json:"color"`
}

func (NodeCreate) ActionType() string    { return KindNodeCreate }
func (NodeUpdate) ActionType() string    { return KindNodeUpdate }
func (NodeDelete) ActionType() string    { return KindNodeDelete }
func (EdgeCreate) ActionType() string    { return KindEdgeCreate }
func (EdgeDelete) ActionType() string    { return KindEdgeDelete }
func (BackgroundSet) ActionType() string { return KindBackground }
func (TitleSet) ActionType() string      { return KindTitle }
func (CursorMove) ActionType() string    { return KindCursorMove }
func (NodeSelect) ActionType() string    { return KindNodeSelect }

// IsPresence 判断动作是否只影响 presence（这类动作不落库、不发 Kafka）。
func IsPresence(a Action) bool {
	switch a.(type) {
	case CursorMove, NodeSelect:
		return true
	}
	return false
}

// Encode 序列化为线上信封：载荷字段 + "type" 判别符。
// {"type":"node:update","id":"n1","props":{...}}
func Encode(a Action) ([]byte, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	t, err := json.Marshal(a.ActionType())
	if err != nil {
		return nil, err
	}
	m["type"] = t
	return json.Marshal(m)
}

// Decode 解析线上信封。未知 type 返回 ErrUnknownAction。
func Decode(b []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case KindNodeCreate:
		var a NodeCreate
		return a, json.Unmarshal(b, &a)
	case KindNodeUpdate:
		var a NodeUpdate
		return a, json.Unmarshal(b, &a)
	case KindNodeDelete:
		var a NodeDelete
		return a, json.Unmarshal(b, &a)
	case KindEdgeCreate:
		var a EdgeCreate
		return a, json.Unmarshal(b, &a)
	case KindEdgeDelete:
		var a EdgeDelete
		return a, json.Unmarshal(b, &a)
	case KindBackground:
		var a BackgroundSet
		return a, json.Unmarshal(b, &a)
	case KindTitle:
		var a TitleSet
		return a, json.Unmarshal(b, &a)
	case KindCursorMove:
		var a CursorMove
		return a, json.Unmarshal(b, &a)
	case KindNodeSelect:
		var a NodeSelect
		return a, json.Unmarshal(b, &a)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Type)
	}
}
