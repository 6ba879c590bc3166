package realtime

import (
	"log"
	"sync"

	"canvasServer/backend/internal/canvas"
)

// Channel 命名广播频道的发送端抽象。具体实现见 ws 包（websocket）。
type Channel interface {
	Publish(act canvas.Action) error
}

// Engine 客户端同步引擎：把本地编辑意图变成可广播的动作，
// 把远端收到的动作应用到本地状态。
// 数据流：本地意图 -> 乐观地改本地文档 ->（允许发送时）构造动作 -> 去抖 -> 频道发布。
// 乐观修改从不去抖，去抖只作用在出站广播上。
type Engine struct {
	mu     sync.Mutex
	state  *canvas.State
	userID string
	token  string
	ch     Channel

	nodeDeb   *DebounceSet
	cursorDeb *Debouncer
	selDeb    *Debouncer
}

func NewEngine(doc *canvas.Document, userID string) *Engine {
	return &Engine{
		state:     canvas.NewState(doc),
		userID:    userID,
		nodeDeb:   NewDebounceSet(NodeUpdateDelay),
		cursorDeb: NewDebouncer(CursorDelay),
		selDeb:    NewDebouncer(SelectionDelay),
	}
}

// Room 当前应加入的频道标识。
func (e *Engine) Room() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RoomID(e.state.Doc.ID, e.token)
}

// SetSessionToken 采用新的会话令牌。令牌变化意味着房间变化，
// 调用方需要重新建立频道并 AttachChannel。
func (e *Engine) SetSessionToken(token string) {
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
}

// AttachChannel 绑定新房间的频道。先取消所有待发的去抖任务，
// 保证换房之后不会有发往旧房间的消息漏出去。
func (e *Engine) AttachChannel(ch Channel) {
	e.cancelPending()
	e.mu.Lock()
	e.ch = ch
	e.mu.Unlock()
}

// DetachChannel 解绑频道（关闭文档或换房前调用）。
func (e *Engine) DetachChannel() {
	e.cancelPending()
	e.mu.Lock()
	e.ch = nil
	e.mu.Unlock()
}

func (e *Engine) cancelPending() {
	e.nodeDeb.CancelAll()
	e.cursorDeb.Cancel()
	e.selDeb.Cancel()
}

// FlushOutbound 立刻发出所有待发的去抖消息（页面卸载前保证最终值送达）。
func (e *Engine) FlushOutbound() {
	e.nodeDeb.FlushAll()
	e.cursorDeb.FlushIfPending()
	e.selDeb.FlushIfPending()
}

// CanSend 本地编辑是否允许广播。
func (e *Engine) CanSend() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CanSend(e.state.Doc, e.userID, e.token)
}

// publish 发送一条动作。被 gating 拦下时静默跳过（不是错误）；
// 发送失败只记日志，不回滚本地乐观修改。
func (e *Engine) publish(act canvas.Action) {
	e.mu.Lock()
	ch := e.ch
	allowed := CanSend(e.state.Doc, e.userID, e.token)
	e.mu.Unlock()
	if ch == nil || !allowed {
		return
	}
	if err := ch.Publish(act); err != nil {
		log.Printf("publish %s failed: %v", act.ActionType(), err)
	}
}

// applyLocal 乐观地应用到本地状态（同步，绝不延迟）。
func (e *Engine) applyLocal(act canvas.Action) {
	e.mu.Lock()
	e.state.Apply(act, e.userID)
	e.mu.Unlock()
}

// ---- 本地编辑意图 ----

// CreateNode 结构性变更立即发送，不去抖。
func (e *Engine) CreateNode(n canvas.Node) {
	act := canvas.NodeCreate{Node: n}
	e.applyLocal(act)
	e.publish(act)
}

// UpdateNode 高频信号（拖拽连发），按节点 id 去抖，只发最后一份 props。
func (e *Engine) UpdateNode(id string, props canvas.Props) {
	act := canvas.NodeUpdate{ID: id, Props: props}
	e.applyLocal(act)
	e.nodeDeb.Schedule(id, func() { e.publish(act) })
}

func (e *Engine) DeleteNode(id string) {
	act := canvas.NodeDelete{ID: id}
	e.applyLocal(act)
	e.publish(act)
}

func (e *Engine) CreateEdge(edge canvas.Edge) {
	act := canvas.EdgeCreate{Edge: edge}
	e.applyLocal(act)
	e.publish(act)
}

func (e *Engine) DeleteEdge(from, to string) {
	act := canvas.EdgeDelete{From: from, To: to}
	e.applyLocal(act)
	e.publish(act)
}

func (e *Engine) SetBackground(color string) {
	act := canvas.BackgroundSet{Color: color}
	e.applyLocal(act)
	e.publish(act)
}

func (e *Engine) SetTitle(title string) {
	act := canvas.TitleSet{Title: title}
	e.applyLocal(act)
	e.publish(act)
}

// MoveCursor 光标移动只进 presence，去抖后广播。
func (e *Engine) MoveCursor(x, y float64, color string) {
	act := canvas.CursorMove{X: x, Y: y, Color: color}
	e.applyLocal(act)
	e.cursorDeb.Schedule(func() { e.publish(act) })
}

func (e *Engine) SelectNodes(ids []string, color string) {
	act := canvas.NodeSelect{IDs: ids, Color: color}
	e.applyLocal(act)
	e.selDeb.Schedule(func() { e.publish(act) })
}

// ---- 远端动作 ----

// ApplyRemote 应用其他参与者的动作。按频道到达顺序串行调用。
func (e *Engine) ApplyRemote(act canvas.Action, senderID string) {
	e.mu.Lock()
	e.state.Apply(act, senderID)
	e.mu.Unlock()
}

// Document 返回当前文档快照（深拷贝，调用方可安全读取）。
func (e *Engine) Document() *canvas.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Doc.Clone()
}

// Presence 返回当前 presence 状态（直接引用，单事件循环内读取）。
func (e *Engine) Presence() *canvas.Presence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Presence
}
