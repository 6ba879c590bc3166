package canvas

// Cursor 某个参与者的光标位置和颜色。
type Cursor struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// Selection 某个参与者当前选中的节点集合。
type Selection struct {
	IDs   []string `json:"ids"`
	Color string   `json:"color"`
}

// Presence 按发送者身份维护的临时状态，完全由收到的动作重建。
// 没有显式的创建事件（第一条动作即创建），本核心也不做断线清理。
type Presence struct {
	Cursors    map[string]Cursor
	Selections map[string]Selection
}

func NewPresence() *Presence {
	return &Presence{
		Cursors:    make(map[string]Cursor),
		Selections: make(map[string]Selection),
	}
}

// SetCursor 整值替换：最后一条消息覆盖该发送者的光标状态。
func (p *Presence) SetCursor(senderID string, c Cursor) {
	p.Cursors[senderID] = c
}

// SetSelection 整值替换该发送者的选中集合。
func (p *Presence) SetSelection(senderID string, s Selection) {
	p.Selections[senderID] = s
}
