package canvas

// PendingUpdates 吸收“update 比 create 先到”的竞态：
// 客户端 A 创建节点后立刻拖动，B 的频道可能先收到 update。
// 未命中的 update 片段按节点 id 暂存，等 create 到达时合并进去。
// 只存在于内存，随文档的会话生命周期一起消失，不持久化。
type PendingUpdates struct {
	frags map[string]Props
}

func NewPendingUpdates() *PendingUpdates {
	return &PendingUpdates{frags: make(map[string]Props)}
}

// Stash 把 props 合并进 id 对应的暂存片段（片段内部逐字段 LWW）。
func (p *PendingUpdates) Stash(id string, props Props) {
	if frag, ok := p.frags[id]; ok {
		p.frags[id] = frag.merged(props)
		return
	}
	p.frags[id] = Props{}.merged(props)
}

// Flush 取出并删除 id 的暂存片段。create 应用之后调用。
func (p *PendingUpdates) Flush(id string) (Props, bool) {
	frag, ok := p.frags[id]
	if ok {
		delete(p.frags, id)
	}
	return frag, ok
}

// Discard 无条件丢弃 id 的暂存片段。
// delete 先到时必须丢弃，否则迟到的陈旧 update 会让实体“复活”。
func (p *PendingUpdates) Discard(id string) {
	delete(p.frags, id)
}

func (p *PendingUpdates) Len() int { return len(p.frags) }
