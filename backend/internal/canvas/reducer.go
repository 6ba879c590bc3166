package canvas

// State 把文档、暂存缓冲和 presence 捆在一起，Apply 是所有变更的唯一入口。
// 本地编辑和远端动作都走这里：两个客户端观察到同一动作序列，就会收敛到同一状态。
// 单事件循环模型：State 不自带锁，持有者负责串行调用。
type State struct {
	Doc      *Document
	Pending  *PendingUpdates
	Presence *Presence
}

func NewState(doc *Document) *State {
	if doc == nil {
		doc = &Document{}
	}
	return &State{
		Doc:      doc,
		Pending:  NewPendingUpdates(),
		Presence: NewPresence(),
	}
}

// Apply 应用一条动作。senderID 只用于 presence 类动作的归属。
// 合并策略是字段级 last-writer-wins：最近被应用的动作赢，不看墙钟时间。
// 指向未知 id 的 update/delete 不是错误：update 进暂存缓冲，delete 是 no-op，
// 因为在这个排序模型下对应的 create 迟早会到。
func (s *State) Apply(act Action, senderID string) {
	switch a := act.(type) {
	case NodeCreate:
		s.applyNodeCreate(a)
	case NodeUpdate:
		s.applyNodeUpdate(a)
	case NodeDelete:
		s.applyNodeDelete(a)
	case EdgeCreate:
		s.applyEdgeCreate(a)
	case EdgeDelete:
		s.applyEdgeDelete(a)
	case BackgroundSet:
		s.Doc.Background = a.Color
	case TitleSet:
		s.Doc.Title = a.Title
	case CursorMove:
		s.Presence.SetCursor(senderID, Cursor{X: a.X, Y: a.Y, Color: a.Color})
	case NodeSelect:
		s.Presence.SetSelection(senderID, Selection{IDs: a.IDs, Color: a.Color})
	}
}

func (s *State) applyNodeCreate(a NodeCreate) {
	// 重复 create 不覆盖已有节点（no-op 保护，不报错）
	if s.Doc.findNode(a.Node.ID) >= 0 {
		return
	}
	n := Node{ID: a.Node.ID, Props: Props{}.merged(a.Node.Props)}
	// create 到达的瞬间，把先到的 update 片段合并进去并丢弃
	if frag, ok := s.Pending.Flush(n.ID); ok {
		n.Props = n.Props.merged(frag)
	}
	s.Doc.Nodes = append(s.Doc.Nodes, n)
}

func (s *State) applyNodeUpdate(a NodeUpdate) {
	idx := s.Doc.findNode(a.ID)
	if idx < 0 {
		// 目标还不存在：进暂存缓冲，不动文档
		s.Pending.Stash(a.ID, a.Props)
		return
	}
	n := s.Doc.Nodes[idx]
	n.Props = n.Props.merged(a.Props)
	s.Doc.Nodes = s.Doc.withNodeReplaced(idx, n)
}

func (s *State) applyNodeDelete(a NodeDelete) {
	// 不管节点在不在，先丢暂存片段，防止陈旧 update 复活实体
	s.Pending.Discard(a.ID)
	idx := s.Doc.findNode(a.ID)
	if idx < 0 {
		return
	}
	nodes := make([]Node, 0, len(s.Doc.Nodes)-1)
	nodes = append(nodes, s.Doc.Nodes[:idx]...)
	nodes = append(nodes, s.Doc.Nodes[idx+1:]...)
	s.Doc.Nodes = nodes

	// 级联：引用该节点的边一并删除，本地和远端删除走同一条路径
	edges := make([]Edge, 0, len(s.Doc.Edges))
	for _, e := range s.Doc.Edges {
		if e.FromNode == a.ID || e.ToNode == a.ID {
			continue
		}
		edges = append(edges, e)
	}
	s.Doc.Edges = edges
}

func (s *State) applyEdgeCreate(a EdgeCreate) {
	if s.Doc.findEdge(a.Edge.ID) >= 0 {
		return
	}
	s.Doc.Edges = append(s.Doc.Edges, a.Edge)
}

func (s *State) applyEdgeDelete(a EdgeDelete) {
	// 按 (from,to) 对匹配：同一对节点间如果有多条边，一次删除全部移除
	edges := make([]Edge, 0, len(s.Doc.Edges))
	for _, e := range s.Doc.Edges {
		if e.FromNode == a.From && e.ToNode == a.To {
			continue
		}
		edges = append(edges, e)
	}
	s.Doc.Edges = edges
}
