package canvas

// Props 是节点的自由属性集合（位置、尺寸、内容、颜色等都放在这里）。
// 字段级 last-writer-wins：合并时逐字段覆盖，不做任何时间戳比较。
type Props map[string]any

// merged 返回一个新 map：先拷贝旧值，再用 frag 覆盖。
// 不在原 map 上改，避免并发 reducer 调用之间的别名问题。
func (p Props) merged(frag Props) Props {
	out := make(Props, len(p)+len(frag))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range frag {
		out[k] = v
	}
	return out
}

// Node 画布上的一个自由节点。身份只看 ID，其余字段互相独立地 LWW。
type Node struct {
	ID    string `json:"id"`
	Props Props  `json:"props"`
}

// Edge 连接两个节点的边。创建后不可修改，只能删除。
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	ToNode   string `json:"toNode"`
}

// Document 画布文档。权威副本在持久层，内存里的是当前会话的乐观副本。
type Document struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	OwnerID    string `json:"ownerId"`
	Background string `json:"backgroundColor"`
	Nodes      []Node `json:"nodes"`
	Edges      []Edge `json:"edges"`
}

// findNode 返回 id 对应节点的下标，找不到返回 -1。
func (d *Document) findNode(id string) int {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) findEdge(id string) int {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			return i
		}
	}
	return -1
}

// withNodeReplaced 拷贝节点切片并替换第 idx 个元素（copy-and-replace，不原地改）。
func (d *Document) withNodeReplaced(idx int, n Node) []Node {
	out := make([]Node, len(d.Nodes))
	copy(out, d.Nodes)
	out[idx] = n
	return out
}

// Clone 深拷贝文档，用于测试比较和快照序列化前的隔离。
func (d *Document) Clone() *Document {
	out := &Document{
		ID:         d.ID,
		Title:      d.Title,
		OwnerID:    d.OwnerID,
		Background: d.Background,
		Nodes:      make([]Node, len(d.Nodes)),
		Edges:      make([]Edge, len(d.Edges)),
	}
	copy(out.Edges, d.Edges)
	for i, n := range d.Nodes {
		out.Nodes[i] = Node{ID: n.ID, Props: n.Props.merged(nil)}
	}
	return out
}
