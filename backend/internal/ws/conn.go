package ws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"canvasServer/backend/internal/canvas"
	"canvasServer/backend/internal/collab"
	"canvasServer/backend/internal/realtime"
)

// presence 条目（成员、光标、选区）在 Redis 里的存活时长
const presenceTTL = 600 * time.Second

type Conn struct {
	ws           *websocket.Conn
	hub          *Hub
	docID        string
	room         string // 解析后的频道标识（docID 或 docID:token）
	sessionToken string
	userID       uint64
	username     string
	// send 是出站消息队列，writeLoop 持续消费。
	// sendClosed 由 sendMu 保护：广播方可能在连接退场后才入队，
	// 必须先查标志再写通道，否则会写到已关闭的通道上。
	send       chan OutboundMessage
	sendMu     sync.Mutex
	sendClosed bool
	// 协作引擎服务
	svc collab.Service
	// 信号量控制
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{ws: ws, hub: hub, userID: userID, username: username, send: make(chan OutboundMessage, 32), svc: svc, sem: sem}
}

func (c *Conn) senderID() string {
	return strconv.FormatUint(c.userID, 10)
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// 如果队列满了，则丢弃消息
	}
}

// closeSend 关闭出站队列（writeLoop 随之退出）。之后的入队变成 no-op。
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// handleJoin 解析房间并换房：先退旧房间，再进新房间，避免收发落在过期房间上。
func (c *Conn) handleJoin(ctx context.Context, msg ClientMessage) {
	if msg.DocID == "" {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "MISSING_DOC_ID"})
		return
	}
	token := msg.SessionToken
	if token != "" {
		ok, err := c.svc.VerifySession(ctx, msg.DocID, token)
		if err != nil {
			log.Printf("verify session error (user=%d, doc=%s): %v", c.userID, msg.DocID, err)
		}
		if !ok {
			// 令牌无效就当没带：回落到基础房间
			token = ""
		}
	}
	room := realtime.RoomID(msg.DocID, token)
	if c.room != "" && c.room != room {
		c.hub.Leave(c.room, c)
	}
	c.docID = msg.DocID
	c.sessionToken = token
	c.room = room
	c.hub.Join(room, c)
	if err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("add member error: %v", err)
	}

	// 晚加入的客户端直接拿当前文档，不回放历史
	doc, err := c.svc.Document(ctx, c.docID)
	if err != nil {
		log.Printf("load document error (doc=%s): %v", c.docID, err)
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "LOAD_DOC_FAILED"})
		return
	}
	b, err := json.Marshal(doc)
	if err != nil {
		log.Printf("marshal document error (doc=%s): %v", c.docID, err)
		return
	}
	c.SendMessage_Enqueue(ServerMessage{Type: "joinCanvas", DocID: c.docID, Room: room, Document: b})

	// 回放在线成员最近一次的光标/选区信封，新加入者据此重建初始 presence
	c.replayPresence(ctx)
}

func (c *Conn) replayPresence(ctx context.Context) {
	members, err := c.hub.presence.GetAliveMembersWithNames(ctx, c.docID)
	if err != nil {
		log.Printf("get alive members with names error: %v", err)
		return
	}
	for _, m := range members {
		if m.UserID == c.userID {
			continue
		}
		uid := strconv.FormatUint(m.UserID, 10)
		// 按解析后的房间读：别的房间的成员在这个键下没有记录，自然跳过
		if raw, err := c.hub.presence.GetCursor(ctx, c.room, uid); err == nil && len(raw) > 0 {
			c.SendMessage_Enqueue(ActionBroadcastMessage{Type: "action", DocID: c.docID, SenderID: uid, Action: raw})
		}
		if raw, err := c.hub.presence.GetSelection(ctx, c.room, uid); err == nil && len(raw) > 0 {
			c.SendMessage_Enqueue(ActionBroadcastMessage{Type: "action", DocID: c.docID, SenderID: uid, Action: raw})
		}
	}
}

// handleAction 应用并转发一条画布动作。
func (c *Conn) handleAction(ctx context.Context, msg ClientMessage) {
	if c.room == "" {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "NOT_JOINED"})
		return
	}
	act, err := canvas.Decode(msg.Action)
	if err != nil {
		// 畸形载荷：捕获后静默丢弃，不影响连接
		log.Printf("decode action error (user=%d, doc=%s): %v", c.userID, c.docID, err)
		return
	}

	// 服务端复核 send-gating：未授权的编辑静默丢弃（协议层不算错误）
	allowed, err := c.svc.CanBroadcast(ctx, c.docID, c.senderID(), c.sessionToken)
	if err != nil {
		log.Printf("can broadcast error (user=%d, doc=%s): %v", c.userID, c.docID, err)
		return
	}
	if !allowed {
		return
	}

	actionCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := c.sem.Acquire(actionCtx); err != nil {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: err.Error()})
		return
	}
	defer c.sem.Release()

	if err := c.svc.ApplyAction(actionCtx, c.docID, c.senderID(), act, msg.Action); err != nil {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: err.Error()})
		return
	}

	// 光标/选区的信封原文顺手落到 Redis，供新加入者重建初始 presence。
	// 键按解析后的房间走，不按 docID：基础房间和令牌房间的 presence 互不可见
	switch act.(type) {
	case canvas.CursorMove:
		_ = c.hub.presence.SetCursor(ctx, c.room, c.senderID(), msg.Action, presenceTTL)
	case canvas.NodeSelect:
		_ = c.hub.presence.SetSelection(ctx, c.room, c.senderID(), msg.Action, presenceTTL)
	}

	c.hub.BroadcastAction(c.room, c, ActionBroadcastMessage{
		Type:     "action",
		DocID:    c.docID,
		SenderID: c.senderID(),
		Action:   msg.Action,
	})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		// 先退房再关队列：广播方拿到的房间快照里不能再有本连接，
		// 晚到的入队由 sendClosed 标志挡住
		if c.room != "" {
			c.hub.Leave(c.room, c)
			// 连接断开时尽力保存一次，不等结果
			c.svc.SaveCanvasOnExit(c.docID)
		}
		c.closeSend()
	}()
	for {
		var clientMessage ClientMessage
		if err := c.ws.ReadJSON(&clientMessage); err != nil {
			log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			return
		}
		switch clientMessage.Type {
		case "heartbeat":
			// 还没入房的心跳不落 presence，否则会在 Redis 里留下空 docID 的垃圾键
			if c.docID == "" {
				c.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})
				continue
			}
			err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL)
			if err != nil {
				log.Printf("add member error: %v", err)
			}
			c.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})
			// 心跳顺带把最新成员列表推给整个房间
			if c.room != "" {
				members, err := c.hub.presence.GetAliveMembersWithNames(ctx, c.docID)
				if err != nil {
					log.Printf("get alive members with names error: %v", err)
					continue
				}
				memberList := make([]PresenceMember, len(members))
				for i, m := range members {
					memberList[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
				}
				c.hub.BroadcastPresence(c.room, c.docID, memberList)
			}

		case "createCanvas":
			docID, err := c.svc.CreateCanvas(ctx, c.senderID(), clientMessage.DocTitle)
			if err != nil {
				log.Printf("create canvas error: %v", err)
				c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "CREATE_CANVAS_FAILED"})
				continue
			}
			c.SendMessage_Enqueue(ServerMessage{Type: "createCanvas", DocID: docID, Content: "Canvas " + docID + " created by user " + c.senderID()})

		case "joinCanvas":
			c.handleJoin(ctx, clientMessage)

		case "showMembers":
			members, err := c.hub.presence.GetAliveMembersWithNames(ctx, c.docID)
			if err != nil {
				log.Printf("get alive members with names error: %v", err)
			}
			memberList := make([]PresenceMember, len(members))
			for i, m := range members {
				memberList[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
			}
			c.SendMessage_Enqueue(ServerMessage{Type: "showMembers", DocID: c.docID, Members: memberList})

		case "action":
			c.handleAction(ctx, clientMessage)

		case "saveCanvas":
			if err := c.svc.SaveCanvas(ctx, c.docID); err != nil {
				log.Printf("save canvas error: %v", err)
				c.SendMessage_Enqueue(ServerMessage{Type: "saveCanvas", Content: "Canvas " + c.docID + " save failed"})
				continue
			}
			c.SendMessage_Enqueue(ServerMessage{Type: "saveCanvas", Content: "Canvas " + c.docID + " saved"})

		default:
			// 忽略未知类型，回一条提示
			c.SendMessage_Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
