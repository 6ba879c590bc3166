package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"canvasServer/backend/internal/canvas"
)

// Client 客户端侧的频道实现：拨号、入房、发布动作、分发远端动作。
// 实现 realtime.Channel，供 realtime.Engine 绑定。
type Client struct {
	mu    sync.Mutex // gorilla 连接同一时刻只允许一个写入者
	ws    *websocket.Conn
	docID string
}

// DialCanvas 建立连接并加入 docID（可携带会话令牌，收窄到分享房间）。
// onAction 在读循环 goroutine 里按到达顺序被调用。
func DialCanvas(wsURL, authToken, docID, sessionToken string, onAction func(act canvas.Action, senderID string)) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+authToken, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{ws: conn, docID: docID}
	join := ClientMessage{Type: "joinCanvas", DocID: docID, SessionToken: sessionToken}
	if err := c.writeJSON(join); err != nil {
		conn.Close()
		return nil, err
	}
	go c.readLoop(onAction)
	return c, nil
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Publish 实现 realtime.Channel。
func (c *Client) Publish(act canvas.Action) error {
	raw, err := canvas.Encode(act)
	if err != nil {
		return err
	}
	return c.writeJSON(ClientMessage{Type: "action", DocID: c.docID, Action: raw})
}

func (c *Client) readLoop(onAction func(act canvas.Action, senderID string)) {
	for {
		var msg ActionBroadcastMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "action" || onAction == nil {
			continue
		}
		act, err := canvas.Decode(msg.Action)
		if err != nil {
			// 畸形动作静默丢弃
			log.Printf("decode remote action: %v", err)
			continue
		}
		onAction(act, msg.SenderID)
	}
}

// Save 请求服务端把当前文档写入持久层。
func (c *Client) Save() error {
	return c.writeJSON(ClientMessage{Type: "saveCanvas", DocID: c.docID})
}

func (c *Client) Heartbeat() error {
	return c.writeJSON(ClientMessage{Type: "heartbeat"})
}

func (c *Client) Close() error {
	return c.ws.Close()
}

