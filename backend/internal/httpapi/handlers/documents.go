package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"canvasServer/backend/internal/canvas"
	"canvasServer/backend/internal/collab"
	"canvasServer/backend/internal/realtime"
)

// fork 暂存载荷的存活时长：只需要撑过一次登录跳转
const forkStashTTL = time.Hour

// ForkStore 按用户暂存待 fork 的文档载荷（cache.RedisSessionStore 实现）。
type ForkStore interface {
	GetFork(ctx context.Context, key string) (string, error)
	SetFork(ctx context.Context, key, payload string, ttl time.Duration) error
	RemoveFork(ctx context.Context, key string) error
}

type Handler struct {
	svc   collab.Service
	forks ForkStore
}

func NewHandler(svc collab.Service, forks ForkStore) *Handler {
	return &Handler{svc: svc, forks: forks}
}

// 从gin.Context获取用户信息；gin.Context对每个用户天然隔离
func ownerFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(500, gin.H{"error": "User context missing"})
		return "", false
	}
	uid, ok := userID.(uint64)
	if !ok {
		c.JSON(500, gin.H{"error": "Invalid user ID format"})
		return "", false
	}
	return strconv.FormatUint(uid, 10), true
}

type createCanvasReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateCanvas(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	var req createCanvasReq
	_ = c.ShouldBindJSON(&req)
	docID, err := h.svc.CreateCanvas(c.Request.Context(), ownerID, req.Title)
	if err != nil {
		log.Printf("create canvas error: %v", err)
		c.JSON(500, gin.H{"error": "CREATE_CANVAS_FAILED"})
		return
	}
	c.JSON(200, gin.H{"docId": docID, "ownerId": ownerID, "title": req.Title})
}

func (h *Handler) GetCanvas(c *gin.Context) {
	docID := c.Param("docID")
	if docID == "" {
		c.JSON(400, gin.H{"error": "Document ID missing"})
		return
	}
	doc, err := h.svc.Document(c.Request.Context(), docID)
	if err != nil {
		log.Printf("get canvas error: %v", err)
		c.JSON(500, gin.H{"error": "GET_CANVAS_FAILED"})
		return
	}
	c.JSON(200, doc)
}

// ShareCanvas 铸造分享会话令牌：只有 owner 能分享。
// 拿到令牌的客户端应带着它重新 joinCanvas，房间随之从 "<id>" 切到 "<id>:<token>"。
func (h *Handler) ShareCanvas(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	docID := c.Param("docID")
	doc, err := h.svc.Document(c.Request.Context(), docID)
	if err != nil {
		c.JSON(500, gin.H{"error": "GET_CANVAS_FAILED"})
		return
	}
	if doc.OwnerID != "" && doc.OwnerID != ownerID {
		c.JSON(403, gin.H{"error": "NOT_OWNER"})
		return
	}
	token, err := h.svc.ShareSession(c.Request.Context(), docID)
	if err != nil {
		log.Printf("share canvas error: %v", err)
		c.JSON(500, gin.H{"error": "SHARE_FAILED"})
		return
	}
	c.JSON(200, gin.H{"docId": docID, "sessionToken": token, "room": realtime.RoomID(docID, token)})
}

// StashFork 暂存客户端本地编辑过的文档副本，等用户完成登录后再真正 fork。
func (h *Handler) StashFork(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(400, gin.H{"error": "EMPTY_PAYLOAD"})
		return
	}
	if err := h.forks.SetFork(c.Request.Context(), ownerID, string(body), forkStashTTL); err != nil {
		log.Printf("stash fork error: %v", err)
		c.JSON(500, gin.H{"error": "STASH_FAILED"})
		return
	}
	c.JSON(200, gin.H{"stashed": true})
}

// ForkCanvas 把文档分叉成调用者名下的新文档。
// 优先使用之前暂存的本地副本；载荷损坏时静默丢弃，回落到服务端当前文档。
func (h *Handler) ForkCanvas(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	docID := c.Param("docID")
	ctx := c.Request.Context()

	var doc *canvas.Document
	if payload, err := h.forks.GetFork(ctx, ownerID); err == nil && payload != "" {
		var stashed canvas.Document
		if json.Unmarshal([]byte(payload), &stashed) == nil {
			doc = &stashed
		}
	}
	_ = h.forks.RemoveFork(ctx, ownerID)
	if doc == nil {
		var err error
		doc, err = h.svc.Document(ctx, docID)
		if err != nil {
			log.Printf("fork canvas error: %v", err)
			c.JSON(500, gin.H{"error": "FORK_FAILED"})
			return
		}
	}

	newID, err := h.svc.ImportCanvas(ctx, doc, ownerID)
	if err != nil {
		log.Printf("fork canvas error: %v", err)
		c.JSON(500, gin.H{"error": "FORK_FAILED"})
		return
	}
	c.JSON(200, gin.H{"docId": newID, "ownerId": ownerID, "forkedFrom": docID})
}

func (h *Handler) SaveCanvas(c *gin.Context) {
	docID := c.Param("docID")
	if err := h.svc.SaveCanvas(c.Request.Context(), docID); err != nil {
		log.Printf("save canvas error: %v", err)
		c.JSON(500, gin.H{"error": "SAVE_FAILED"})
		return
	}
	c.JSON(200, gin.H{"docId": docID, "saved": true})
}
