package realtime

import (
	"github.com/google/uuid"

	"canvasServer/backend/internal/canvas"
)

// RoomID 计算客户端应加入的频道标识。
// 没有会话令牌时就是文档 id；建立了令牌后收窄为 "docID:token"。
// 文档 id 或令牌任一变化都意味着换房：先退旧频道，再进新频道。
func RoomID(docID, sessionToken string) string {
	if sessionToken == "" {
		return docID
	}
	return docID + ":" + sessionToken
}

// CanSend 判断本地编辑是否允许广播（send-gating）。满足任一即可：
//   - 文档没有记录 owner
//   - 本地身份就是 owner
//   - 已为该文档建立会话令牌（被邀请的协作）
//
// 不满足时本地仍可编辑内存副本（只读可 fork 的浏览模式），只是不发出去。
func CanSend(doc *canvas.Document, userID, sessionToken string) bool {
	if doc == nil {
		return false
	}
	if doc.OwnerID == "" {
		return true
	}
	if doc.OwnerID == userID {
		return true
	}
	return sessionToken != ""
}

// MintSessionToken 生成一个新的随机会话令牌，用于可分享的协作链接。
func MintSessionToken() string {
	return uuid.NewString()
}
