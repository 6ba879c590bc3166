package cache

import "fmt"

// 键语义：
// - roomKey(docID):     画布在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):    画布内 userId→username 映射（Hash）
// - cursorKey:          某参与者在某画布上的光标状态（String，JSON）
// - selectionKey:       某参与者当前选中的节点集合（String，JSON）
// - sessionKey(docID):  画布的分享会话令牌（String）
// - forkKey(key):       待 fork 的暂存载荷（String，JSON）

const (
	keyRoomFmt      = "canvas:room:{docID:%s}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt     = "canvas:room:names:{docID:%s}" // Hash<userId -> username>
	keyCursorFmt    = "canvas:cursor:%s:%s"          // docID, userID
	keySelectionFmt = "canvas:selection:%s:%s"       // docID, userID
	keySessionFmt   = "canvas:session:{docID:%s}"    // String<token>
	keyForkFmt      = "canvas:fork:%s"               // String<payload>
)

func roomKey(docID string) string              { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string             { return fmt.Sprintf(keyNamesFmt, docID) }
func cursorKey(docID, userID string) string    { return fmt.Sprintf(keyCursorFmt, docID, userID) }
func selectionKey(docID, userID string) string { return fmt.Sprintf(keySelectionFmt, docID, userID) }
func sessionKey(docID string) string           { return fmt.Sprintf(keySessionFmt, docID) }
func forkKey(key string) string                { return fmt.Sprintf(keyForkFmt, key) }
