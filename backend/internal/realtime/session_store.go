package realtime

import (
	"context"
	"time"
)

// SessionStore 外部拥有的 kv 存储，核心只通过注入使用（不持有全局状态）。
// 存会话令牌（docID -> token）和待 fork 的暂存载荷，作用域是进程/浏览会话期。
// 键不存在时 Get 返回 ("", nil)，不算错误。
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}
