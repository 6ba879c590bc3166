package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// 远程校验的超时上限。websocket 升级路径也走这里，太长会拖慢首屏入房。
const verifyTimeout = 1200 * time.Millisecond

// 校验结果短暂缓存，避免同一令牌在心跳/重连风暴下反复打 auth 服务
const verifyCacheTTL = 30 * time.Second

type VerifyClaims struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	Type     string `json:"type"` // "access"
}

type cachedClaims struct {
	claims   VerifyClaims
	expireAt time.Time
}

// Verifier 调远程 auth 服务校验令牌，并带一层进程内的短 TTL 缓存。
type Verifier struct {
	client    *http.Client
	verifyURL string

	mu    sync.Mutex
	cache map[string]cachedClaims
}

// authBaseURL 只给服务地址（如 http://localhost:3001），路径由这里统一拼。
func NewVerifier(authBaseURL string) *Verifier {
	return &Verifier{
		client:    &http.Client{},
		verifyURL: strings.TrimRight(authBaseURL, "/") + "/v1/auth/verify",
		cache:     make(map[string]cachedClaims),
	}
}

func (v *Verifier) cached(token string) (VerifyClaims, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[token]
	if !ok || time.Now().After(entry.expireAt) {
		delete(v.cache, token)
		return VerifyClaims{}, false
	}
	return entry.claims, true
}

func (v *Verifier) store(token string, claims VerifyClaims) {
	v.mu.Lock()
	v.cache[token] = cachedClaims{claims: claims, expireAt: time.Now().Add(verifyCacheTTL)}
	v.mu.Unlock()
}

// Verify 校验一个 access 令牌。第二个返回值区分“令牌无效”(401) 和“上游不可用”。
func (v *Verifier) Verify(ctx context.Context, token string) (VerifyClaims, int, error) {
	if claims, ok := v.cached(token); ok {
		return claims, http.StatusOK, nil
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader("{}"))
	if err != nil {
		return VerifyClaims{}, http.StatusInternalServerError, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		// 包含超时（context deadline exceeded）
		return VerifyClaims{}, http.StatusBadGateway, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return VerifyClaims{}, http.StatusUnauthorized, nil
	case resp.StatusCode != http.StatusOK:
		return VerifyClaims{}, http.StatusBadGateway, nil
	}

	var claims VerifyClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return VerifyClaims{}, http.StatusBadGateway, err
	}
	if claims.Type != "" && claims.Type != "access" {
		// refresh 令牌不能当 access 用
		return VerifyClaims{}, http.StatusUnauthorized, nil
	}

	v.store(token, claims)
	return claims, http.StatusOK, nil
}

// AuthMiddleware 提取令牌、远程校验，把 userId/username 写进 gin.Context。
func AuthMiddleware(authBaseURL string) gin.HandlerFunc {
	v := NewVerifier(authBaseURL)

	return func(c *gin.Context) {
		token := extractBearer(c.Request.Header.Get("Authorization"))
		if token == "" {
			// 浏览器的 WebSocket 握手没法带自定义 Header，允许 ?token=
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}

		claims, status, err := v.Verify(c.Request.Context(), token)
		switch {
		case status == http.StatusUnauthorized:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "invalid token",
			})
			return
		case status != http.StatusOK || err != nil:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"code":    "AUTH_UPSTREAM_ERROR",
				"message": "auth-service verify failed",
			})
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// extractBearer 解析 "Bearer xxx"，前缀大小写不敏感。
func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
