package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

// 假 auth 服务：只认 "good" 令牌，并统计被调次数
func startFakeAuth(t *testing.T, calls *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		if r.URL.Path != "/v1/auth/verify" {
			t.Errorf("verify path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":42,"username":"alice","type":"access"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAuthedRouter(authURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(authURL))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(200, gin.H{"userId": c.GetUint64("userId"), "username": c.GetString("username")})
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	var calls int64
	auth := startFakeAuth(t, &calls)
	r := newAuthedRouter(auth.URL)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); !strings.Contains(body, `"username":"alice"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestAuthMiddleware_QueryTokenForWebsocket(t *testing.T) {
	var calls int64
	auth := startFakeAuth(t, &calls)
	r := newAuthedRouter(auth.URL)

	// 没有 Authorization 头，走 ?token=
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/whoami?token=good", nil))
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthMiddleware_RejectsBadAndMissingToken(t *testing.T) {
	var calls int64
	auth := startFakeAuth(t, &calls)
	r := newAuthedRouter(auth.URL)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer forged")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_CachesVerifyResult(t *testing.T) {
	var calls int64
	auth := startFakeAuth(t, &calls)
	r := newAuthedRouter(auth.URL)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != 200 {
			t.Fatalf("status = %d", w.Code)
		}
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("verify calls = %d, want 1 (cached)", got)
	}
}
