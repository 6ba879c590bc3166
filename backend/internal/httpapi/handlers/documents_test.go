package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"canvasServer/backend/internal/canvas"
	"canvasServer/backend/internal/collab"
)

type fakeService struct {
	mu       sync.Mutex
	docs     map[string]*canvas.Document
	imported *canvas.Document // 最近一次 fork 进来的内容
}

func newFakeService() *fakeService {
	return &fakeService{docs: make(map[string]*canvas.Document)}
}

func (s *fakeService) ApplyAction(ctx context.Context, docID, senderID string, act canvas.Action, raw json.RawMessage) error {
	return nil
}

func (s *fakeService) Document(ctx context.Context, docID string) (*canvas.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[docID]; ok {
		return doc.Clone(), nil
	}
	return &canvas.Document{ID: docID}, nil
}

func (s *fakeService) CreateCanvas(ctx context.Context, ownerID, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "doc-" + title
	s.docs[id] = &canvas.Document{ID: id, Title: title, OwnerID: ownerID}
	return id, nil
}

func (s *fakeService) ImportCanvas(ctx context.Context, doc *canvas.Document, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := doc.Clone()
	cp.ID = "doc-forked"
	cp.OwnerID = ownerID
	s.docs[cp.ID] = cp
	s.imported = cp
	return cp.ID, nil
}

func (s *fakeService) SaveCanvas(ctx context.Context, docID string) error { return nil }
func (s *fakeService) SaveCanvasOnExit(docID string)                      {}

func (s *fakeService) ShareSession(ctx context.Context, docID string) (string, error) {
	return "tok", nil
}
func (s *fakeService) SessionToken(ctx context.Context, docID string) (string, error) {
	return "tok", nil
}
func (s *fakeService) VerifySession(ctx context.Context, docID, token string) (bool, error) {
	return token == "tok", nil
}
func (s *fakeService) CanBroadcast(ctx context.Context, docID, userID, sessionToken string) (bool, error) {
	return true, nil
}

var _ collab.Service = (*fakeService)(nil)

type fakeForkStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeForkStore() *fakeForkStore {
	return &fakeForkStore{data: make(map[string]string)}
}

func (f *fakeForkStore) GetFork(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeForkStore) SetFork(ctx context.Context, key, payload string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = payload
	return nil
}

func (f *fakeForkStore) RemoveFork(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func newTestRouter(svc collab.Service, forks ForkStore, userID uint64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, forks)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", userID)
		c.Set("username", "tester")
	})
	r.POST("/documents", h.CreateCanvas)
	r.GET("/documents/:docID", h.GetCanvas)
	r.POST("/documents/:docID/share", h.ShareCanvas)
	r.POST("/documents/:docID/save", h.SaveCanvas)
	r.POST("/forks/stash", h.StashFork)
	r.POST("/documents/:docID/fork", h.ForkCanvas)
	return r
}

func TestForkCanvas_UsesStashedPayload(t *testing.T) {
	svc := newFakeService()
	forks := newFakeForkStore()
	r := newTestRouter(svc, forks, 2)

	// 先暂存本地编辑过的副本
	stashed := canvas.Document{ID: "d1", Title: "local copy", Nodes: []canvas.Node{{ID: "n1"}}}
	body, _ := json.Marshal(stashed)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/forks/stash", bytes.NewReader(body)))
	if w.Code != 200 {
		t.Fatalf("stash status = %d, body = %s", w.Code, w.Body.String())
	}

	// fork：应该用暂存内容而不是服务端副本
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/documents/d1/fork", nil))
	if w.Code != 200 {
		t.Fatalf("fork status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.imported == nil || svc.imported.Title != "local copy" {
		t.Fatalf("imported = %+v, want stashed copy", svc.imported)
	}
	if svc.imported.OwnerID != "2" {
		t.Fatalf("fork owner = %q, want %q", svc.imported.OwnerID, "2")
	}
	// 暂存载荷用完即删
	if v, _ := forks.GetFork(context.Background(), "2"); v != "" {
		t.Fatalf("stash not removed: %q", v)
	}
}

func TestForkCanvas_CorruptStashFallsBack(t *testing.T) {
	svc := newFakeService()
	forks := newFakeForkStore()
	_, _ = svc.CreateCanvas(context.Background(), "1", "server-side")
	_ = forks.SetFork(context.Background(), "2", "{not json", time.Hour)

	r := newTestRouter(svc, forks, 2)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/documents/doc-server-side/fork", nil))
	if w.Code != 200 {
		t.Fatalf("fork status = %d, body = %s", w.Code, w.Body.String())
	}
	// 损坏的暂存内容被静默丢弃，回落到服务端副本
	if svc.imported == nil || svc.imported.Title != "server-side" {
		t.Fatalf("imported = %+v, want server copy", svc.imported)
	}
}

func TestShareCanvas_OwnerOnly(t *testing.T) {
	svc := newFakeService()
	_, _ = svc.CreateCanvas(context.Background(), "1", "board")

	// owner 本人可以分享
	r := newTestRouter(svc, newFakeForkStore(), 1)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/documents/doc-board/share", nil))
	if w.Code != 200 {
		t.Fatalf("owner share status = %d", w.Code)
	}
	var resp struct {
		SessionToken string `json:"sessionToken"`
		Room         string `json:"room"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("share resp invalid: %v", err)
	}
	if resp.SessionToken == "" || resp.Room != "doc-board:"+resp.SessionToken {
		t.Fatalf("share resp = %+v", resp)
	}

	// 非 owner 被拒
	r2 := newTestRouter(svc, newFakeForkStore(), 2)
	w = httptest.NewRecorder()
	r2.ServeHTTP(w, httptest.NewRequest("POST", "/documents/doc-board/share", nil))
	if w.Code != 403 {
		t.Fatalf("viewer share status = %d, want 403", w.Code)
	}
}

func TestCreateCanvas(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, newFakeForkStore(), 7)

	body := bytes.NewReader([]byte(`{"title":"my board"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/documents", body))
	if w.Code != 200 {
		t.Fatalf("create status = %d", w.Code)
	}
	var resp struct {
		DocID   string `json:"docId"`
		OwnerID string `json:"ownerId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create resp invalid: %v", err)
	}
	if resp.DocID == "" || resp.OwnerID != "7" {
		t.Fatalf("create resp = %+v", resp)
	}
}
