package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"canvasServer/backend/internal/canvas"
	"canvasServer/backend/internal/realtime"
)

// 协作引擎接口：服务端为每个文档维护权威的画布状态，
// 所有收到的动作都经同一个 reducer 应用，晚加入的客户端直接拿当前文档。
type Service interface {
	// ApplyAction 把一条动作应用到 docID 的权威状态。raw 是线上信封原文（可为 nil）。
	ApplyAction(ctx context.Context, docID, senderID string, act canvas.Action, raw json.RawMessage) error

	// Document 返回当前文档快照（必要时从存储加载）。
	Document(ctx context.Context, docID string) (*canvas.Document, error)

	CreateCanvas(ctx context.Context, ownerID, title string) (string, error)
	// ImportCanvas 把一份现成的文档内容分叉成 ownerID 名下的新文档（fork）。
	ImportCanvas(ctx context.Context, doc *canvas.Document, ownerID string) (string, error)
	SaveCanvas(ctx context.Context, docID string) error
	// SaveCanvasOnExit 页面/进程退出时的尽力而为保存，不阻塞调用方。
	SaveCanvasOnExit(docID string)

	// ShareSession 铸造新的会话令牌并按文档 id 存起来（协作分享链接）。
	ShareSession(ctx context.Context, docID string) (string, error)
	SessionToken(ctx context.Context, docID string) (string, error)
	VerifySession(ctx context.Context, docID, token string) (bool, error)

	// CanBroadcast 服务端侧的 send-gating 复核。
	CanBroadcast(ctx context.Context, docID, userID, sessionToken string) (bool, error)
}

// 文档存储接口
type DocumentStore interface {
	LoadDocument(ctx context.Context, docID string) (*canvas.Document, error)
	SaveDocument(ctx context.Context, doc *canvas.Document, ownerID string) error
	CreateDocument(ctx context.Context, ownerID, title string) (string, error)
}

// 快照存储接口（退出路径用，允许失败）
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, docID string, payload []byte) error
}

var ErrDocumentNotFound = errors.New("DOCUMENT_NOT_FOUND")

// 会话令牌在 kv 存储里的存活时长（覆盖一次浏览会话）。
const sessionTTL = 24 * time.Hour

type docState struct {
	mu    sync.Mutex
	state *canvas.State
}

// 内存实现：持有所有已打开文档的状态
type InMemoryService struct {
	mu   sync.RWMutex
	docs map[string]*docState

	// 依赖注入
	// 只声明，实现在 store / cache 中
	store      DocumentStore
	snapshots  SnapshotStore
	sessions   realtime.SessionStore
	dispatcher *KafkaDispatcher
}

// NewInMemoryService 返回一个满足 Service 接口的实例
func NewInMemoryService(store DocumentStore, snapshots SnapshotStore, sessions realtime.SessionStore, dispatcher *KafkaDispatcher) Service {
	return &InMemoryService{
		docs:       make(map[string]*docState),
		store:      store,
		snapshots:  snapshots,
		sessions:   sessions,
		dispatcher: dispatcher,
	}
}

// 获取或加载指定文档的状态。
// 只有明确的“没存过”才从空文档起步；其他加载错误直接往上抛，
// 否则存储抖一下就会把已有文档当成无主空文档（gating 全开 + 保存时覆盖真数据）。
func (s *InMemoryService) getOrLoadDoc(ctx context.Context, docID string) (*docState, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds = s.docs[docID]; ds == nil {
		doc, err := s.store.LoadDocument(ctx, docID)
		if errors.Is(err, ErrDocumentNotFound) {
			// 存储里还没有：从空文档起步，create 动作流会把它填起来
			log.Printf("document %s not stored yet, starting empty", docID)
			doc = &canvas.Document{ID: docID}
		} else if err != nil {
			return nil, err
		}
		ds = &docState{state: canvas.NewState(doc)}
		s.docs[docID] = ds
	}
	return ds, nil
}

func (s *InMemoryService) ApplyAction(ctx context.Context, docID, senderID string, act canvas.Action, raw json.RawMessage) error {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	ds.state.Apply(act, senderID)
	ds.mu.Unlock()

	// presence 类动作不出事件；文档变更异步发 Kafka（不阻塞主流程）
	if canvas.IsPresence(act) || s.dispatcher == nil {
		return nil
	}
	if raw == nil {
		b, err := canvas.Encode(act)
		if err != nil {
			return err
		}
		raw = b
	}
	evt := CanvasOpEvent{
		EventType:  "ACTION_APPLIED",
		DocID:      docID,
		OpID:       uuid.NewString(),
		ActionType: act.ActionType(),
		SenderID:   senderID,
		Action:     raw,
		AppliedAt:  time.Now(),
	}
	if err := s.dispatcher.Enqueue(ctx, evt); err != nil {
		// 事件丢了不影响文档状态，记一笔即可
		log.Printf("enqueue canvas event doc=%s type=%s: %v", docID, evt.ActionType, err)
	}
	return nil
}

func (s *InMemoryService) Document(ctx context.Context, docID string) (*canvas.Document, error) {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.state.Doc.Clone(), nil
}

func (s *InMemoryService) CreateCanvas(ctx context.Context, ownerID, title string) (string, error) {
	return s.store.CreateDocument(ctx, ownerID, title)
}

// ImportCanvas 新文档换了 id 和 owner，但内容原样保留；fork 完立刻落库并进内存。
func (s *InMemoryService) ImportCanvas(ctx context.Context, doc *canvas.Document, ownerID string) (string, error) {
	cp := doc.Clone()
	cp.ID = uuid.NewString()
	cp.OwnerID = ownerID
	if err := s.store.SaveDocument(ctx, cp, ownerID); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.docs[cp.ID] = &docState{state: canvas.NewState(cp.Clone())}
	s.mu.Unlock()
	return cp.ID, nil
}

func (s *InMemoryService) SaveCanvas(ctx context.Context, docID string) error {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return ErrDocumentNotFound
	}
	ds.mu.Lock()
	doc := ds.state.Doc.Clone()
	ds.mu.Unlock()
	return s.store.SaveDocument(ctx, doc, doc.OwnerID)
}

// SaveCanvasOnExit 尽力而为：独立超时、错误只记日志，绝不阻塞退出流程。
func (s *InMemoryService) SaveCanvasOnExit(docID string) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return
	}
	ds.mu.Lock()
	doc := ds.state.Doc.Clone()
	ds.mu.Unlock()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		payload, err := json.Marshal(doc)
		if err != nil {
			log.Printf("marshal snapshot doc=%s: %v", docID, err)
			return
		}
		if err := s.snapshots.SaveSnapshot(ctx, docID, payload); err != nil {
			log.Printf("save snapshot doc=%s: %v", docID, err)
		}
	}()
}

func (s *InMemoryService) ShareSession(ctx context.Context, docID string) (string, error) {
	token := realtime.MintSessionToken()
	if err := s.sessions.Set(ctx, docID, token, sessionTTL); err != nil {
		return "", err
	}
	return token, nil
}

func (s *InMemoryService) SessionToken(ctx context.Context, docID string) (string, error) {
	return s.sessions.Get(ctx, docID)
}

// VerifySession 校验客户端出示的令牌是否是当前有效的分享令牌。
func (s *InMemoryService) VerifySession(ctx context.Context, docID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	stored, err := s.sessions.Get(ctx, docID)
	if err != nil {
		return false, err
	}
	return stored != "" && stored == token, nil
}

func (s *InMemoryService) CanBroadcast(ctx context.Context, docID, userID, sessionToken string) (bool, error) {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return false, err
	}
	ds.mu.Lock()
	doc := ds.state.Doc
	allowed := realtime.CanSend(doc, userID, sessionToken)
	ds.mu.Unlock()
	return allowed, nil
}
