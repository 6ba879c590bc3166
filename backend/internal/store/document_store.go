package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"canvasServer/backend/internal/canvas"
	"canvasServer/backend/internal/collab"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// DocumentModel 画布文档的持久化形态。节点和边整体存 JSON 列
// （文档级 last-writer-wins，保存即整体覆盖，不做行级合并）。
type DocumentModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	Title      string `gorm:"size:255"`
	OwnerID    string `gorm:"index;size:64"`
	Background string `gorm:"size:32"`
	Nodes      string `gorm:"type:json"`
	Edges      string `gorm:"type:json"`
}

func (DocumentModel) TableName() string { return "canvas_documents" }

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) LoadDocument(ctx context.Context, docID string) (*canvas.Document, error) {
	var m DocumentModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", docID).Error; err != nil {
		// “没存过”和“存储坏了”必须分开：前者是正常流程，后者要往上抛
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collab.ErrDocumentNotFound
		}
		return nil, err
	}
	doc := &canvas.Document{
		ID:         m.ID,
		Title:      m.Title,
		OwnerID:    m.OwnerID,
		Background: m.Background,
	}
	if m.Nodes != "" {
		if err := json.Unmarshal([]byte(m.Nodes), &doc.Nodes); err != nil {
			return nil, err
		}
	}
	if m.Edges != "" {
		if err := json.Unmarshal([]byte(m.Edges), &doc.Edges); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *DocumentStore) SaveDocument(ctx context.Context, doc *canvas.Document, ownerID string) error {
	if doc == nil || doc.ID == "" {
		return errors.New("INVALID_DOCUMENT")
	}
	nodes, err := json.Marshal(doc.Nodes)
	if err != nil {
		return err
	}
	edges, err := json.Marshal(doc.Edges)
	if err != nil {
		return err
	}
	m := DocumentModel{
		ID:         doc.ID,
		Title:      doc.Title,
		OwnerID:    ownerID,
		Background: doc.Background,
		Nodes:      string(nodes),
		Edges:      string(edges),
	}
	// Save：存在则整体覆盖，不存在则插入
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID, title string) (string, error) {
	m := DocumentModel{
		ID:      uuid.NewString(),
		Title:   title,
		OwnerID: ownerID,
		Nodes:   "[]",
		Edges:   "[]",
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", err
	}
	return m.ID, nil
}
