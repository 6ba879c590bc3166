package store

import (
	"context"
	"database/sql"
)

// SnapshotStore 退出路径的快照写入（database/sql 直连）。
// 只追加，不读回；失败由调用方记日志，不重试。
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, docID string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_snapshots (doc_id, payload, created_at) VALUES (?, ?, NOW())`,
		docID,
		payload,
	)
	return err
}
