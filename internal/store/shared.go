package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meneportal/veritas/internal/domain"
)

// SharedMemoryStore persists the cross-agent pool of promoted entries.
// Append-only; entries are never edited in place.
type SharedMemoryStore struct {
	db *pgxpool.Pool
}

func NewSharedMemoryStore(db *pgxpool.Pool) *SharedMemoryStore {
	return &SharedMemoryStore{db: db}
}

func (s *SharedMemoryStore) Append(ctx context.Context, e *domain.SharedMemoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO shared_memory (id, source_agent_id, source_agent_name, source_record_id, content, importance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		e.ID, e.SourceAgentID, e.SourceAgentName, e.SourceRecordID, e.Content, e.Importance,
	).Scan(&e.CreatedAt)
}

func (s *SharedMemoryStore) List(ctx context.Context, limit int) ([]domain.SharedMemoryEntry, error) {
	query := `SELECT id, source_agent_id, source_agent_name, source_record_id, content, importance, created_at
	          FROM shared_memory ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.SharedMemoryEntry
	for rows.Next() {
		var e domain.SharedMemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceAgentID, &e.SourceAgentName, &e.SourceRecordID, &e.Content, &e.Importance, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SharedMemoryStore) DeleteBySourceAgent(ctx context.Context, agentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM shared_memory WHERE source_agent_id = $1`, agentID)
	return err
}

func (s *SharedMemoryStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM shared_memory`).Scan(&n)
	return n, err
}
