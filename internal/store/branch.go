package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meneportal/veritas/internal/domain"
)

// BranchStore persists memory branches and their records. Records are
// append-only; the branch row carries the counters.
type BranchStore struct {
	db *pgxpool.Pool
}

func NewBranchStore(db *pgxpool.Pool) *BranchStore {
	return &BranchStore{db: db}
}

func (s *BranchStore) Create(ctx context.Context, b *domain.MemoryBranch) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO memory_branches (agent_id, agent_name)
		 VALUES ($1, $2)
		 RETURNING created_at, last_accessed_at`,
		b.AgentID, b.AgentName,
	).Scan(&b.CreatedAt, &b.LastAccessedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *BranchStore) Get(ctx context.Context, agentID uuid.UUID) (*domain.MemoryBranch, error) {
	b := &domain.MemoryBranch{}
	err := s.db.QueryRow(ctx,
		`SELECT agent_id, agent_name, record_count, conversation_count, created_at, last_accessed_at
		 FROM memory_branches WHERE agent_id = $1`,
		agentID,
	).Scan(&b.AgentID, &b.AgentName, &b.RecordCount, &b.ConversationCount, &b.CreatedAt, &b.LastAccessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BranchStore) List(ctx context.Context) ([]domain.MemoryBranch, error) {
	rows, err := s.db.Query(ctx,
		`SELECT agent_id, agent_name, record_count, conversation_count, created_at, last_accessed_at
		 FROM memory_branches ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []domain.MemoryBranch
	for rows.Next() {
		var b domain.MemoryBranch
		if err := rows.Scan(&b.AgentID, &b.AgentName, &b.RecordCount, &b.ConversationCount, &b.CreatedAt, &b.LastAccessedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *BranchStore) Delete(ctx context.Context, agentID uuid.UUID) error {
	// Records cascade via FK; absent branch is a no-op by contract.
	_, err := s.db.Exec(ctx, `DELETE FROM memory_branches WHERE agent_id = $1`, agentID)
	return err
}

func (s *BranchStore) Append(ctx context.Context, r *domain.MemoryRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	convIncr := 0
	if r.Kind == domain.RecordConversation {
		convIncr = 1
	}

	tag, err := tx.Exec(ctx,
		`UPDATE memory_branches
		 SET record_count = record_count + 1,
		     conversation_count = conversation_count + $2,
		     last_accessed_at = NOW()
		 WHERE agent_id = $1`,
		r.AgentID, convIncr,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO memory_records (id, agent_id, kind, request, response, context, important)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		r.ID, r.AgentID, r.Kind, r.Request, r.Response, r.Context, r.Important,
	).Scan(&r.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *BranchStore) Recent(ctx context.Context, agentID uuid.UUID, n int) ([]domain.MemoryRecord, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, kind, request, response, context, important, created_at
		 FROM (
		     SELECT * FROM memory_records WHERE agent_id = $1
		     ORDER BY created_at DESC, id DESC LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		agentID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *BranchStore) ListRecords(ctx context.Context, agentID uuid.UUID) ([]domain.MemoryRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, kind, request, response, context, important, created_at
		 FROM memory_records WHERE agent_id = $1
		 ORDER BY created_at ASC, id ASC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *BranchStore) RecentConversations(ctx context.Context, limit int) ([]domain.MemoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, kind, request, response, context, important, created_at
		 FROM memory_records WHERE kind = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		domain.RecordConversation, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *BranchStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memory_branches`).Scan(&n)
	return n, err
}

func scanRecords(rows pgx.Rows) ([]domain.MemoryRecord, error) {
	var records []domain.MemoryRecord
	for rows.Next() {
		var r domain.MemoryRecord
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Kind, &r.Request, &r.Response, &r.Context, &r.Important, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
