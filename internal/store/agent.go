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

type AgentStore struct {
	db *pgxpool.Pool
}

func NewAgentStore(db *pgxpool.Pool) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO agents (id, name, provider, system_prompt, model, temperature, max_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		a.ID, a.Name, a.Provider, a.SystemPrompt, a.Model, a.Temperature, a.MaxTokens,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a := &domain.Agent{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, provider, system_prompt, model, temperature, max_tokens,
		        query_count, total_tokens, avg_latency_ms, created_at, updated_at
		 FROM agents WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Name, &a.Provider, &a.SystemPrompt, &a.Model, &a.Temperature, &a.MaxTokens,
		&a.QueryCount, &a.TotalTokens, &a.AvgLatencyMs, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentStore) List(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, provider, system_prompt, model, temperature, max_tokens,
		        query_count, total_tokens, avg_latency_ms, created_at, updated_at
		 FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Provider, &a.SystemPrompt, &a.Model, &a.Temperature, &a.MaxTokens,
			&a.QueryCount, &a.TotalTokens, &a.AvgLatencyMs, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *AgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *AgentStore) UpdateCounters(ctx context.Context, id uuid.UUID, queryCount, totalTokens int64, avgLatencyMs float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agents SET query_count = $2, total_tokens = $3, avg_latency_ms = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, queryCount, totalTokens, avgLatencyMs,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *AgentStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&n)
	return n, err
}
