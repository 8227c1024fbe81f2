package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meneportal/veritas/internal/domain"
)

// LedgerStore persists verification records keyed by claim hash.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Get(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	var (
		r           domain.VerificationRecord
		contextJSON []byte
		evidence    []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, claim, context, evidence, confidence, status, started_at, completed_at, error
		 FROM truth_ledger WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Claim, &contextJSON, &evidence, &r.Confidence, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalLedgerColumns(&r, contextJSON, evidence); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *LedgerStore) Put(ctx context.Context, r *domain.VerificationRecord) error {
	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return err
	}
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO truth_ledger (id, claim, context, evidence, confidence, status, started_at, completed_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     evidence = EXCLUDED.evidence,
		     confidence = EXCLUDED.confidence,
		     status = EXCLUDED.status,
		     completed_at = EXCLUDED.completed_at,
		     error = EXCLUDED.error`,
		r.ID, r.Claim, contextJSON, evidence, r.Confidence, r.Status, r.StartedAt, r.CompletedAt, r.Error,
	)
	return err
}

func (s *LedgerStore) List(ctx context.Context, limit int) ([]domain.VerificationRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, claim, context, evidence, confidence, status, started_at, completed_at, error
		 FROM truth_ledger ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

func (s *LedgerStore) ListStale(ctx context.Context, before time.Time) ([]domain.VerificationRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, claim, context, evidence, confidence, status, started_at, completed_at, error
		 FROM truth_ledger WHERE status = $1 AND started_at < $2`,
		domain.StatusVerifying, before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM truth_ledger`).Scan(&n)
	return n, err
}

func scanLedgerRows(rows pgx.Rows) ([]domain.VerificationRecord, error) {
	var records []domain.VerificationRecord
	for rows.Next() {
		var (
			r           domain.VerificationRecord
			contextJSON []byte
			evidence    []byte
		)
		if err := rows.Scan(&r.ID, &r.Claim, &contextJSON, &evidence, &r.Confidence, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Error); err != nil {
			return nil, err
		}
		if err := unmarshalLedgerColumns(&r, contextJSON, evidence); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func unmarshalLedgerColumns(r *domain.VerificationRecord, contextJSON, evidence []byte) error {
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &r.Context); err != nil {
			return err
		}
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
			return err
		}
	}
	return nil
}
