package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meneportal/veritas/internal/domain"
	pgvector "github.com/pgvector/pgvector-go"
)

// Document is one embedded knowledge-base chunk.
type Document struct {
	ID        uuid.UUID
	DocType   string
	Title     string
	Content   string
	Embedding []float32
}

// DocumentStore persists knowledge-base chunks with their embeddings and
// serves cosine-similarity search.
type DocumentStore struct {
	db *pgxpool.Pool
}

func NewDocumentStore(db *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	var embedding *pgvector.Vector
	if len(d.Embedding) > 0 {
		v := pgvector.NewVector(d.Embedding)
		embedding = &v
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (id, doc_type, title, content, embedding)
		 VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.DocType, d.Title, d.Content, embedding,
	)
	return err
}

func (s *DocumentStore) Search(ctx context.Context, embedding []float32, limit int) ([]domain.KnowledgeHit, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT doc_type, title, content, 1 - (embedding <=> $1) AS relevance
		 FROM documents
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.KnowledgeHit
	for rows.Next() {
		var h domain.KnowledgeHit
		if err := rows.Scan(&h.Type, &h.Title, &h.Content, &h.Relevance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}
