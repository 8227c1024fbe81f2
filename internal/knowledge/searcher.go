package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/store"
	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("knowledge base unavailable")

// DocumentBackend is the storage surface the searcher needs.
type DocumentBackend interface {
	Create(ctx context.Context, d *store.Document) error
	Search(ctx context.Context, embedding []float32, limit int) ([]domain.KnowledgeHit, error)
	Count(ctx context.Context) (int, error)
}

// Searcher is the knowledge-base collaborator: embedded document chunks
// retrieved by cosine similarity. Calls are bounded by a timeout so an
// unavailable backend fails fast instead of hanging the caller.
type Searcher struct {
	docs      DocumentBackend
	embedder  domain.EmbeddingClient
	timeout   time.Duration
	logger    *zap.Logger
}

func NewSearcher(docs DocumentBackend, embedder domain.EmbeddingClient, timeout time.Duration, logger *zap.Logger) *Searcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Searcher{docs: docs, embedder: embedder, timeout: timeout, logger: logger}
}

func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeHit, error) {
	if s.docs == nil || s.embedder == nil {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.docs.Search(ctx, emb, limit)
}

// AddDocument chunks, embeds and stores a document. Chunks whose
// embedding fails are skipped rather than failing the whole ingest.
func (s *Searcher) AddDocument(ctx context.Context, docType, title, content string) (int, error) {
	if s.docs == nil || s.embedder == nil {
		return 0, ErrUnavailable
	}
	if content == "" {
		return 0, errors.New("content is required")
	}
	if docType == "" {
		docType = "document"
	}

	chunks := ChunkText(content, defaultChunkWords, defaultChunkOverlap)

	added := 0
	for i, chunk := range chunks {
		emb, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			s.logger.Warn("embedding failed for document chunk",
				zap.String("title", title),
				zap.Int("chunk", i),
				zap.Error(err))
			continue
		}
		doc := &store.Document{
			DocType:   docType,
			Title:     title,
			Content:   chunk.Text,
			Embedding: emb,
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return added, fmt.Errorf("store document chunk: %w", err)
		}
		added++
	}
	return added, nil
}
