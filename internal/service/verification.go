package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrEmptyClaim          = errors.New("claim is required")
	ErrVerificationUnknown = errors.New("verification record not found")
)

// PeerOpinionSource gathers reviewer-agent evidence for a claim.
type PeerOpinionSource interface {
	Consult(ctx context.Context, claim string) ([]domain.EvidenceItem, error)
}

// LedgerSearchHit is one result of a claim-text search over the ledger.
type LedgerSearchHit struct {
	ID            string                    `json:"id"`
	Claim         string                    `json:"claim"`
	Status        domain.VerificationStatus `json:"status"`
	Confidence    float64                   `json:"confidence"`
	EvidenceCount int                       `json:"evidence_count"`
	StartedAt     time.Time                 `json:"started_at"`
}

// VerificationService runs claim verifications and seals the outcomes
// into the ledger. Identity is the content hash of (claim, context), so
// re-verifying a settled claim is a cache hit; concurrent requests for
// the same claim share one flight.
type VerificationService struct {
	ledger   domain.LedgerStore
	internal []EvidenceSource
	peers    PeerOpinionSource
	external EvidenceSource

	high, medium, low float64
	evidenceTimeout   time.Duration
	staleAfter        time.Duration

	group  singleflight.Group
	logger *zap.Logger
}

type VerificationConfig struct {
	HighThreshold   float64
	MediumThreshold float64
	LowThreshold    float64
	EvidenceTimeout time.Duration
	StaleAfter      time.Duration
}

func NewVerificationService(ledger domain.LedgerStore, internal []EvidenceSource, peers PeerOpinionSource, external EvidenceSource, cfg VerificationConfig, logger *zap.Logger) *VerificationService {
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = 0.9
	}
	if cfg.MediumThreshold <= 0 {
		cfg.MediumThreshold = 0.7
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = 0.5
	}
	if cfg.EvidenceTimeout <= 0 {
		cfg.EvidenceTimeout = 10 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &VerificationService{
		ledger:          ledger,
		internal:        internal,
		peers:           peers,
		external:        external,
		high:            cfg.HighThreshold,
		medium:          cfg.MediumThreshold,
		low:             cfg.LowThreshold,
		evidenceTimeout: cfg.EvidenceTimeout,
		staleAfter:      cfg.StaleAfter,
		logger:          logger,
	}
}

// Verify settles a claim. A sealed record for the same (claim, context)
// pair is returned as-is; otherwise the full evidence pipeline runs and
// the outcome is sealed before returning.
func (s *VerificationService) Verify(ctx context.Context, claim string, claimContext map[string]string) (*domain.VerificationRecord, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, ErrEmptyClaim
	}

	id := domain.VerificationID(claim, claimContext)

	if rec, err := s.ledger.Get(ctx, id); err == nil {
		if rec.Status.Terminal() {
			return rec, nil
		}
		if repaired := s.repairIfStale(ctx, rec); repaired != nil {
			return repaired, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		return s.run(ctx, id, claim, claimContext)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.VerificationRecord), nil
}

// run executes one verification flight end to end. The record always
// leaves in a terminal state: aggregate outcomes seal as a verified
// tier, and a pipeline failure seals as error.
func (s *VerificationService) run(ctx context.Context, id, claim string, claimContext map[string]string) (*domain.VerificationRecord, error) {
	rec := &domain.VerificationRecord{
		ID:        id,
		Claim:     claim,
		Context:   claimContext,
		Status:    domain.StatusVerifying,
		StartedAt: time.Now().UTC(),
	}
	if err := s.ledger.Put(ctx, rec); err != nil {
		s.logger.Warn("failed to persist verifying record", zap.String("id", id), zap.Error(err))
	}

	items := s.gatherInternal(ctx, claim)

	if s.peers != nil {
		peerItems, err := s.peers.Consult(ctx, claim)
		if err != nil {
			s.logger.Warn("peer consultation unavailable", zap.String("id", id), zap.Error(err))
		}
		items = append(items, peerItems...)
	}

	// Browser fact-check is the expensive last resort: only consulted
	// when everything cheaper leaves the claim below the medium tier.
	if s.external != nil && domain.AggregateConfidence(items) < s.medium {
		if item := s.gatherOne(ctx, s.external, claim); item != nil {
			items = append(items, *item)
		}
	}

	if ctx.Err() != nil {
		return s.seal(rec, nil, 0, domain.StatusError, ctx.Err().Error()), nil
	}

	confidence := domain.AggregateConfidence(items)
	return s.seal(rec, items, confidence, s.statusFor(confidence), ""), nil
}

func (s *VerificationService) gatherInternal(ctx context.Context, claim string) []domain.EvidenceItem {
	var (
		mu    sync.Mutex
		items []domain.EvidenceItem
	)
	g := new(errgroup.Group)
	for _, src := range s.internal {
		src := src
		g.Go(func() error {
			if item := s.gatherOne(ctx, src, claim); item != nil {
				mu.Lock()
				items = append(items, *item)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// gatherOne runs a single source under the evidence timeout. Source
// failures are logged and dropped; an unavailable source never fails
// the verification.
func (s *VerificationService) gatherOne(ctx context.Context, src EvidenceSource, claim string) *domain.EvidenceItem {
	ctx, cancel := context.WithTimeout(ctx, s.evidenceTimeout)
	defer cancel()

	item, err := src.Gather(ctx, claim)
	if err != nil {
		s.logger.Debug("evidence source failed",
			zap.String("source", src.Name()),
			zap.Error(err))
		return nil
	}
	return item
}

func (s *VerificationService) statusFor(confidence float64) domain.VerificationStatus {
	switch {
	case confidence >= s.high:
		return domain.StatusVerifiedHigh
	case confidence >= s.medium:
		return domain.StatusVerifiedMedium
	case confidence >= s.low:
		return domain.StatusVerifiedLow
	default:
		return domain.StatusUnverified
	}
}

// seal finalizes and persists the record. Persistence failure is logged
// but the sealed record is still returned to the caller.
func (s *VerificationService) seal(rec *domain.VerificationRecord, items []domain.EvidenceItem, confidence float64, status domain.VerificationStatus, errMsg string) *domain.VerificationRecord {
	now := time.Now().UTC()
	rec.Evidence = items
	rec.Confidence = confidence
	rec.Status = status
	rec.CompletedAt = &now
	rec.Error = errMsg

	// Seal with a fresh context so a cancelled caller cannot leave the
	// record non-terminal.
	if err := s.ledger.Put(context.Background(), rec); err != nil {
		s.logger.Error("failed to seal verification record",
			zap.String("id", rec.ID),
			zap.Error(err))
	}
	return rec
}

// Get returns a ledger record by id, repairing it first if it is a
// stale leftover flight.
func (s *VerificationService) Get(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	rec, err := s.ledger.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrVerificationUnknown
		}
		return nil, err
	}
	if repaired := s.repairIfStale(ctx, rec); repaired != nil {
		return repaired, nil
	}
	return rec, nil
}

// repairIfStale seals a "verifying" record that outlived its flight,
// which happens when the process died mid-verification. Returns nil
// when no repair applies.
func (s *VerificationService) repairIfStale(ctx context.Context, rec *domain.VerificationRecord) *domain.VerificationRecord {
	if rec.Status.Terminal() {
		return nil
	}
	if time.Since(rec.StartedAt) < s.staleAfter {
		return nil
	}
	return s.seal(rec, rec.Evidence, rec.Confidence, domain.StatusError, "verification abandoned: process interrupted")
}

// Sweep repairs every stale in-flight record. Returns how many were
// sealed.
func (s *VerificationService) Sweep(ctx context.Context) (int, error) {
	stale, err := s.ledger.ListStale(ctx, time.Now().UTC().Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}
	for i := range stale {
		s.seal(&stale[i], stale[i].Evidence, stale[i].Confidence, domain.StatusError, "verification abandoned: process interrupted")
	}
	return len(stale), nil
}

// Search matches ledger records whose claim contains the query text as
// a case-insensitive substring, ranked by token occurrence counts with
// recency breaking ties.
func (s *VerificationService) Search(ctx context.Context, query string, limit int) ([]LedgerSearchHit, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, ErrQueryEmpty
	}
	if limit <= 0 {
		limit = 10
	}

	records, err := s.ledger.List(ctx, 500)
	if err != nil {
		return nil, err
	}

	tokens := searchTokens(query)

	type scored struct {
		hit   LedgerSearchHit
		score int
	}
	var matches []scored
	for _, rec := range records {
		claim := strings.ToLower(rec.Claim)
		// Substring containment decides the match; tokens only rank it.
		if !strings.Contains(claim, needle) {
			continue
		}
		score := 1
		for _, tok := range tokens {
			score += strings.Count(claim, tok)
		}
		matches = append(matches, scored{s.toHit(rec), score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].hit.StartedAt.After(matches[j].hit.StartedAt)
	})

	hits := make([]LedgerSearchHit, 0, limit)
	for _, m := range matches {
		hits = append(hits, m.hit)
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (s *VerificationService) toHit(rec domain.VerificationRecord) LedgerSearchHit {
	return LedgerSearchHit{
		ID:            rec.ID,
		Claim:         rec.Claim,
		Status:        rec.Status,
		Confidence:    rec.Confidence,
		EvidenceCount: len(rec.Evidence),
		StartedAt:     rec.StartedAt,
	}
}

// LedgerCount returns the ledger size for the stats snapshot.
func (s *VerificationService) LedgerCount(ctx context.Context) (int, error) {
	return s.ledger.Count(ctx)
}
