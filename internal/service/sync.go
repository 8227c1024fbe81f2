package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/meneportal/veritas/internal/domain"
	"go.uber.org/zap"
)

var ErrUnknownPlatform = errors.New("unknown sync platform")

const (
	snapshotFactsCap     = 5
	snapshotSummariesCap = 3
	snapshotInsightsCap  = 3
	defaultSyncBudget    = 4096
)

// Platform describes one external destination for memory snapshots.
type Platform struct {
	Name   string
	Method domain.SyncMethod
	// URL is the webhook endpoint for API platforms, or the page the
	// browser path navigates to.
	URL string
}

// APIPusher delivers a snapshot payload to a native-integration
// platform.
type APIPusher interface {
	Push(ctx context.Context, url string, payload []byte) error
}

// WebhookPusher posts snapshots as JSON to a platform webhook.
type WebhookPusher struct {
	httpClient *http.Client
}

func NewWebhookPusher(timeout time.Duration) *WebhookPusher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookPusher{httpClient: &http.Client{Timeout: timeout}}
}

func (p *WebhookPusher) Push(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("platform returned status %d", resp.StatusCode)
	}
	return nil
}

// SyncService consolidates memory into snapshots and dispatches them to
// external platforms, by API where the platform has a native
// integration and by browser automation otherwise.
type SyncService struct {
	memory    *MemoryService
	ledger    domain.LedgerStore
	agents    domain.AgentStore
	pusher    APIPusher
	executor  domain.AutomationExecutor
	platforms map[string]Platform
	logger    *zap.Logger

	mu       sync.Mutex
	lastSync map[string]domain.SyncResult
}

func NewSyncService(memory *MemoryService, ledger domain.LedgerStore, agents domain.AgentStore, pusher APIPusher, executor domain.AutomationExecutor, platforms []Platform, logger *zap.Logger) *SyncService {
	byName := make(map[string]Platform, len(platforms))
	for _, p := range platforms {
		byName[p.Name] = p
	}
	return &SyncService{
		memory:    memory,
		ledger:    ledger,
		agents:    agents,
		pusher:    pusher,
		executor:  executor,
		platforms: byName,
		logger:    logger,
		lastSync:  make(map[string]domain.SyncResult),
	}
}

// BuildSnapshot consolidates current state into an untrimmed snapshot:
// settled claims from the ledger, recent conversation digests, shared
// insights, and the persona roster.
func (s *SyncService) BuildSnapshot(ctx context.Context) (*domain.MemorySnapshot, error) {
	snapshot := &domain.MemorySnapshot{}

	ledgerRecords, err := s.ledger.List(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	for _, rec := range ledgerRecords {
		switch rec.Status {
		case domain.StatusVerifiedHigh, domain.StatusVerifiedMedium, domain.StatusVerifiedLow:
			snapshot.VerifiedFacts = append(snapshot.VerifiedFacts,
				fmt.Sprintf("%s (confidence %.2f)", rec.Claim, rec.Confidence))
		}
	}

	branches, err := s.memory.branches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read branches: %w", err)
	}
	for _, b := range branches {
		records, err := s.memory.Recent(ctx, b.AgentID, 3)
		if err != nil || len(records) == 0 {
			continue
		}
		last := records[len(records)-1]
		snapshot.ConversationSummaries = append(snapshot.ConversationSummaries,
			fmt.Sprintf("%s: %s -> %s", b.AgentName, truncate(last.Request, 120), truncate(last.Response, 120)))
	}

	entries, err := s.memory.shared.List(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("read shared memory: %w", err)
	}
	for _, e := range entries {
		snapshot.KeyInsights = append(snapshot.KeyInsights, truncate(e.Content, 200))
	}

	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read agents: %w", err)
	}
	if len(agents) > 0 {
		snapshot.AgentPreferences = make(map[string]string, len(agents))
		for _, a := range agents {
			pref := a.Provider
			if a.Model != "" {
				pref += "/" + a.Model
			}
			snapshot.AgentPreferences[a.Name] = pref
		}
	}

	return snapshot, nil
}

// Prepare trims a snapshot to fit a byte budget. Category caps apply
// first (5 facts, 3 summaries, 3 insights); then whole categories drop
// lowest priority first: preferences, insights, summaries. Verified
// facts survive the longest and only shrink one at a time as the last
// resort.
func (s *SyncService) Prepare(snapshot domain.MemorySnapshot, budget int) (domain.MemorySnapshot, error) {
	if budget <= 0 {
		budget = defaultSyncBudget
	}

	if size, err := snapshotSize(snapshot); err != nil {
		return snapshot, err
	} else if size <= budget {
		return snapshot, nil
	}

	if len(snapshot.VerifiedFacts) > snapshotFactsCap {
		snapshot.VerifiedFacts = snapshot.VerifiedFacts[:snapshotFactsCap]
	}
	if len(snapshot.ConversationSummaries) > snapshotSummariesCap {
		snapshot.ConversationSummaries = snapshot.ConversationSummaries[:snapshotSummariesCap]
	}
	if len(snapshot.KeyInsights) > snapshotInsightsCap {
		snapshot.KeyInsights = snapshot.KeyInsights[:snapshotInsightsCap]
	}

	drops := []func(){
		func() { snapshot.AgentPreferences = nil },
		func() { snapshot.KeyInsights = nil },
		func() { snapshot.ConversationSummaries = nil },
	}
	for _, drop := range drops {
		size, err := snapshotSize(snapshot)
		if err != nil {
			return snapshot, err
		}
		if size <= budget {
			return snapshot, nil
		}
		drop()
	}

	for {
		size, err := snapshotSize(snapshot)
		if err != nil {
			return snapshot, err
		}
		if size <= budget || len(snapshot.VerifiedFacts) == 0 {
			return snapshot, nil
		}
		snapshot.VerifiedFacts = snapshot.VerifiedFacts[:len(snapshot.VerifiedFacts)-1]
	}
}

func snapshotSize(snapshot domain.MemorySnapshot) (int, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	return len(data), nil
}

// Dispatch delivers a snapshot to one platform. The result always comes
// back populated; transport failures land in Status/Error rather than a
// returned error.
func (s *SyncService) Dispatch(ctx context.Context, platformName string, snapshot domain.MemorySnapshot) domain.SyncResult {
	result := domain.SyncResult{
		Platform:  platformName,
		Timestamp: time.Now().UTC(),
	}

	platform, ok := s.platforms[platformName]
	if !ok {
		result.Status = domain.SyncStatusError
		result.Error = ErrUnknownPlatform.Error()
		s.recordResult(result)
		return result
	}
	result.Method = platform.Method

	payload, err := json.Marshal(snapshot)
	if err != nil {
		result.Status = domain.SyncStatusError
		result.Error = err.Error()
		s.recordResult(result)
		return result
	}
	result.Bytes = len(payload)

	switch platform.Method {
	case domain.SyncMethodAPI:
		err = s.dispatchAPI(ctx, platform, payload)
	default:
		err = s.dispatchBrowser(ctx, platform)
	}

	if err != nil {
		result.Status = domain.SyncStatusError
		result.Error = err.Error()
	} else {
		result.Status = domain.SyncStatusOK
	}
	s.recordResult(result)
	return result
}

func (s *SyncService) dispatchAPI(ctx context.Context, platform Platform, payload []byte) error {
	if s.pusher == nil {
		return errors.New("no API pusher configured")
	}
	return s.pusher.Push(ctx, platform.URL, payload)
}

// dispatchBrowser opens the platform page in the automation session so
// the operator-side integration can pick up the prepared snapshot. A
// screenshot is kept as the delivery receipt.
func (s *SyncService) dispatchBrowser(ctx context.Context, platform Platform) error {
	if s.executor == nil {
		return errors.New("no automation executor configured")
	}

	session := "sync-" + platform.Name
	if res := s.executor.Navigate(ctx, session, platform.URL); !res.OK() {
		return fmt.Errorf("navigate %s: %s", platform.Name, res.Error)
	}
	if res := s.executor.Screenshot(ctx, session); !res.OK() {
		s.logger.Warn("sync receipt screenshot failed",
			zap.String("platform", platform.Name),
			zap.String("error", res.Error))
	}
	return nil
}

// SyncAll builds, trims, and dispatches one snapshot to the requested
// platforms (all configured platforms when none are named). Per-platform
// failures are isolated in their result slots.
func (s *SyncService) SyncAll(ctx context.Context, platformNames []string, budget int) ([]domain.SyncResult, error) {
	snapshot, err := s.BuildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	trimmed, err := s.Prepare(*snapshot, budget)
	if err != nil {
		return nil, err
	}

	if len(platformNames) == 0 {
		for name := range s.platforms {
			platformNames = append(platformNames, name)
		}
	}

	results := make([]domain.SyncResult, 0, len(platformNames))
	for _, name := range platformNames {
		results = append(results, s.Dispatch(ctx, name, trimmed))
	}
	return results, nil
}

func (s *SyncService) recordResult(result domain.SyncResult) {
	s.mu.Lock()
	s.lastSync[result.Platform] = result
	s.mu.Unlock()
}

// LastResults returns the most recent dispatch outcome per platform.
func (s *SyncService) LastResults() []domain.SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]domain.SyncResult, 0, len(s.lastSync))
	for _, r := range s.lastSync {
		results = append(results, r)
	}
	return results
}

// Platforms returns the configured platform names.
func (s *SyncService) Platforms() []string {
	names := make([]string, 0, len(s.platforms))
	for name := range s.platforms {
		names = append(names, name)
	}
	return names
}
