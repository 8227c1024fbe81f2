package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

type VerificationStatus string

const (
	StatusVerifying      VerificationStatus = "verifying"
	StatusVerifiedHigh   VerificationStatus = "verified_high"
	StatusVerifiedMedium VerificationStatus = "verified_medium"
	StatusVerifiedLow    VerificationStatus = "verified_low"
	StatusUnverified     VerificationStatus = "unverified"
	StatusError          VerificationStatus = "error"
)

// Terminal reports whether the record is sealed. Everything except
// "verifying" is terminal.
func (s VerificationStatus) Terminal() bool {
	return s != StatusVerifying && s != ""
}

type EvidenceType string

const (
	EvidenceHistoricalReference  EvidenceType = "historical_reference"
	EvidenceMemoryReference      EvidenceType = "memory_reference"
	EvidenceAgentResearch        EvidenceType = "agent_research"
	EvidenceAgentCritical        EvidenceType = "agent_critical"
	EvidenceExternalVerification EvidenceType = "external_verification"
	EvidenceBrowserVerification  EvidenceType = "browser_verification"
)

// Weight returns the fixed aggregation weight for a source type.
func (t EvidenceType) Weight() float64 {
	switch t {
	case EvidenceHistoricalReference:
		return 0.8
	case EvidenceMemoryReference:
		return 0.9
	case EvidenceAgentResearch:
		return 0.7
	case EvidenceAgentCritical:
		return 0.6
	case EvidenceExternalVerification:
		return 0.7
	case EvidenceBrowserVerification:
		return 0.5
	default:
		return 0.5
	}
}

// EvidenceItem is one source's contribution to a claim verification.
// Immutable after creation.
type EvidenceItem struct {
	Source     string       `json:"source"`
	Type       EvidenceType `json:"type"`
	Summary    string       `json:"summary"`
	Confidence float64      `json:"confidence"`
}

// VerificationRecord is the sealed outcome of one claim verification,
// keyed by a content-derived hash of the claim and its context.
type VerificationRecord struct {
	ID          string             `json:"id"`
	Claim       string             `json:"claim"`
	Context     map[string]string  `json:"context,omitempty"`
	Evidence    []EvidenceItem     `json:"evidence"`
	Confidence  float64            `json:"confidence"`
	Status      VerificationStatus `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// VerificationID derives the identity hash for a (claim, context) pair.
// Context keys are sorted so identical maps hash identically.
func VerificationID(claim string, context map[string]string) string {
	var sb strings.Builder
	sb.WriteString(claim)

	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("\x1f")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(context[k])
	}

	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])
}

// AggregateConfidence computes the weighted mean of evidence confidences
// using the per-type weight table. Zero items aggregate to 0.
func AggregateConfidence(items []EvidenceItem) float64 {
	var weighted, total float64
	for _, item := range items {
		w := item.Type.Weight()
		weighted += item.Confidence * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
