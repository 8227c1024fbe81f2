package domain

import (
	"math"
	"testing"
)

func TestVerificationID_Deterministic(t *testing.T) {
	a := VerificationID("the sky is blue", map[string]string{"b": "2", "a": "1"})
	b := VerificationID("the sky is blue", map[string]string{"a": "1", "b": "2"})
	if a != b {
		t.Fatal("expected identical hash regardless of map iteration order")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestVerificationID_SensitiveToClaimAndContext(t *testing.T) {
	base := VerificationID("claim", map[string]string{"k": "v"})
	if VerificationID("claim!", map[string]string{"k": "v"}) == base {
		t.Fatal("expected different claims to hash differently")
	}
	if VerificationID("claim", map[string]string{"k": "other"}) == base {
		t.Fatal("expected different context to hash differently")
	}
	if VerificationID("claim", nil) == base {
		t.Fatal("expected missing context to hash differently")
	}
}

func TestAggregateConfidence_WeightedMean(t *testing.T) {
	items := []EvidenceItem{
		{Type: EvidenceHistoricalReference, Confidence: 0.8},
		{Type: EvidenceMemoryReference, Confidence: 0.9},
		{Type: EvidenceAgentResearch, Confidence: 0.7},
		{Type: EvidenceAgentCritical, Confidence: 0.6},
	}
	got := AggregateConfidence(items)
	want := (0.8*0.8 + 0.9*0.9 + 0.7*0.7 + 0.6*0.6) / (0.8 + 0.9 + 0.7 + 0.6)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestAggregateConfidence_Empty(t *testing.T) {
	if got := AggregateConfidence(nil); got != 0 {
		t.Fatalf("expected 0 for no evidence, got %f", got)
	}
}

func TestVerificationStatus_Terminal(t *testing.T) {
	terminal := []VerificationStatus{StatusVerifiedHigh, StatusVerifiedMedium, StatusVerifiedLow, StatusUnverified, StatusError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	if StatusVerifying.Terminal() {
		t.Fatal("expected verifying to be non-terminal")
	}
}

func TestEvidenceType_UnknownWeightDefaults(t *testing.T) {
	if w := EvidenceType("whatever").Weight(); w != 0.5 {
		t.Fatalf("expected default weight 0.5, got %f", w)
	}
}
