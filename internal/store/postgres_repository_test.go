package store

import (
	"context"
	"testing"
)

func TestLoadApproversForTrades_EmptyPage(t *testing.T) {
	// An initiator with no trades must not issue an approver query at all; a
	// nil pool would panic if one were attempted.
	repo := NewPostgresRepository(nil)

	grouped, err := repo.loadApproversForTrades(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(grouped) != 0 {
		t.Fatalf("expected empty approver map, got %d entries", len(grouped))
	}
}
