package domain

import (
	"testing"

	"github.com/google/uuid"
)

func newPendingTrade(required int) *MultisigTrade {
	return &MultisigTrade{
		ID:                uuid.New(),
		AssetID:           uuid.New(),
		InitiatorID:       uuid.New(),
		TradeAmount:       1_000_000,
		Status:            TradeStatusPending,
		RequiredApprovals: required,
		Approvers:         []uuid.UUID{},
	}
}

func TestRecordApproval_PromotesAtThreshold(t *testing.T) {
	trade := newPendingTrade(2)

	if !trade.RecordApproval(uuid.New()) {
		t.Fatal("expected first approval to be recorded")
	}
	if trade.Status != TradeStatusPending {
		t.Fatalf("expected trade still pending below quorum, got %s", trade.Status)
	}

	if !trade.RecordApproval(uuid.New()) {
		t.Fatal("expected second approval to be recorded")
	}
	if trade.Status != TradeStatusApproved {
		t.Fatalf("expected promotion at quorum, got %s", trade.Status)
	}
}

func TestRecordApproval_DuplicateIsIdempotent(t *testing.T) {
	trade := newPendingTrade(2)
	approver := uuid.New()

	if !trade.RecordApproval(approver) {
		t.Fatal("expected first approval to be recorded")
	}
	if trade.RecordApproval(approver) {
		t.Fatal("expected duplicate approval to be a no-op")
	}
	if len(trade.Approvers) != 1 {
		t.Fatalf("expected one approver, got %d", len(trade.Approvers))
	}
	if trade.Status != TradeStatusPending {
		t.Fatalf("expected duplicate not to advance the quorum, got %s", trade.Status)
	}
}

func TestRecordApproval_NeverDemotes(t *testing.T) {
	trade := newPendingTrade(2)
	trade.RecordApproval(uuid.New())
	trade.RecordApproval(uuid.New())

	for i := 0; i < 3; i++ {
		trade.RecordApproval(uuid.New())
		if trade.Status != TradeStatusApproved {
			t.Fatalf("expected approved status to persist, got %s", trade.Status)
		}
	}
	if len(trade.Approvers) != 5 {
		t.Fatalf("expected all distinct approvers recorded, got %d", len(trade.Approvers))
	}
}

func TestIsTerminal(t *testing.T) {
	cases := map[string]bool{
		TradeStatusPending:   false,
		TradeStatusApproved:  false,
		TradeStatusRejected:  true,
		TradeStatusCompleted: true,
	}
	for status, want := range cases {
		trade := &MultisigTrade{Status: status}
		if trade.IsTerminal() != want {
			t.Fatalf("status %s: expected terminal=%v", status, want)
		}
	}
}
