package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
	"github.com/wellswap/marketplace-service/internal/store"
)

type decisionRepoStub struct {
	store.Repository

	trade *domain.MultisigTrade

	updateCalled bool
	updatedFrom  []string
	updatedTo    string
	updateMoved  bool
}

func (s *decisionRepoStub) FindTradeByID(ctx context.Context, tradeID uuid.UUID) (*domain.MultisigTrade, error) {
	if s.trade == nil || s.trade.ID != tradeID {
		return nil, store.ErrTradeNotFound
	}
	return s.trade, nil
}

func (s *decisionRepoStub) UpdateTradeStatus(ctx context.Context, tradeID uuid.UUID, fromStatuses []string, toStatus string) (bool, error) {
	s.updateCalled = true
	s.updatedFrom = fromStatuses
	s.updatedTo = toStatus
	return s.updateMoved, nil
}

func TestTradeDecision_CompletesApprovedTrade(t *testing.T) {
	trade := &domain.MultisigTrade{ID: uuid.New(), Status: domain.TradeStatusApproved}
	repo := &decisionRepoStub{trade: trade, updateMoved: true}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: trade.ID.String(), Decision: "completed", DecidedBy: "ops"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if !repo.updateCalled || repo.updatedTo != domain.TradeStatusCompleted {
		t.Fatalf("expected completion update, got called=%v to=%s", repo.updateCalled, repo.updatedTo)
	}
	if len(repo.updatedFrom) != 1 || repo.updatedFrom[0] != domain.TradeStatusApproved {
		t.Fatalf("expected completion gated on approved status, got %v", repo.updatedFrom)
	}
}

func TestTradeDecision_RejectsPendingTrade(t *testing.T) {
	trade := &domain.MultisigTrade{ID: uuid.New(), Status: domain.TradeStatusPending}
	repo := &decisionRepoStub{trade: trade, updateMoved: true}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: trade.ID.String(), Decision: "rejected", Reason: "fraud review"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.updateCalled || repo.updatedTo != domain.TradeStatusRejected {
		t.Fatalf("expected rejection update, got called=%v to=%s", repo.updateCalled, repo.updatedTo)
	}
}

func TestTradeDecision_IgnoresReplayOnTerminalTrade(t *testing.T) {
	trade := &domain.MultisigTrade{ID: uuid.New(), Status: domain.TradeStatusCompleted}
	repo := &decisionRepoStub{trade: trade}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: trade.ID.String(), Decision: "rejected", Reason: "late replay"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected replay to be acknowledged, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("did not expect a settled trade to be reopened by a replay")
	}
}

func TestTradeDecision_DropsCompletionOfPendingTrade(t *testing.T) {
	// A pending trade never reached quorum; completion must not bypass it. The
	// guarded update reports no row moved and the message is dropped.
	trade := &domain.MultisigTrade{ID: uuid.New(), Status: domain.TradeStatusPending}
	repo := &decisionRepoStub{trade: trade, updateMoved: false}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: trade.ID.String(), Decision: "completed"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected ineligible decision to be dropped, got %v", err)
	}
	if !repo.updateCalled {
		t.Fatal("expected the guarded update to be attempted")
	}
}

func TestTradeDecision_AcksUnknownTrade(t *testing.T) {
	repo := &decisionRepoStub{}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: uuid.New().String(), Decision: "completed"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected unknown trade to be acknowledged, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("expected no status update for an unknown trade")
	}
}

func TestTradeDecision_AcksMalformedTradeID(t *testing.T) {
	repo := &decisionRepoStub{}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: "not-a-uuid", Decision: "completed"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected malformed trade id to be acknowledged, got %v", err)
	}
}

func TestTradeDecision_AcksUnknownDecision(t *testing.T) {
	trade := &domain.MultisigTrade{ID: uuid.New(), Status: domain.TradeStatusApproved}
	repo := &decisionRepoStub{trade: trade}
	consumer := NewTradeDecisionConsumer(repo)

	event := domain.TradeDecisionEvent{TradeID: trade.ID.String(), Decision: "escalated"}
	if err := consumer.processEvent(context.Background(), event); err != nil {
		t.Fatalf("expected unknown decision to be acknowledged, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("expected no status update for an unknown decision")
	}
}

func TestHandleMessage_AcksMalformedPayload(t *testing.T) {
	consumer := NewTradeDecisionConsumer(&decisionRepoStub{})

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatal("expected malformed payload to be acknowledged, not requeued")
	}
	if !consumer.HandleMessage([]byte(`{"decision":"completed"}`)) {
		t.Fatal("expected missing trade id to be acknowledged")
	}
}
