/**
 * @description
 * This file contains the business logic for the multisig trade coordinator.
 * Trades are quorum-gated proposals: any user opens one against an asset, and
 * the trade auto-promotes to approved once the configured number of distinct
 * approvers is reached. Terminal transitions (completed, rejected) arrive
 * asynchronously through the trade decision consumer.
 *
 * @dependencies
 * - internal/domain: Domain models for trades and their events.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
)

// CreateTrade opens a new trade proposal. The referenced asset id is stored
// as-is; the coordinator never reaches into the asset registry, so a proposal
// can be opened for an asset this service has not (yet) registered.
func (s *Service) CreateTrade(ctx context.Context, initiatorID uuid.UUID, req domain.CreateTradeRequest) (*domain.MultisigTrade, error) {
	if req.TradeAmount <= 0 {
		return nil, ErrInvalidTradeAmount
	}

	trade := &domain.MultisigTrade{
		ID:                uuid.New(),
		AssetID:           req.AssetID,
		InitiatorID:       initiatorID,
		TradeAmount:       req.TradeAmount,
		Status:            domain.TradeStatusPending,
		RequiredApprovals: s.tradeRequiredApprovals,
		Approvers:         []uuid.UUID{},
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	s.publishEvent(ctx, "trade.created", domain.TradeCreatedEvent{
		TradeID:     trade.ID,
		AssetID:     trade.AssetID,
		InitiatorID: trade.InitiatorID,
		TradeAmount: trade.TradeAmount,
	})

	return trade, nil
}

// ApproveTrade records the caller's approval on a trade. Approving the same
// trade twice is a no-op that returns the current state without emitting an
// event. Quorum promotion happens inside the repository under a row lock.
func (s *Service) ApproveTrade(ctx context.Context, approverID, tradeID uuid.UUID) (*domain.MultisigTrade, error) {
	trade, err := s.repo.FindTradeByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.HasApprover(approverID) {
		return trade, nil
	}

	updated, err := s.repo.RecordTradeApproval(ctx, tradeID, approverID)
	if err != nil {
		return nil, err
	}

	// The pre-check above can race another request from the same approver; the
	// repository absorbs the duplicate, and only a genuinely new approval
	// produces an event.
	if len(updated.Approvers) > len(trade.Approvers) {
		s.publishEvent(ctx, "trade.approved", domain.TradeApprovedEvent{
			TradeID:        updated.ID,
			ApproverID:     approverID,
			ApproversCount: len(updated.Approvers),
			Status:         updated.Status,
		})
	}

	return updated, nil
}

// GetTrade retrieves a single trade proposal with its approver set.
func (s *Service) GetTrade(ctx context.Context, tradeID uuid.UUID) (*domain.MultisigTrade, error) {
	return s.repo.FindTradeByID(ctx, tradeID)
}

// ListOwnTrades retrieves trades opened by the caller, newest first.
func (s *Service) ListOwnTrades(ctx context.Context, initiatorID uuid.UUID) ([]domain.MultisigTrade, error) {
	return s.repo.ListTradesByInitiator(ctx, initiatorID)
}
