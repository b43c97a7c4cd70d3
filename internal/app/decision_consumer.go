package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
	"github.com/wellswap/marketplace-service/internal/store"
)

// TradeDecisionConsumer applies terminal decisions (completed, rejected) to
// multisig trades. Decisions arrive from operator tooling over RabbitMQ and
// may be replayed; already-terminal trades acknowledge and drop the message.
type TradeDecisionConsumer struct {
	repo store.Repository
}

func NewTradeDecisionConsumer(repo store.Repository) *TradeDecisionConsumer {
	return &TradeDecisionConsumer{repo: repo}
}

// HandleMessage processes one decision message. Returning true acknowledges
// the delivery; false requeues it for another attempt.
func (c *TradeDecisionConsumer) HandleMessage(body []byte) bool {
	var event domain.TradeDecisionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("trade-decision-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.TradeID == "" {
		log.Printf("trade-decision-consumer: missing trade id in event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("trade-decision-consumer: processing error for trade %s: %v", event.TradeID, err)
		return false
	}

	return true
}

func (c *TradeDecisionConsumer) processEvent(ctx context.Context, event domain.TradeDecisionEvent) error {
	tradeID, err := uuid.Parse(event.TradeID)
	if err != nil {
		log.Printf("trade-decision-consumer: malformed trade id %q; acknowledging", event.TradeID)
		return nil
	}

	decision := normalizeDecision(event.Decision)
	if decision == "" {
		log.Printf("trade-decision-consumer: unknown decision %q for trade %s; acknowledging", event.Decision, event.TradeID)
		return nil
	}

	trade, err := c.repo.FindTradeByID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, store.ErrTradeNotFound) {
			log.Printf("trade-decision-consumer: no trade found for %s; acknowledging", event.TradeID)
			return nil
		}
		return fmt.Errorf("lookup trade: %w", err)
	}

	if trade.IsTerminal() {
		// Replay of a decision the trade already settled on.
		return nil
	}

	// Completion needs an approved quorum behind it; a rejection can land on a
	// trade in either live status.
	var from []string
	switch decision {
	case domain.TradeStatusCompleted:
		from = []string{domain.TradeStatusApproved}
	case domain.TradeStatusRejected:
		from = []string{domain.TradeStatusPending, domain.TradeStatusApproved}
	}

	moved, err := c.repo.UpdateTradeStatus(ctx, tradeID, from, decision)
	if err != nil {
		return fmt.Errorf("update trade status: %w", err)
	}
	if !moved {
		log.Printf("trade-decision-consumer: trade %s not eligible for %s from status %s; dropping", tradeID, decision, trade.Status)
		return nil
	}

	log.Printf("level=info component=trade_decision_consumer msg=\"trade settled\" trade_id=%s decision=%s decided_by=%s", tradeID, decision, event.DecidedBy)
	return nil
}

func normalizeDecision(decision string) string {
	decision = strings.TrimSpace(strings.ToLower(decision))
	switch decision {
	case "completed", "complete", "settled":
		return domain.TradeStatusCompleted
	case "rejected", "reject", "declined":
		return domain.TradeStatusRejected
	default:
		return ""
	}
}
