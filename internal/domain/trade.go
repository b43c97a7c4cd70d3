/**
 * @description
 * This file defines the multisig trade proposal model and its quorum-approval
 * state machine. A trade references an asset by id only; it never holds a live
 * reference into the asset registry, so the two state machines cannot alias
 * each other's records.
 *
 * @notes
 * - Status moves forward only: pending -> approved, and approved/pending ->
 *   rejected or approved -> completed through operator decisions. Nothing ever
 *   moves a trade backwards or removes a recorded approver.
 * - The approval threshold is stored per trade (`RequiredApprovals`) rather
 *   than hard-coded, defaulting to 2.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trade status values. Stored as lowercase strings in the database.
const (
	TradeStatusPending   = "pending"
	TradeStatusApproved  = "approved"
	TradeStatusRejected  = "rejected"
	TradeStatusCompleted = "completed"
)

// MultisigTrade represents one trade proposal awaiting quorum approval.
// This struct maps to the `multisig_trades` table; `Approvers` is loaded from
// the `trade_approvals` table.
type MultisigTrade struct {
	ID                uuid.UUID   `json:"id" db:"id"`
	AssetID           uuid.UUID   `json:"asset_id" db:"asset_id"`
	InitiatorID       uuid.UUID   `json:"initiator_id" db:"initiator_id"`
	TradeAmount       int64       `json:"trade_amount" db:"trade_amount"` // smallest token unit
	Status            string      `json:"status" db:"status"`
	RequiredApprovals int         `json:"required_approvals" db:"required_approvals"`
	Approvers         []uuid.UUID `json:"approvers"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

// CreateTradeRequest is the DTO for opening a new trade proposal.
type CreateTradeRequest struct {
	AssetID     uuid.UUID `json:"asset_id"`
	TradeAmount int64     `json:"trade_amount"`
}

// HasApprover reports whether the identity already approved this trade.
func (t *MultisigTrade) HasApprover(approver uuid.UUID) bool {
	for _, a := range t.Approvers {
		if a == approver {
			return true
		}
	}
	return false
}

// RecordApproval inserts the approver if not already present and promotes the
// trade to approved once the threshold is met. A duplicate approval is a no-op
// on both the approver set and the status. The promotion is one-way: a trade
// that already left pending keeps its status no matter how many further
// approvals arrive.
func (t *MultisigTrade) RecordApproval(approver uuid.UUID) bool {
	if t.HasApprover(approver) {
		return false
	}
	t.Approvers = append(t.Approvers, approver)
	if t.Status == TradeStatusPending && len(t.Approvers) >= t.RequiredApprovals {
		t.Status = TradeStatusApproved
	}
	return true
}

// IsTerminal reports whether the trade reached a final state.
func (t *MultisigTrade) IsTerminal() bool {
	return t.Status == TradeStatusRejected || t.Status == TradeStatusCompleted
}
