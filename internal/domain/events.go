package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event payloads published to the wellswap.events exchange. Delivery is
// best-effort and never gates the operation that produced the event.

// AssetRegisteredEvent is emitted after a successful asset registration.
type AssetRegisteredEvent struct {
	AssetID          uuid.UUID `json:"asset_id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	InsuranceCompany string    `json:"insurance_company"`
	RegistrationFee  int64     `json:"registration_fee"`
}

// AssetListedEvent is emitted when an owner lists an asset for sale.
type AssetListedEvent struct {
	AssetID   uuid.UUID `json:"asset_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	SalePrice int64     `json:"sale_price"`
}

// AssetSaleCancelledEvent is emitted when an owner delists an asset.
type AssetSaleCancelledEvent struct {
	AssetID uuid.UUID `json:"asset_id"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// AssetPurchasedEvent is emitted after an atomic payment-for-ownership swap.
type AssetPurchasedEvent struct {
	AssetID       uuid.UUID `json:"asset_id"`
	PreviousOwner uuid.UUID `json:"previous_owner"`
	NewOwner      uuid.UUID `json:"new_owner"`
	PurchasePrice int64     `json:"purchase_price"`
}

// TradeCreatedEvent is emitted when a trade proposal is opened.
type TradeCreatedEvent struct {
	TradeID     uuid.UUID `json:"trade_id"`
	AssetID     uuid.UUID `json:"asset_id"`
	InitiatorID uuid.UUID `json:"initiator_id"`
	TradeAmount int64     `json:"trade_amount"`
}

// TradeApprovedEvent is emitted when a new approver is recorded on a trade.
type TradeApprovedEvent struct {
	TradeID        uuid.UUID `json:"trade_id"`
	ApproverID     uuid.UUID `json:"approver_id"`
	ApproversCount int       `json:"approvers_count"`
	Status         string    `json:"status"`
}

// TradeDecisionEvent represents the message emitted by an operator tooling
// service when a trade is settled or rejected outside the approval flow.
type TradeDecisionEvent struct {
	EventID    string    `json:"event_id"`
	TradeID    string    `json:"trade_id"`
	Decision   string    `json:"decision"` // "completed" or "rejected"
	DecidedBy  string    `json:"decided_by"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
