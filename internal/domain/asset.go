/**
 * @description
 * This file defines the core domain models for the marketplace-service around
 * tokenized insurance assets. These structs represent the main entities and data
 * transfer objects (DTOs) used throughout the service's business logic, database
 * interactions, and API layers.
 *
 * @notes
 * - Monetary amounts are stored as `int64` in the smallest token unit, which
 *   avoids floating-point inaccuracies with financial data.
 * - `SalePrice` is a pointer because a price can only exist while the asset is
 *   listed. A freshly registered asset is for sale without a price until the
 *   owner lists it explicitly.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Asset sale state invariant: a sale price is never present on a delisted
// asset. Only Owner, IsForSale and SalePrice mutate after registration.

// InsuranceAsset represents one registered, tradeable insurance policy.
// This struct maps directly to the `insurance_assets` table in the database.
type InsuranceAsset struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	OwnerID              uuid.UUID `json:"owner_id" db:"owner_id"`
	InsuranceCompany     string    `json:"insurance_company" db:"insurance_company"`
	ProductCategory      string    `json:"product_category" db:"product_category"`
	ProductName          string    `json:"product_name" db:"product_name"`
	ContractDate         time.Time `json:"contract_date" db:"contract_date"`
	ContractPeriodMonths int32     `json:"contract_period_months" db:"contract_period_months"`
	PaidPeriodMonths     int32     `json:"paid_period_months" db:"paid_period_months"`
	AnnualPremium        int64     `json:"annual_premium" db:"annual_premium"` // smallest token unit
	TotalPaid            int64     `json:"total_paid" db:"total_paid"`         // smallest token unit
	IsForSale            bool      `json:"is_for_sale" db:"is_for_sale"`
	SalePrice            *int64    `json:"sale_price,omitempty" db:"sale_price"`
	RegistrationFee      int64     `json:"registration_fee" db:"registration_fee"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// RegisterAssetRequest is the DTO for incoming asset registration API requests.
type RegisterAssetRequest struct {
	InsuranceCompany     string    `json:"insurance_company"`
	ProductCategory      string    `json:"product_category"`
	ProductName          string    `json:"product_name"`
	ContractDate         time.Time `json:"contract_date"`
	ContractPeriodMonths int32     `json:"contract_period_months"`
	PaidPeriodMonths     int32     `json:"paid_period_months"`
	AnnualPremium        int64     `json:"annual_premium"`
	TotalPaid            int64     `json:"total_paid"`
	RegistrationFee      int64     `json:"registration_fee"`
}

// ListAssetForSaleRequest is the DTO for listing an owned asset on the market.
type ListAssetForSaleRequest struct {
	SalePrice int64 `json:"sale_price"`
}

// PurchaseAssetRequest is the DTO for buying a listed asset. The price is
// repeated by the buyer and must match the listed sale price exactly.
type PurchaseAssetRequest struct {
	PurchasePrice int64 `json:"purchase_price"`
}

// AssetListOptions controls pagination for market listings.
type AssetListOptions struct {
	Limit  int
	Offset int
}

// User represents a simplified view of a user, containing only the data
// needed by the marketplace-service.
type User struct {
	ID               uuid.UUID `json:"id"`
	Username         string    `json:"username"`
	LedgerCustomerID string    `json:"ledger_customer_id"`
}

// Account represents a user's token wallet on the external ledger.
type Account struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	LedgerAccountID string    `json:"ledger_account_id"`
}

// AccountBalance represents the balance information reported by the ledger.
type AccountBalance struct {
	AvailableBalance int64 `json:"available_balance"` // smallest token unit
	LedgerBalance    int64 `json:"ledger_balance"`    // smallest token unit
	Hold             int64 `json:"hold"`              // smallest token unit
	Pending          int64 `json:"pending"`           // smallest token unit
}
