/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the marketplace-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User and account methods
	// Resolve internal UUID from the authenticated JWT subject.
	FindUserIDByAuthSubject(ctx context.Context, subject string) (string, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// Asset registry methods
	CreateAsset(ctx context.Context, asset *domain.InsuranceAsset) error
	FindAssetByID(ctx context.Context, assetID uuid.UUID) (*domain.InsuranceAsset, error)
	ListAssetsForSale(ctx context.Context, opts domain.AssetListOptions) ([]domain.InsuranceAsset, error)
	ListAssetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.InsuranceAsset, error)
	UpdateAssetSaleState(ctx context.Context, assetID, ownerID uuid.UUID, forSale bool, salePrice *int64) error
	TransferAssetOwnership(ctx context.Context, assetID, sellerID, buyerID uuid.UUID, price int64) error

	// Trade coordinator methods
	CreateTrade(ctx context.Context, trade *domain.MultisigTrade) error
	FindTradeByID(ctx context.Context, tradeID uuid.UUID) (*domain.MultisigTrade, error)
	ListTradesByInitiator(ctx context.Context, initiatorID uuid.UUID) ([]domain.MultisigTrade, error)
	RecordTradeApproval(ctx context.Context, tradeID, approverID uuid.UUID) (*domain.MultisigTrade, error)
	UpdateTradeStatus(ctx context.Context, tradeID uuid.UUID, fromStatuses []string, toStatus string) (bool, error)
}
