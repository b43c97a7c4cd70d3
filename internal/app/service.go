/**
 * @description
 * This file contains the core business logic for the marketplace-service's asset
 * registry. The `Service` struct orchestrates registration, listing, and purchase
 * of tokenized insurance assets, coordinating between the database repository,
 * the token ledger API client, and the message broker.
 *
 * Key features:
 * - Registration charges the flat fee to the platform account before any record
 *   is created; a rejected fee transfer aborts the whole operation.
 * - Purchase is payment-for-ownership atomic: the buyer's payment to the seller
 *   is the commit point, and ownership mutates only after the ledger confirms it.
 * - Publishes marketplace events to RabbitMQ for asynchronous consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/ledgerclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
	"github.com/wellswap/marketplace-service/internal/store"
	"github.com/wellswap/marketplace-service/pkg/ledgerclient"
	"github.com/wellswap/marketplace-service/pkg/rabbitmq"
)

// EventExchange is the topic exchange all marketplace events are published to.
const EventExchange = "wellswap.events"

var (
	ErrNotOwner               = errors.New("caller is not the asset owner")
	ErrAssetNotForSale        = errors.New("asset is not for sale")
	ErrPriceMismatch          = errors.New("purchase price does not match sale price")
	ErrInvalidRegistrationFee = errors.New("registration fee must be non-negative")
	ErrInvalidSalePrice       = errors.New("sale price must be positive")
	ErrInvalidPurchasePrice   = errors.New("purchase price must be positive")
	ErrInvalidTradeAmount     = errors.New("trade amount must be positive")
	ErrPurchaseRateLimited    = errors.New("too many purchase attempts")
)

// Ledger is the slice of the ledger API the service depends on. The concrete
// implementation is *ledgerclient.Client; tests substitute a stub so transfer
// success and failure paths can be exercised without the ledger.
type Ledger interface {
	Transfer(ctx context.Context, sourceAccountID, destAccountID, authority string, amount int64) (*ledgerclient.TransferResponse, error)
	GetAccountBalance(ctx context.Context, accountID string) (*ledgerclient.BalanceResponse, error)
}

// RateLimiter enforces a fixed-window limit per scope and subject.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the marketplace.
type Service struct {
	repo              store.Repository
	ledger            Ledger
	eventProducer     rabbitmq.Publisher
	platformAccountID string

	tradeRequiredApprovals     int
	purchaseRateLimitPerMinute int
	purchaseRateLimiter        RateLimiter

	// now is injectable so timestamps are deterministic in tests.
	now func() time.Time
}

// NewService creates a new marketplace service instance.
func NewService(repo store.Repository, ledger Ledger, producer rabbitmq.Publisher, platformAccountID string, tradeRequiredApprovals int) *Service {
	if tradeRequiredApprovals <= 0 {
		tradeRequiredApprovals = 2
	}
	return &Service{
		repo:                   repo,
		ledger:                 ledger,
		eventProducer:          producer,
		platformAccountID:      platformAccountID,
		tradeRequiredApprovals: tradeRequiredApprovals,
		now:                    time.Now,
	}
}

// SetPurchaseRateLimiter enables distributed purchase throttling.
func (s *Service) SetPurchaseRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.purchaseRateLimiter = limiter
	s.purchaseRateLimitPerMinute = limitPerMinute
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ResolveInternalUserID converts an authenticated JWT subject into the internal
// UUID used by our database. This allows handlers to accept subjects from
// validated JWTs while our repositories continue to operate on UUIDs.
func (s *Service) ResolveInternalUserID(ctx context.Context, subject string) (string, error) {
	return s.repo.FindUserIDByAuthSubject(ctx, subject)
}

// RegisterAsset registers a new insurance asset for the caller. The flat
// registration fee is moved to the platform account first; only a confirmed
// transfer creates a record, so registration is all-or-nothing.
func (s *Service) RegisterAsset(ctx context.Context, ownerID uuid.UUID, req domain.RegisterAssetRequest) (*domain.InsuranceAsset, error) {
	if req.RegistrationFee < 0 {
		return nil, ErrInvalidRegistrationFee
	}

	owner, err := s.repo.FindUserByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	ownerAccount, err := s.repo.FindAccountByUserID(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner account: %w", err)
	}

	// Fee first. No record exists until the ledger confirms the movement.
	if _, err := s.ledger.Transfer(ctx, ownerAccount.LedgerAccountID, s.platformAccountID, owner.LedgerCustomerID, req.RegistrationFee); err != nil {
		return nil, fmt.Errorf("registration fee transfer failed: %w", err)
	}

	asset := &domain.InsuranceAsset{
		ID:                   uuid.New(),
		OwnerID:              owner.ID,
		InsuranceCompany:     req.InsuranceCompany,
		ProductCategory:      req.ProductCategory,
		ProductName:          req.ProductName,
		ContractDate:         req.ContractDate,
		ContractPeriodMonths: req.ContractPeriodMonths,
		PaidPeriodMonths:     req.PaidPeriodMonths,
		AnnualPremium:        req.AnnualPremium,
		TotalPaid:            req.TotalPaid,
		IsForSale:            true,
		SalePrice:            nil,
		RegistrationFee:      req.RegistrationFee,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		// The fee has already been collected; return it before failing.
		if refundErr := s.refundFee(ctx, ownerAccount.LedgerAccountID, req.RegistrationFee); refundErr != nil {
			log.Printf("CRITICAL: Failed to refund registration fee for user %s after asset creation failure: %v", owner.ID, refundErr)
		}
		return nil, fmt.Errorf("failed to create asset record: %w", err)
	}

	s.publishEvent(ctx, "asset.registered", domain.AssetRegisteredEvent{
		AssetID:          asset.ID,
		OwnerID:          asset.OwnerID,
		InsuranceCompany: asset.InsuranceCompany,
		RegistrationFee:  asset.RegistrationFee,
	})

	return asset, nil
}

// ListAssetForSale puts an owned asset on the market at the given price.
func (s *Service) ListAssetForSale(ctx context.Context, callerID, assetID uuid.UUID, salePrice int64) (*domain.InsuranceAsset, error) {
	if salePrice <= 0 {
		return nil, ErrInvalidSalePrice
	}

	asset, err := s.repo.FindAssetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.OwnerID != callerID {
		return nil, ErrNotOwner
	}

	if err := s.repo.UpdateAssetSaleState(ctx, assetID, callerID, true, &salePrice); err != nil {
		return nil, fmt.Errorf("failed to list asset: %w", err)
	}
	asset.IsForSale = true
	asset.SalePrice = &salePrice

	s.publishEvent(ctx, "asset.listed", domain.AssetListedEvent{
		AssetID:   asset.ID,
		OwnerID:   asset.OwnerID,
		SalePrice: salePrice,
	})

	return asset, nil
}

// CancelAssetSale takes an owned asset off the market. The sale price is
// cleared together with the listing flag.
func (s *Service) CancelAssetSale(ctx context.Context, callerID, assetID uuid.UUID) (*domain.InsuranceAsset, error) {
	asset, err := s.repo.FindAssetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.OwnerID != callerID {
		return nil, ErrNotOwner
	}

	if err := s.repo.UpdateAssetSaleState(ctx, assetID, callerID, false, nil); err != nil {
		return nil, fmt.Errorf("failed to cancel sale: %w", err)
	}
	asset.IsForSale = false
	asset.SalePrice = nil

	s.publishEvent(ctx, "asset.sale_cancelled", domain.AssetSaleCancelledEvent{
		AssetID: asset.ID,
		OwnerID: asset.OwnerID,
	})

	return asset, nil
}

// PurchaseAsset executes the atomic payment-for-ownership swap. The sequence
// is strict: validate, pay the current owner, and only then reassign
// ownership. A failed payment leaves the listing untouched and repurchasable.
func (s *Service) PurchaseAsset(ctx context.Context, buyerID, assetID uuid.UUID, purchasePrice int64) (*domain.InsuranceAsset, error) {
	if purchasePrice <= 0 {
		return nil, ErrInvalidPurchasePrice
	}
	if err := s.consumePurchaseRateLimit(ctx, buyerID); err != nil {
		return nil, err
	}

	asset, err := s.repo.FindAssetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !asset.IsForSale {
		return nil, ErrAssetNotForSale
	}
	if asset.SalePrice != nil && *asset.SalePrice != purchasePrice {
		return nil, ErrPriceMismatch
	}

	sellerID := asset.OwnerID
	sellerAccount, err := s.repo.FindAccountByUserID(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find seller account: %w", err)
	}
	buyer, err := s.repo.FindUserByID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find buyer: %w", err)
	}
	buyerAccount, err := s.repo.FindAccountByUserID(ctx, buyer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find buyer account: %w", err)
	}

	// Payment is the commit point. Ownership must not move before the ledger
	// confirms the seller was paid.
	if _, err := s.ledger.Transfer(ctx, buyerAccount.LedgerAccountID, sellerAccount.LedgerAccountID, buyer.LedgerCustomerID, purchasePrice); err != nil {
		return nil, fmt.Errorf("purchase payment failed: %w", err)
	}

	if err := s.repo.TransferAssetOwnership(ctx, assetID, sellerID, buyerID, purchasePrice); err != nil {
		// The seller has been paid but ownership did not move (most likely a
		// concurrent sale of the same asset). Return the payment.
		if refundErr := s.refundPayment(ctx, sellerAccount.LedgerAccountID, buyerAccount.LedgerAccountID, purchasePrice); refundErr != nil {
			log.Printf("CRITICAL: Failed to refund purchase payment for buyer %s on asset %s: %v", buyerID, assetID, refundErr)
		}
		if errors.Is(err, store.ErrSaleStateConflict) {
			return nil, ErrAssetNotForSale
		}
		return nil, fmt.Errorf("failed to transfer ownership: %w", err)
	}

	asset.OwnerID = buyerID
	asset.IsForSale = false
	asset.SalePrice = nil

	s.publishEvent(ctx, "asset.purchased", domain.AssetPurchasedEvent{
		AssetID:       asset.ID,
		PreviousOwner: sellerID,
		NewOwner:      buyerID,
		PurchasePrice: purchasePrice,
	})

	return asset, nil
}

// GetAsset retrieves a single asset record.
func (s *Service) GetAsset(ctx context.Context, assetID uuid.UUID) (*domain.InsuranceAsset, error) {
	return s.repo.FindAssetByID(ctx, assetID)
}

// ListMarketAssets retrieves assets currently listed for sale.
func (s *Service) ListMarketAssets(ctx context.Context, opts domain.AssetListOptions) ([]domain.InsuranceAsset, error) {
	return s.repo.ListAssetsForSale(ctx, opts)
}

// ListOwnedAssets retrieves every asset controlled by a user.
func (s *Service) ListOwnedAssets(ctx context.Context, ownerID uuid.UUID) ([]domain.InsuranceAsset, error) {
	return s.repo.ListAssetsByOwner(ctx, ownerID)
}

// GetWalletBalance retrieves the current token balance for a user's account.
func (s *Service) GetWalletBalance(ctx context.Context, userID uuid.UUID) (*domain.AccountBalance, error) {
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ledgerBalance, err := s.ledger.GetAccountBalance(ctx, account.LedgerAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance from ledger: %w", err)
	}

	return &domain.AccountBalance{
		AvailableBalance: ledgerBalance.Data.AvailableBalance,
		LedgerBalance:    ledgerBalance.Data.LedgerBalance,
		Hold:             ledgerBalance.Data.Hold,
		Pending:          ledgerBalance.Data.Pending,
	}, nil
}

func (s *Service) consumePurchaseRateLimit(ctx context.Context, buyerID uuid.UUID) error {
	if s.purchaseRateLimiter == nil || s.purchaseRateLimitPerMinute <= 0 {
		return nil
	}
	count, _, err := s.purchaseRateLimiter.ConsumeRateLimit(ctx, "purchase", buyerID.String(), s.purchaseRateLimitPerMinute, time.Minute)
	if err != nil {
		// Throttling is a protection, not a gate; a limiter outage must not
		// block purchases.
		log.Printf("level=warn component=service msg=\"purchase rate limiter unavailable\" buyer_id=%s err=%v", buyerID, err)
		return nil
	}
	if count > s.purchaseRateLimitPerMinute {
		return ErrPurchaseRateLimited
	}
	return nil
}

// refundFee returns a collected registration fee to the payer.
func (s *Service) refundFee(ctx context.Context, payerAccountID string, amount int64) error {
	_, err := s.ledger.Transfer(ctx, s.platformAccountID, payerAccountID, s.platformAccountID, amount)
	return err
}

// refundPayment returns a purchase payment from the seller to the buyer.
func (s *Service) refundPayment(ctx context.Context, sellerAccountID, buyerAccountID string, amount int64) error {
	_, err := s.ledger.Transfer(ctx, sellerAccountID, buyerAccountID, s.platformAccountID, amount)
	return err
}

// publishEvent emits a marketplace event. Delivery is best-effort and never
// fails the operation that produced the event.
func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, EventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
