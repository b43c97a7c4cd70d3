package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
	"github.com/wellswap/marketplace-service/internal/store"
)

type listingRepoStub struct {
	store.Repository

	asset *domain.InsuranceAsset

	updateCalled    bool
	updatedForSale  bool
	updatedPrice    *int64
	updatedByOwner  uuid.UUID
	updateSaleError error
}

func (s *listingRepoStub) FindAssetByID(ctx context.Context, assetID uuid.UUID) (*domain.InsuranceAsset, error) {
	if s.asset == nil || s.asset.ID != assetID {
		return nil, store.ErrAssetNotFound
	}
	copied := *s.asset
	return &copied, nil
}

func (s *listingRepoStub) UpdateAssetSaleState(ctx context.Context, assetID, ownerID uuid.UUID, forSale bool, salePrice *int64) error {
	s.updateCalled = true
	s.updatedForSale = forSale
	s.updatedPrice = salePrice
	s.updatedByOwner = ownerID
	if s.updateSaleError != nil {
		return s.updateSaleError
	}
	s.asset.IsForSale = forSale
	s.asset.SalePrice = salePrice
	return nil
}

func newListingFixture(forSale bool, salePrice *int64) (*listingRepoStub, *recordingPublisher, *Service, uuid.UUID, uuid.UUID) {
	ownerID := uuid.New()
	assetID := uuid.New()
	repo := &listingRepoStub{
		asset: &domain.InsuranceAsset{
			ID:        assetID,
			OwnerID:   ownerID,
			IsForSale: forSale,
			SalePrice: salePrice,
		},
	}
	publisher := &recordingPublisher{}
	svc := NewService(repo, &ledgerStub{}, publisher, "acc_platform", 2)
	return repo, publisher, svc, ownerID, assetID
}

func TestListAssetForSale_SetsPriceAndFlag(t *testing.T) {
	repo, publisher, svc, ownerID, assetID := newListingFixture(false, nil)

	asset, err := svc.ListAssetForSale(context.Background(), ownerID, assetID, 250_000)
	if err != nil {
		t.Fatalf("expected listing to succeed, got %v", err)
	}
	if !asset.IsForSale || asset.SalePrice == nil || *asset.SalePrice != 250_000 {
		t.Fatalf("expected asset listed at 250000, got for_sale=%v price=%v", asset.IsForSale, asset.SalePrice)
	}
	if !repo.updateCalled || !repo.updatedForSale || repo.updatedByOwner != ownerID {
		t.Fatal("expected guarded sale state update with the owner id")
	}
	if len(publisher.events) != 1 || publisher.events[0].routingKey != "asset.listed" {
		t.Fatalf("expected asset.listed event, got %+v", publisher.events)
	}
}

func TestListAssetForSale_RejectsNonOwner(t *testing.T) {
	repo, _, svc, _, assetID := newListingFixture(false, nil)

	_, err := svc.ListAssetForSale(context.Background(), uuid.New(), assetID, 250_000)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("expected no state change for a non-owner caller")
	}
}

func TestListAssetForSale_RejectsNonPositivePrice(t *testing.T) {
	repo, _, svc, ownerID, assetID := newListingFixture(false, nil)

	for _, price := range []int64{0, -100} {
		if _, err := svc.ListAssetForSale(context.Background(), ownerID, assetID, price); !errors.Is(err, ErrInvalidSalePrice) {
			t.Fatalf("price %d: expected ErrInvalidSalePrice, got %v", price, err)
		}
	}
	if repo.updateCalled {
		t.Fatal("expected no state change for an invalid price")
	}
}

func TestListAssetForSale_UnknownAsset(t *testing.T) {
	_, _, svc, ownerID, _ := newListingFixture(false, nil)

	_, err := svc.ListAssetForSale(context.Background(), ownerID, uuid.New(), 100)
	if !errors.Is(err, store.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestCancelAssetSale_ClearsPriceWithFlag(t *testing.T) {
	price := int64(250_000)
	repo, publisher, svc, ownerID, assetID := newListingFixture(true, &price)

	asset, err := svc.CancelAssetSale(context.Background(), ownerID, assetID)
	if err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
	if asset.IsForSale || asset.SalePrice != nil {
		t.Fatalf("expected delisted asset with no price, got for_sale=%v price=%v", asset.IsForSale, asset.SalePrice)
	}
	if !repo.updateCalled || repo.updatedForSale || repo.updatedPrice != nil {
		t.Fatal("expected sale state cleared in one update")
	}
	if len(publisher.events) != 1 || publisher.events[0].routingKey != "asset.sale_cancelled" {
		t.Fatalf("expected asset.sale_cancelled event, got %+v", publisher.events)
	}
}

func TestCancelAssetSale_RejectsNonOwner(t *testing.T) {
	price := int64(250_000)
	repo, _, svc, _, assetID := newListingFixture(true, &price)

	_, err := svc.CancelAssetSale(context.Background(), uuid.New(), assetID)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("expected no state change for a non-owner caller")
	}
}

func TestListThenCancelReturnsToUnlisted(t *testing.T) {
	repo, _, svc, ownerID, assetID := newListingFixture(false, nil)

	if _, err := svc.ListAssetForSale(context.Background(), ownerID, assetID, 99_000); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if _, err := svc.CancelAssetSale(context.Background(), ownerID, assetID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if repo.asset.IsForSale || repo.asset.SalePrice != nil {
		t.Fatalf("expected asset back to unlisted state, got for_sale=%v price=%v", repo.asset.IsForSale, repo.asset.SalePrice)
	}
}
