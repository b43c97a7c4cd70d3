package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/domain"
	"github.com/wellswap/marketplace-service/internal/store"
	"github.com/wellswap/marketplace-service/pkg/ledgerclient"
)

type transferCall struct {
	source    string
	dest      string
	authority string
	amount    int64
}

type ledgerStub struct {
	transfers   []transferCall
	failOnCall  int // 1-based index of the call that fails; 0 means never
	transferErr error
	balance     *ledgerclient.BalanceResponse
}

func (l *ledgerStub) Transfer(ctx context.Context, sourceAccountID, destAccountID, authority string, amount int64) (*ledgerclient.TransferResponse, error) {
	l.transfers = append(l.transfers, transferCall{sourceAccountID, destAccountID, authority, amount})
	if l.failOnCall > 0 && len(l.transfers) == l.failOnCall {
		if l.transferErr != nil {
			return nil, l.transferErr
		}
		return nil, errors.New("ledger transfer rejected")
	}
	return &ledgerclient.TransferResponse{}, nil
}

func (l *ledgerStub) GetAccountBalance(ctx context.Context, accountID string) (*ledgerclient.BalanceResponse, error) {
	if l.balance == nil {
		return nil, errors.New("no balance configured")
	}
	return l.balance, nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.events = append(p.events, publishedEvent{exchange, routingKey, body})
	return nil
}

func (p *recordingPublisher) Close() {}

type registerRepoStub struct {
	store.Repository

	owner        *domain.User
	ownerAccount *domain.Account

	createErr     error
	createdAsset  *domain.InsuranceAsset
	createdCalled bool
}

func (s *registerRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.owner == nil || s.owner.ID != userID {
		return nil, store.ErrUserNotFound
	}
	return s.owner, nil
}

func (s *registerRepoStub) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if s.ownerAccount == nil || s.ownerAccount.UserID != userID {
		return nil, store.ErrAccountNotFound
	}
	return s.ownerAccount, nil
}

func (s *registerRepoStub) CreateAsset(ctx context.Context, asset *domain.InsuranceAsset) error {
	s.createdCalled = true
	if s.createErr != nil {
		return s.createErr
	}
	s.createdAsset = asset
	return nil
}

func newRegisterFixture() (*registerRepoStub, *ledgerStub, *recordingPublisher, *Service, uuid.UUID) {
	ownerID := uuid.New()
	repo := &registerRepoStub{
		owner:        &domain.User{ID: ownerID, Username: "seller_one", LedgerCustomerID: "cus_owner"},
		ownerAccount: &domain.Account{ID: uuid.New(), UserID: ownerID, LedgerAccountID: "acc_owner"},
	}
	ledger := &ledgerStub{}
	publisher := &recordingPublisher{}
	svc := NewService(repo, ledger, publisher, "acc_platform", 2)
	return repo, ledger, publisher, svc, ownerID
}

func TestRegisterAsset_ChargesFeeThenCreatesRecord(t *testing.T) {
	repo, ledger, publisher, svc, ownerID := newRegisterFixture()

	fixedNow := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return fixedNow })

	asset, err := svc.RegisterAsset(context.Background(), ownerID, domain.RegisterAssetRequest{
		InsuranceCompany: "Samsung Life",
		ProductCategory:  "annuity",
		ProductName:      "Pension Plus",
		RegistrationFee:  5000,
	})
	if err != nil {
		t.Fatalf("expected registration to succeed, got %v", err)
	}

	if len(ledger.transfers) != 1 {
		t.Fatalf("expected exactly one fee transfer, got %d", len(ledger.transfers))
	}
	fee := ledger.transfers[0]
	if fee.source != "acc_owner" || fee.dest != "acc_platform" || fee.amount != 5000 {
		t.Fatalf("unexpected fee transfer %+v", fee)
	}

	if asset.OwnerID != ownerID {
		t.Fatalf("expected owner %s, got %s", ownerID, asset.OwnerID)
	}
	if !asset.IsForSale {
		t.Fatal("expected a fresh registration to be for sale")
	}
	if asset.SalePrice != nil {
		t.Fatalf("expected no sale price on registration, got %d", *asset.SalePrice)
	}
	if !asset.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected created_at %s, got %s", fixedNow, asset.CreatedAt)
	}
	if repo.createdAsset == nil || repo.createdAsset.ID != asset.ID {
		t.Fatal("expected asset to be persisted")
	}

	if len(publisher.events) != 1 || publisher.events[0].routingKey != "asset.registered" {
		t.Fatalf("expected asset.registered event, got %+v", publisher.events)
	}
}

func TestRegisterAsset_FeeTransferFailureCreatesNothing(t *testing.T) {
	repo, ledger, publisher, svc, ownerID := newRegisterFixture()
	ledger.failOnCall = 1

	_, err := svc.RegisterAsset(context.Background(), ownerID, domain.RegisterAssetRequest{RegistrationFee: 5000})
	if err == nil {
		t.Fatal("expected registration to fail when the fee transfer is rejected")
	}
	if repo.createdCalled {
		t.Fatal("expected no asset record after a rejected fee transfer")
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events, got %+v", publisher.events)
	}
}

func TestRegisterAsset_RefundsFeeWhenCreateFails(t *testing.T) {
	repo, ledger, _, svc, ownerID := newRegisterFixture()
	repo.createErr = errors.New("insert failed")

	_, err := svc.RegisterAsset(context.Background(), ownerID, domain.RegisterAssetRequest{RegistrationFee: 5000})
	if err == nil {
		t.Fatal("expected registration to fail when the record cannot be created")
	}

	if len(ledger.transfers) != 2 {
		t.Fatalf("expected fee transfer plus refund, got %d transfers", len(ledger.transfers))
	}
	refund := ledger.transfers[1]
	if refund.source != "acc_platform" || refund.dest != "acc_owner" || refund.amount != 5000 {
		t.Fatalf("unexpected refund transfer %+v", refund)
	}
}

func TestRegisterAsset_RejectsNegativeFee(t *testing.T) {
	_, ledger, _, svc, ownerID := newRegisterFixture()

	_, err := svc.RegisterAsset(context.Background(), ownerID, domain.RegisterAssetRequest{RegistrationFee: -1})
	if !errors.Is(err, ErrInvalidRegistrationFee) {
		t.Fatalf("expected ErrInvalidRegistrationFee, got %v", err)
	}
	if len(ledger.transfers) != 0 {
		t.Fatal("expected no ledger activity for an invalid fee")
	}
}
