/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to insurance assets, multisig trades, users, and wallet accounts.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wellswap/marketplace-service/internal/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAssetNotFound      = errors.New("asset not found")
	ErrAssetAlreadyExists = errors.New("asset record already exists")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeAlreadyExists = errors.New("trade record already exists")
	// ErrSaleStateConflict is returned when a guarded update's re-validation
	// fails inside the row lock: the record changed between the caller's read
	// and the committed write.
	ErrSaleStateConflict = errors.New("asset sale state changed")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDByAuthSubject resolves the internal UUID from the JWT subject claim.
func (r *PostgresRepository) FindUserIDByAuthSubject(ctx context.Context, subject string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE auth_subject = $1", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return id, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, btrim(username), ledger_customer_id FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Username, &user.LedgerCustomerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindAccountByUserID retrieves a user's token wallet account.
func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, user_id, ledger_account_id FROM accounts WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&account.ID, &account.UserID, &account.LedgerAccountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CreateAsset inserts a newly registered insurance asset. Creation fails if a
// record already exists at the target key; there is no silent overwrite.
func (r *PostgresRepository) CreateAsset(ctx context.Context, asset *domain.InsuranceAsset) error {
	query := `
		INSERT INTO insurance_assets (
			id, owner_id, insurance_company, product_category, product_name,
			contract_date, contract_period_months, paid_period_months,
			annual_premium, total_paid, is_for_sale, sale_price,
			registration_fee, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		asset.ID, asset.OwnerID, asset.InsuranceCompany, asset.ProductCategory,
		asset.ProductName, asset.ContractDate, asset.ContractPeriodMonths,
		asset.PaidPeriodMonths, asset.AnnualPremium, asset.TotalPaid,
		asset.IsForSale, asset.SalePrice, asset.RegistrationFee, asset.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAssetAlreadyExists
		}
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

const assetColumns = `
	id, owner_id, insurance_company, product_category, product_name,
	contract_date, contract_period_months, paid_period_months,
	annual_premium, total_paid, is_for_sale, sale_price,
	registration_fee, created_at
`

func scanAsset(row pgx.Row) (*domain.InsuranceAsset, error) {
	var asset domain.InsuranceAsset
	err := row.Scan(
		&asset.ID, &asset.OwnerID, &asset.InsuranceCompany, &asset.ProductCategory,
		&asset.ProductName, &asset.ContractDate, &asset.ContractPeriodMonths,
		&asset.PaidPeriodMonths, &asset.AnnualPremium, &asset.TotalPaid,
		&asset.IsForSale, &asset.SalePrice, &asset.RegistrationFee, &asset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindAssetByID retrieves a single asset record.
func (r *PostgresRepository) FindAssetByID(ctx context.Context, assetID uuid.UUID) (*domain.InsuranceAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM insurance_assets WHERE id = $1`
	asset, err := scanAsset(r.db.QueryRow(ctx, query, assetID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return asset, nil
}

// ListAssetsForSale retrieves listed assets, newest first.
func (r *PostgresRepository) ListAssetsForSale(ctx context.Context, opts domain.AssetListOptions) ([]domain.InsuranceAsset, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT ` + assetColumns + `
		FROM insurance_assets
		WHERE is_for_sale = TRUE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query listed assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// ListAssetsByOwner retrieves every asset currently controlled by an owner.
func (r *PostgresRepository) ListAssetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.InsuranceAsset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM insurance_assets
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query owner assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

func collectAssets(rows pgx.Rows) ([]domain.InsuranceAsset, error) {
	assets := []domain.InsuranceAsset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// UpdateAssetSaleState sets or clears the sale listing on an asset. The update
// is guarded by the owner id so a stale caller can never flip someone else's
// listing; sale_price and is_for_sale always change together.
func (r *PostgresRepository) UpdateAssetSaleState(ctx context.Context, assetID, ownerID uuid.UUID, forSale bool, salePrice *int64) error {
	query := `
		UPDATE insurance_assets
		SET is_for_sale = $1, sale_price = $2
		WHERE id = $3 AND owner_id = $4
	`
	tag, err := r.db.Exec(ctx, query, forSale, salePrice, assetID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update sale state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleStateConflict
	}
	return nil
}

// TransferAssetOwnership commits the ownership half of a purchase. The row is
// locked and re-validated against the state the buyer paid for: the seller
// must still own it, it must still be listed, and any listed price must equal
// the paid price. A mismatch aborts with ErrSaleStateConflict and no mutation.
func (r *PostgresRepository) TransferAssetOwnership(ctx context.Context, assetID, sellerID, buyerID uuid.UUID, price int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID uuid.UUID
	var isForSale bool
	var salePrice *int64
	query := `
		SELECT owner_id, is_for_sale, sale_price
		FROM insurance_assets
		WHERE id = $1
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, query, assetID).Scan(&ownerID, &isForSale, &salePrice)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrAssetNotFound
		}
		return fmt.Errorf("failed to lock asset row: %w", err)
	}

	if ownerID != sellerID || !isForSale || (salePrice != nil && *salePrice != price) {
		return ErrSaleStateConflict
	}

	updateQuery := `
		UPDATE insurance_assets
		SET owner_id = $1, is_for_sale = FALSE, sale_price = NULL
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, updateQuery, buyerID, assetID); err != nil {
		return fmt.Errorf("failed to transfer ownership: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateTrade inserts a new multisig trade proposal with an empty approver set.
func (r *PostgresRepository) CreateTrade(ctx context.Context, trade *domain.MultisigTrade) error {
	query := `
		INSERT INTO multisig_trades (
			id, asset_id, initiator_id, trade_amount, status,
			required_approvals, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		trade.ID, trade.AssetID, trade.InitiatorID, trade.TradeAmount,
		trade.Status, trade.RequiredApprovals, trade.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrTradeAlreadyExists
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// FindTradeByID retrieves a trade proposal together with its approver set.
func (r *PostgresRepository) FindTradeByID(ctx context.Context, tradeID uuid.UUID) (*domain.MultisigTrade, error) {
	var trade domain.MultisigTrade
	query := `
		SELECT id, asset_id, initiator_id, trade_amount, status, required_approvals, created_at
		FROM multisig_trades
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, tradeID).Scan(
		&trade.ID, &trade.AssetID, &trade.InitiatorID, &trade.TradeAmount,
		&trade.Status, &trade.RequiredApprovals, &trade.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	approvers, err := r.loadTradeApprovers(ctx, r.db, tradeID)
	if err != nil {
		return nil, err
	}
	trade.Approvers = approvers
	return &trade, nil
}

// ListTradesByInitiator retrieves trades opened by a user, newest first.
func (r *PostgresRepository) ListTradesByInitiator(ctx context.Context, initiatorID uuid.UUID) ([]domain.MultisigTrade, error) {
	query := `
		SELECT id, asset_id, initiator_id, trade_amount, status, required_approvals, created_at
		FROM multisig_trades
		WHERE initiator_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, initiatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []domain.MultisigTrade{}
	tradeIDs := []uuid.UUID{}
	for rows.Next() {
		var trade domain.MultisigTrade
		if err := rows.Scan(
			&trade.ID, &trade.AssetID, &trade.InitiatorID, &trade.TradeAmount,
			&trade.Status, &trade.RequiredApprovals, &trade.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
		tradeIDs = append(tradeIDs, trade.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	approversByTrade, err := r.loadApproversForTrades(ctx, tradeIDs)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		approvers, ok := approversByTrade[trades[i].ID]
		if !ok {
			approvers = []uuid.UUID{}
		}
		trades[i].Approvers = approvers
	}
	return trades, nil
}

// loadApproversForTrades fetches the approver sets for many trades in a single
// query, grouped by trade id with approval order preserved.
func (r *PostgresRepository) loadApproversForTrades(ctx context.Context, tradeIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	grouped := map[uuid.UUID][]uuid.UUID{}
	if len(tradeIDs) == 0 {
		return grouped, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT trade_id, approver_id FROM trade_approvals WHERE trade_id = ANY($1) ORDER BY approved_at`, tradeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tradeID, approver uuid.UUID
		if err := rows.Scan(&tradeID, &approver); err != nil {
			return nil, fmt.Errorf("failed to scan approver row: %w", err)
		}
		grouped[tradeID] = append(grouped[tradeID], approver)
	}
	return grouped, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PostgresRepository) loadTradeApprovers(ctx context.Context, q queryer, tradeID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		`SELECT approver_id FROM trade_approvals WHERE trade_id = $1 ORDER BY approved_at`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvers: %w", err)
	}
	defer rows.Close()

	approvers := []uuid.UUID{}
	for rows.Next() {
		var approver uuid.UUID
		if err := rows.Scan(&approver); err != nil {
			return nil, fmt.Errorf("failed to scan approver row: %w", err)
		}
		approvers = append(approvers, approver)
	}
	return approvers, rows.Err()
}

// RecordTradeApproval inserts an approval and promotes the trade to approved
// once the distinct approver count reaches the threshold. The trade row is
// locked for the whole read-modify-write so two concurrent approvals cannot
// both observe a pre-quorum count. A duplicate approver is absorbed by the
// primary key on (trade_id, approver_id) and never counted twice.
func (r *PostgresRepository) RecordTradeApproval(ctx context.Context, tradeID, approverID uuid.UUID) (*domain.MultisigTrade, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var trade domain.MultisigTrade
	lockQuery := `
		SELECT id, asset_id, initiator_id, trade_amount, status, required_approvals, created_at
		FROM multisig_trades
		WHERE id = $1
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, lockQuery, tradeID).Scan(
		&trade.ID, &trade.AssetID, &trade.InitiatorID, &trade.TradeAmount,
		&trade.Status, &trade.RequiredApprovals, &trade.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to lock trade row: %w", err)
	}

	approvers, err := r.loadTradeApprovers(ctx, tx, tradeID)
	if err != nil {
		return nil, err
	}
	trade.Approvers = approvers

	statusBefore := trade.Status
	if !trade.RecordApproval(approverID) {
		// Duplicate approver; nothing to persist.
		return &trade, tx.Commit(ctx)
	}

	insertQuery := `
		INSERT INTO trade_approvals (trade_id, approver_id, approved_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (trade_id, approver_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertQuery, tradeID, approverID); err != nil {
		return nil, fmt.Errorf("failed to insert approval: %w", err)
	}

	if trade.Status != statusBefore {
		if _, err := tx.Exec(ctx,
			`UPDATE multisig_trades SET status = $1 WHERE id = $2`, trade.Status, tradeID); err != nil {
			return nil, fmt.Errorf("failed to promote trade status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}
	return &trade, nil
}

// UpdateTradeStatus moves a trade to a terminal status, guarded by the set of
// statuses the transition is allowed from. Returns false when the trade was
// not in an eligible status (or does not exist); the caller decides whether
// that is an error or an ignorable replay.
func (r *PostgresRepository) UpdateTradeStatus(ctx context.Context, tradeID uuid.UUID, fromStatuses []string, toStatus string) (bool, error) {
	query := `
		UPDATE multisig_trades
		SET status = $1
		WHERE id = $2 AND status = ANY($3)
	`
	tag, err := r.db.Exec(ctx, query, toStatus, tradeID, fromStatuses)
	if err != nil {
		return false, fmt.Errorf("failed to update trade status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
