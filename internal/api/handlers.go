/**
 * @description
 * This file contains the HTTP handlers for the marketplace-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wellswap/marketplace-service/internal/app"
	"github.com/wellswap/marketplace-service/internal/domain"
	"github.com/wellswap/marketplace-service/internal/store"
	"github.com/wellswap/marketplace-service/pkg/ledgerclient"
)

// MarketplaceHandlers holds the application service that handlers will use.
type MarketplaceHandlers struct {
	service *app.Service
}

// NewMarketplaceHandlers creates a new instance of MarketplaceHandlers.
func NewMarketplaceHandlers(service *app.Service) *MarketplaceHandlers {
	return &MarketplaceHandlers{service: service}
}

// callerID resolves the authenticated subject into the internal user UUID.
// A false return means a response has already been written.
func (h *MarketplaceHandlers) callerID(w http.ResponseWriter, r *http.Request, endpoint string) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}

	internalIDStr, err := h.service.ResolveInternalUserID(r.Context(), subject)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=user_resolution_failed subject=%s err=%v", endpoint, subject, err)
		h.writeError(w, http.StatusBadRequest, "User not found")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(internalIDStr)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=invalid_user_id internal_user_id=%s", endpoint, internalIDStr)
		h.writeError(w, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID extracts and parses a UUID URL parameter.
func (h *MarketplaceHandlers) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", param))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", param))
		return uuid.Nil, false
	}
	return id, true
}

// RegisterAssetHandler handles requests to register a new insurance asset.
func (h *MarketplaceHandlers) RegisterAssetHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.callerID(w, r, "register_asset")
	if !ok {
		return
	}

	var req domain.RegisterAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=register_asset outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	log.Printf("level=info component=api endpoint=register_asset outcome=accepted owner_id=%s company=%q fee=%d", ownerID, req.InsuranceCompany, req.RegistrationFee)

	asset, err := h.service.RegisterAsset(r.Context(), ownerID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=register_asset outcome=failed owner_id=%s err=%v", ownerID, err)
		switch {
		case errors.Is(err, app.ErrInvalidRegistrationFee):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case ledgerclient.IsInsufficientBalance(err):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient balance for the registration fee")
		case errors.Is(err, store.ErrUserNotFound), errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Wallet account not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, asset)
}

// ListMarketAssetsHandler handles requests to browse assets currently for sale.
func (h *MarketplaceHandlers) ListMarketAssetsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := parseOptionalInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	assets, err := h.service.ListMarketAssets(r.Context(), domain.AssetListOptions{Limit: limit, Offset: offset})
	if err != nil {
		log.Printf("level=error component=api endpoint=list_market_assets outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, assets)
}

// ListOwnedAssetsHandler handles requests to list the caller's assets.
func (h *MarketplaceHandlers) ListOwnedAssetsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.callerID(w, r, "list_owned_assets")
	if !ok {
		return
	}

	assets, err := h.service.ListOwnedAssets(r.Context(), ownerID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_owned_assets outcome=failed owner_id=%s err=%v", ownerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, assets)
}

// GetAssetHandler handles requests for a single asset record.
func (h *MarketplaceHandlers) GetAssetHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r, "get_asset"); !ok {
		return
	}
	assetID, ok := h.pathUUID(w, r, "assetID")
	if !ok {
		return
	}

	asset, err := h.service.GetAsset(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, store.ErrAssetNotFound) {
			h.writeError(w, http.StatusNotFound, "Asset not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_asset outcome=failed asset_id=%s err=%v", assetID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, asset)
}

// ListAssetForSaleHandler handles requests to put an owned asset on the market.
func (h *MarketplaceHandlers) ListAssetForSaleHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r, "list_asset_for_sale")
	if !ok {
		return
	}
	assetID, ok := h.pathUUID(w, r, "assetID")
	if !ok {
		return
	}

	var req domain.ListAssetForSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	asset, err := h.service.ListAssetForSale(r.Context(), callerID, assetID, req.SalePrice)
	if err != nil {
		log.Printf("level=warn component=api endpoint=list_asset_for_sale outcome=failed caller_id=%s asset_id=%s err=%v", callerID, assetID, err)
		h.writeAssetStateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, asset)
}

// CancelAssetSaleHandler handles requests to delist an owned asset.
func (h *MarketplaceHandlers) CancelAssetSaleHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r, "cancel_asset_sale")
	if !ok {
		return
	}
	assetID, ok := h.pathUUID(w, r, "assetID")
	if !ok {
		return
	}

	asset, err := h.service.CancelAssetSale(r.Context(), callerID, assetID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=cancel_asset_sale outcome=failed caller_id=%s asset_id=%s err=%v", callerID, assetID, err)
		h.writeAssetStateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, asset)
}

// PurchaseAssetHandler handles requests to buy a listed asset.
func (h *MarketplaceHandlers) PurchaseAssetHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := h.callerID(w, r, "purchase_asset")
	if !ok {
		return
	}
	assetID, ok := h.pathUUID(w, r, "assetID")
	if !ok {
		return
	}

	var req domain.PurchaseAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	log.Printf("level=info component=api endpoint=purchase_asset outcome=accepted buyer_id=%s asset_id=%s price=%d", buyerID, assetID, req.PurchasePrice)

	asset, err := h.service.PurchaseAsset(r.Context(), buyerID, assetID, req.PurchasePrice)
	if err != nil {
		log.Printf("level=warn component=api endpoint=purchase_asset outcome=failed buyer_id=%s asset_id=%s err=%v", buyerID, assetID, err)
		switch {
		case errors.Is(err, store.ErrAssetNotFound):
			h.writeError(w, http.StatusNotFound, "Asset not found")
		case errors.Is(err, app.ErrAssetNotForSale):
			h.writeError(w, http.StatusConflict, "Asset is not for sale")
		case errors.Is(err, app.ErrInvalidPurchasePrice):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrPriceMismatch):
			h.writeError(w, http.StatusConflict, "Purchase price does not match the listed sale price")
		case errors.Is(err, app.ErrPurchaseRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Too many purchase attempts. Please wait and try again.")
		case ledgerclient.IsInsufficientBalance(err):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient balance for this purchase")
		case errors.Is(err, store.ErrUserNotFound), errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Wallet account not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, asset)
}

// CreateTradeHandler handles requests to open a multisig trade proposal.
func (h *MarketplaceHandlers) CreateTradeHandler(w http.ResponseWriter, r *http.Request) {
	initiatorID, ok := h.callerID(w, r, "create_trade")
	if !ok {
		return
	}

	var req domain.CreateTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	trade, err := h.service.CreateTrade(r.Context(), initiatorID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_trade outcome=failed initiator_id=%s err=%v", initiatorID, err)
		switch {
		case errors.Is(err, app.ErrInvalidTradeAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrTradeAlreadyExists):
			h.writeError(w, http.StatusConflict, "Trade already exists")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, trade)
}

// GetTradeHandler handles requests for a single trade with its approver set.
func (h *MarketplaceHandlers) GetTradeHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r, "get_trade"); !ok {
		return
	}
	tradeID, ok := h.pathUUID(w, r, "tradeID")
	if !ok {
		return
	}

	trade, err := h.service.GetTrade(r.Context(), tradeID)
	if err != nil {
		if errors.Is(err, store.ErrTradeNotFound) {
			h.writeError(w, http.StatusNotFound, "Trade not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_trade outcome=failed trade_id=%s err=%v", tradeID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

// ListOwnTradesHandler handles requests to list trades opened by the caller.
func (h *MarketplaceHandlers) ListOwnTradesHandler(w http.ResponseWriter, r *http.Request) {
	initiatorID, ok := h.callerID(w, r, "list_own_trades")
	if !ok {
		return
	}

	trades, err := h.service.ListOwnTrades(r.Context(), initiatorID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_own_trades outcome=failed initiator_id=%s err=%v", initiatorID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, trades)
}

// ApproveTradeHandler handles requests to record the caller's approval on a trade.
func (h *MarketplaceHandlers) ApproveTradeHandler(w http.ResponseWriter, r *http.Request) {
	approverID, ok := h.callerID(w, r, "approve_trade")
	if !ok {
		return
	}
	tradeID, ok := h.pathUUID(w, r, "tradeID")
	if !ok {
		return
	}

	trade, err := h.service.ApproveTrade(r.Context(), approverID, tradeID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=approve_trade outcome=failed approver_id=%s trade_id=%s err=%v", approverID, tradeID, err)
		if errors.Is(err, store.ErrTradeNotFound) {
			h.writeError(w, http.StatusNotFound, "Trade not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

// GetWalletBalanceHandler handles requests for the caller's token balance.
func (h *MarketplaceHandlers) GetWalletBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r, "get_wallet_balance")
	if !ok {
		return
	}

	balance, err := h.service.GetWalletBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("level=warn component=api endpoint=get_wallet_balance outcome=not_found user_id=%s", userID)
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_wallet_balance outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

// writeAssetStateError maps listing/cancel failures to HTTP statuses.
func (h *MarketplaceHandlers) writeAssetStateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAssetNotFound):
		h.writeError(w, http.StatusNotFound, "Asset not found")
	case errors.Is(err, app.ErrNotOwner):
		h.writeError(w, http.StatusForbidden, "Only the asset owner can change its listing")
	case errors.Is(err, app.ErrInvalidSalePrice):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrSaleStateConflict):
		h.writeError(w, http.StatusConflict, "Asset sale state changed; please retry")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return value, nil
}

// writeJSON is a helper for writing JSON responses.
func (h *MarketplaceHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *MarketplaceHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
