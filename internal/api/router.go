/**
 * @description
 * This file sets up the HTTP router for the marketplace-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MarketplaceRoutes creates and returns a new router for the marketplace service.
func MarketplaceRoutes(h *MarketplaceHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Asset registry endpoints
		r.Post("/assets", h.RegisterAssetHandler)
		r.Get("/assets", h.ListMarketAssetsHandler)
		r.Get("/assets/mine", h.ListOwnedAssetsHandler)
		r.Get("/assets/{assetID}", h.GetAssetHandler)
		r.Post("/assets/{assetID}/listing", h.ListAssetForSaleHandler)
		r.Delete("/assets/{assetID}/listing", h.CancelAssetSaleHandler)
		r.Post("/assets/{assetID}/purchase", h.PurchaseAssetHandler)

		// Trade coordinator endpoints
		r.Post("/trades", h.CreateTradeHandler)
		r.Get("/trades/mine", h.ListOwnTradesHandler)
		r.Get("/trades/{tradeID}", h.GetTradeHandler)
		r.Post("/trades/{tradeID}/approvals", h.ApproveTradeHandler)

		// Wallet endpoints
		r.Get("/wallet/balance", h.GetWalletBalanceHandler)
	})

	return r
}
