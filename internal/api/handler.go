// Package api provides the HTTP handlers for market quotes and user
// valuations, and the WebSocket hub that streams quote updates.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sandglass/valuation-engine/internal/model"
	"github.com/sandglass/valuation-engine/internal/pricing"
	"github.com/sandglass/valuation-engine/internal/registry"
	"github.com/sandglass/valuation-engine/internal/valuation"
)

// Handler serves the valuation API.
type Handler struct {
	svc *valuation.Service
}

// NewHandler creates the API handlers.
func NewHandler(svc *valuation.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router, hub *WSHub) {
	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}
	r.Get("/markets", h.ListMarkets)
	r.Get("/markets/{market}/quote", h.GetQuote)
	r.Get("/valuations/{wallet}", h.GetValuation)
}

// ListMarkets handles GET /api/v1/markets
func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.svc.Registry().ListMarkets(r.Context())
	if err != nil {
		slog.Error("list markets failed", "err", err)
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.MarketInfo{}
	}
	writeJSON(w, markets)
}

// GetQuote handles GET /api/v1/markets/{market}/quote
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")

	q, err := h.svc.QuoteMarket(r.Context(), market)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, q)
}

// GetValuation handles GET /api/v1/valuations/{wallet}
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	res, err := h.svc.ComputeUserValuation(r.Context(), wallet)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("valuation failed", "wallet", wallet, "err", err)
		}
		writeError(w, err.Error(), status)
		return
	}
	writeJSON(w, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, valuation.ErrInvalidWallet):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pricing.ErrInvariant):
		return http.StatusUnprocessableEntity
	}
	// Ledger accounts missing or undecodable, or the RPC node failing.
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
