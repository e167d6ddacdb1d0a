package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vendorhub/marketplace/internal/platform/auth"
	"github.com/vendorhub/marketplace/internal/platform/httpx"
	"github.com/vendorhub/marketplace/internal/platform/requestctx"
	"github.com/vendorhub/marketplace/internal/services"
)

type settleCommissionsRequest struct {
	Limit int `json:"limit"`
}

type settleCommissionsResponse struct {
	Scanned int    `json:"scanned"`
	Settled int    `json:"settled"`
	Voided  int    `json:"voided"`
	Skipped int    `json:"skipped"`
	RanAt   string `json:"ranAt"`
}

// InternalHandlers serves scheduler-driven jobs. Authentication is applied by
// the router's internal middleware group.
type InternalHandlers struct {
	commissions services.CommissionService
}

// NewInternalHandlers constructs internal job handlers.
func NewInternalHandlers(commissions services.CommissionService) *InternalHandlers {
	return &InternalHandlers{commissions: commissions}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/commissions:settle", h.settleCommissions)
}

func (h *InternalHandlers) settleCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.commissions == nil {
		writeServiceUnavailable(ctx, w, "commission")
		return
	}

	var req settleCommissionsRequest
	if hasBody(r) {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}
	if req.Limit < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must not be negative", http.StatusBadRequest))
		return
	}

	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		requestctx.Logger(ctx).Info("commission settlement requested",
			zap.String("subject", caller.Subject),
			zap.String("email", caller.Email),
			zap.Int("limit", req.Limit),
		)
	}

	result, err := h.commissions.Settle(ctx, services.SettleCommissionsCommand{Limit: req.Limit})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrOrderUnavailable) {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteError(ctx, w, httpx.NewError("settlement_failed", err.Error(), status))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, settleCommissionsResponse{
		Scanned: result.Scanned,
		Settled: result.Settled,
		Voided:  result.Voided,
		Skipped: result.Skipped,
		RanAt:   result.RanAt.UTC().Format(time.RFC3339Nano),
	})
}
