package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/platform/auth"
	"github.com/vendorhub/marketplace/internal/platform/httpx"
	"github.com/vendorhub/marketplace/internal/platform/pagination"
	"github.com/vendorhub/marketplace/internal/services"
)

type updateFulfillmentRequest struct {
	Status string `json:"status"`
}

// FulfillmentHandlers lets physical-store vendors work their fulfillment queue.
type FulfillmentHandlers struct {
	authn        *auth.Authenticator
	fulfillments services.FulfillmentService
}

// NewFulfillmentHandlers constructs fulfillment handlers.
func NewFulfillmentHandlers(authn *auth.Authenticator, fulfillments services.FulfillmentService) *FulfillmentHandlers {
	return &FulfillmentHandlers{authn: authn, fulfillments: fulfillments}
}

// Routes registers the /fulfillments endpoints.
func (h *FulfillmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleVendor, auth.RoleOperator))
	}
	r.Get("/", h.listFulfillments)
	r.Patch("/{fulfillmentID}", h.updateFulfillment)
}

func (h *FulfillmentHandlers) listFulfillments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillments == nil {
		writeServiceUnavailable(ctx, w, "fulfillment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	storeID := strings.TrimSpace(query.Get("store_id"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store_id is required", http.StatusBadRequest))
		return
	}
	page, err := pagination.Parse(query)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}

	filter := services.FulfillmentListFilter{PhysicalStoreID: storeID, Pagination: page}
	for _, raw := range splitQueryValues(query["status"]) {
		filter.Status = append(filter.Status, domain.FulfillmentStatus(strings.ToLower(raw)))
	}

	result, err := h.fulfillments.ListByStore(ctx, actorFromIdentity(identity), filter)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fulfillmentListResponse{
		Items:         buildFulfillmentPayloads(result.Items),
		NextPageToken: result.NextPageToken,
	})
}

func (h *FulfillmentHandlers) updateFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillments == nil {
		writeServiceUnavailable(ctx, w, "fulfillment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	fulfillmentID := strings.TrimSpace(chi.URLParam(r, "fulfillmentID"))
	if fulfillmentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "fulfillment id is required", http.StatusBadRequest))
		return
	}

	var req updateFulfillmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	record, err := h.fulfillments.UpdateStatus(ctx, services.FulfillmentStatusCommand{
		FulfillmentID: fulfillmentID,
		Status:        req.Status,
		Actor:         actorFromIdentity(identity),
	})
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fulfillmentResponse{Fulfillment: buildFulfillmentPayload(record)})
}
