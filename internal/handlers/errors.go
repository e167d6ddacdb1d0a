package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/vendorhub/marketplace/internal/platform/auth"
	"github.com/vendorhub/marketplace/internal/platform/httpx"
	"github.com/vendorhub/marketplace/internal/platform/pagination"
	"github.com/vendorhub/marketplace/internal/services"
)

// checkoutRejections are validation failures on a well-formed request.
var checkoutRejections = []error{
	services.ErrOrderCurrencyMismatch,
	services.ErrOrderStoreMismatch,
	services.ErrOrderSubtotalMismatch,
	services.ErrOrderTotalMismatch,
	services.ErrOrderNonPositiveTotal,
	services.ErrOrderEmpty,
	services.ErrOrderProductNotFound,
	services.ErrOrderProductUnavailable,
	services.ErrOrderPaymentNotRecognised,
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	// A failed aggregate write is reported as such whatever its cause.
	if errors.Is(err, services.ErrOrderCreateFailed) {
		httpx.WriteError(ctx, w, httpx.NewError("order_create_failed", "order could not be created", http.StatusInternalServerError))
		return
	}
	for _, rejection := range checkoutRejections {
		if errors.Is(err, rejection) {
			httpx.WriteError(ctx, w, httpx.NewError("order_rejected", err.Error(), http.StatusUnprocessableEntity))
			return
		}
	}
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderWindowExpired):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_window_expired", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeFulfillmentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFulfillmentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFulfillmentPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrFulfillmentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_not_found", "fulfillment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrFulfillmentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrFulfillmentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrFulfillmentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment storage unavailable", http.StatusServiceUnavailable))
	default:
		// order lookups made on behalf of the fulfillment surface
		writeOrderError(ctx, w, err)
	}
}

func writeReturnError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReturnInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReturnWindowExpired):
		httpx.WriteError(ctx, w, httpx.NewError("return_window_expired", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReturnInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("return_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReturnConflict):
		httpx.WriteError(ctx, w, httpx.NewError("return_conflict", err.Error(), http.StatusConflict))
	default:
		writeOrderError(ctx, w, err)
	}
}

func writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStoreInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStorePermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("store_forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrStoreNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("store_not_found", "store not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStoreConflict):
		httpx.WriteError(ctx, w, httpx.NewError("store_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStoreWriteFailed):
		httpx.WriteError(ctx, w, httpx.NewError("store_write_failed", "store could not be saved", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("store_error", "failed to process store request", http.StatusInternalServerError))
	}
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// requireIdentity returns the authenticated caller or writes 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// requireAnyRole rejects identities that carry none of roles. It expects the
// identity to be attached by an earlier authentication middleware.
func requireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := requireIdentity(ctx, w)
			if !ok {
				return
			}
			if !identity.HasAnyRole(roles...) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actorFromIdentity maps token claims onto the caller model used by services.
// Store ownership is only honoured for vendor tokens.
func actorFromIdentity(identity *auth.Identity) services.Actor {
	if identity == nil {
		return services.Actor{}
	}
	actor := services.Actor{
		ID:       strings.TrimSpace(identity.UID),
		Operator: identity.HasRole(auth.RoleOperator),
	}
	if identity.HasRole(auth.RoleVendor) {
		actor.StoreIDs = slices.Clone(identity.StoreIDs)
	}
	return actor
}

// splitQueryValues flattens repeated and comma separated query values.
func splitQueryValues(values []string) []string {
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
