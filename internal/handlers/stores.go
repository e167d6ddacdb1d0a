package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vendorhub/marketplace/internal/platform/auth"
	"github.com/vendorhub/marketplace/internal/platform/httpx"
	"github.com/vendorhub/marketplace/internal/services"
)

// logoRequest carries the image bytes base64 encoded, as encoding/json does for []byte.
type logoRequest struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type createStoreRequest struct {
	Kind         string       `json:"kind"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	ContactEmail string       `json:"contactEmail"`
	Locale       string       `json:"locale"`
	TeamMembers  []string     `json:"teamMembers"`
	Logo         *logoRequest `json:"logo"`
}

type updateStoreRequest struct {
	Name         *string      `json:"name"`
	Description  *string      `json:"description"`
	ContactEmail *string      `json:"contactEmail"`
	Locale       *string      `json:"locale"`
	Logo         *logoRequest `json:"logo"`
}

// StoreHandlers manages virtual and physical stores.
type StoreHandlers struct {
	authn  *auth.Authenticator
	stores services.StoreService
}

// NewStoreHandlers constructs store handlers.
func NewStoreHandlers(authn *auth.Authenticator, stores services.StoreService) *StoreHandlers {
	return &StoreHandlers{authn: authn, stores: stores}
}

// Routes registers the /stores endpoints.
func (h *StoreHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/{storeID}", h.getStore)
	r.Group(func(vendor chi.Router) {
		vendor.Use(requireAnyRole(auth.RoleVendor, auth.RoleOperator))
		vendor.Post("/", h.createStore)
		vendor.Patch("/{storeID}", h.updateStore)
	})
}

func (h *StoreHandlers) getStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		writeServiceUnavailable(ctx, w, "store")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store id is required", http.StatusBadRequest))
		return
	}

	store, err := h.stores.Get(ctx, storeID)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, storeResponse{Store: buildStorePayload(store)})
}

func (h *StoreHandlers) createStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		writeServiceUnavailable(ctx, w, "store")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createStoreRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	store, err := h.stores.Create(ctx, services.CreateStoreCommand{
		Actor:        actorFromIdentity(identity),
		Kind:         req.Kind,
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		Locale:       req.Locale,
		TeamMembers:  req.TeamMembers,
		Logo:         req.Logo.upload(),
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, storeResponse{Store: buildStorePayload(store)})
}

func (h *StoreHandlers) updateStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		writeServiceUnavailable(ctx, w, "store")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store id is required", http.StatusBadRequest))
		return
	}

	var req updateStoreRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	store, err := h.stores.Update(ctx, services.UpdateStoreCommand{
		StoreID:      storeID,
		Actor:        actorFromIdentity(identity),
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		Locale:       req.Locale,
		Logo:         req.Logo.upload(),
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, storeResponse{Store: buildStorePayload(store)})
}

func (l *logoRequest) upload() *services.LogoUpload {
	if l == nil {
		return nil
	}
	return &services.LogoUpload{ContentType: l.ContentType, Data: l.Data}
}
