package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/platform/auth"
	"github.com/vendorhub/marketplace/internal/platform/httpx"
	"github.com/vendorhub/marketplace/internal/platform/pagination"
	"github.com/vendorhub/marketplace/internal/services"
)

type customerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type addressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type orderItemRequest struct {
	ProductID       string          `json:"productId"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Commission      decimal.Decimal `json:"commission"`
	Name            string          `json:"name"`
	Image           string          `json:"image"`
	SKU             string          `json:"sku"`
	PhysicalStoreID string          `json:"physicalStoreId"`
}

type createOrderRequest struct {
	CustomerID       string             `json:"customerId"`
	Customer         *customerRequest   `json:"customer"`
	VirtualStoreID   string             `json:"virtualStoreId"`
	Currency         string             `json:"currency"`
	Subtotal         decimal.Decimal    `json:"subtotal"`
	Shipping         decimal.Decimal    `json:"shipping"`
	Tax              decimal.Decimal    `json:"tax"`
	Discount         decimal.Decimal    `json:"discount"`
	Total            decimal.Decimal    `json:"total"`
	ShippingAddress  addressRequest     `json:"shippingAddress"`
	PaymentMethod    string             `json:"paymentMethod"`
	PaymentReference string             `json:"paymentReference"`
	DeliveryType     string             `json:"deliveryType"`
	Notes            string             `json:"notes"`
	OrderItems       []orderItemRequest `json:"orderItems"`
}

type transitionOrderRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type returnRequestBody struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// OrderHandlers exposes checkout and the order lifecycle to signed-in callers.
type OrderHandlers struct {
	authn        *auth.Authenticator
	orders       services.OrderService
	fulfillments services.FulfillmentService
	returns      services.ReturnService

	idempotency     func(http.Handler) http.Handler
	checkoutLimiter *windowLimiter
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderFulfillmentService enables GET /orders/{id}/fulfillments.
func WithOrderFulfillmentService(svc services.FulfillmentService) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.fulfillments = svc
	}
}

// WithOrderReturnService enables the /orders/{id}/returns endpoints.
func WithOrderReturnService(svc services.ReturnService) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.returns = svc
	}
}

// WithCheckoutIdempotency wraps POST /orders with mw.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithCheckoutRateLimit caps order submissions per customer.
func WithCheckoutRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.checkoutLimiter = newWindowLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Get("/{orderID}/fulfillments", h.listOrderFulfillments)
	r.Get("/{orderID}/returns", h.listReturns)
	r.Post("/{orderID}/returns", h.requestReturn)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if allowed, wait := h.checkoutLimiter.Allow(identity.UID); !allowed {
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many orders submitted, retry later", http.StatusTooManyRequests))
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Actor:            actorFromIdentity(identity),
		CustomerID:       req.CustomerID,
		VirtualStoreID:   req.VirtualStoreID,
		Currency:         req.Currency,
		Subtotal:         req.Subtotal,
		Shipping:         req.Shipping,
		Tax:              req.Tax,
		Discount:         req.Discount,
		Total:            req.Total,
		ShippingAddress:  services.Address(req.ShippingAddress),
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		DeliveryType:     req.DeliveryType,
		Notes:            req.Notes,
		Items:            make([]services.CartItem, 0, len(req.OrderItems)),
	}
	if req.Customer != nil {
		cmd.Customer = services.CustomerSnapshot(*req.Customer)
	} else {
		cmd.Customer = services.CustomerSnapshot{Name: identity.Name, Email: identity.Email}
	}
	for _, item := range req.OrderItems {
		cmd.Items = append(cmd.Items, services.CartItem(item))
	}

	detail, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderDetailResponse(detail))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, err := pagination.Parse(query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	filter := services.OrderListFilter{
		CustomerID:     strings.TrimSpace(query.Get("customer_id")),
		VirtualStoreID: strings.TrimSpace(query.Get("virtual_store_id")),
		Pagination:     page,
	}
	for _, raw := range splitQueryValues(query["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(strings.ToUpper(raw)))
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	result, err := h.orders.List(ctx, actorFromIdentity(identity), filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Items:         make([]orderSummaryPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, order := range result.Items {
		resp.Items = append(resp.Items, buildOrderSummary(order))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.orders.Get(ctx, actorFromIdentity(identity), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderDetailResponse(detail))
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req transitionOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: req.Status,
		Actor:        actorFromIdentity(identity),
		Note:         req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if hasBody(r) {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrderFulfillments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillments == nil {
		writeServiceUnavailable(ctx, w, "fulfillment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	records, err := h.fulfillments.ListByOrder(ctx, actorFromIdentity(identity), orderID)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fulfillmentListResponse{Items: buildFulfillmentPayloads(records)})
}

func (h *OrderHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	requests, err := h.returns.List(ctx, actorFromIdentity(identity), orderID)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	resp := returnListResponse{Items: make([]returnPayload, 0, len(requests))}
	for _, req := range requests {
		resp.Items = append(resp.Items, buildReturnPayload(req))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var body returnRequestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	request, err := h.returns.Request(ctx, services.ReturnRequestCommand{
		OrderID:     orderID,
		Actor:       actorFromIdentity(identity),
		Reason:      body.Reason,
		Description: body.Description,
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(request)})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
