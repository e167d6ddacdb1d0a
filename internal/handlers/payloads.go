package handlers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vendorhub/marketplace/internal/services"
)

type customerPayload struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type addressPayload struct {
	Recipient  string `json:"recipient,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Note      string `json:"note,omitempty"`
}

type orderSummaryPayload struct {
	ID             string `json:"id"`
	OrderNumber    string `json:"orderNumber"`
	VirtualStoreID string `json:"virtualStoreId"`
	Status         string `json:"status"`
	Currency       string `json:"currency"`
	Total          string `json:"total"`
	OrderDate      string `json:"orderDate"`
}

type orderPayload struct {
	ID                    string                 `json:"id"`
	OrderNumber           string                 `json:"orderNumber"`
	CustomerID            string                 `json:"customerId"`
	Customer              customerPayload        `json:"customer"`
	VirtualStoreID        string                 `json:"virtualStoreId"`
	Currency              string                 `json:"currency"`
	Subtotal              string                 `json:"subtotal"`
	Shipping              string                 `json:"shipping"`
	Tax                   string                 `json:"tax"`
	Discount              string                 `json:"discount"`
	Total                 string                 `json:"total"`
	ShippingAddress       addressPayload         `json:"shippingAddress"`
	ShippingAddressText   string                 `json:"shippingAddressText,omitempty"`
	PaymentMethod         string                 `json:"paymentMethod,omitempty"`
	PaymentStatus         string                 `json:"paymentStatus"`
	PaymentReference      string                 `json:"paymentReference,omitempty"`
	DeliveryType          string                 `json:"deliveryType,omitempty"`
	Status                string                 `json:"status"`
	StatusHistory         []statusHistoryPayload `json:"statusHistory"`
	OrderDate             string                 `json:"orderDate"`
	EstimatedDeliveryDate *string                `json:"estimatedDeliveryDate,omitempty"`
	Notes                 string                 `json:"notes,omitempty"`
	CancelReason          string                 `json:"cancelReason,omitempty"`
	CancelledAt           *string                `json:"cancelledAt,omitempty"`
	DeliveredAt           *string                `json:"deliveredAt,omitempty"`
	CreatedAt             string                 `json:"createdAt"`
	UpdatedAt             string                 `json:"updatedAt"`
}

type orderItemPayload struct {
	ID              string `json:"id"`
	ProductID       string `json:"productId"`
	Name            string `json:"name"`
	Image           string `json:"image,omitempty"`
	SKU             string `json:"sku,omitempty"`
	SellingPrice    string `json:"sellingPrice"`
	Quantity        int    `json:"quantity"`
	Subtotal        string `json:"subtotal"`
	Currency        string `json:"currency"`
	PhysicalStoreID string `json:"physicalStoreId"`
}

type fulfillmentPayload struct {
	ID              string  `json:"id"`
	OrderID         string  `json:"orderId"`
	PhysicalStoreID string  `json:"physicalStoreId"`
	VirtualStoreID  string  `json:"virtualStoreId"`
	Status          string  `json:"status"`
	ItemCount       int     `json:"itemCount"`
	Value           string  `json:"value"`
	Currency        string  `json:"currency"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
	CompletedAt     *string `json:"completedAt,omitempty"`
}

type commissionPayload struct {
	ID              string  `json:"id"`
	PhysicalStoreID string  `json:"physicalStoreId"`
	Amount          string  `json:"amount"`
	OrderValue      string  `json:"orderValue"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	SettledAt       *string `json:"settledAt,omitempty"`
}

type returnPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	CustomerID  string `json:"customerId"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

type storePayload struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	OwnerUID     string `json:"ownerUid"`
	ContactEmail string `json:"contactEmail,omitempty"`
	Locale       string `json:"locale,omitempty"`
	LogoPath     string `json:"logoPath,omitempty"`
	TeamID       string `json:"teamId"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailResponse struct {
	Order        orderPayload         `json:"order"`
	Items        []orderItemPayload   `json:"items"`
	Fulfillments []fulfillmentPayload `json:"fulfillments"`
	Commissions  []commissionPayload  `json:"commissions,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type fulfillmentResponse struct {
	Fulfillment fulfillmentPayload `json:"fulfillment"`
}

type fulfillmentListResponse struct {
	Items         []fulfillmentPayload `json:"items"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

type returnListResponse struct {
	Items []returnPayload `json:"items"`
}

type storeResponse struct {
	Store storePayload `json:"store"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		VirtualStoreID: order.VirtualStoreID,
		Status:         string(order.Status),
		Currency:       strings.ToUpper(order.Currency),
		Total:          formatAmount(order.Total),
		OrderDate:      formatTime(order.OrderDate),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                    order.ID,
		OrderNumber:           order.OrderNumber,
		CustomerID:            order.CustomerID,
		Customer:              customerPayload(order.Customer),
		VirtualStoreID:        order.VirtualStoreID,
		Currency:              strings.ToUpper(order.Currency),
		Subtotal:              formatAmount(order.Subtotal),
		Shipping:              formatAmount(order.Shipping),
		Tax:                   formatAmount(order.Tax),
		Discount:              formatAmount(order.Discount),
		Total:                 formatAmount(order.Total),
		ShippingAddress:       addressPayload(order.ShippingAddress),
		ShippingAddressText:   order.ShippingAddressText,
		PaymentMethod:         order.PaymentMethod,
		PaymentStatus:         order.PaymentStatus,
		PaymentReference:      order.PaymentReference,
		DeliveryType:          order.DeliveryType,
		Status:                string(order.Status),
		StatusHistory:         make([]statusHistoryPayload, 0, len(order.StatusHistory)),
		OrderDate:             formatTime(order.OrderDate),
		EstimatedDeliveryDate: formatTimePtr(order.EstimatedDeliveryDate),
		Notes:                 order.Notes,
		CancelReason:          order.CancelReason,
		CancelledAt:           formatTimePtr(order.CancelledAt),
		DeliveredAt:           formatTimePtr(order.DeliveredAt),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Actor:     entry.Actor,
			Note:      entry.Note,
		})
	}
	return payload
}

func buildOrderDetailResponse(detail services.OrderDetail) orderDetailResponse {
	resp := orderDetailResponse{
		Order:        buildOrderPayload(detail.Order),
		Items:        make([]orderItemPayload, 0, len(detail.Items)),
		Fulfillments: buildFulfillmentPayloads(detail.Fulfillments),
	}
	for _, item := range detail.Items {
		resp.Items = append(resp.Items, orderItemPayload{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Name:            item.Name,
			Image:           item.Image,
			SKU:             item.SKU,
			SellingPrice:    formatAmount(item.SellingPrice),
			Quantity:        item.Quantity,
			Subtotal:        formatAmount(item.Subtotal),
			Currency:        item.Currency,
			PhysicalStoreID: item.PhysicalStoreID,
		})
	}
	for _, record := range detail.Commissions {
		resp.Commissions = append(resp.Commissions, commissionPayload{
			ID:              record.ID,
			PhysicalStoreID: record.PhysicalStoreID,
			Amount:          formatAmount(record.Amount),
			OrderValue:      formatAmount(record.OrderValue),
			Currency:        record.Currency,
			Status:          string(record.Status),
			SettledAt:       formatTimePtr(record.SettledAt),
		})
	}
	return resp
}

func buildFulfillmentPayload(record services.FulfillmentRecord) fulfillmentPayload {
	return fulfillmentPayload{
		ID:              record.ID,
		OrderID:         record.OrderID,
		PhysicalStoreID: record.PhysicalStoreID,
		VirtualStoreID:  record.VirtualStoreID,
		Status:          string(record.Status),
		ItemCount:       record.ItemCount,
		Value:           formatAmount(record.Value),
		Currency:        record.Currency,
		CreatedAt:       formatTime(record.CreatedAt),
		UpdatedAt:       formatTime(record.UpdatedAt),
		CompletedAt:     formatTimePtr(record.CompletedAt),
	}
}

func buildFulfillmentPayloads(records []services.FulfillmentRecord) []fulfillmentPayload {
	out := make([]fulfillmentPayload, 0, len(records))
	for _, record := range records {
		out = append(out, buildFulfillmentPayload(record))
	}
	return out
}

func buildReturnPayload(req services.ReturnRequest) returnPayload {
	return returnPayload{
		ID:          req.ID,
		OrderID:     req.OrderID,
		CustomerID:  req.CustomerID,
		Reason:      req.Reason,
		Description: req.Description,
		Status:      string(req.Status),
		CreatedAt:   formatTime(req.CreatedAt),
	}
}

func buildStorePayload(store services.Store) storePayload {
	return storePayload{
		ID:           store.ID,
		Kind:         string(store.Kind),
		Name:         store.Name,
		Description:  store.Description,
		OwnerUID:     store.OwnerUID,
		ContactEmail: store.ContactEmail,
		Locale:       store.Locale,
		LogoPath:     store.LogoPath,
		TeamID:       store.TeamID,
		CreatedAt:    formatTime(store.CreatedAt),
		UpdatedAt:    formatTime(store.UpdatedAt),
	}
}

func formatAmount(amount decimal.Decimal) string {
	return amount.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}
