package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates the customer-facing lifecycle of an order.
type OrderStatus string

// FulfillmentStatus enumerates the per-vendor fulfillment lifecycle.
type FulfillmentStatus string

// CommissionStatus tracks settlement of platform commission.
type CommissionStatus string

// ReturnStatus tracks a customer return request.
type ReturnStatus string

// Order is the aggregate root materialised once per checkout.
type Order struct {
	ID                    string
	OrderNumber           string
	CustomerID            string
	Customer              CustomerSnapshot
	VirtualStoreID        string
	Currency              string
	Subtotal              decimal.Decimal
	Shipping              decimal.Decimal
	Tax                   decimal.Decimal
	Discount              decimal.Decimal
	Total                 decimal.Decimal
	ShippingAddress       Address
	ShippingAddressText   string
	PaymentMethod         string
	PaymentStatus         string
	PaymentReference      string
	DeliveryType          string
	Status                OrderStatus
	StatusHistory         []StatusHistoryEntry
	OrderDate             time.Time
	EstimatedDeliveryDate *time.Time
	Notes                 string
	CancelReason          string
	CancelledAt           *time.Time
	DeliveredAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CustomerSnapshot freezes the buyer's contact details at checkout.
type CustomerSnapshot struct {
	Name  string
	Email string
	Phone string
}

// Address is the structured delivery address.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// StatusHistoryEntry records a single order status transition.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Actor     string
	Note      string
}

// OrderItem is one purchased product line, priced from the catalog at checkout.
type OrderItem struct {
	ID                string
	OrderID           string
	ProductID         string
	OriginalProductID string
	Name              string
	Image             string
	SKU               string
	BasePrice         decimal.Decimal
	SellingPrice      decimal.Decimal
	Commission        decimal.Decimal
	Quantity          int
	Subtotal          decimal.Decimal
	Currency          string
	VirtualStoreID    string
	PhysicalStoreID   string
	CreatedAt         time.Time
}

// FulfillmentRecord tracks one physical store's share of an order.
type FulfillmentRecord struct {
	ID              string
	OrderID         string
	PhysicalStoreID string
	VirtualStoreID  string
	Status          FulfillmentStatus
	ItemCount       int
	Value           decimal.Decimal
	Currency        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// CommissionRecord is the platform's commission ledger entry for one physical store's share of an order.
type CommissionRecord struct {
	ID              string
	OrderID         string
	VirtualStoreID  string
	PhysicalStoreID string
	Amount          decimal.Decimal
	OrderValue      decimal.Decimal
	Currency        string
	Status          CommissionStatus
	SettledAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReturnRequest captures a customer's request to return a delivered order.
type ReturnRequest struct {
	ID             string
	OrderID        string
	CustomerID     string
	VirtualStoreID string
	Reason         string
	Description    string
	Status         ReturnStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Product is the authoritative catalog listing as seen by checkout.
type Product struct {
	ID                string
	OriginalProductID string
	Status            string
	VirtualStoreID    string
	PhysicalStoreID   string
	Name              string
	Image             string
	SKU               string
	Currency          string
	BasePrice         decimal.Decimal
	Price             decimal.Decimal
	Commission        decimal.Decimal
	UpdatedAt         time.Time
}

// StoreKind distinguishes storefronts from fulfilling vendors.
type StoreKind string

const (
	StoreKindVirtual  StoreKind = "virtual"
	StoreKindPhysical StoreKind = "physical"
)

// Store is either a virtual storefront or a physical vendor.
type Store struct {
	ID           string
	Kind         StoreKind
	Name         string
	Description  string
	OwnerUID     string
	ContactEmail string
	Locale       string
	LogoPath     string
	TeamID       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoreTeam groups the accounts allowed to operate a store.
type StoreTeam struct {
	ID        string
	StoreID   string
	Name      string
	Members   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
