package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderItem          = domain.OrderItem
	Address            = domain.Address
	CustomerSnapshot   = domain.CustomerSnapshot
	FulfillmentRecord  = domain.FulfillmentRecord
	FulfillmentStatus  = domain.FulfillmentStatus
	CommissionRecord   = domain.CommissionRecord
	ReturnRequest      = domain.ReturnRequest
	Product            = domain.Product
	Store              = domain.Store
	StoreTeam          = domain.StoreTeam
	SystemHealthReport = domain.SystemHealthReport
)

// OrderListFilter narrows order listings.
type OrderListFilter = repositories.OrderListFilter

// FulfillmentListFilter narrows a vendor's fulfillment queue.
type FulfillmentListFilter = repositories.FulfillmentListFilter

// Actor is the authenticated caller as seen by services.
type Actor struct {
	ID       string
	Operator bool
	StoreIDs []string
}

func (a Actor) ownsStore(storeID string) bool {
	storeID = strings.TrimSpace(storeID)
	return storeID != "" && slices.Contains(a.StoreIDs, storeID)
}

// OrderService owns checkout and the order lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (OrderDetail, error)
	Get(ctx context.Context, actor Actor, orderID string) (OrderDetail, error)
	List(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// FulfillmentService drives per-vendor fulfillment and the order aggregation rule.
type FulfillmentService interface {
	UpdateStatus(ctx context.Context, cmd FulfillmentStatusCommand) (FulfillmentRecord, error)
	ListByOrder(ctx context.Context, actor Actor, orderID string) ([]FulfillmentRecord, error)
	ListByStore(ctx context.Context, actor Actor, filter FulfillmentListFilter) (domain.CursorPage[FulfillmentRecord], error)
}

// ReturnService records customer return requests.
type ReturnService interface {
	Request(ctx context.Context, cmd ReturnRequestCommand) (ReturnRequest, error)
	List(ctx context.Context, actor Actor, orderID string) ([]ReturnRequest, error)
}

// NotificationService fans out messages for order lifecycle events. Failures are
// logged and never returned.
type NotificationService interface {
	OrderCreated(ctx context.Context, detail OrderDetail)
	OrderStatusChanged(ctx context.Context, order Order, previous OrderStatus)
	FulfillmentStatusChanged(ctx context.Context, record FulfillmentRecord, previous FulfillmentStatus)
}

// StoreService manages virtual and physical stores together with their logo and team.
type StoreService interface {
	Create(ctx context.Context, cmd CreateStoreCommand) (Store, error)
	Update(ctx context.Context, cmd UpdateStoreCommand) (Store, error)
	Get(ctx context.Context, storeID string) (Store, error)
}

// CommissionService settles the platform commission ledger.
type CommissionService interface {
	Settle(ctx context.Context, cmd SettleCommissionsCommand) (SettlementResult, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CartItem is a line as submitted by the client. Only ProductID and Quantity are
// trusted; the remaining fields are overwritten from the catalog.
type CartItem struct {
	ProductID       string
	Quantity        int
	Price           decimal.Decimal
	Commission      decimal.Decimal
	Name            string
	Image           string
	SKU             string
	PhysicalStoreID string
}

// CreateOrderCommand is the checkout request.
type CreateOrderCommand struct {
	Actor            Actor
	CustomerID       string
	Customer         CustomerSnapshot
	VirtualStoreID   string
	Currency         string
	Subtotal         decimal.Decimal
	Shipping         decimal.Decimal
	Tax              decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	ShippingAddress  Address
	PaymentMethod    string
	PaymentReference string
	DeliveryType     string
	Notes            string
	Items            []CartItem
}

// OrderDetail bundles an order with its child documents.
type OrderDetail struct {
	Order        Order
	Items        []OrderItem
	Fulfillments []FulfillmentRecord
	Commissions  []CommissionRecord
}

// OrderStatusTransitionCommand moves an order along its state machine.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus string
	Actor        Actor
	Note         string
}

// CancelOrderCommand cancels an order on behalf of its customer or staff.
type CancelOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// FulfillmentStatusCommand advances a fulfillment record.
type FulfillmentStatusCommand struct {
	FulfillmentID string
	Status        string
	Actor         Actor
}

// ReturnRequestCommand opens a return for a delivered order.
type ReturnRequestCommand struct {
	OrderID     string
	Actor       Actor
	Reason      string
	Description string
}

// LogoUpload carries a store logo image.
type LogoUpload struct {
	ContentType string
	Data        []byte
}

// CreateStoreCommand registers a store with its team and optional logo.
type CreateStoreCommand struct {
	Actor        Actor
	Kind         string
	Name         string
	Description  string
	ContactEmail string
	Locale       string
	TeamMembers  []string
	Logo         *LogoUpload
}

// UpdateStoreCommand patches a store; nil fields are left untouched.
type UpdateStoreCommand struct {
	StoreID      string
	Actor        Actor
	Name         *string
	Description  *string
	ContactEmail *string
	Locale       *string
	Logo         *LogoUpload
}

// SettleCommissionsCommand bounds a settlement run.
type SettleCommissionsCommand struct {
	Limit int
}

// SettlementResult summarises a settlement run.
type SettlementResult struct {
	Scanned int
	Settled int
	Voided  int
	Skipped int
	RanAt   time.Time
}
