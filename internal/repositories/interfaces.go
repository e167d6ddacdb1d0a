package repositories

import (
	"context"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderItems() OrderItemRepository
	OrderNumbers() OrderNumberRepository
	Fulfillments() FulfillmentRepository
	Commissions() CommissionRepository
	Returns() ReturnRequestRepository
	Products() ProductRepository
	Stores() StoreRepository
	StoreTeams() StoreTeamRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order headers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update replaces the order only while its stored status still equals expected;
	// otherwise it returns a conflict error.
	Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderItemRepository persists purchased lines.
type OrderItemRepository interface {
	Insert(ctx context.Context, item domain.OrderItem) error
	Delete(ctx context.Context, itemID string) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error)
}

// OrderNumberRepository reserves human-readable order numbers.
type OrderNumberRepository interface {
	// Reserve claims number for orderID, returning a conflict error when already taken.
	Reserve(ctx context.Context, number string, orderID string, at time.Time) error
	Release(ctx context.Context, number string) error
}

// FulfillmentRepository persists per-vendor fulfillment records.
type FulfillmentRepository interface {
	Insert(ctx context.Context, record domain.FulfillmentRecord) error
	Update(ctx context.Context, record domain.FulfillmentRecord, expected domain.FulfillmentStatus) error
	Delete(ctx context.Context, recordID string) error
	FindByID(ctx context.Context, recordID string) (domain.FulfillmentRecord, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.FulfillmentRecord, error)
	ListByStore(ctx context.Context, filter FulfillmentListFilter) (domain.CursorPage[domain.FulfillmentRecord], error)
}

// CommissionRepository persists the platform commission ledger.
type CommissionRepository interface {
	Insert(ctx context.Context, record domain.CommissionRecord) error
	Update(ctx context.Context, record domain.CommissionRecord, expected domain.CommissionStatus) error
	Delete(ctx context.Context, recordID string) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.CommissionRecord, error)
	ListByStatus(ctx context.Context, status domain.CommissionStatus, limit int) ([]domain.CommissionRecord, error)
}

// ReturnRequestRepository persists customer return requests.
type ReturnRequestRepository interface {
	Insert(ctx context.Context, request domain.ReturnRequest) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error)
}

// ProductRepository is the read-only catalog seam used at checkout.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// StoreRepository persists virtual and physical stores.
type StoreRepository interface {
	Insert(ctx context.Context, store domain.Store) error
	Update(ctx context.Context, store domain.Store) error
	Delete(ctx context.Context, storeID string) error
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
}

// StoreTeamRepository persists the member group attached to a store.
type StoreTeamRepository interface {
	Insert(ctx context.Context, team domain.StoreTeam) error
	Update(ctx context.Context, team domain.StoreTeam) error
	Delete(ctx context.Context, teamID string) error
	FindByID(ctx context.Context, teamID string) (domain.StoreTeam, error)
}

// HealthRepository reports readiness of backing services.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	CustomerID     string
	VirtualStoreID string
	Status         []domain.OrderStatus
	DateRange      domain.RangeQuery[time.Time]
	Pagination     domain.Pagination
}

// FulfillmentListFilter narrows a vendor's fulfillment queue.
type FulfillmentListFilter struct {
	PhysicalStoreID string
	Status          []domain.FulfillmentStatus
	Pagination      domain.Pagination
}
