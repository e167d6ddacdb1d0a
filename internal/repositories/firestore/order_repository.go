package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vendorhub/marketplace/internal/domain"
	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
	"github.com/vendorhub/marketplace/internal/platform/pagination"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository stores order headers in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.base.Create(ctx, order.ID, encodeOrder(order))
	return err
}

// Update performs a compare-and-set on status inside a transaction so two
// concurrent transitions cannot both apply.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	return compareAndSetStatus(ctx, r.provider, r.base, order.ID, string(expected),
		func(doc orderDocument) string { return doc.Status }, encodeOrder(order))
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, orderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if id := strings.TrimSpace(filter.CustomerID); id != "" {
			q = q.Where("customerId", "==", id)
		}
		if id := strings.TrimSpace(filter.VirtualStoreID); id != "" {
			q = q.Where("virtualStoreId", "==", id)
		}
		switch statuses := statusStrings(filter.Status); {
		case len(statuses) == 1:
			q = q.Where("status", "==", statuses[0])
		case len(statuses) > 1:
			q = q.Where("status", "in", statuses)
		}
		if from := filter.DateRange.From; from != nil {
			q = q.Where("orderDate", ">=", from.UTC())
		}
		if to := filter.DateRange.To; to != nil {
			q = q.Where("orderDate", "<=", to.UTC())
		}
		q = q.OrderBy("orderDate", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.StartAfter()...)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{At: last.Data.OrderDate, ID: last.ID})
	}
	page.Items = make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc.ID, doc.Data)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

func statusStrings(values []domain.OrderStatus) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(string(value)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	// Firestore "in" accepts at most 30 values.
	if len(out) > 30 {
		out = out[:30]
	}
	return out
}

type orderDocument struct {
	OrderNumber           string                  `firestore:"orderNumber"`
	CustomerID            string                  `firestore:"customerId"`
	Customer              customerDocument        `firestore:"customer"`
	VirtualStoreID        string                  `firestore:"virtualStoreId"`
	Currency              string                  `firestore:"currency"`
	Subtotal              string                  `firestore:"subtotal"`
	Shipping              string                  `firestore:"shipping"`
	Tax                   string                  `firestore:"tax"`
	Discount              string                  `firestore:"discount"`
	Total                 string                  `firestore:"total"`
	ShippingAddress       addressDocument         `firestore:"shippingAddress"`
	ShippingAddressText   string                  `firestore:"shippingAddressText"`
	PaymentMethod         string                  `firestore:"paymentMethod"`
	PaymentStatus         string                  `firestore:"paymentStatus"`
	PaymentReference      string                  `firestore:"paymentReference,omitempty"`
	DeliveryType          string                  `firestore:"deliveryType"`
	Status                string                  `firestore:"status"`
	StatusHistory         []statusHistoryDocument `firestore:"statusHistory"`
	OrderDate             time.Time               `firestore:"orderDate"`
	EstimatedDeliveryDate *time.Time              `firestore:"estimatedDeliveryDate,omitempty"`
	Notes                 string                  `firestore:"notes,omitempty"`
	CancelReason          string                  `firestore:"cancelReason,omitempty"`
	CancelledAt           *time.Time              `firestore:"cancelledAt,omitempty"`
	DeliveredAt           *time.Time              `firestore:"deliveredAt,omitempty"`
	CreatedAt             time.Time               `firestore:"createdAt"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type statusHistoryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Actor     string    `firestore:"actor"`
	Note      string    `firestore:"note,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	history := make([]statusHistoryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, statusHistoryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Actor:     entry.Actor,
			Note:      entry.Note,
		})
	}
	return orderDocument{
		OrderNumber:           order.OrderNumber,
		CustomerID:            order.CustomerID,
		Customer:              customerDocument(order.Customer),
		VirtualStoreID:        order.VirtualStoreID,
		Currency:              order.Currency,
		Subtotal:              encodeAmount(order.Subtotal),
		Shipping:              encodeAmount(order.Shipping),
		Tax:                   encodeAmount(order.Tax),
		Discount:              encodeAmount(order.Discount),
		Total:                 encodeAmount(order.Total),
		ShippingAddress:       addressDocument(order.ShippingAddress),
		ShippingAddressText:   order.ShippingAddressText,
		PaymentMethod:         order.PaymentMethod,
		PaymentStatus:         order.PaymentStatus,
		PaymentReference:      order.PaymentReference,
		DeliveryType:          order.DeliveryType,
		Status:                string(order.Status),
		StatusHistory:         history,
		OrderDate:             order.OrderDate.UTC(),
		EstimatedDeliveryDate: utcPtr(order.EstimatedDeliveryDate),
		Notes:                 order.Notes,
		CancelReason:          order.CancelReason,
		CancelledAt:           utcPtr(order.CancelledAt),
		DeliveredAt:           utcPtr(order.DeliveredAt),
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	var amounts amountDecoder
	order := domain.Order{
		ID:                    id,
		OrderNumber:           doc.OrderNumber,
		CustomerID:            doc.CustomerID,
		Customer:              domain.CustomerSnapshot(doc.Customer),
		VirtualStoreID:        doc.VirtualStoreID,
		Currency:              doc.Currency,
		Subtotal:              amounts.decode("subtotal", doc.Subtotal),
		Shipping:              amounts.decode("shipping", doc.Shipping),
		Tax:                   amounts.decode("tax", doc.Tax),
		Discount:              amounts.decode("discount", doc.Discount),
		Total:                 amounts.decode("total", doc.Total),
		ShippingAddress:       domain.Address(doc.ShippingAddress),
		ShippingAddressText:   doc.ShippingAddressText,
		PaymentMethod:         doc.PaymentMethod,
		PaymentStatus:         doc.PaymentStatus,
		PaymentReference:      doc.PaymentReference,
		DeliveryType:          doc.DeliveryType,
		Status:                domain.OrderStatus(doc.Status),
		OrderDate:             doc.OrderDate.UTC(),
		EstimatedDeliveryDate: utcPtr(doc.EstimatedDeliveryDate),
		Notes:                 doc.Notes,
		CancelReason:          doc.CancelReason,
		CancelledAt:           utcPtr(doc.CancelledAt),
		DeliveredAt:           utcPtr(doc.DeliveredAt),
		CreatedAt:             doc.CreatedAt.UTC(),
		UpdatedAt:             doc.UpdatedAt.UTC(),
	}
	if amounts.err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, amounts.err)
	}
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Actor:     entry.Actor,
			Note:      entry.Note,
		})
	}
	return order, nil
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
