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
	"github.com/vendorhub/marketplace/internal/repositories"
)

const orderItemsCollection = "orderItems"

// OrderItemRepository stores purchased lines as top-level documents keyed by item id.
type OrderItemRepository struct {
	base *pfirestore.BaseRepository[orderItemDocument]
}

var _ repositories.OrderItemRepository = (*OrderItemRepository)(nil)

func NewOrderItemRepository(provider *pfirestore.Provider) (*OrderItemRepository, error) {
	if provider == nil {
		return nil, errors.New("order item repository requires firestore provider")
	}
	return &OrderItemRepository{
		base: pfirestore.NewBaseRepository[orderItemDocument](provider, orderItemsCollection, nil, nil),
	}, nil
}

func (r *OrderItemRepository) Insert(ctx context.Context, item domain.OrderItem) error {
	_, err := r.base.Create(ctx, item.ID, encodeOrderItem(item))
	return err
}

func (r *OrderItemRepository) Delete(ctx context.Context, itemID string) error {
	return r.base.Delete(ctx, itemID)
}

func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	orderID = strings.TrimSpace(orderID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeOrderItem(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type orderItemDocument struct {
	OrderID           string    `firestore:"orderId"`
	ProductID         string    `firestore:"productId"`
	OriginalProductID string    `firestore:"originalProductId"`
	Name              string    `firestore:"name"`
	Image             string    `firestore:"image,omitempty"`
	SKU               string    `firestore:"sku,omitempty"`
	BasePrice         string    `firestore:"basePrice"`
	SellingPrice      string    `firestore:"sellingPrice"`
	Commission        string    `firestore:"commission"`
	Quantity          int       `firestore:"quantity"`
	Subtotal          string    `firestore:"subtotal"`
	Currency          string    `firestore:"currency"`
	VirtualStoreID    string    `firestore:"virtualStoreId"`
	PhysicalStoreID   string    `firestore:"physicalStoreId"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

func encodeOrderItem(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		OrderID:           item.OrderID,
		ProductID:         item.ProductID,
		OriginalProductID: item.OriginalProductID,
		Name:              item.Name,
		Image:             item.Image,
		SKU:               item.SKU,
		BasePrice:         encodeAmount(item.BasePrice),
		SellingPrice:      encodeAmount(item.SellingPrice),
		Commission:        encodeAmount(item.Commission),
		Quantity:          item.Quantity,
		Subtotal:          encodeAmount(item.Subtotal),
		Currency:          item.Currency,
		VirtualStoreID:    item.VirtualStoreID,
		PhysicalStoreID:   item.PhysicalStoreID,
		CreatedAt:         item.CreatedAt.UTC(),
	}
}

func decodeOrderItem(id string, doc orderItemDocument) (domain.OrderItem, error) {
	var amounts amountDecoder
	item := domain.OrderItem{
		ID:                id,
		OrderID:           doc.OrderID,
		ProductID:         doc.ProductID,
		OriginalProductID: doc.OriginalProductID,
		Name:              doc.Name,
		Image:             doc.Image,
		SKU:               doc.SKU,
		BasePrice:         amounts.decode("basePrice", doc.BasePrice),
		SellingPrice:      amounts.decode("sellingPrice", doc.SellingPrice),
		Commission:        amounts.decode("commission", doc.Commission),
		Quantity:          doc.Quantity,
		Subtotal:          amounts.decode("subtotal", doc.Subtotal),
		Currency:          doc.Currency,
		VirtualStoreID:    doc.VirtualStoreID,
		PhysicalStoreID:   doc.PhysicalStoreID,
		CreatedAt:         doc.CreatedAt.UTC(),
	}
	if amounts.err != nil {
		return domain.OrderItem{}, fmt.Errorf("order item %s: %w", id, amounts.err)
	}
	return item, nil
}
