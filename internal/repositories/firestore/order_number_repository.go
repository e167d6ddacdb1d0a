package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const orderNumbersCollection = "orderNumbers"

// OrderNumberRepository keeps one marker document per issued order number.
// Firestore's create-if-absent semantics make the marker a uniqueness constraint.
type OrderNumberRepository struct {
	base *pfirestore.BaseRepository[orderNumberDocument]
}

var _ repositories.OrderNumberRepository = (*OrderNumberRepository)(nil)

func NewOrderNumberRepository(provider *pfirestore.Provider) (*OrderNumberRepository, error) {
	if provider == nil {
		return nil, errors.New("order number repository requires firestore provider")
	}
	return &OrderNumberRepository{
		base: pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil, nil),
	}, nil
}

func (r *OrderNumberRepository) Reserve(ctx context.Context, number string, orderID string, at time.Time) error {
	_, err := r.base.Create(ctx, strings.TrimSpace(number), orderNumberDocument{
		OrderID:    orderID,
		ReservedAt: at.UTC(),
	})
	return err
}

func (r *OrderNumberRepository) Release(ctx context.Context, number string) error {
	return r.base.Delete(ctx, strings.TrimSpace(number))
}

type orderNumberDocument struct {
	OrderID    string    `firestore:"orderId"`
	ReservedAt time.Time `firestore:"reservedAt"`
}
