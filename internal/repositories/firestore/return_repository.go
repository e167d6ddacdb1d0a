package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vendorhub/marketplace/internal/domain"
	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const returnRequestsCollection = "returnRequests"

type ReturnRequestRepository struct {
	base *pfirestore.BaseRepository[returnRequestDocument]
}

var _ repositories.ReturnRequestRepository = (*ReturnRequestRepository)(nil)

func NewReturnRequestRepository(provider *pfirestore.Provider) (*ReturnRequestRepository, error) {
	if provider == nil {
		return nil, errors.New("return request repository requires firestore provider")
	}
	return &ReturnRequestRepository{
		base: pfirestore.NewBaseRepository[returnRequestDocument](provider, returnRequestsCollection, nil, nil),
	}, nil
}

func (r *ReturnRequestRepository) Insert(ctx context.Context, request domain.ReturnRequest) error {
	_, err := r.base.Create(ctx, request.ID, returnRequestDocument{
		OrderID:        request.OrderID,
		CustomerID:     request.CustomerID,
		VirtualStoreID: request.VirtualStoreID,
		Reason:         request.Reason,
		Description:    request.Description,
		Status:         string(request.Status),
		CreatedAt:      request.CreatedAt.UTC(),
		UpdatedAt:      request.UpdatedAt.UTC(),
	})
	return err
}

func (r *ReturnRequestRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	orderID = strings.TrimSpace(orderID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.ReturnRequest{
			ID:             doc.ID,
			OrderID:        doc.Data.OrderID,
			CustomerID:     doc.Data.CustomerID,
			VirtualStoreID: doc.Data.VirtualStoreID,
			Reason:         doc.Data.Reason,
			Description:    doc.Data.Description,
			Status:         domain.ReturnStatus(doc.Data.Status),
			CreatedAt:      doc.Data.CreatedAt.UTC(),
			UpdatedAt:      doc.Data.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

type returnRequestDocument struct {
	OrderID        string    `firestore:"orderId"`
	CustomerID     string    `firestore:"customerId"`
	VirtualStoreID string    `firestore:"virtualStoreId"`
	Reason         string    `firestore:"reason"`
	Description    string    `firestore:"description,omitempty"`
	Status         string    `firestore:"status"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}
