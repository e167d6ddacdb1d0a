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

const fulfillmentsCollection = "fulfillments"

// FulfillmentRepository stores one record per (order, physical store).
type FulfillmentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[fulfillmentDocument]
}

var _ repositories.FulfillmentRepository = (*FulfillmentRepository)(nil)

func NewFulfillmentRepository(provider *pfirestore.Provider) (*FulfillmentRepository, error) {
	if provider == nil {
		return nil, errors.New("fulfillment repository requires firestore provider")
	}
	return &FulfillmentRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[fulfillmentDocument](provider, fulfillmentsCollection, nil, nil),
	}, nil
}

func (r *FulfillmentRepository) Insert(ctx context.Context, record domain.FulfillmentRecord) error {
	_, err := r.base.Create(ctx, record.ID, encodeFulfillment(record))
	return err
}

func (r *FulfillmentRepository) Update(ctx context.Context, record domain.FulfillmentRecord, expected domain.FulfillmentStatus) error {
	return compareAndSetStatus(ctx, r.provider, r.base, record.ID, string(expected),
		func(doc fulfillmentDocument) string { return doc.Status }, encodeFulfillment(record))
}

func (r *FulfillmentRepository) Delete(ctx context.Context, recordID string) error {
	return r.base.Delete(ctx, recordID)
}

func (r *FulfillmentRepository) FindByID(ctx context.Context, recordID string) (domain.FulfillmentRecord, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(recordID))
	if err != nil {
		return domain.FulfillmentRecord{}, err
	}
	return decodeFulfillment(doc.ID, doc.Data)
}

func (r *FulfillmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.FulfillmentRecord, error) {
	orderID = strings.TrimSpace(orderID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}
	return decodeFulfillments(docs)
}

func (r *FulfillmentRepository) ListByStore(ctx context.Context, filter repositories.FulfillmentListFilter) (domain.CursorPage[domain.FulfillmentRecord], error) {
	storeID := strings.TrimSpace(filter.PhysicalStoreID)
	if storeID == "" {
		return domain.CursorPage[domain.FulfillmentRecord]{}, errors.New("fulfillment repository: physical store id is required")
	}
	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.FulfillmentRecord]{}, err
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("physicalStoreId", "==", storeID)
		switch {
		case len(statuses) == 1:
			q = q.Where("status", "==", statuses[0])
		case len(statuses) > 1:
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.StartAfter()...)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.FulfillmentRecord]{}, err
	}

	page := domain.CursorPage[domain.FulfillmentRecord]{}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{At: last.Data.CreatedAt, ID: last.ID})
	}
	page.Items, err = decodeFulfillments(docs)
	if err != nil {
		return domain.CursorPage[domain.FulfillmentRecord]{}, err
	}
	return page, nil
}

type fulfillmentDocument struct {
	OrderID         string     `firestore:"orderId"`
	PhysicalStoreID string     `firestore:"physicalStoreId"`
	VirtualStoreID  string     `firestore:"virtualStoreId"`
	Status          string     `firestore:"status"`
	ItemCount       int        `firestore:"itemCount"`
	Value           string     `firestore:"value"`
	Currency        string     `firestore:"currency"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	CompletedAt     *time.Time `firestore:"completedAt,omitempty"`
}

func encodeFulfillment(record domain.FulfillmentRecord) fulfillmentDocument {
	return fulfillmentDocument{
		OrderID:         record.OrderID,
		PhysicalStoreID: record.PhysicalStoreID,
		VirtualStoreID:  record.VirtualStoreID,
		Status:          string(record.Status),
		ItemCount:       record.ItemCount,
		Value:           encodeAmount(record.Value),
		Currency:        record.Currency,
		CreatedAt:       record.CreatedAt.UTC(),
		UpdatedAt:       record.UpdatedAt.UTC(),
		CompletedAt:     utcPtr(record.CompletedAt),
	}
}

func decodeFulfillment(id string, doc fulfillmentDocument) (domain.FulfillmentRecord, error) {
	var amounts amountDecoder
	record := domain.FulfillmentRecord{
		ID:              id,
		OrderID:         doc.OrderID,
		PhysicalStoreID: doc.PhysicalStoreID,
		VirtualStoreID:  doc.VirtualStoreID,
		Status:          domain.FulfillmentStatus(doc.Status),
		ItemCount:       doc.ItemCount,
		Value:           amounts.decode("value", doc.Value),
		Currency:        doc.Currency,
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
		CompletedAt:     utcPtr(doc.CompletedAt),
	}
	if amounts.err != nil {
		return domain.FulfillmentRecord{}, fmt.Errorf("fulfillment %s: %w", id, amounts.err)
	}
	return record, nil
}

func decodeFulfillments(docs []pfirestore.Document[fulfillmentDocument]) ([]domain.FulfillmentRecord, error) {
	records := make([]domain.FulfillmentRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := decodeFulfillment(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
