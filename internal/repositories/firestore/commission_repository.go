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

const commissionsCollection = "commissions"

// CommissionRepository stores the per-vendor commission ledger.
type CommissionRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[commissionDocument]
}

var _ repositories.CommissionRepository = (*CommissionRepository)(nil)

func NewCommissionRepository(provider *pfirestore.Provider) (*CommissionRepository, error) {
	if provider == nil {
		return nil, errors.New("commission repository requires firestore provider")
	}
	return &CommissionRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[commissionDocument](provider, commissionsCollection, nil, nil),
	}, nil
}

func (r *CommissionRepository) Insert(ctx context.Context, record domain.CommissionRecord) error {
	_, err := r.base.Create(ctx, record.ID, encodeCommission(record))
	return err
}

func (r *CommissionRepository) Update(ctx context.Context, record domain.CommissionRecord, expected domain.CommissionStatus) error {
	return compareAndSetStatus(ctx, r.provider, r.base, record.ID, string(expected),
		func(doc commissionDocument) string { return doc.Status }, encodeCommission(record))
}

func (r *CommissionRepository) Delete(ctx context.Context, recordID string) error {
	return r.base.Delete(ctx, recordID)
}

func (r *CommissionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.CommissionRecord, error) {
	orderID = strings.TrimSpace(orderID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}
	return decodeCommissions(docs)
}

func (r *CommissionRepository) ListByStatus(ctx context.Context, status domain.CommissionStatus, limit int) ([]domain.CommissionRecord, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(status)).OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return decodeCommissions(docs)
}

type commissionDocument struct {
	OrderID         string     `firestore:"orderId"`
	VirtualStoreID  string     `firestore:"virtualStoreId"`
	PhysicalStoreID string     `firestore:"physicalStoreId"`
	Amount          string     `firestore:"amount"`
	OrderValue      string     `firestore:"orderValue"`
	Currency        string     `firestore:"currency"`
	Status          string     `firestore:"status"`
	SettledAt       *time.Time `firestore:"settledAt,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func encodeCommission(record domain.CommissionRecord) commissionDocument {
	return commissionDocument{
		OrderID:         record.OrderID,
		VirtualStoreID:  record.VirtualStoreID,
		PhysicalStoreID: record.PhysicalStoreID,
		Amount:          encodeAmount(record.Amount),
		OrderValue:      encodeAmount(record.OrderValue),
		Currency:        record.Currency,
		Status:          string(record.Status),
		SettledAt:       utcPtr(record.SettledAt),
		CreatedAt:       record.CreatedAt.UTC(),
		UpdatedAt:       record.UpdatedAt.UTC(),
	}
}

func decodeCommissions(docs []pfirestore.Document[commissionDocument]) ([]domain.CommissionRecord, error) {
	records := make([]domain.CommissionRecord, 0, len(docs))
	for _, doc := range docs {
		var amounts amountDecoder
		record := domain.CommissionRecord{
			ID:              doc.ID,
			OrderID:         doc.Data.OrderID,
			VirtualStoreID:  doc.Data.VirtualStoreID,
			PhysicalStoreID: doc.Data.PhysicalStoreID,
			Amount:          amounts.decode("amount", doc.Data.Amount),
			OrderValue:      amounts.decode("orderValue", doc.Data.OrderValue),
			Currency:        doc.Data.Currency,
			Status:          domain.CommissionStatus(doc.Data.Status),
			SettledAt:       utcPtr(doc.Data.SettledAt),
			CreatedAt:       doc.Data.CreatedAt.UTC(),
			UpdatedAt:       doc.Data.UpdatedAt.UTC(),
		}
		if amounts.err != nil {
			return nil, fmt.Errorf("commission %s: %w", doc.ID, amounts.err)
		}
		records = append(records, record)
	}
	return records, nil
}
