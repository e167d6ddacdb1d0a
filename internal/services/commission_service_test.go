package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
)

func TestCommissionServiceSettle(t *testing.T) {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	longAgo := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-5 * 24 * time.Hour)

	orders := map[string]domain.Order{
		"ord_old":       {ID: "ord_old", Status: domain.OrderStatusDelivered, DeliveredAt: &longAgo},
		"ord_recent":    {ID: "ord_recent", Status: domain.OrderStatusDelivered, DeliveredAt: &recent},
		"ord_cancelled": {ID: "ord_cancelled", Status: domain.OrderStatusCancelled},
		"ord_shipped":   {ID: "ord_shipped", Status: domain.OrderStatusShipped},
	}
	findCalls := 0
	orderRepo := &stubOrderRepo{findFn: func(_ context.Context, id string) (domain.Order, error) {
		findCalls++
		order, ok := orders[id]
		if !ok {
			return domain.Order{}, fakeRepositoryError{notFound: true}
		}
		return order, nil
	}}

	var seenLimit int
	updates := map[string]domain.CommissionRecord{}
	commissionRepo := &stubCommissionRepo{
		listByStatusFn: func(_ context.Context, status domain.CommissionStatus, limit int) ([]domain.CommissionRecord, error) {
			if status != domain.CommissionStatusPending {
				t.Fatalf("expected pending scan, got %s", status)
			}
			seenLimit = limit
			return []domain.CommissionRecord{
				{ID: "com_1", OrderID: "ord_old", Status: domain.CommissionStatusPending},
				{ID: "com_2", OrderID: "ord_old", Status: domain.CommissionStatusPending},
				{ID: "com_3", OrderID: "ord_recent", Status: domain.CommissionStatusPending},
				{ID: "com_4", OrderID: "ord_cancelled", Status: domain.CommissionStatusPending},
				{ID: "com_5", OrderID: "ord_shipped", Status: domain.CommissionStatusPending},
				{ID: "com_6", OrderID: "ord_gone", Status: domain.CommissionStatusPending},
			}, nil
		},
		updateFn: func(_ context.Context, record domain.CommissionRecord, expected domain.CommissionStatus) error {
			if expected != domain.CommissionStatusPending {
				t.Fatalf("expected compare-and-set on pending, got %s", expected)
			}
			updates[record.ID] = record
			return nil
		},
	}

	logger := &captureLogger{}
	svc, err := NewCommissionService(CommissionServiceDeps{
		Commissions: commissionRepo,
		Orders:      orderRepo,
		Clock:       func() time.Time { return now },
		Logger:      logger.log,
	})
	if err != nil {
		t.Fatalf("new commission service: %v", err)
	}

	result, err := svc.Settle(context.Background(), SettleCommissionsCommand{Limit: 5000})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if seenLimit != maxSettlementBatch {
		t.Fatalf("expected limit clamped to %d, got %d", maxSettlementBatch, seenLimit)
	}
	if result.Scanned != 6 || result.Settled != 2 || result.Voided != 1 || result.Skipped != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.RanAt.Equal(now) {
		t.Fatalf("unexpected ranAt %s", result.RanAt)
	}
	if findCalls != 5 {
		t.Fatalf("expected one order lookup per distinct order, got %d", findCalls)
	}
	if rec := updates["com_1"]; rec.Status != domain.CommissionStatusSettled || rec.SettledAt == nil || !rec.SettledAt.Equal(now) {
		t.Fatalf("unexpected settled record %+v", rec)
	}
	if rec := updates["com_4"]; rec.Status != domain.CommissionStatusVoid || rec.SettledAt != nil {
		t.Fatalf("unexpected voided record %+v", rec)
	}
	if _, ok := updates["com_3"]; ok {
		t.Fatalf("commission inside the return window must stay pending")
	}
	if !logger.has("commission.settle.order.failed") || !logger.has("commission.settle.completed") {
		t.Fatalf("expected settle events to be logged, got %v", logger.events)
	}
}

func TestCommissionServiceSettleSkipsLostRaces(t *testing.T) {
	delivered := time.Now().Add(-60 * 24 * time.Hour)
	svc, err := NewCommissionService(CommissionServiceDeps{
		Commissions: &stubCommissionRepo{
			listByStatusFn: func(context.Context, domain.CommissionStatus, int) ([]domain.CommissionRecord, error) {
				return []domain.CommissionRecord{{ID: "com_1", OrderID: "ord_1", Status: domain.CommissionStatusPending}}, nil
			},
			updateFn: func(context.Context, domain.CommissionRecord, domain.CommissionStatus) error {
				return fakeRepositoryError{conflict: true}
			},
		},
		Orders: &stubOrderRepo{findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusDelivered, DeliveredAt: &delivered}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new commission service: %v", err)
	}

	result, err := svc.Settle(context.Background(), SettleCommissionsCommand{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Settled != 0 || result.Skipped != 1 {
		t.Fatalf("expected conflicting update to be skipped, got %+v", result)
	}
}
