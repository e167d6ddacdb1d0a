package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
)

// memFulfillments is a small in-memory record set with compare-and-set updates.
type memFulfillments struct {
	mu      sync.Mutex
	records map[string]domain.FulfillmentRecord
	order   []string
}

func newMemFulfillments(records ...domain.FulfillmentRecord) *memFulfillments {
	m := &memFulfillments{records: map[string]domain.FulfillmentRecord{}}
	for _, record := range records {
		m.records[record.ID] = record
		m.order = append(m.order, record.ID)
	}
	return m
}

func (m *memFulfillments) repo() *stubFulfillmentRepo {
	return &stubFulfillmentRepo{
		findFn: func(_ context.Context, id string) (domain.FulfillmentRecord, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			record, ok := m.records[id]
			if !ok {
				return domain.FulfillmentRecord{}, fakeRepositoryError{notFound: true}
			}
			return record, nil
		},
		updateFn: func(_ context.Context, record domain.FulfillmentRecord, expected domain.FulfillmentStatus) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.records[record.ID].Status != expected {
				return fakeRepositoryError{conflict: true}
			}
			m.records[record.ID] = record
			return nil
		},
		listByOrderFn: func(_ context.Context, orderID string) ([]domain.FulfillmentRecord, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			var out []domain.FulfillmentRecord
			for _, id := range m.order {
				if m.records[id].OrderID == orderID {
					out = append(out, m.records[id])
				}
			}
			return out, nil
		},
	}
}

type fulfillmentFixture struct {
	svc           FulfillmentService
	records       *memFulfillments
	orders        *stubOrderRepo
	order         domain.Order
	orderUpdates  int
	notifications *captureNotifications
	logger        *captureLogger
}

func newFulfillmentFixture(t *testing.T, orderStatus domain.OrderStatus, statuses ...domain.FulfillmentStatus) *fulfillmentFixture {
	t.Helper()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	f := &fulfillmentFixture{
		order:         domain.Order{ID: "ord_1", CustomerID: "cust-1", VirtualStoreID: "V1", Status: orderStatus},
		notifications: &captureNotifications{},
		logger:        &captureLogger{},
	}
	var records []domain.FulfillmentRecord
	for i, status := range statuses {
		records = append(records, domain.FulfillmentRecord{
			ID:              "ful_" + string(rune('1'+i)),
			OrderID:         "ord_1",
			PhysicalStoreID: "S" + string(rune('1'+i)),
			VirtualStoreID:  "V1",
			Status:          status,
		})
	}
	f.records = newMemFulfillments(records...)

	var mu sync.Mutex
	f.orders = &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			mu.Lock()
			defer mu.Unlock()
			return f.order, nil
		},
		updateFn: func(_ context.Context, order domain.Order, expected domain.OrderStatus) error {
			mu.Lock()
			defer mu.Unlock()
			if f.order.Status != expected {
				return fakeRepositoryError{conflict: true}
			}
			f.order = order
			f.orderUpdates++
			return nil
		},
	}

	svc, err := NewFulfillmentService(FulfillmentServiceDeps{
		Fulfillments:  f.records.repo(),
		Orders:        f.orders,
		Notifications: f.notifications,
		Clock:         func() time.Time { return now },
		Logger:        f.logger.log,
	})
	if err != nil {
		t.Fatalf("new fulfillment service: %v", err)
	}
	f.svc = svc
	return f
}

func TestFulfillmentServiceThirdCompletionShipsOrder(t *testing.T) {
	f := newFulfillmentFixture(t, domain.OrderStatusProcessing,
		domain.FulfillmentStatusReady, domain.FulfillmentStatusReady, domain.FulfillmentStatusReady)
	operator := Actor{ID: "op", Operator: true}

	for i, id := range []string{"ful_1", "ful_2"} {
		record, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: id, Status: "completed", Actor: operator})
		if err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
		if record.CompletedAt == nil {
			t.Fatalf("expected completedAt on %s", id)
		}
		if f.order.Status != domain.OrderStatusProcessing {
			t.Fatalf("order shipped after %d of 3 completions", i+1)
		}
	}

	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_3", Status: "COMPLETED", Actor: operator}); err != nil {
		t.Fatalf("complete ful_3: %v", err)
	}
	if f.order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected SHIPPED after last completion got %s", f.order.Status)
	}
	if f.orderUpdates != 1 {
		t.Fatalf("expected a single order update got %d", f.orderUpdates)
	}
	last := f.order.StatusHistory[len(f.order.StatusHistory)-1]
	if last.Status != domain.OrderStatusShipped || last.Note != "all fulfillments completed" {
		t.Fatalf("unexpected history entry %+v", last)
	}
	if len(f.notifications.fulfillments) != 3 || len(f.notifications.statusChanges) != 1 {
		t.Fatalf("unexpected notifications %+v", f.notifications)
	}
}

func TestFulfillmentServiceAggregationFromPendingOrder(t *testing.T) {
	f := newFulfillmentFixture(t, domain.OrderStatusPending, domain.FulfillmentStatusReady)
	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "completed", Actor: Actor{ID: "vendor", StoreIDs: []string{"S1"}}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected SHIPPED got %s", f.order.Status)
	}
	if n := len(f.order.StatusHistory); n != 2 || f.order.StatusHistory[0].Status != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING then SHIPPED history got %+v", f.order.StatusHistory)
	}
}

func TestFulfillmentServiceConcurrentFinalCompletionsShipOnce(t *testing.T) {
	f := newFulfillmentFixture(t, domain.OrderStatusProcessing, domain.FulfillmentStatusReady, domain.FulfillmentStatusReady)
	operator := Actor{ID: "op", Operator: true}

	var wg sync.WaitGroup
	for _, id := range []string{"ful_1", "ful_2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: id, Status: "completed", Actor: operator}); err != nil {
				t.Errorf("complete %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	if f.order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected SHIPPED got %s", f.order.Status)
	}
	if f.orderUpdates != 1 {
		t.Fatalf("expected exactly one order transition got %d", f.orderUpdates)
	}
}

func TestFulfillmentServiceRejectsInvalidTransitions(t *testing.T) {
	f := newFulfillmentFixture(t, domain.OrderStatusProcessing, domain.FulfillmentStatusPending, domain.FulfillmentStatusCompleted)
	operator := Actor{ID: "op", Operator: true}

	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "completed", Actor: operator}); !errors.Is(err, ErrFulfillmentInvalidState) {
		t.Fatalf("expected pending → completed to be rejected, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_2", Status: "cancelled", Actor: operator}); !errors.Is(err, ErrFulfillmentInvalidState) {
		t.Fatalf("expected completed to be terminal, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "shipped", Actor: operator}); !errors.Is(err, ErrFulfillmentInvalidInput) {
		t.Fatalf("expected unknown status rejected, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_9", Status: "processing", Actor: operator}); !errors.Is(err, ErrFulfillmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	record, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "pending", Actor: operator})
	if err != nil || record.Status != domain.FulfillmentStatusPending {
		t.Fatalf("expected same-status update to be a no-op, got %v", err)
	}
	if len(f.notifications.fulfillments) != 0 {
		t.Fatalf("no-op must not notify")
	}
}

func TestFulfillmentServiceEnforcesStoreOwnership(t *testing.T) {
	f := newFulfillmentFixture(t, domain.OrderStatusProcessing, domain.FulfillmentStatusPending, domain.FulfillmentStatusPending)

	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "processing", Actor: Actor{ID: "v2", StoreIDs: []string{"S2"}}}); !errors.Is(err, ErrFulfillmentPermissionDenied) {
		t.Fatalf("expected permission denied got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "processing", Actor: Actor{ID: "v1", StoreIDs: []string{"S1"}}}); err != nil {
		t.Fatalf("owner update: %v", err)
	}

	visible, err := f.svc.ListByOrder(context.Background(), Actor{ID: "v2", StoreIDs: []string{"S2"}}, "ord_1")
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(visible) != 1 || visible[0].PhysicalStoreID != "S2" {
		t.Fatalf("vendor should only see own record, got %+v", visible)
	}
	all, err := f.svc.ListByOrder(context.Background(), Actor{ID: "cust-1"}, "ord_1")
	if err != nil || len(all) != 2 {
		t.Fatalf("customer should see all records, got %d (%v)", len(all), err)
	}
	if _, err := f.svc.ListByOrder(context.Background(), Actor{ID: "stranger"}, "ord_1"); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected permission denied got %v", err)
	}

	if _, err := f.svc.ListByStore(context.Background(), Actor{ID: "v1", StoreIDs: []string{"S1"}}, FulfillmentListFilter{PhysicalStoreID: "S2"}); !errors.Is(err, ErrFulfillmentPermissionDenied) {
		t.Fatalf("expected list permission denied got %v", err)
	}
}

func TestFulfillmentServiceAggregationFailureIsLogged(t *testing.T) {
	f := newFulfillmentFixture(t, domain.OrderStatusProcessing, domain.FulfillmentStatusReady)
	f.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{}, fakeRepositoryError{unavailable: true}
	}

	if _, err := f.svc.UpdateStatus(context.Background(), FulfillmentStatusCommand{FulfillmentID: "ful_1", Status: "completed", Actor: Actor{ID: "op", Operator: true}}); err != nil {
		t.Fatalf("completion should succeed even if aggregation fails: %v", err)
	}
	if !f.logger.has("fulfillment.aggregate.failed") {
		t.Fatalf("expected aggregation failure to be logged")
	}
}
