package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/payments"
)

type orderFixture struct {
	svc           OrderService
	ledger        *docLedger
	products      *stubProductRepo
	orders        *stubOrderRepo
	items         *stubOrderItemRepo
	numbers       *stubOrderNumberRepo
	fulfillments  *stubFulfillmentRepo
	commissions   *stubCommissionRepo
	notifications *captureNotifications
	logger        *captureLogger

	mu                  sync.Mutex
	insertedItems       []domain.OrderItem
	insertedFulfillment []domain.FulfillmentRecord
	insertedCommission  []domain.CommissionRecord
}

type orderFixtureOption func(*OrderServiceDeps)

func newOrderFixture(t *testing.T, now time.Time, opts ...orderFixtureOption) *orderFixture {
	t.Helper()
	f := &orderFixture{
		ledger: &docLedger{},
		products: &stubProductRepo{products: map[string]domain.Product{
			"P1": {ID: "P1", Status: domain.ProductStatusActive, VirtualStoreID: "V1", PhysicalStoreID: "S1", Name: "Ceramic mug", SKU: "MUG-1", Currency: "USD", BasePrice: decimal.NewFromInt(700), Price: decimal.NewFromInt(1000), Commission: decimal.NewFromInt(100)},
			"P2": {ID: "P2", Status: domain.ProductStatusActive, VirtualStoreID: "V1", PhysicalStoreID: "S2", Name: "Linen towel", SKU: "TWL-2", Currency: "USD", BasePrice: decimal.NewFromInt(300), Price: decimal.NewFromInt(500), Commission: decimal.NewFromInt(50)},
			"P3": {ID: "P3", Status: domain.ProductStatusActive, VirtualStoreID: "V1", PhysicalStoreID: "S1", Name: "Teapot", SKU: "POT-3", Currency: "USD", Price: decimal.NewFromInt(50), Commission: decimal.NewFromInt(5)},
			"P9": {ID: "P9", Status: "archived", VirtualStoreID: "V1", PhysicalStoreID: "S1", Currency: "USD", Price: decimal.NewFromInt(10)},
			"PX": {ID: "PX", Status: domain.ProductStatusActive, VirtualStoreID: "V2", PhysicalStoreID: "S3", Currency: "USD", Price: decimal.NewFromInt(10)},
		}},
		notifications: &captureNotifications{},
		logger:        &captureLogger{},
	}

	f.orders = &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			f.ledger.create("orders/" + order.ID)
			return nil
		},
		deleteFn: func(_ context.Context, id string) error {
			f.ledger.remove("orders/" + id)
			return nil
		},
	}
	f.items = &stubOrderItemRepo{
		insertFn: func(_ context.Context, item domain.OrderItem) error {
			f.mu.Lock()
			f.insertedItems = append(f.insertedItems, item)
			f.mu.Unlock()
			f.ledger.create("orderItems/" + item.ID)
			return nil
		},
		deleteFn: func(_ context.Context, id string) error {
			f.ledger.remove("orderItems/" + id)
			return nil
		},
	}
	f.numbers = &stubOrderNumberRepo{
		reserveFn: func(_ context.Context, number, _ string) error {
			f.ledger.create("orderNumbers/" + number)
			return nil
		},
		releaseFn: func(_ context.Context, number string) error {
			f.ledger.remove("orderNumbers/" + number)
			return nil
		},
	}
	f.fulfillments = &stubFulfillmentRepo{
		insertFn: func(_ context.Context, record domain.FulfillmentRecord) error {
			f.mu.Lock()
			f.insertedFulfillment = append(f.insertedFulfillment, record)
			f.mu.Unlock()
			f.ledger.create("fulfillments/" + record.ID)
			return nil
		},
		deleteFn: func(_ context.Context, id string) error {
			f.ledger.remove("fulfillments/" + id)
			return nil
		},
	}
	f.commissions = &stubCommissionRepo{
		insertFn: func(_ context.Context, record domain.CommissionRecord) error {
			f.mu.Lock()
			f.insertedCommission = append(f.insertedCommission, record)
			f.mu.Unlock()
			f.ledger.create("commissions/" + record.ID)
			return nil
		},
		deleteFn: func(_ context.Context, id string) error {
			f.ledger.remove("commissions/" + id)
			return nil
		},
	}

	resolver, err := NewPricingResolver(f.products)
	if err != nil {
		t.Fatalf("new pricing resolver: %v", err)
	}

	deps := OrderServiceDeps{
		Orders:        f.orders,
		Items:         f.items,
		OrderNumbers:  f.numbers,
		Fulfillments:  f.fulfillments,
		Commissions:   f.commissions,
		Pricing:       resolver,
		Notifications: f.notifications,
		Clock:         func() time.Time { return now },
		IDGenerator:   sequenceIDs(),
		Random:        func(int) int { return 42 },
		Logger:        f.logger.log,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	f.svc = svc
	return f
}

func scenarioACommand() CreateOrderCommand {
	return CreateOrderCommand{
		Actor:          Actor{ID: "cust-1"},
		CustomerID:     "cust-1",
		Customer:       CustomerSnapshot{Name: "Ada", Email: "ada@example.com"},
		VirtualStoreID: "V1",
		Currency:       "usd",
		Subtotal:       decimal.NewFromInt(2000),
		Total:          decimal.NewFromInt(2000),
		ShippingAddress: Address{
			Recipient: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "us",
		},
		PaymentMethod: "card",
		DeliveryType:  "standard",
		Items: []CartItem{
			{ProductID: "P1", Quantity: 1},
			{ProductID: "P2", Quantity: 2},
		},
	}
}

func TestOrderServiceCreateSplitsOrderPerPhysicalStore(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	detail, err := f.svc.Create(context.Background(), scenarioACommand())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	order := detail.Order
	if order.ID != "ord_ID001" {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if want := fmt.Sprintf("ORD%d0042", now.UnixMilli()); order.OrderNumber != want {
		t.Fatalf("expected order number %s got %s", want, order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING got %s", order.Status)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending || order.StatusHistory[0].Actor != "cust-1" {
		t.Fatalf("unexpected history %+v", order.StatusHistory)
	}
	if !order.Subtotal.Equal(decimal.NewFromInt(2000)) || !order.Total.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected totals %s / %s", order.Subtotal, order.Total)
	}
	if order.Currency != "USD" || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected currency/payment %s %s", order.Currency, order.PaymentStatus)
	}
	if order.ShippingAddressText != "Ada, 1 Main St, Springfield 12345, US" {
		t.Fatalf("unexpected address text %q", order.ShippingAddressText)
	}

	if len(detail.Items) != 2 || len(f.insertedItems) != 2 {
		t.Fatalf("expected 2 items got %d (inserted %d)", len(detail.Items), len(f.insertedItems))
	}
	for _, item := range detail.Items {
		if item.OrderID != order.ID {
			t.Fatalf("item %s not linked to order", item.ID)
		}
	}

	if len(detail.Fulfillments) != 2 || len(detail.Commissions) != 2 {
		t.Fatalf("expected 2 fulfillments and 2 commissions got %d/%d", len(detail.Fulfillments), len(detail.Commissions))
	}
	byStore := map[string]FulfillmentRecord{}
	for _, record := range detail.Fulfillments {
		byStore[record.PhysicalStoreID] = record
		if record.Status != domain.FulfillmentStatusPending || record.VirtualStoreID != "V1" {
			t.Fatalf("unexpected fulfillment %+v", record)
		}
	}
	if byStore["S1"].ItemCount != 1 || !byStore["S1"].Value.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected S1 share %+v", byStore["S1"])
	}
	if byStore["S2"].ItemCount != 2 || !byStore["S2"].Value.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected S2 share %+v", byStore["S2"])
	}

	for _, commission := range detail.Commissions {
		if commission.Status != domain.CommissionStatusPending {
			t.Fatalf("expected pending commission got %s", commission.Status)
		}
		if !commission.Amount.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("expected commission 100 for %s got %s", commission.PhysicalStoreID, commission.Amount)
		}
		if !commission.OrderValue.Equal(byStore[commission.PhysicalStoreID].Value) {
			t.Fatalf("commission order value does not match fulfillment value for %s", commission.PhysicalStoreID)
		}
	}

	if len(f.notifications.created) != 1 {
		t.Fatalf("expected one order-created notification got %d", len(f.notifications.created))
	}
	if leftovers := f.ledger.leftovers(); len(leftovers) != 1+1+2+2+2 {
		t.Fatalf("expected all documents kept, got %v", leftovers)
	}
}

func TestOrderServiceCreateSplitCoversEveryItem(t *testing.T) {
	f := newOrderFixture(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	cmd := scenarioACommand()
	cmd.Items = append(cmd.Items, CartItem{ProductID: "P3", Quantity: 4})
	cmd.Subtotal = decimal.NewFromInt(2200)
	cmd.Total = decimal.NewFromInt(2200)

	detail, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	items := 0
	value := decimal.Zero
	for _, record := range detail.Fulfillments {
		items += record.ItemCount
		value = value.Add(record.Value)
	}
	if items != 7 {
		t.Fatalf("expected fulfillment item counts to sum to 7 got %d", items)
	}
	if !value.Equal(detail.Order.Subtotal) {
		t.Fatalf("fulfillment values %s do not sum to subtotal %s", value, detail.Order.Subtotal)
	}
	for _, commission := range detail.Commissions {
		if commission.PhysicalStoreID == "S1" && !commission.Amount.Equal(decimal.NewFromInt(120)) {
			t.Fatalf("expected S1 commission 100+4*5=120 got %s", commission.Amount)
		}
	}
}

func TestOrderServiceCreateRejectsSubtotalMismatchBeforeWriting(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	f.orders.insertFn = func(context.Context, domain.Order) error {
		t.Fatalf("order must not be written")
		return nil
	}
	f.numbers.reserveFn = func(context.Context, string, string) error {
		t.Fatalf("order number must not be reserved")
		return nil
	}

	cmd := scenarioACommand()
	cmd.Items = []CartItem{{ProductID: "P3", Quantity: 3}}
	cmd.Subtotal = decimal.NewFromInt(100)
	cmd.Total = decimal.NewFromInt(100)

	_, err := f.svc.Create(context.Background(), cmd)
	if !errors.Is(err, ErrOrderSubtotalMismatch) {
		t.Fatalf("expected subtotal mismatch got %v", err)
	}
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input category got %v", err)
	}
	if !strings.Contains(err.Error(), "declared 100, items sum to 150") {
		t.Fatalf("expected reason to name both amounts, got %q", err.Error())
	}
}

func TestOrderServiceCreateIgnoresClientSuppliedPricing(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	cmd := scenarioACommand()
	cmd.Items = []CartItem{{
		ProductID:       "P1",
		Quantity:        1,
		Price:           decimal.NewFromInt(1),
		Commission:      decimal.Zero,
		Name:            "Free mug",
		PhysicalStoreID: "S-evil",
	}}
	cmd.Subtotal = decimal.NewFromInt(1)
	cmd.Total = decimal.NewFromInt(1)

	if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderSubtotalMismatch) {
		t.Fatalf("expected tampered subtotal to be rejected got %v", err)
	}

	cmd.Subtotal = decimal.NewFromInt(1000)
	cmd.Total = decimal.NewFromInt(1000)
	detail, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	item := detail.Items[0]
	if !item.SellingPrice.Equal(decimal.NewFromInt(1000)) || item.Name != "Ceramic mug" || item.PhysicalStoreID != "S1" {
		t.Fatalf("expected catalog values, got %+v", item)
	}
	if !item.Commission.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected catalog commission got %s", item.Commission)
	}
}

func TestOrderServiceCreateRollsBackEveryWriteOnFailure(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	f.commissions.insertFn = func(_ context.Context, record domain.CommissionRecord) error {
		if record.PhysicalStoreID == "S2" {
			return fakeRepositoryError{unavailable: true}
		}
		f.ledger.create("commissions/" + record.ID)
		return nil
	}

	_, err := f.svc.Create(context.Background(), scenarioACommand())
	if !errors.Is(err, ErrOrderCreateFailed) {
		t.Fatalf("expected create failed got %v", err)
	}
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected cause to be preserved got %v", err)
	}
	if leftovers := f.ledger.leftovers(); len(leftovers) != 0 {
		t.Fatalf("expected rollback to remove every document, left %v", leftovers)
	}
	if len(f.ledger.created) < 5 {
		t.Fatalf("expected writes before the failure, got %v", f.ledger.created)
	}
	if !f.logger.has("order.create.rollback") {
		t.Fatalf("expected rollback to be logged")
	}
	if len(f.notifications.created) != 0 {
		t.Fatalf("no notification expected for a failed order")
	}
}

func TestOrderServiceCreateRollbackContinuesPastFailedInverse(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	f.items.deleteFn = func(context.Context, string) error { return errBoom }
	f.fulfillments.insertFn = func(context.Context, domain.FulfillmentRecord) error { return errBoom }

	_, err := f.svc.Create(context.Background(), scenarioACommand())
	if !errors.Is(err, ErrOrderCreateFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("expected original error wrapped, got %v", err)
	}
	leftovers := f.ledger.leftovers()
	for _, key := range leftovers {
		if !strings.HasPrefix(key, "orderItems/") {
			t.Fatalf("only items with failing inverses should remain, found %s", key)
		}
	}
	if len(leftovers) != 2 {
		t.Fatalf("expected 2 stranded items got %v", leftovers)
	}
	if fields := f.logger.fieldsOf("order.create.rollback"); fields == nil || fields["failed"] != 2 {
		t.Fatalf("expected rollback log to count 2 failed inverses, got %v", fields)
	}
}

func TestOrderServiceCreateTracksSiblingWritesAfterFailure(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	failed := make(chan struct{})
	f.items.insertFn = func(ctx context.Context, item domain.OrderItem) error {
		if item.ProductID == "P2" {
			defer close(failed)
			return fakeRepositoryError{unavailable: true}
		}
		<-failed
		select {
		case <-ctx.Done():
			// The write reached the store but the caller saw a cancellation.
			f.ledger.create("orderItems/" + item.ID)
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		f.ledger.create("orderItems/" + item.ID)
		return nil
	}

	_, err := f.svc.Create(context.Background(), scenarioACommand())
	if !errors.Is(err, ErrOrderCreateFailed) {
		t.Fatalf("expected create failed got %v", err)
	}
	if leftovers := f.ledger.leftovers(); len(leftovers) != 0 {
		t.Fatalf("expected the sibling item to be rolled back, left %v", leftovers)
	}
}

func TestOrderServiceCreateRetriesOrderNumberCollision(t *testing.T) {
	attempts := 0
	suffixes := []int{7, 8}
	f := newOrderFixture(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), func(deps *OrderServiceDeps) {
		deps.Random = func(int) int {
			v := suffixes[0]
			suffixes = suffixes[1:]
			return v
		}
	})
	f.numbers.reserveFn = func(_ context.Context, number, _ string) error {
		attempts++
		if attempts == 1 {
			return fakeRepositoryError{conflict: true}
		}
		return nil
	}

	detail, err := f.svc.Create(context.Background(), scenarioACommand())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 reservation attempts got %d", attempts)
	}
	if !strings.HasSuffix(detail.Order.OrderNumber, "0008") {
		t.Fatalf("expected second suffix, got %s", detail.Order.OrderNumber)
	}
	if !regexp.MustCompile(`^ORD\d{13}\d{4}$`).MatchString(detail.Order.OrderNumber) {
		t.Fatalf("unexpected order number format %s", detail.Order.OrderNumber)
	}
	if !f.logger.has("order.number.collision") {
		t.Fatalf("expected collision to be logged")
	}
}

func TestOrderServiceCreateRejectsUnknownAndInactiveProducts(t *testing.T) {
	f := newOrderFixture(t, time.Now())

	cmd := scenarioACommand()
	cmd.Items = []CartItem{{ProductID: "missing", Quantity: 1}}
	if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderProductNotFound) || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected product not found naming the product, got %v", err)
	}

	cmd.Items = []CartItem{{ProductID: "P9", Quantity: 1}}
	if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderProductUnavailable) {
		t.Fatalf("expected inactive product rejection, got %v", err)
	}

	cmd.Items = []CartItem{{ProductID: "PX", Quantity: 1}}
	if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderProductUnavailable) {
		t.Fatalf("expected foreign store product rejection, got %v", err)
	}
}

func TestOrderServiceCreateRejectsOrdersForOtherCustomers(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	cmd := scenarioACommand()
	cmd.CustomerID = "cust-2"
	if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected permission denied got %v", err)
	}
}

type stubPaymentLookup struct {
	details payments.Details
	err     error
}

func (s stubPaymentLookup) Lookup(context.Context, string) (payments.Details, error) {
	return s.details, s.err
}

func TestOrderServiceCreateRecordsPaymentStatus(t *testing.T) {
	f := newOrderFixture(t, time.Now(), func(deps *OrderServiceDeps) {
		deps.Payments = stubPaymentLookup{details: payments.Details{IntentID: "pi_1", Status: payments.StatusSucceeded, Amount: 200000, Currency: "usd"}}
	})
	cmd := scenarioACommand()
	cmd.PaymentReference = "pi_1"

	detail, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if detail.Order.PaymentStatus != string(payments.StatusSucceeded) || detail.Order.PaymentReference != "pi_1" {
		t.Fatalf("unexpected payment fields %s %s", detail.Order.PaymentStatus, detail.Order.PaymentReference)
	}
	if f.logger.has("order.payment.amount_mismatch") {
		t.Fatalf("amount matches, no mismatch expected")
	}

	unknown := newOrderFixture(t, time.Now(), func(deps *OrderServiceDeps) {
		deps.Payments = stubPaymentLookup{err: payments.ErrIntentNotFound}
	})
	if _, err := unknown.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderPaymentNotRecognised) {
		t.Fatalf("expected unrecognised payment error got %v", err)
	}
}

func TestOrderServiceTransitionStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)
	f.orders.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, VirtualStoreID: "V1", CustomerID: "cust-1", Status: domain.OrderStatusPending, OrderDate: now.Add(-time.Hour)}, nil
	}
	var (
		updated  domain.Order
		expected domain.OrderStatus
	)
	f.orders.updateFn = func(_ context.Context, order domain.Order, exp domain.OrderStatus) error {
		updated, expected = order, exp
		return nil
	}

	vendor := Actor{ID: "owner-1", StoreIDs: []string{"V1"}}
	order, err := f.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "processing", Actor: vendor})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing || updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING got %s", order.Status)
	}
	if expected != domain.OrderStatusPending {
		t.Fatalf("expected compare-and-set on PENDING got %s", expected)
	}
	last := updated.StatusHistory[len(updated.StatusHistory)-1]
	if last.Status != domain.OrderStatusProcessing || !last.Timestamp.Equal(now) || last.Actor != "owner-1" {
		t.Fatalf("unexpected history entry %+v", last)
	}
	if len(f.notifications.statusChanges) != 1 {
		t.Fatalf("expected status notification")
	}

	if _, err := f.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "SHIPPED", Actor: vendor}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid transition PENDING → SHIPPED got %v", err)
	}
	if _, err := f.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "PROCESSING", Actor: Actor{ID: "cust-1"}}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected customers to be denied got %v", err)
	}
	if _, err := f.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "LOST", Actor: vendor}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected unknown status rejection got %v", err)
	}
}

func TestOrderServiceTransitionToDeliveredStampsDeliveredAt(t *testing.T) {
	now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)
	f.orders.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, VirtualStoreID: "V1", Status: domain.OrderStatusShipped}, nil
	}
	f.orders.updateFn = func(_ context.Context, _ domain.Order, _ domain.OrderStatus) error { return nil }

	order, err := f.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "DELIVERED", Actor: Actor{ID: "op", Operator: true}})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.DeliveredAt == nil || !order.DeliveredAt.Equal(now) {
		t.Fatalf("expected deliveredAt %s got %v", now, order.DeliveredAt)
	}
}

func TestOrderServiceTransitionConflict(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	f.orders.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, VirtualStoreID: "V1", Status: domain.OrderStatusPending}, nil
	}
	f.orders.updateFn = func(context.Context, domain.Order, domain.OrderStatus) error {
		return fakeRepositoryError{conflict: true}
	}
	_, err := f.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "PROCESSING", Actor: Actor{ID: "op", Operator: true}})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestOrderServiceCancelWindows(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		status  domain.OrderStatus
		age     time.Duration
		actor   Actor
		wantErr error
		reason  string
	}{
		{name: "pending within 24h", status: domain.OrderStatusPending, age: 23 * time.Hour, actor: Actor{ID: "cust-1"}},
		{name: "pending after 24h", status: domain.OrderStatusPending, age: 25 * time.Hour, actor: Actor{ID: "cust-1"}, wantErr: ErrOrderWindowExpired, reason: "24 hours limit for PENDING orders"},
		{name: "processing within 2h", status: domain.OrderStatusProcessing, age: 90 * time.Minute, actor: Actor{ID: "cust-1"}},
		{name: "processing after 3h", status: domain.OrderStatusProcessing, age: 3 * time.Hour, actor: Actor{ID: "cust-1"}, wantErr: ErrOrderWindowExpired, reason: "2 hours limit for PROCESSING orders"},
		{name: "shipped", status: domain.OrderStatusShipped, age: time.Minute, actor: Actor{ID: "cust-1"}, wantErr: ErrOrderInvalidState},
		{name: "other customer", status: domain.OrderStatusPending, age: time.Minute, actor: Actor{ID: "cust-2"}, wantErr: ErrOrderPermissionDenied},
		{name: "operator outside window", status: domain.OrderStatusProcessing, age: 30 * time.Hour, actor: Actor{ID: "op", Operator: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t, now)
			f.orders.findFn = func(_ context.Context, id string) (domain.Order, error) {
				return domain.Order{ID: id, CustomerID: "cust-1", VirtualStoreID: "V1", Status: tc.status, OrderDate: now.Add(-tc.age)}, nil
			}

			order, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", Actor: tc.actor, Reason: "changed <b>mind</b>"})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v got %v", tc.wantErr, err)
				}
				if tc.reason != "" && !strings.Contains(err.Error(), tc.reason) {
					t.Fatalf("expected reason %q in %q", tc.reason, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if order.Status != domain.OrderStatusCancelled || order.CancelledAt == nil {
				t.Fatalf("expected cancelled order got %+v", order)
			}
			if order.CancelReason != "changed mind" {
				t.Fatalf("expected sanitised reason got %q", order.CancelReason)
			}
		})
	}
}

func TestOrderServiceCancelCascadesToRecords(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)
	f.orders.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, CustomerID: "cust-1", VirtualStoreID: "V1", Status: domain.OrderStatusPending, OrderDate: now.Add(-time.Hour)}, nil
	}
	f.fulfillments.listByOrderFn = func(context.Context, string) ([]domain.FulfillmentRecord, error) {
		return []domain.FulfillmentRecord{
			{ID: "ful_1", Status: domain.FulfillmentStatusPending},
			{ID: "ful_2", Status: domain.FulfillmentStatusReady},
			{ID: "ful_3", Status: domain.FulfillmentStatusCompleted},
		}, nil
	}
	cancelled := map[string]domain.FulfillmentStatus{}
	f.fulfillments.updateFn = func(_ context.Context, record domain.FulfillmentRecord, expected domain.FulfillmentStatus) error {
		if record.Status != domain.FulfillmentStatusCancelled {
			t.Fatalf("expected cancellation got %s", record.Status)
		}
		cancelled[record.ID] = expected
		return nil
	}
	f.commissions.listByOrderFn = func(context.Context, string) ([]domain.CommissionRecord, error) {
		return []domain.CommissionRecord{{ID: "com_1", Status: domain.CommissionStatusPending}}, nil
	}
	var voided []string
	f.commissions.updateFn = func(_ context.Context, record domain.CommissionRecord, _ domain.CommissionStatus) error {
		if record.Status == domain.CommissionStatusVoid {
			voided = append(voided, record.ID)
		}
		return nil
	}

	if _, err := f.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", Actor: Actor{ID: "cust-1"}}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(cancelled) != 2 || cancelled["ful_1"] != domain.FulfillmentStatusPending || cancelled["ful_2"] != domain.FulfillmentStatusReady {
		t.Fatalf("unexpected cancelled records %v", cancelled)
	}
	if len(voided) != 1 || voided[0] != "com_1" {
		t.Fatalf("expected commission voided got %v", voided)
	}
}

func TestOrderServiceGetChecksAccess(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	f.orders.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, CustomerID: "cust-1", VirtualStoreID: "V1"}, nil
	}
	f.items.listFn = func(context.Context, string) ([]domain.OrderItem, error) {
		return []domain.OrderItem{{ID: "itm_1"}}, nil
	}
	f.commissions.listByOrderFn = func(context.Context, string) ([]domain.CommissionRecord, error) {
		return []domain.CommissionRecord{{ID: "com_1"}}, nil
	}

	detail, err := f.svc.Get(context.Background(), Actor{ID: "cust-1"}, "ord_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Items) != 1 || detail.Commissions != nil {
		t.Fatalf("unexpected detail for customer %+v", detail)
	}

	detail, err = f.svc.Get(context.Background(), Actor{ID: "op", Operator: true}, "ord_1")
	if err != nil {
		t.Fatalf("get as operator: %v", err)
	}
	if len(detail.Commissions) != 1 {
		t.Fatalf("operators should see commissions")
	}

	if _, err := f.svc.Get(context.Background(), Actor{ID: "stranger"}, "ord_1"); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected permission denied got %v", err)
	}

	f.orders.findFn = nil
	if _, err := f.svc.Get(context.Background(), Actor{ID: "cust-1"}, "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestOrderServiceListScopesCustomers(t *testing.T) {
	f := newOrderFixture(t, time.Now())
	var seen OrderListFilter
	f.orders.listFn = func(_ context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
		seen = filter
		return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "ord_1"}}, NextPageToken: "next"}, nil
	}

	page, err := f.svc.List(context.Background(), Actor{ID: "cust-1"}, OrderListFilter{VirtualStoreID: "V9"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if seen.CustomerID != "cust-1" || seen.VirtualStoreID != "" {
		t.Fatalf("expected customer scope got %+v", seen)
	}
	if page.NextPageToken != "next" {
		t.Fatalf("expected page token passthrough")
	}

	if _, err := f.svc.List(context.Background(), Actor{ID: "cust-1"}, OrderListFilter{CustomerID: "cust-2"}); !errors.Is(err, ErrOrderPermissionDenied) {
		t.Fatalf("expected permission denied got %v", err)
	}

	if _, err := f.svc.List(context.Background(), Actor{ID: "owner", StoreIDs: []string{"V1"}}, OrderListFilter{VirtualStoreID: "V1"}); err != nil {
		t.Fatalf("list as store owner: %v", err)
	}
	if seen.VirtualStoreID != "V1" || seen.CustomerID != "" {
		t.Fatalf("expected store scope got %+v", seen)
	}
}

func TestNewOrderServiceRequiresDependencies(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error for missing repositories")
	}
}
