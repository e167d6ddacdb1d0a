package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/repositories"
)

type fakeRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepositoryError) Error() string {
	parts := []string{"repository error"}
	switch {
	case e.notFound:
		parts = append(parts, "(not found)")
	case e.conflict:
		parts = append(parts, "(conflict)")
	case e.unavailable:
		parts = append(parts, "(unavailable)")
	}
	return strings.Join(parts, " ")
}

func (e fakeRepositoryError) IsNotFound() bool    { return e.notFound }
func (e fakeRepositoryError) IsConflict() bool    { return e.conflict }
func (e fakeRepositoryError) IsUnavailable() bool { return e.unavailable }

// docLedger records document creates and deletes across stubs so tests can
// assert that a rollback removed everything it created.
type docLedger struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (l *docLedger) create(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, key)
}

func (l *docLedger) remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = append(l.deleted, key)
}

func (l *docLedger) leftovers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	gone := make(map[string]int)
	for _, key := range l.deleted {
		gone[key]++
	}
	var remaining []string
	for _, key := range l.created {
		if gone[key] > 0 {
			gone[key]--
			continue
		}
		remaining = append(remaining, key)
	}
	sort.Strings(remaining)
	return remaining
}

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order, domain.OrderStatus) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order, expected)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, fakeRepositoryError{notFound: true}
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubOrderItemRepo struct {
	insertFn func(context.Context, domain.OrderItem) error
	deleteFn func(context.Context, string) error
	listFn   func(context.Context, string) ([]domain.OrderItem, error)
}

func (s *stubOrderItemRepo) Insert(ctx context.Context, item domain.OrderItem) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	return nil
}

func (s *stubOrderItemRepo) Delete(ctx context.Context, itemID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, itemID)
	}
	return nil
}

func (s *stubOrderItemRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubOrderNumberRepo struct {
	reserveFn func(context.Context, string, string) error
	releaseFn func(context.Context, string) error
}

func (s *stubOrderNumberRepo) Reserve(ctx context.Context, number, orderID string, _ time.Time) error {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, number, orderID)
	}
	return nil
}

func (s *stubOrderNumberRepo) Release(ctx context.Context, number string) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, number)
	}
	return nil
}

type stubFulfillmentRepo struct {
	insertFn      func(context.Context, domain.FulfillmentRecord) error
	updateFn      func(context.Context, domain.FulfillmentRecord, domain.FulfillmentStatus) error
	deleteFn      func(context.Context, string) error
	findFn        func(context.Context, string) (domain.FulfillmentRecord, error)
	listByOrderFn func(context.Context, string) ([]domain.FulfillmentRecord, error)
	listByStoreFn func(context.Context, repositories.FulfillmentListFilter) (domain.CursorPage[domain.FulfillmentRecord], error)
}

func (s *stubFulfillmentRepo) Insert(ctx context.Context, record domain.FulfillmentRecord) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, record)
	}
	return nil
}

func (s *stubFulfillmentRepo) Update(ctx context.Context, record domain.FulfillmentRecord, expected domain.FulfillmentStatus) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, record, expected)
	}
	return nil
}

func (s *stubFulfillmentRepo) Delete(ctx context.Context, recordID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, recordID)
	}
	return nil
}

func (s *stubFulfillmentRepo) FindByID(ctx context.Context, recordID string) (domain.FulfillmentRecord, error) {
	if s.findFn != nil {
		return s.findFn(ctx, recordID)
	}
	return domain.FulfillmentRecord{}, fakeRepositoryError{notFound: true}
}

func (s *stubFulfillmentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.FulfillmentRecord, error) {
	if s.listByOrderFn != nil {
		return s.listByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubFulfillmentRepo) ListByStore(ctx context.Context, filter repositories.FulfillmentListFilter) (domain.CursorPage[domain.FulfillmentRecord], error) {
	if s.listByStoreFn != nil {
		return s.listByStoreFn(ctx, filter)
	}
	return domain.CursorPage[domain.FulfillmentRecord]{}, nil
}

type stubCommissionRepo struct {
	insertFn       func(context.Context, domain.CommissionRecord) error
	updateFn       func(context.Context, domain.CommissionRecord, domain.CommissionStatus) error
	deleteFn       func(context.Context, string) error
	listByOrderFn  func(context.Context, string) ([]domain.CommissionRecord, error)
	listByStatusFn func(context.Context, domain.CommissionStatus, int) ([]domain.CommissionRecord, error)
}

func (s *stubCommissionRepo) Insert(ctx context.Context, record domain.CommissionRecord) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, record)
	}
	return nil
}

func (s *stubCommissionRepo) Update(ctx context.Context, record domain.CommissionRecord, expected domain.CommissionStatus) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, record, expected)
	}
	return nil
}

func (s *stubCommissionRepo) Delete(ctx context.Context, recordID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, recordID)
	}
	return nil
}

func (s *stubCommissionRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.CommissionRecord, error) {
	if s.listByOrderFn != nil {
		return s.listByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubCommissionRepo) ListByStatus(ctx context.Context, status domain.CommissionStatus, limit int) ([]domain.CommissionRecord, error) {
	if s.listByStatusFn != nil {
		return s.listByStatusFn(ctx, status, limit)
	}
	return nil, nil
}

type stubReturnRepo struct {
	insertFn func(context.Context, domain.ReturnRequest) error
	listFn   func(context.Context, string) ([]domain.ReturnRequest, error)
}

func (s *stubReturnRepo) Insert(ctx context.Context, request domain.ReturnRequest) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, request)
	}
	return nil
}

func (s *stubReturnRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
	calls    int
}

func (s *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, fakeRepositoryError{notFound: true}
	}
	return product, nil
}

func (s *stubProductRepo) set(productID string, mutate func(*domain.Product)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product := s.products[productID]
	mutate(&product)
	s.products[productID] = product
}

type stubStoreRepo struct {
	insertFn func(context.Context, domain.Store) error
	updateFn func(context.Context, domain.Store) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Store, error)
}

func (s *stubStoreRepo) Insert(ctx context.Context, store domain.Store) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, store)
	}
	return nil
}

func (s *stubStoreRepo) Update(ctx context.Context, store domain.Store) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, store)
	}
	return nil
}

func (s *stubStoreRepo) Delete(ctx context.Context, storeID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, storeID)
	}
	return nil
}

func (s *stubStoreRepo) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if s.findFn != nil {
		return s.findFn(ctx, storeID)
	}
	return domain.Store{}, fakeRepositoryError{notFound: true}
}

type stubStoreTeamRepo struct {
	insertFn func(context.Context, domain.StoreTeam) error
	updateFn func(context.Context, domain.StoreTeam) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.StoreTeam, error)
}

func (s *stubStoreTeamRepo) Insert(ctx context.Context, team domain.StoreTeam) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, team)
	}
	return nil
}

func (s *stubStoreTeamRepo) Update(ctx context.Context, team domain.StoreTeam) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, team)
	}
	return nil
}

func (s *stubStoreTeamRepo) Delete(ctx context.Context, teamID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, teamID)
	}
	return nil
}

func (s *stubStoreTeamRepo) FindByID(ctx context.Context, teamID string) (domain.StoreTeam, error) {
	if s.findFn != nil {
		return s.findFn(ctx, teamID)
	}
	return domain.StoreTeam{}, fakeRepositoryError{notFound: true}
}

// captureNotifications records lifecycle callbacks.
type captureNotifications struct {
	mu            sync.Mutex
	created       []OrderDetail
	statusChanges []OrderStatus
	fulfillments  []FulfillmentStatus
}

func (c *captureNotifications) OrderCreated(_ context.Context, detail OrderDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, detail)
}

func (c *captureNotifications) OrderStatusChanged(_ context.Context, order Order, _ OrderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusChanges = append(c.statusChanges, order.Status)
}

func (c *captureNotifications) FulfillmentStatusChanged(_ context.Context, record FulfillmentRecord, _ FulfillmentStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fulfillments = append(c.fulfillments, record.Status)
}

// captureLogger records logged event names.
type captureLogger struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.fields = append(c.fields, fields)
}

// fieldsOf returns the fields of the last event with the given name.
func (c *captureLogger) fieldsOf(event string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i] == event {
			return c.fields[i]
		}
	}
	return nil
}

func (c *captureLogger) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

// sequenceIDs returns deterministic, goroutine-safe ids.
func sequenceIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("ID%03d", n)
	}
}

var errBoom = errors.New("boom")
