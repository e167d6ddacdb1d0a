package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/repositories"
)

var (
	// ErrFulfillmentInvalidInput signals the caller provided invalid data.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")
	// ErrFulfillmentNotFound indicates the record could not be located.
	ErrFulfillmentNotFound = errors.New("fulfillment: not found")
	// ErrFulfillmentPermissionDenied indicates the actor does not operate the fulfilling store.
	ErrFulfillmentPermissionDenied = errors.New("fulfillment: permission denied")
	// ErrFulfillmentInvalidState indicates an invalid status transition was attempted.
	ErrFulfillmentInvalidState = errors.New("fulfillment: invalid status transition")
	// ErrFulfillmentConflict indicates a concurrent update won the race.
	ErrFulfillmentConflict = errors.New("fulfillment: conflict")
	// ErrFulfillmentUnavailable indicates the backing store could not be reached.
	ErrFulfillmentUnavailable = errors.New("fulfillment: repository unavailable")
)

var fulfillmentStateTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	domain.FulfillmentStatusPending:    {domain.FulfillmentStatusProcessing, domain.FulfillmentStatusCancelled},
	domain.FulfillmentStatusProcessing: {domain.FulfillmentStatusReady, domain.FulfillmentStatusCancelled},
	domain.FulfillmentStatusReady:      {domain.FulfillmentStatusCompleted, domain.FulfillmentStatusCancelled},
}

// FulfillmentServiceDeps bundles collaborators required to construct the fulfillment service.
type FulfillmentServiceDeps struct {
	Fulfillments  repositories.FulfillmentRepository
	Orders        repositories.OrderRepository
	Notifications NotificationService
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	fulfillments  repositories.FulfillmentRepository
	orders        repositories.OrderRepository
	notifications NotificationService
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewFulfillmentService wires dependencies into a concrete FulfillmentService implementation.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Fulfillments == nil {
		return nil, errors.New("fulfillment service: fulfillment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &fulfillmentService{
		fulfillments:  deps.Fulfillments,
		orders:        deps.Orders,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *fulfillmentService) UpdateStatus(ctx context.Context, cmd FulfillmentStatusCommand) (FulfillmentRecord, error) {
	recordID := strings.TrimSpace(cmd.FulfillmentID)
	if recordID == "" {
		return FulfillmentRecord{}, fmt.Errorf("%w: fulfillment id is required", ErrFulfillmentInvalidInput)
	}
	target := FulfillmentStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if !isFulfillmentStatus(target) {
		return FulfillmentRecord{}, fmt.Errorf("%w: unknown status %q", ErrFulfillmentInvalidInput, cmd.Status)
	}

	record, err := s.fulfillments.FindByID(ctx, recordID)
	if err != nil {
		return FulfillmentRecord{}, s.mapRepositoryError(err)
	}
	if !cmd.Actor.Operator && !cmd.Actor.ownsStore(record.PhysicalStoreID) {
		return FulfillmentRecord{}, ErrFulfillmentPermissionDenied
	}

	previous := record.Status
	if previous == target {
		return record, nil
	}
	if !slices.Contains(fulfillmentStateTransitions[previous], target) {
		return FulfillmentRecord{}, fmt.Errorf("%w: %s → %s", ErrFulfillmentInvalidState, previous, target)
	}

	now := s.clock()
	record.Status = target
	record.UpdatedAt = now
	if target == domain.FulfillmentStatusCompleted {
		record.CompletedAt = &now
	}
	if err := s.fulfillments.Update(ctx, record, previous); err != nil {
		return FulfillmentRecord{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "fulfillment.status.changed", map[string]any{
		"fulfillmentId": record.ID,
		"orderId":       record.OrderID,
		"from":          string(previous),
		"to":            string(target),
		"actor":         cmd.Actor.ID,
	})
	if s.notifications != nil {
		s.notifications.FulfillmentStatusChanged(context.WithoutCancel(ctx), record, previous)
	}

	if target == domain.FulfillmentStatusCompleted {
		if err := s.aggregateOrder(ctx, record.OrderID, cmd.Actor.ID); err != nil {
			s.logger(ctx, "fulfillment.aggregate.failed", map[string]any{
				"orderId": record.OrderID,
				"error":   err.Error(),
			})
		}
	}
	return record, nil
}

// aggregateOrder ships the order once every fulfillment record is completed.
// The records are re-read after the caller's own write, so of two concurrent
// final completions at least one observes the full set; the order update is a
// status compare-and-set and applies once.
func (s *fulfillmentService) aggregateOrder(ctx context.Context, orderID, actor string) error {
	records, err := s.fulfillments.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !allCompleted(records) {
		return nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	previous := order.Status
	if previous != domain.OrderStatusPending && previous != domain.OrderStatusProcessing {
		return nil
	}

	now := s.clock()
	note := "all fulfillments completed"
	if previous == domain.OrderStatusPending {
		if err := applyStatusTransition(&order, domain.OrderStatusProcessing, actor, note, now); err != nil {
			return err
		}
	}
	if err := applyStatusTransition(&order, domain.OrderStatusShipped, actor, note, now); err != nil {
		return err
	}

	if err := s.orders.Update(ctx, order, previous); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			s.logger(ctx, "fulfillment.aggregate.skipped", map[string]any{
				"orderId": orderID,
				"reason":  "order changed concurrently",
			})
			return nil
		}
		return err
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"actor":   actor,
	})
	if s.notifications != nil {
		s.notifications.OrderStatusChanged(context.WithoutCancel(ctx), order, previous)
	}
	return nil
}

func (s *fulfillmentService) ListByOrder(ctx context.Context, actor Actor, orderID string) ([]FulfillmentRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}

	records, err := s.fulfillments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	if canReadOrder(actor, order) {
		return records, nil
	}
	// Vendors only see their own share of an order.
	visible := make([]FulfillmentRecord, 0, len(records))
	for _, record := range records {
		if actor.ownsStore(record.PhysicalStoreID) {
			visible = append(visible, record)
		}
	}
	if len(visible) == 0 {
		return nil, ErrOrderPermissionDenied
	}
	return visible, nil
}

func (s *fulfillmentService) ListByStore(ctx context.Context, actor Actor, filter FulfillmentListFilter) (domain.CursorPage[FulfillmentRecord], error) {
	filter.PhysicalStoreID = strings.TrimSpace(filter.PhysicalStoreID)
	if filter.PhysicalStoreID == "" {
		return domain.CursorPage[FulfillmentRecord]{}, fmt.Errorf("%w: store id is required", ErrFulfillmentInvalidInput)
	}
	if !actor.Operator && !actor.ownsStore(filter.PhysicalStoreID) {
		return domain.CursorPage[FulfillmentRecord]{}, ErrFulfillmentPermissionDenied
	}
	for _, status := range filter.Status {
		if !isFulfillmentStatus(status) {
			return domain.CursorPage[FulfillmentRecord]{}, fmt.Errorf("%w: unknown status %q", ErrFulfillmentInvalidInput, status)
		}
	}

	page, err := s.fulfillments.ListByStore(ctx, filter)
	if err != nil {
		return domain.CursorPage[FulfillmentRecord]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *fulfillmentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrFulfillmentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrFulfillmentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
		}
	}

	return err
}

func allCompleted(records []FulfillmentRecord) bool {
	if len(records) == 0 {
		return false
	}
	for _, record := range records {
		if record.Status != domain.FulfillmentStatusCompleted {
			return false
		}
	}
	return true
}

func isFulfillmentStatus(status FulfillmentStatus) bool {
	switch status {
	case domain.FulfillmentStatusPending,
		domain.FulfillmentStatusProcessing,
		domain.FulfillmentStatusReady,
		domain.FulfillmentStatusCompleted,
		domain.FulfillmentStatusCancelled:
		return true
	}
	return false
}
