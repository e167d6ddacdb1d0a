package services

import (
	"fmt"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
)

// OrderPolicy holds the customer-facing time windows.
type OrderPolicy struct {
	PendingCancelWindow    time.Duration
	ProcessingCancelWindow time.Duration
	ReturnWindow           time.Duration
}

// DefaultOrderPolicy returns the standard marketplace windows.
func DefaultOrderPolicy() OrderPolicy {
	return OrderPolicy{
		PendingCancelWindow:    24 * time.Hour,
		ProcessingCancelWindow: 2 * time.Hour,
		ReturnWindow:           30 * 24 * time.Hour,
	}
}

func (p OrderPolicy) withDefaults() OrderPolicy {
	def := DefaultOrderPolicy()
	if p.PendingCancelWindow <= 0 {
		p.PendingCancelWindow = def.PendingCancelWindow
	}
	if p.ProcessingCancelWindow <= 0 {
		p.ProcessingCancelWindow = def.ProcessingCancelWindow
	}
	if p.ReturnWindow <= 0 {
		p.ReturnWindow = def.ReturnWindow
	}
	return p
}

// CheckCustomerCancel reports whether a customer may still cancel order at now.
func (p OrderPolicy) CheckCustomerCancel(order Order, now time.Time) error {
	var window time.Duration
	switch order.Status {
	case domain.OrderStatusPending:
		window = p.PendingCancelWindow
	case domain.OrderStatusProcessing:
		window = p.ProcessingCancelWindow
	default:
		return fmt.Errorf("%w: %s orders cannot be cancelled", ErrOrderInvalidState, order.Status)
	}
	if now.Sub(order.OrderDate) > window {
		return fmt.Errorf("%w: %s limit for %s orders", ErrOrderWindowExpired, formatWindow(window), order.Status)
	}
	return nil
}

// CheckReturn reports whether order can still be returned at now.
func (p OrderPolicy) CheckReturn(order Order, now time.Time) error {
	if order.Status != domain.OrderStatusDelivered {
		return fmt.Errorf("%w: only DELIVERED orders can be returned, order is %s", ErrReturnInvalidState, order.Status)
	}
	delivered := order.UpdatedAt
	if order.DeliveredAt != nil {
		delivered = *order.DeliveredAt
	}
	if now.Sub(delivered) > p.ReturnWindow {
		return fmt.Errorf("%w: %s limit after delivery", ErrReturnWindowExpired, formatWindow(p.ReturnWindow))
	}
	return nil
}

// SettlementCutoff is the delivery time before which commission can be settled.
func (p OrderPolicy) SettlementCutoff(now time.Time) time.Time {
	return now.Add(-p.ReturnWindow)
}

func formatWindow(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d > day && d%day == 0:
		return plural(int64(d/day), "day")
	case d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	default:
		return plural(int64(d/time.Minute), "minute")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
