package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const (
	defaultSettlementBatch = 200
	maxSettlementBatch     = 1000
)

// CommissionServiceDeps bundles collaborators required to construct the commission service.
type CommissionServiceDeps struct {
	Commissions repositories.CommissionRepository
	Orders      repositories.OrderRepository
	Policy      OrderPolicy
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type commissionService struct {
	commissions repositories.CommissionRepository
	orders      repositories.OrderRepository
	policy      OrderPolicy
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewCommissionService wires dependencies into a concrete CommissionService implementation.
func NewCommissionService(deps CommissionServiceDeps) (CommissionService, error) {
	if deps.Commissions == nil {
		return nil, errors.New("commission service: commission repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("commission service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &commissionService{
		commissions: deps.Commissions,
		orders:      deps.Orders,
		policy:      deps.Policy.withDefaults(),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Settle marks pending commission as settled once the order's return window
// has closed, and voids pending commission left behind on cancelled orders.
func (s *commissionService) Settle(ctx context.Context, cmd SettleCommissionsCommand) (SettlementResult, error) {
	limit := cmd.Limit
	switch {
	case limit <= 0:
		limit = defaultSettlementBatch
	case limit > maxSettlementBatch:
		limit = maxSettlementBatch
	}

	now := s.clock()
	result := SettlementResult{RanAt: now}
	pending, err := s.commissions.ListByStatus(ctx, domain.CommissionStatusPending, limit)
	if err != nil {
		return result, mapOrderRepositoryError(err)
	}
	result.Scanned = len(pending)

	cutoff := s.policy.SettlementCutoff(now)
	orders := make(map[string]Order)
	for _, record := range pending {
		order, ok := orders[record.OrderID]
		if !ok {
			order, err = s.orders.FindByID(ctx, record.OrderID)
			if err != nil {
				s.logger(ctx, "commission.settle.order.failed", map[string]any{
					"commissionId": record.ID,
					"orderId":      record.OrderID,
					"error":        err.Error(),
				})
				result.Skipped++
				continue
			}
			orders[record.OrderID] = order
		}

		var next domain.CommissionStatus
		switch {
		case order.Status == domain.OrderStatusCancelled:
			next = domain.CommissionStatusVoid
		case order.Status == domain.OrderStatusDelivered && deliveredAt(order).Before(cutoff):
			next = domain.CommissionStatusSettled
		default:
			result.Skipped++
			continue
		}

		record.Status = next
		record.UpdatedAt = now
		if next == domain.CommissionStatusSettled {
			record.SettledAt = &now
		}
		if err := s.commissions.Update(ctx, record, domain.CommissionStatusPending); err != nil {
			s.logger(ctx, "commission.settle.update.failed", map[string]any{
				"commissionId": record.ID,
				"error":        err.Error(),
			})
			result.Skipped++
			continue
		}
		if next == domain.CommissionStatusSettled {
			result.Settled++
		} else {
			result.Voided++
		}
	}

	s.logger(ctx, "commission.settle.completed", map[string]any{
		"scanned": result.Scanned,
		"settled": result.Settled,
		"voided":  result.Voided,
		"skipped": result.Skipped,
	})
	return result, nil
}

func deliveredAt(order Order) time.Time {
	if order.DeliveredAt != nil {
		return *order.DeliveredAt
	}
	return order.UpdatedAt
}
