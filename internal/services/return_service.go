package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/platform/textutil"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const (
	returnIDPrefix       = "ret_"
	maxDescriptionLength = 2000
)

var (
	// ErrReturnInvalidInput signals the caller provided invalid data.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnInvalidState indicates the order is not in a returnable status.
	ErrReturnInvalidState = errors.New("return: order not returnable")
	// ErrReturnWindowExpired indicates the return period after delivery has passed.
	ErrReturnWindowExpired = errors.New("return: return window expired")
	// ErrReturnConflict indicates a return already exists for the order.
	ErrReturnConflict = errors.New("return: already requested")
)

// ReturnServiceDeps bundles collaborators required to construct the return service.
type ReturnServiceDeps struct {
	Returns     repositories.ReturnRequestRepository
	Orders      repositories.OrderRepository
	Policy      OrderPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	returns repositories.ReturnRequestRepository
	orders  repositories.OrderRepository
	policy  OrderPolicy
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewReturnService wires dependencies into a concrete ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &returnService{
		returns: deps.Returns,
		orders:  deps.Orders,
		policy:  deps.Policy.withDefaults(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *returnService) Request(ctx context.Context, cmd ReturnRequestCommand) (ReturnRequest, error) {
	reason := textutil.SanitizeText(cmd.Reason, maxReasonLength)
	if reason == "" {
		return ReturnRequest{}, fmt.Errorf("%w: reason is required", ErrReturnInvalidInput)
	}
	description := textutil.SanitizeText(cmd.Description, maxDescriptionLength)

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return ReturnRequest{}, err
	}
	if order.CustomerID != cmd.Actor.ID && !cmd.Actor.Operator {
		return ReturnRequest{}, ErrOrderPermissionDenied
	}

	now := s.clock()
	if err := s.policy.CheckReturn(order, now); err != nil {
		return ReturnRequest{}, err
	}

	existing, err := s.returns.ListByOrder(ctx, order.ID)
	if err != nil {
		return ReturnRequest{}, mapOrderRepositoryError(err)
	}
	for _, prior := range existing {
		if prior.Status == domain.ReturnStatusPending {
			return ReturnRequest{}, fmt.Errorf("%w: %s", ErrReturnConflict, prior.ID)
		}
	}

	request := ReturnRequest{
		ID:             returnIDPrefix + s.newID(),
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		VirtualStoreID: order.VirtualStoreID,
		Reason:         reason,
		Description:    description,
		Status:         domain.ReturnStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.returns.Insert(ctx, request); err != nil {
		return ReturnRequest{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.return.requested", map[string]any{
		"orderId":  order.ID,
		"returnId": request.ID,
		"actor":    cmd.Actor.ID,
	})
	return request, nil
}

func (s *returnService) List(ctx context.Context, actor Actor, orderID string) ([]ReturnRequest, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canReadOrder(actor, order) {
		return nil, ErrOrderPermissionDenied
	}
	requests, err := s.returns.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	return requests, nil
}

func (s *returnService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}
