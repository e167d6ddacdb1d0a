package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/payments"
	"github.com/vendorhub/marketplace/internal/platform/rollback"
	"github.com/vendorhub/marketplace/internal/platform/textutil"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const (
	orderIDPrefix       = "ord_"
	orderItemIDPrefix   = "itm_"
	fulfillmentIDPrefix = "ful_"
	commissionIDPrefix  = "com_"

	defaultOrderNumberPrefix = "ORD"
	orderNumberAttempts      = 5
	orderNumberSuffixSpace   = 10000

	maxNotesLength  = 1000
	maxReasonLength = 500
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderPermissionDenied indicates the actor may not access the order.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderWindowExpired indicates a cancellation arrived too late.
	ErrOrderWindowExpired = errors.New("order: cancellation window expired")
	// ErrOrderCreateFailed wraps any write-phase failure of checkout after rollback.
	ErrOrderCreateFailed = errors.New("order: create failed")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store could not be reached.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

// PaymentStatusLookup reads the state of an external payment reference.
type PaymentStatusLookup interface {
	Lookup(ctx context.Context, intentID string) (payments.Details, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Items         repositories.OrderItemRepository
	OrderNumbers  repositories.OrderNumberRepository
	Fulfillments  repositories.FulfillmentRepository
	Commissions   repositories.CommissionRepository
	Pricing       *PricingResolver
	Payments      PaymentStatusLookup
	Notifications NotificationService
	Policy        OrderPolicy
	NumberPrefix  string
	Clock         func() time.Time
	IDGenerator   func() string
	Random        func(n int) int
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	items         repositories.OrderItemRepository
	numbers       repositories.OrderNumberRepository
	fulfillments  repositories.FulfillmentRepository
	commissions   repositories.CommissionRepository
	pricing       *PricingResolver
	payments      PaymentStatusLookup
	notifications NotificationService
	policy        OrderPolicy
	numberPrefix  string
	clock         func() time.Time
	newID         func() string
	random        func(int) int
	logger        func(context.Context, string, map[string]any)
}

// storeShare is one physical store's slice of an order.
type storeShare struct {
	PhysicalStoreID string
	Items           []OrderItem
	ItemCount       int
	Value           decimal.Decimal
	Commission      decimal.Decimal
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Items == nil:
		return nil, errors.New("order service: order item repository is required")
	case deps.OrderNumbers == nil:
		return nil, errors.New("order service: order number repository is required")
	case deps.Fulfillments == nil:
		return nil, errors.New("order service: fulfillment repository is required")
	case deps.Commissions == nil:
		return nil, errors.New("order service: commission repository is required")
	case deps.Pricing == nil:
		return nil, errors.New("order service: pricing resolver is required")
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

	random := deps.Random
	if random == nil {
		random = rand.IntN
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}

	return &orderService{
		orders:        deps.Orders,
		items:         deps.Items,
		numbers:       deps.OrderNumbers,
		fulfillments:  deps.Fulfillments,
		commissions:   deps.Commissions,
		pricing:       deps.Pricing,
		payments:      deps.Payments,
		notifications: deps.Notifications,
		policy:        deps.Policy.withDefaults(),
		numberPrefix:  prefix,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		random: random,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (OrderDetail, error) {
	cmd, err := normaliseCreateCommand(cmd)
	if err != nil {
		return OrderDetail{}, err
	}

	priced, err := s.pricing.Resolve(ctx, cmd)
	if err != nil {
		return OrderDetail{}, err
	}
	if err := ValidateOrder(cmd, priced); err != nil {
		return OrderDetail{}, err
	}

	paymentStatus, err := s.paymentStatus(ctx, cmd, priced.Total)
	if err != nil {
		return OrderDetail{}, err
	}

	now := s.now()
	order := Order{
		ID:                  orderIDPrefix + s.newID(),
		CustomerID:          cmd.CustomerID,
		Customer:            cmd.Customer,
		VirtualStoreID:      cmd.VirtualStoreID,
		Currency:            cmd.Currency,
		Subtotal:            priced.Subtotal,
		Shipping:            cmd.Shipping,
		Tax:                 cmd.Tax,
		Discount:            cmd.Discount,
		Total:               priced.Total,
		ShippingAddress:     cmd.ShippingAddress,
		ShippingAddressText: formatAddress(cmd.ShippingAddress),
		PaymentMethod:       cmd.PaymentMethod,
		PaymentStatus:       paymentStatus,
		PaymentReference:    cmd.PaymentReference,
		DeliveryType:        cmd.DeliveryType,
		Status:              domain.OrderStatusPending,
		StatusHistory: []domain.StatusHistoryEntry{{
			Status:    domain.OrderStatusPending,
			Timestamp: now,
			Actor:     cmd.Actor.ID,
			Note:      "order placed",
		}},
		OrderDate: now,
		Notes:     cmd.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	detail, err := s.writeAggregate(ctx, order, priced.Items)
	if err != nil {
		return OrderDetail{}, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":      detail.Order.ID,
		"orderNumber":  detail.Order.OrderNumber,
		"items":        len(detail.Items),
		"fulfillments": len(detail.Fulfillments),
		"total":        detail.Order.Total.String(),
	})

	if s.notifications != nil {
		s.notifications.OrderCreated(context.WithoutCancel(ctx), detail)
	}
	return detail, nil
}

// writeAggregate persists the order, its items and the per-store records.
// Every successful write is tracked and undone if a later write fails.
func (s *orderService) writeAggregate(ctx context.Context, order Order, priced []OrderItem) (detail OrderDetail, err error) {
	tracker := rollback.New(s.logger)
	defer func() {
		if err == nil {
			tracker.Discard()
			return
		}
		failed := tracker.Rollback(ctx)
		s.logger(ctx, "order.create.rollback", map[string]any{
			"orderId": order.ID,
			"failed":  failed,
			"error":   err.Error(),
		})
		err = fmt.Errorf("%w: %w", ErrOrderCreateFailed, err)
	}()

	number, err := s.reserveOrderNumber(ctx, tracker, order.ID, order.CreatedAt)
	if err != nil {
		return OrderDetail{}, err
	}
	order.OrderNumber = number

	if err := s.orders.Insert(ctx, order); err != nil {
		return OrderDetail{}, s.mapRepositoryError(err)
	}
	tracker.Track(rollback.KindDocument, "orders/"+order.ID, func(ctx context.Context) error {
		return s.orders.Delete(ctx, order.ID)
	})

	items := make([]OrderItem, len(priced))
	for i, item := range priced {
		item.ID = orderItemIDPrefix + s.newID()
		item.OrderID = order.ID
		item.CreatedAt = order.CreatedAt
		items[i] = item
	}

	// Siblings keep the parent context so a write that commits is always tracked.
	var itemGroup errgroup.Group
	for _, item := range items {
		itemGroup.Go(func() error {
			if err := s.items.Insert(ctx, item); err != nil {
				return s.mapRepositoryError(err)
			}
			tracker.Track(rollback.KindDocument, "orderItems/"+item.ID, func(ctx context.Context) error {
				return s.items.Delete(ctx, item.ID)
			})
			return nil
		})
	}
	if err := itemGroup.Wait(); err != nil {
		return OrderDetail{}, err
	}

	shares := splitByPhysicalStore(items)
	fulfillments := make([]FulfillmentRecord, len(shares))
	commissions := make([]CommissionRecord, len(shares))
	for i, share := range shares {
		fulfillments[i] = FulfillmentRecord{
			ID:              fulfillmentIDPrefix + s.newID(),
			OrderID:         order.ID,
			PhysicalStoreID: share.PhysicalStoreID,
			VirtualStoreID:  order.VirtualStoreID,
			Status:          domain.FulfillmentStatusPending,
			ItemCount:       share.ItemCount,
			Value:           share.Value,
			Currency:        order.Currency,
			CreatedAt:       order.CreatedAt,
			UpdatedAt:       order.CreatedAt,
		}
		commissions[i] = CommissionRecord{
			ID:              commissionIDPrefix + s.newID(),
			OrderID:         order.ID,
			VirtualStoreID:  order.VirtualStoreID,
			PhysicalStoreID: share.PhysicalStoreID,
			Amount:          share.Commission,
			OrderValue:      share.Value,
			Currency:        order.Currency,
			Status:          domain.CommissionStatusPending,
			CreatedAt:       order.CreatedAt,
			UpdatedAt:       order.CreatedAt,
		}
	}

	var shareGroup errgroup.Group
	for i := range shares {
		fulfillment, commission := fulfillments[i], commissions[i]
		shareGroup.Go(func() error {
			if err := s.fulfillments.Insert(ctx, fulfillment); err != nil {
				return s.mapRepositoryError(err)
			}
			tracker.Track(rollback.KindDocument, "fulfillments/"+fulfillment.ID, func(ctx context.Context) error {
				return s.fulfillments.Delete(ctx, fulfillment.ID)
			})
			if err := s.commissions.Insert(ctx, commission); err != nil {
				return s.mapRepositoryError(err)
			}
			tracker.Track(rollback.KindDocument, "commissions/"+commission.ID, func(ctx context.Context) error {
				return s.commissions.Delete(ctx, commission.ID)
			})
			return nil
		})
	}
	if err := shareGroup.Wait(); err != nil {
		return OrderDetail{}, err
	}

	return OrderDetail{
		Order:        order,
		Items:        items,
		Fulfillments: fulfillments,
		Commissions:  commissions,
	}, nil
}

func (s *orderService) Get(ctx context.Context, actor Actor, orderID string) (OrderDetail, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	if !canReadOrder(actor, order) {
		return OrderDetail{}, ErrOrderPermissionDenied
	}

	items, err := s.items.ListByOrder(ctx, order.ID)
	if err != nil {
		return OrderDetail{}, s.mapRepositoryError(err)
	}
	fulfillments, err := s.fulfillments.ListByOrder(ctx, order.ID)
	if err != nil {
		return OrderDetail{}, s.mapRepositoryError(err)
	}

	detail := OrderDetail{Order: order, Items: items, Fulfillments: fulfillments}
	if actor.Operator {
		commissions, err := s.commissions.ListByOrder(ctx, order.ID)
		if err != nil {
			return OrderDetail{}, s.mapRepositoryError(err)
		}
		detail.Commissions = commissions
	}
	return detail, nil
}

func (s *orderService) List(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.VirtualStoreID = strings.TrimSpace(filter.VirtualStoreID)

	switch {
	case actor.Operator:
	case filter.VirtualStoreID != "" && actor.ownsStore(filter.VirtualStoreID):
	default:
		if filter.CustomerID != "" && filter.CustomerID != actor.ID {
			return domain.CursorPage[Order]{}, ErrOrderPermissionDenied
		}
		filter.CustomerID = actor.ID
		filter.VirtualStoreID = ""
	}

	for _, status := range filter.Status {
		if _, ok := orderStatusLookup[status]; !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target, ok := parseOrderStatus(cmd.TargetStatus)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown target status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !cmd.Actor.Operator && !cmd.Actor.ownsStore(order.VirtualStoreID) {
		return Order{}, ErrOrderPermissionDenied
	}

	note := textutil.SanitizeText(cmd.Note, maxReasonLength)
	if target == domain.OrderStatusCancelled {
		return s.cancel(ctx, order, cmd.Actor.ID, note)
	}

	previous := order.Status
	now := s.now()
	if err := applyStatusTransition(&order, target, cmd.Actor.ID, note, now); err != nil {
		return Order{}, err
	}
	if err := s.orders.Update(ctx, order, previous); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"actor":   cmd.Actor.ID,
	})
	if s.notifications != nil {
		s.notifications.OrderStatusChanged(context.WithoutCancel(ctx), order, previous)
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	staff := cmd.Actor.Operator || cmd.Actor.ownsStore(order.VirtualStoreID)
	if !staff && order.CustomerID != cmd.Actor.ID {
		return Order{}, ErrOrderPermissionDenied
	}

	if !staff {
		if err := s.policy.CheckCustomerCancel(order, s.now()); err != nil {
			return Order{}, err
		}
	}

	return s.cancel(ctx, order, cmd.Actor.ID, textutil.SanitizeText(cmd.Reason, maxReasonLength))
}

// cancel moves order to CANCELLED, then cancels its open fulfillment records
// and voids pending commission. Cascade failures are logged; the order stays cancelled.
func (s *orderService) cancel(ctx context.Context, order Order, actor, reason string) (Order, error) {
	previous := order.Status
	now := s.now()

	order.CancelReason = reason
	if err := applyStatusTransition(&order, domain.OrderStatusCancelled, actor, reason, now); err != nil {
		return Order{}, err
	}
	if err := s.orders.Update(ctx, order, previous); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.cascadeCancellation(ctx, order, now)

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"actor":   actor,
	})
	if s.notifications != nil {
		s.notifications.OrderStatusChanged(context.WithoutCancel(ctx), order, previous)
	}
	return order, nil
}

func (s *orderService) cascadeCancellation(ctx context.Context, order Order, now time.Time) {
	records, err := s.fulfillments.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "order.cancel.cascade.failed", map[string]any{
			"orderId": order.ID,
			"stage":   "fulfillments",
			"error":   err.Error(),
		})
	}
	for _, record := range records {
		if record.Status.IsTerminal() {
			continue
		}
		expected := record.Status
		record.Status = domain.FulfillmentStatusCancelled
		record.UpdatedAt = now
		if err := s.fulfillments.Update(ctx, record, expected); err != nil {
			s.logger(ctx, "order.cancel.cascade.failed", map[string]any{
				"orderId":       order.ID,
				"fulfillmentId": record.ID,
				"error":         err.Error(),
			})
		}
	}

	commissions, err := s.commissions.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "order.cancel.cascade.failed", map[string]any{
			"orderId": order.ID,
			"stage":   "commissions",
			"error":   err.Error(),
		})
	}
	for _, commission := range commissions {
		if commission.Status != domain.CommissionStatusPending {
			continue
		}
		commission.Status = domain.CommissionStatusVoid
		commission.UpdatedAt = now
		if err := s.commissions.Update(ctx, commission, domain.CommissionStatusPending); err != nil {
			s.logger(ctx, "order.cancel.cascade.failed", map[string]any{
				"orderId":      order.ID,
				"commissionId": commission.ID,
				"error":        err.Error(),
			})
		}
	}
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// reserveOrderNumber claims a unique human-readable number. Collisions on the
// random suffix are retried a bounded number of times.
func (s *orderService) reserveOrderNumber(ctx context.Context, tracker *rollback.Tracker, orderID string, now time.Time) (string, error) {
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		number := s.generateOrderNumber(now)
		err := s.numbers.Reserve(ctx, number, orderID, now)
		if err == nil {
			tracker.Track(rollback.KindDocument, "orderNumbers/"+number, func(ctx context.Context) error {
				return s.numbers.Release(ctx, number)
			})
			return number, nil
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			s.logger(ctx, "order.number.collision", map[string]any{
				"number":  number,
				"attempt": attempt,
			})
			continue
		}
		return "", s.mapRepositoryError(err)
	}
	return "", fmt.Errorf("%w: order number space exhausted after %d attempts", ErrOrderConflict, orderNumberAttempts)
}

func (s *orderService) generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s%d%04d", s.numberPrefix, now.UnixMilli(), s.random(orderNumberSuffixSpace))
}

func (s *orderService) paymentStatus(ctx context.Context, cmd CreateOrderCommand, total decimal.Decimal) (string, error) {
	if s.payments == nil || cmd.PaymentReference == "" {
		return domain.PaymentStatusPending, nil
	}
	details, err := s.payments.Lookup(ctx, cmd.PaymentReference)
	if err != nil {
		if errors.Is(err, payments.ErrIntentNotFound) {
			return "", fmt.Errorf("%w: %s", ErrOrderPaymentNotRecognised, cmd.PaymentReference)
		}
		s.logger(ctx, "order.payment.lookup.failed", map[string]any{
			"reference": cmd.PaymentReference,
			"error":     err.Error(),
		})
		return domain.PaymentStatusPending, nil
	}
	if !details.Matches(total, cmd.Currency) {
		s.logger(ctx, "order.payment.amount_mismatch", map[string]any{
			"reference": cmd.PaymentReference,
			"intent":    details.Amount,
			"expected":  payments.MinorUnits(total, cmd.Currency),
			"currency":  details.Currency,
		})
	}
	return string(details.Status), nil
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func normaliseCreateCommand(cmd CreateOrderCommand) (CreateOrderCommand, error) {
	cmd.CustomerID = strings.TrimSpace(cmd.CustomerID)
	if cmd.CustomerID == "" {
		cmd.CustomerID = strings.TrimSpace(cmd.Actor.ID)
	}
	if cmd.CustomerID == "" {
		return cmd, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.Operator && cmd.CustomerID != cmd.Actor.ID {
		return cmd, fmt.Errorf("%w: orders can only be placed for the signed-in customer", ErrOrderPermissionDenied)
	}

	cmd.VirtualStoreID = strings.TrimSpace(cmd.VirtualStoreID)
	if cmd.VirtualStoreID == "" {
		return cmd, fmt.Errorf("%w: virtual store id is required", ErrOrderInvalidInput)
	}

	cmd.Currency = strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if _, err := currency.ParseISO(cmd.Currency); err != nil {
		return cmd, fmt.Errorf("%w: currency %q is not a valid ISO 4217 code", ErrOrderInvalidInput, cmd.Currency)
	}

	for name, amount := range map[string]decimal.Decimal{"shipping": cmd.Shipping, "tax": cmd.Tax, "discount": cmd.Discount} {
		if amount.IsNegative() {
			return cmd, fmt.Errorf("%w: %s must not be negative", ErrOrderInvalidInput, name)
		}
	}

	cmd.PaymentMethod = strings.TrimSpace(cmd.PaymentMethod)
	cmd.PaymentReference = strings.TrimSpace(cmd.PaymentReference)
	cmd.DeliveryType = strings.TrimSpace(cmd.DeliveryType)
	cmd.Notes = textutil.SanitizeText(cmd.Notes, maxNotesLength)
	cmd.Customer = CustomerSnapshot{
		Name:  textutil.SanitizeText(cmd.Customer.Name, 200),
		Email: strings.TrimSpace(cmd.Customer.Email),
		Phone: strings.TrimSpace(cmd.Customer.Phone),
	}
	cmd.ShippingAddress = sanitiseAddress(cmd.ShippingAddress)
	return cmd, nil
}

func sanitiseAddress(addr Address) Address {
	return Address{
		Recipient:  textutil.SanitizeText(addr.Recipient, 200),
		Line1:      textutil.SanitizeText(addr.Line1, 200),
		Line2:      textutil.SanitizeText(addr.Line2, 200),
		City:       textutil.SanitizeText(addr.City, 100),
		State:      textutil.SanitizeText(addr.State, 100),
		PostalCode: textutil.SanitizeText(addr.PostalCode, 32),
		Country:    strings.ToUpper(textutil.SanitizeText(addr.Country, 2)),
		Phone:      textutil.SanitizeText(addr.Phone, 32),
	}
}

func formatAddress(addr Address) string {
	cityLine := strings.TrimSpace(strings.Join(nonEmpty(addr.City, addr.State, addr.PostalCode), " "))
	return strings.Join(nonEmpty(addr.Recipient, addr.Line1, addr.Line2, cityLine, addr.Country), ", ")
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

// splitByPhysicalStore groups items by fulfilling store in first-seen order.
func splitByPhysicalStore(items []OrderItem) []storeShare {
	index := make(map[string]int)
	var shares []storeShare
	for _, item := range items {
		pos, ok := index[item.PhysicalStoreID]
		if !ok {
			pos = len(shares)
			index[item.PhysicalStoreID] = pos
			shares = append(shares, storeShare{
				PhysicalStoreID: item.PhysicalStoreID,
				Value:           decimal.Zero,
				Commission:      decimal.Zero,
			})
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		share := &shares[pos]
		share.Items = append(share.Items, item)
		share.ItemCount += item.Quantity
		share.Value = share.Value.Add(item.Subtotal)
		share.Commission = share.Commission.Add(item.Commission.Mul(qty))
	}
	return shares
}

func canReadOrder(actor Actor, order Order) bool {
	return actor.Operator || order.CustomerID == actor.ID || actor.ownsStore(order.VirtualStoreID)
}

var orderStatusLookup = map[OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

func parseOrderStatus(value string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := orderStatusLookup[status]
	return status, ok
}

func applyStatusTransition(order *Order, target OrderStatus, actor, note string, now time.Time) error {
	current := order.Status
	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s → %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	order.StatusHistory = append(slices.Clone(order.StatusHistory), domain.StatusHistoryEntry{
		Status:    target,
		Timestamp: now,
		Actor:     actor,
		Note:      note,
	})

	switch target {
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}

func canTransition(current, target OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
