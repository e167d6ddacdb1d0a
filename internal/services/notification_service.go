package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/vendorhub/marketplace/internal/platform/auth"
	"github.com/vendorhub/marketplace/internal/platform/cache"
	"github.com/vendorhub/marketplace/internal/platform/messaging"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const (
	notificationKindOrderConfirmation  = "order.confirmation"
	notificationKindOrderSale          = "order.sale"
	notificationKindFulfillmentRequest = "fulfillment.request"
	notificationKindOrderAlert         = "order.alert"
	notificationKindOrderStatus        = "order.status"
	notificationKindFulfillmentStatus  = "fulfillment.status"

	storeCacheKeyPrefix       = "stores:"
	defaultNotificationLocale = "en"
	notificationConcurrency   = 8
)

var supportedLocales = []language.Tag{language.English, language.Japanese}

var localeMatcher = language.NewMatcher(supportedLocales)

// RecipientDirectory resolves account ids to contact details.
type RecipientDirectory interface {
	Contact(ctx context.Context, uid string) (auth.Contact, error)
	ContactsWithRole(ctx context.Context, role string) ([]auth.Contact, error)
}

// NotificationPublisher hands a rendered message to the delivery transport.
type NotificationPublisher interface {
	Publish(ctx context.Context, msg messaging.Message) (string, error)
}

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Publisher     NotificationPublisher
	Directory     RecipientDirectory
	Stores        repositories.StoreRepository
	StoreCache    *cache.Cache[Store]
	OperatorRole  string
	DefaultLocale string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	publisher     NotificationPublisher
	directory     RecipientDirectory
	stores        repositories.StoreRepository
	storeCache    *cache.Cache[Store]
	operatorRole  string
	defaultLocale string
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification service: publisher is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("notification service: store repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	role := strings.TrimSpace(deps.OperatorRole)
	if role == "" {
		role = auth.RoleOperator
	}

	return &notificationService{
		publisher:     deps.Publisher,
		directory:     deps.Directory,
		stores:        deps.Stores,
		storeCache:    deps.StoreCache,
		operatorRole:  role,
		defaultLocale: matchLocale("", deps.DefaultLocale, defaultNotificationLocale),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// OrderCreated notifies the customer, the virtual store, every fulfilling
// store and the operators. Each message is sent independently.
func (s *notificationService) OrderCreated(ctx context.Context, detail OrderDetail) {
	order := detail.Order
	group := new(errgroup.Group)
	group.SetLimit(notificationConcurrency)

	group.Go(func() error {
		recipient, locale, ok := s.customerRecipient(ctx, order)
		if !ok {
			return nil
		}
		s.send(ctx, messaging.Message{
			Kind:       notificationKindOrderConfirmation,
			Subject:    fmt.Sprintf("Order %s confirmed", order.OrderNumber),
			Body:       renderConfirmation(detail),
			Locale:     locale,
			Recipients: []messaging.Recipient{recipient},
			OrderID:    order.ID,
			StoreID:    order.VirtualStoreID,
		})
		return nil
	})

	group.Go(func() error {
		recipient, locale, ok := s.storeRecipient(ctx, order.VirtualStoreID)
		if !ok {
			return nil
		}
		commission := decimal.Zero
		for _, record := range detail.Commissions {
			commission = commission.Add(record.Amount)
		}
		s.send(ctx, messaging.Message{
			Kind:    notificationKindOrderSale,
			Subject: fmt.Sprintf("New sale %s", order.OrderNumber),
			Body: fmt.Sprintf("Order %s was placed for %s. Platform commission: %s.",
				order.OrderNumber, formatMoney(order.Total, order.Currency), formatMoney(commission, order.Currency)),
			Locale:     locale,
			Recipients: []messaging.Recipient{recipient},
			OrderID:    order.ID,
			StoreID:    order.VirtualStoreID,
		})
		return nil
	})

	for _, share := range splitByPhysicalStore(detail.Items) {
		group.Go(func() error {
			recipient, locale, ok := s.storeRecipient(ctx, share.PhysicalStoreID)
			if !ok {
				return nil
			}
			s.send(ctx, messaging.Message{
				Kind:       notificationKindFulfillmentRequest,
				Subject:    fmt.Sprintf("Fulfillment request for order %s", order.OrderNumber),
				Body:       renderFulfillmentRequest(order, share),
				Locale:     locale,
				Recipients: []messaging.Recipient{recipient},
				OrderID:    order.ID,
				StoreID:    share.PhysicalStoreID,
			})
			return nil
		})
	}

	group.Go(func() error {
		recipients := s.operatorRecipients(ctx)
		if len(recipients) == 0 {
			return nil
		}
		s.send(ctx, messaging.Message{
			Kind:    notificationKindOrderAlert,
			Subject: fmt.Sprintf("Order %s placed", order.OrderNumber),
			Body: fmt.Sprintf("Order %s in store %s: %d items, %d fulfilling stores, total %s.",
				order.OrderNumber, order.VirtualStoreID, len(detail.Items), len(detail.Fulfillments), formatMoney(order.Total, order.Currency)),
			Locale:     s.defaultLocale,
			Recipients: recipients,
			OrderID:    order.ID,
		})
		return nil
	})

	_ = group.Wait()
}

// OrderStatusChanged notifies the customer and the virtual store.
func (s *notificationService) OrderStatusChanged(ctx context.Context, order Order, previous OrderStatus) {
	subject := fmt.Sprintf("Order %s is now %s", order.OrderNumber, order.Status)
	body := fmt.Sprintf("Order %s moved from %s to %s.", order.OrderNumber, previous, order.Status)
	if order.CancelReason != "" {
		body += " Reason: " + order.CancelReason
	}

	group := new(errgroup.Group)
	group.Go(func() error {
		if recipient, locale, ok := s.customerRecipient(ctx, order); ok {
			s.send(ctx, messaging.Message{
				Kind:       notificationKindOrderStatus,
				Subject:    subject,
				Body:       body,
				Locale:     locale,
				Recipients: []messaging.Recipient{recipient},
				OrderID:    order.ID,
				StoreID:    order.VirtualStoreID,
			})
		}
		return nil
	})
	group.Go(func() error {
		if recipient, locale, ok := s.storeRecipient(ctx, order.VirtualStoreID); ok {
			s.send(ctx, messaging.Message{
				Kind:       notificationKindOrderStatus,
				Subject:    subject,
				Body:       body,
				Locale:     locale,
				Recipients: []messaging.Recipient{recipient},
				OrderID:    order.ID,
				StoreID:    order.VirtualStoreID,
			})
		}
		return nil
	})
	_ = group.Wait()
}

// FulfillmentStatusChanged notifies the virtual store only.
func (s *notificationService) FulfillmentStatusChanged(ctx context.Context, record FulfillmentRecord, previous FulfillmentStatus) {
	recipient, locale, ok := s.storeRecipient(ctx, record.VirtualStoreID)
	if !ok {
		return
	}
	s.send(ctx, messaging.Message{
		Kind:    notificationKindFulfillmentStatus,
		Subject: fmt.Sprintf("Fulfillment %s is %s", record.ID, record.Status),
		Body: fmt.Sprintf("Store %s moved its part of order %s from %s to %s.",
			record.PhysicalStoreID, record.OrderID, previous, record.Status),
		Locale:     locale,
		Recipients: []messaging.Recipient{recipient},
		OrderID:    record.OrderID,
		StoreID:    record.VirtualStoreID,
	})
}

func (s *notificationService) send(ctx context.Context, msg messaging.Message) {
	msg.CreatedAt = s.clock()
	id, err := s.publisher.Publish(ctx, msg)
	if err != nil {
		s.logger(ctx, "notification.dispatch.failed", map[string]any{
			"kind":    msg.Kind,
			"orderId": msg.OrderID,
			"storeId": msg.StoreID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "notification.dispatched", map[string]any{
		"kind":       msg.Kind,
		"orderId":    msg.OrderID,
		"messageId":  id,
		"recipients": len(msg.Recipients),
	})
}

func (s *notificationService) customerRecipient(ctx context.Context, order Order) (messaging.Recipient, string, bool) {
	recipient := messaging.Recipient{UID: order.CustomerID, Email: order.Customer.Email, Name: order.Customer.Name}
	locale := s.defaultLocale
	if s.directory != nil && order.CustomerID != "" {
		contact, err := s.directory.Contact(ctx, order.CustomerID)
		switch {
		case err != nil:
			s.skipped(ctx, "customer", order.CustomerID, err)
		default:
			if recipient.Email == "" {
				recipient.Email = contact.Email
			}
			if recipient.Name == "" {
				recipient.Name = contact.DisplayName
			}
			locale = matchLocale(contact.Locale, s.defaultLocale)
		}
	}
	if recipient.Email == "" {
		s.skipped(ctx, "customer", order.CustomerID, errors.New("no email address"))
		return messaging.Recipient{}, "", false
	}
	return recipient, locale, true
}

func (s *notificationService) storeRecipient(ctx context.Context, storeID string) (messaging.Recipient, string, bool) {
	store, err := s.store(ctx, storeID)
	if err != nil {
		s.skipped(ctx, "store", storeID, err)
		return messaging.Recipient{}, "", false
	}
	recipient := messaging.Recipient{UID: store.OwnerUID, Email: store.ContactEmail, Name: store.Name}
	if recipient.Email == "" && s.directory != nil && store.OwnerUID != "" {
		if contact, err := s.directory.Contact(ctx, store.OwnerUID); err == nil {
			recipient.Email = contact.Email
		}
	}
	if recipient.Email == "" {
		s.skipped(ctx, "store", storeID, errors.New("no contact email"))
		return messaging.Recipient{}, "", false
	}
	return recipient, matchLocale(store.Locale, s.defaultLocale), true
}

func (s *notificationService) operatorRecipients(ctx context.Context) []messaging.Recipient {
	if s.directory == nil {
		return nil
	}
	contacts, err := s.directory.ContactsWithRole(ctx, s.operatorRole)
	if err != nil {
		s.skipped(ctx, "operators", s.operatorRole, err)
		return nil
	}
	recipients := make([]messaging.Recipient, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Email == "" {
			continue
		}
		recipients = append(recipients, messaging.Recipient{UID: contact.UID, Email: contact.Email, Name: contact.DisplayName})
	}
	return recipients
}

func (s *notificationService) store(ctx context.Context, storeID string) (Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return Store{}, errors.New("store id is empty")
	}
	key := storeCacheKeyPrefix + storeID
	if s.storeCache != nil {
		if store, ok := s.storeCache.Get(key); ok {
			return store, nil
		}
	}
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return Store{}, err
	}
	if s.storeCache != nil {
		s.storeCache.Set(key, store)
	}
	return store, nil
}

func (s *notificationService) skipped(ctx context.Context, kind, id string, err error) {
	s.logger(ctx, "notification.recipient.skipped", map[string]any{
		"recipient": kind,
		"id":        id,
		"error":     err.Error(),
	})
}

func renderConfirmation(detail OrderDetail) string {
	order := detail.Order
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", order.OrderNumber)
	for _, item := range detail.Items {
		fmt.Fprintf(&b, "%d x %s  %s\n", item.Quantity, item.Name, formatMoney(item.Subtotal, item.Currency))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\n", formatMoney(order.Subtotal, order.Currency))
	fmt.Fprintf(&b, "Shipping: %s\n", formatMoney(order.Shipping, order.Currency))
	fmt.Fprintf(&b, "Tax: %s\n", formatMoney(order.Tax, order.Currency))
	if order.Discount.IsPositive() {
		fmt.Fprintf(&b, "Discount: -%s\n", formatMoney(order.Discount, order.Currency))
	}
	fmt.Fprintf(&b, "Total: %s\n", formatMoney(order.Total, order.Currency))
	if order.ShippingAddressText != "" {
		fmt.Fprintf(&b, "\nShipping to: %s\n", order.ShippingAddressText)
	}
	return b.String()
}

func renderFulfillmentRequest(order Order, share storeShare) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please prepare the following items for order %s.\n\n", order.OrderNumber)
	for _, item := range share.Items {
		fmt.Fprintf(&b, "%d x %s (SKU %s)\n", item.Quantity, item.Name, item.SKU)
	}
	fmt.Fprintf(&b, "\nItems: %d\nValue: %s\n", share.ItemCount, formatMoney(share.Value, order.Currency))
	if order.ShippingAddressText != "" {
		fmt.Fprintf(&b, "Ship to: %s\n", order.ShippingAddressText)
	}
	return b.String()
}

func formatMoney(amount decimal.Decimal, code string) string {
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	return amount.StringFixed(int32(scale)) + " " + strings.ToUpper(code)
}

// matchLocale picks the first parseable candidate and maps it onto a supported locale.
func matchLocale(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		tag, err := language.Parse(candidate)
		if err != nil {
			continue
		}
		_, idx, confidence := localeMatcher.Match(tag)
		if confidence == language.No {
			continue
		}
		base, _ := supportedLocales[idx].Base()
		return base.String()
	}
	return defaultNotificationLocale
}
