package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var amountTolerance = decimal.RequireFromString("0.01")

// Each rejection reason wraps ErrOrderInvalidInput so callers can branch on
// either the category or the specific rule.
var (
	ErrOrderCurrencyMismatch     = fmt.Errorf("%w: currency mismatch", ErrOrderInvalidInput)
	ErrOrderStoreMismatch        = fmt.Errorf("%w: virtual store mismatch", ErrOrderInvalidInput)
	ErrOrderSubtotalMismatch     = fmt.Errorf("%w: subtotal mismatch", ErrOrderInvalidInput)
	ErrOrderTotalMismatch        = fmt.Errorf("%w: total mismatch", ErrOrderInvalidInput)
	ErrOrderNonPositiveTotal     = fmt.Errorf("%w: total must be greater than zero", ErrOrderInvalidInput)
	ErrOrderEmpty                = fmt.Errorf("%w: order has no items", ErrOrderInvalidInput)
	ErrOrderProductNotFound      = fmt.Errorf("%w: product not found", ErrOrderInvalidInput)
	ErrOrderProductUnavailable   = fmt.Errorf("%w: product unavailable", ErrOrderInvalidInput)
	ErrOrderPaymentNotRecognised = fmt.Errorf("%w: payment reference not recognised", ErrOrderInvalidInput)
)

// ValidateOrder checks a priced cart against the declared order. Rules run in a
// fixed order and the first failure is returned.
func ValidateOrder(cmd CreateOrderCommand, priced PricedCart) error {
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	for _, item := range priced.Items {
		if item.Currency != currency {
			return fmt.Errorf("%w: product %s is priced in %q, order declares %q", ErrOrderCurrencyMismatch, item.ProductID, item.Currency, currency)
		}
	}

	virtualStoreID := strings.TrimSpace(cmd.VirtualStoreID)
	for _, item := range priced.Items {
		if item.VirtualStoreID != virtualStoreID {
			return fmt.Errorf("%w: product %s is listed by %q, order declares %q", ErrOrderStoreMismatch, item.ProductID, item.VirtualStoreID, virtualStoreID)
		}
	}

	if !withinTolerance(priced.Subtotal, cmd.Subtotal) {
		return fmt.Errorf("%w: declared %s, items sum to %s", ErrOrderSubtotalMismatch, cmd.Subtotal.String(), priced.Subtotal.String())
	}
	if !withinTolerance(priced.Total, cmd.Total) {
		return fmt.Errorf("%w: declared %s, computed %s", ErrOrderTotalMismatch, cmd.Total.String(), priced.Total.String())
	}
	if !priced.Total.IsPositive() {
		return fmt.Errorf("%w: computed %s", ErrOrderNonPositiveTotal, priced.Total.String())
	}
	if len(priced.Items) == 0 {
		return ErrOrderEmpty
	}
	return nil
}

func withinTolerance(computed, declared decimal.Decimal) bool {
	return computed.Sub(declared).Abs().LessThanOrEqual(amountTolerance)
}
