package firestore

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are stored as decimal strings so Firestore never rounds them through float64.
func encodeAmount(value decimal.Decimal) string {
	return value.String()
}

// amountDecoder parses several stored amounts and keeps the first failure.
type amountDecoder struct {
	err error
}

func (d *amountDecoder) decode(field, raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("decode %s: %w", field, err)
		}
		return decimal.Zero
	}
	return value
}
