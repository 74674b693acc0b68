package httputil

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/gymledger/pkg/apperr"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps or plain dates and returns UTC
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", field)
}

// CheckCents rejects amounts with a non-zero digit past the second decimal
// place. Amounts are stored as NUMERIC(12,2), so anything finer would be
// validated as one value and stored as another.
func CheckCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("%s must have at most 2 decimal places", field)
	}
	return nil
}
