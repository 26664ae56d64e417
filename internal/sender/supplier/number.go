package supplier

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Number tolerates the supplier API reporting numeric fields either as JSON
// numbers or as quoted strings ("remains": "120").
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		*n = ""
		return nil
	}
	*n = Number(b)
	return nil
}

func (n Number) Int64() (int64, error) {
	if n == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q: %w", string(n), err)
	}
	return int64(f), nil
}

func (n Number) Decimal() (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value %q: %w", string(n), err)
	}
	return d, nil
}
