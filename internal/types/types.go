// internal/types/types.go
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest scaling exponent accepted at the boundary.
// NEAR fungible tokens go up to 24.
const MaxDecimals Decimals = 36

var (
	ErrInvalidTokenAmount = errors.New("invalid token amount")
	ErrInvalidDecimals    = errors.New("invalid decimals")
	ErrEmptyTokenID       = errors.New("empty token id")
)

// TokenAmount is a non-negative integer in a token's smallest unit, kept as
// a decimal string so values beyond 2^53 survive untouched.
type TokenAmount string

// Decimals is the power-of-ten exponent between a TokenAmount and its
// human-readable value.
type Decimals uint8

// String returns the raw digits.
func (a TokenAmount) String() string {
	return string(a)
}

// IsZero reports whether the amount is empty or consists only of zeros.
func (a TokenAmount) IsZero() bool {
	return strings.TrimLeft(string(a), "0") == ""
}

// UnmarshalJSON accepts both a JSON string and a JSON number. Contracts
// return u128 values as strings but small fields such as apr as numbers.
func (a *TokenAmount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = TokenAmount(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTokenAmount, b)
	}
	lit := n.String()
	if strings.ContainsAny(lit, ".eE") {
		// 2.08565e10 and friends; keep whatever Validate will judge
		if d, err := decimal.NewFromString(lit); err == nil && d.IsInteger() {
			lit = d.String()
		}
	}
	*a = TokenAmount(lit)
	return nil
}

// Validate checks that the amount is a plain run of ASCII digits.
func (a TokenAmount) Validate() error {
	if a == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTokenAmount)
	}
	for i := 0; i < len(a); i++ {
		if a[i] < '0' || a[i] > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidTokenAmount, string(a))
		}
	}
	return nil
}

// Validate checks that decimals are within the supported range.
func (d Decimals) Validate() error {
	if d > MaxDecimals {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidDecimals, d, MaxDecimals)
	}
	return nil
}

// TokenRef identifies a token together with its decimals.
type TokenRef struct {
	ID       string   `json:"id" mapstructure:"id"`
	Name     string   `json:"name" mapstructure:"name"`
	Decimals Decimals `json:"decimal" mapstructure:"decimals"`
}

// Validate checks the token reference.
func (t TokenRef) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyTokenID
	}
	return t.Decimals.Validate()
}
