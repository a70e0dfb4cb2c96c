package amount

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// PctScale is the denominator for percentages expressed in parts per million.
const PctScale = 1_000_000

// MaxInputBits bounds externally supplied amounts so that sums stay far from
// the 256-bit ceiling.
const MaxInputBits = 128

var (
	ErrUnderflow    = errors.New("amount: underflow")
	ErrOverflow     = errors.New("amount: overflow")
	ErrDivideByZero = errors.New("amount: divide by zero")
	ErrInvalid      = errors.New("amount: invalid decimal")
)

// Amount is an unsigned 256-bit token quantity.
type Amount uint256.Int

// Zero is the zero amount.
var Zero Amount

var pctScale = uint256.NewInt(PctScale)

func New(v uint64) Amount {
	return Amount(*uint256.NewInt(v))
}

// Parse reads a base-10 string.
func Parse(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Amount(*v), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) u() *uint256.Int {
	v := uint256.Int(a)
	return &v
}

func (a Amount) Add(b Amount) Amount {
	var z uint256.Int
	z.Add(a.u(), b.u())
	return Amount(z)
}

// Sub returns a-b or ErrUnderflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var z uint256.Int
	if _, under := z.SubOverflow(a.u(), b.u()); under {
		return Zero, fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return Amount(z), nil
}

// SaturatingSub returns a-b, or zero when b > a.
func (a Amount) SaturatingSub(b Amount) Amount {
	if a.Lt(b) {
		return Zero
	}
	var z uint256.Int
	z.Sub(a.u(), b.u())
	return Amount(z)
}

// MulDiv computes a*num/den with a 512-bit intermediate, truncating.
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Zero, ErrDivideByZero
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(a.u(), num.u(), den.u()); overflow {
		return Zero, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, a, num, den)
	}
	return Amount(z), nil
}

// MulPct scales a by pct parts per million.
func (a Amount) MulPct(pct uint64) Amount {
	var z uint256.Int
	z.MulDivOverflow(a.u(), uint256.NewInt(pct), pctScale)
	return Amount(z)
}

func (a Amount) Cmp(b Amount) int   { return a.u().Cmp(b.u()) }
func (a Amount) Lt(b Amount) bool   { return a.u().Lt(b.u()) }
func (a Amount) Gt(b Amount) bool   { return a.u().Gt(b.u()) }
func (a Amount) Gte(b Amount) bool  { return !a.Lt(b) }
func (a Amount) Eq(b Amount) bool   { return a.u().Eq(b.u()) }
func (a Amount) IsZero() bool       { return a.u().IsZero() }
func (a Amount) String() string     { return a.u().Dec() }
func (a Amount) InputBounded() bool { return a.u().BitLen() <= MaxInputBits }

// Uint64 returns the value and whether it fit.
func (a Amount) Uint64() (uint64, bool) {
	v := a.u()
	return v.Uint64(), v.IsUint64()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: negative %d", ErrInvalid, v)
		}
		*a = New(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T", src)
	}
}

// Sum adds all values.
func Sum(values ...Amount) Amount {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
