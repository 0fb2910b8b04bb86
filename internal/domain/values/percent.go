package values

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Percent is a bounded ratio in [0,1] with an explicit undefined state. A
// group with zero tickets reports an undefined rate rather than a
// misleading 0%, and the two never compare equal.
type Percent struct {
	ratio decimal.Decimal
	valid bool
}

// NewPercent creates a Percent from a ratio in [0,1]
func NewPercent(ratio decimal.Decimal) (Percent, error) {
	if ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return Percent{}, fmt.Errorf("ratio out of range [0,1]: %s", ratio)
	}
	return Percent{ratio: ratio, valid: true}, nil
}

// MustNewPercent creates a Percent and panics on error (for constants/tests)
func MustNewPercent(ratio decimal.Decimal) Percent {
	p, err := NewPercent(ratio)
	if err != nil {
		panic(err)
	}
	return p
}

// PercentOf builds the ratio part/whole. It is undefined when whole is not
// positive, and the part is bounded into [0, whole] so the result always
// satisfies the [0,1] range.
func PercentOf(part, whole int) Percent {
	if whole <= 0 {
		return Percent{}
	}
	if part < 0 {
		part = 0
	}
	if part > whole {
		part = whole
	}
	ratio := decimal.NewFromInt(int64(part)).Div(decimal.NewFromInt(int64(whole)))
	return Percent{ratio: ratio, valid: true}
}

// UndefinedPercent returns the distinct "no rate" value
func UndefinedPercent() Percent {
	return Percent{}
}

// ZeroPercent returns a defined 0% value
func ZeroPercent() Percent {
	return Percent{ratio: decimal.Zero, valid: true}
}

// Valid reports whether the rate is defined
func (p Percent) Valid() bool {
	return p.valid
}

// Ratio returns the underlying ratio in [0,1]; zero when undefined
func (p Percent) Ratio() decimal.Decimal {
	return p.ratio
}

// Float64 returns the ratio as a float64; zero when undefined
func (p Percent) Float64() float64 {
	if !p.valid {
		return 0
	}
	f, _ := p.ratio.Float64()
	return f
}

// Value100 returns the ratio scaled to 0..100 for chart axes
func (p Percent) Value100() decimal.Decimal {
	return p.ratio.Mul(decimal.NewFromInt(100))
}

// String formats for tables: "70%", "98.55%", or "N/A" when undefined
func (p Percent) String() string {
	if !p.valid {
		return "N/A"
	}
	return p.Value100().Round(2).String() + "%"
}

// Equal reports whether both sides are defined and equal, or both undefined
func (p Percent) Equal(other Percent) bool {
	if p.valid != other.valid {
		return false
	}
	if !p.valid {
		return true
	}
	return p.ratio.Equal(other.ratio)
}

// JSON marshaling: a bare ratio number, null when undefined
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(p.Float64(), 'f', -1, 64)), nil
}

// JSON unmarshaling
func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Percent{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	parsed, err := NewPercent(decimal.NewFromFloat(f))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
