package lantz

import (
	"fmt"
	"math"
)

// Limits are inclusive numeric bounds on a settable value. A zero Lower with
// HasLower false bounds the value from above only.
type Limits struct {
	Lower    float64
	Upper    float64
	HasLower bool
}

// Between bounds a value to lo <= x <= hi
func Between(lo, hi float64) *Limits {
	return &Limits{Lower: lo, Upper: hi, HasLower: true}
}

// Below bounds a value to x <= hi
func Below(hi float64) *Limits {
	return &Limits{Upper: hi}
}

// Check returns ErrOutOfRange if x is outside the limits
func (l *Limits) Check(x float64) error {
	if l == nil {
		return nil
	}
	if math.IsNaN(x) {
		return fmt.Errorf("%w: NaN is outside %v", ErrOutOfRange, l)
	}
	if l.HasLower && x < l.Lower {
		return fmt.Errorf("%w: %v < %v", ErrOutOfRange, x, l.Lower)
	}
	if x > l.Upper {
		return fmt.Errorf("%w: %v > %v", ErrOutOfRange, x, l.Upper)
	}
	return nil
}

func (l *Limits) String() string {
	if l.HasLower {
		return fmt.Sprintf("[%v, %v]", l.Lower, l.Upper)
	}
	return fmt.Sprintf("(, %v]", l.Upper)
}
