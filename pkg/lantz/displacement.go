package lantz

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/units"
)

// Displacement is the argument of relative-move actions: either a physical
// distance or a raw number of motor steps.
type Displacement interface {
	displacement()
}

// Distance is a displacement given as a length quantity
type Distance struct {
	units.Quantity
}

// RawSteps is a displacement given as a signed number of steps
type RawSteps int

func (Distance) displacement() {}
func (RawSteps) displacement() {}

// AsDisplacement classifies v: quantities become Distance, integers RawSteps
func AsDisplacement(v any) (Displacement, error) {
	switch d := v.(type) {
	case Distance:
		return d, nil
	case RawSteps:
		return d, nil
	case units.Quantity, *units.Quantity:
		q, _ := asQuantity(d)
		return Distance{q}, nil
	case int:
		return RawSteps(d), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32:
		f, _ := toFloat64(d)
		return RawSteps(int(f)), nil
	case float64:
		// JSON numbers decode as float64; only whole numbers are steps
		if d != float64(int(d)) {
			return nil, fmt.Errorf("%w: %v is not a whole number of steps", ErrIncompatibleUnit, d)
		}
		return RawSteps(int(d)), nil
	}
	return nil, fmt.Errorf("%w: %v (%T) is neither a distance nor a step count", ErrIncompatibleUnit, v, v)
}
