package lantz

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/units"
)

// Feat is a typed, optionally unit-tagged, bounded and value-mapped attribute
// of an instrument. Get performs the device round trip and returns the raw
// value; Set receives the value already normalized to the wire
// representation. A Feat without Set is read-only.
//
// Feat itself does no locking; the owning Driver serializes access.
type Feat struct {
	Name string
	Doc  string

	Get func() (any, error)
	Set func(value any) error

	// Units is the canonical unit; reads return units.Quantity in it and
	// writes must pass a compatible units.Quantity.
	Units string
	// Limits are checked against the unit-normalized magnitude before Set runs
	Limits *Limits
	// Values maps domain values to wire values
	Values *ValueMap
	// ReadOnce caches the first successful read for the lifetime of the instrument
	ReadOnce bool

	cached bool
	cache  any
}

func (f *Feat) validate() error {
	if f.Name == "" {
		return fmt.Errorf("feat without name")
	}
	if f.Get == nil {
		return fmt.Errorf("feat %s: missing getter", f.Name)
	}
	if f.Units != "" && !units.Known(f.Units) {
		return fmt.Errorf("feat %s: %w: %q", f.Name, units.ErrUnknownUnit, f.Units)
	}
	return nil
}

// ReadOnly reports whether the feature has no setter
func (f *Feat) ReadOnly() bool {
	return f.Set == nil
}

// Invalidate drops a read-once cached value so the next read queries the device
func (f *Feat) Invalidate() {
	f.cached = false
	f.cache = nil
}

func (f *Feat) read() (any, error) {
	if f.ReadOnce && f.cached {
		return f.cache, nil
	}
	raw, err := f.Get()
	if err != nil {
		return nil, err
	}
	v, err := fromDevice(raw, f.Units, f.Values)
	if err != nil {
		return nil, fmt.Errorf("feat %s: %w", f.Name, err)
	}
	if f.ReadOnce {
		f.cache, f.cached = v, true
	}
	return v, nil
}

func (f *Feat) write(value any) error {
	if f.Set == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.Name)
	}
	wire, err := toDevice(value, f.Units, f.Limits, f.Values)
	if err != nil {
		return fmt.Errorf("feat %s: %w", f.Name, err)
	}
	return f.Set(wire)
}

// toDevice runs the set pipeline: unit normalization, limits, value mapping
func toDevice(value any, unit string, limits *Limits, values *ValueMap) (any, error) {
	x, err := normalize(value, unit, limits)
	if err != nil {
		return nil, err
	}
	if values != nil {
		return values.ToWire(x)
	}
	return x, nil
}

// normalize converts value to the magnitude in unit and checks limits
func normalize(value any, unit string, limits *Limits) (any, error) {
	x := value
	if unit != "" {
		q, ok := asQuantity(value)
		if !ok {
			return nil, fmt.Errorf("%w: bare value %v given, expected a quantity in %s", ErrIncompatibleUnit, value, unit)
		}
		m, err := q.In(unit)
		if err != nil {
			return nil, err
		}
		x = m
	}
	if limits != nil {
		f, ok := toFloat64(x)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not numeric", ErrOutOfRange, x)
		}
		if err := limits.Check(f); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// fromDevice runs the get pipeline: reverse value mapping, unit tagging
func fromDevice(raw any, unit string, values *ValueMap) (any, error) {
	v := raw
	if values != nil {
		d, err := values.FromWire(raw)
		if err != nil {
			return nil, err
		}
		v = d
	}
	if unit == "" {
		return v, nil
	}
	if q, ok := asQuantity(v); ok {
		return q.To(unit)
	}
	m, ok := toFloat64(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a number in %s", ErrDecode, v, v, unit)
	}
	return units.Q(m, unit), nil
}

func asQuantity(v any) (units.Quantity, bool) {
	switch q := v.(type) {
	case units.Quantity:
		return q, true
	case *units.Quantity:
		if q != nil {
			return *q, true
		}
	}
	return units.Quantity{}, false
}
