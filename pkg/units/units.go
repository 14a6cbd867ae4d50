// Package units provides the physical quantity type used by instrument features.
//
// A Quantity is a magnitude tagged with a unit name. Units sharing a dimension
// can be converted into each other; decimal SI prefixes are applied by exact
// power-of-ten scaling so that 5 mV and 0.005 V end up as the same float64
// when expressed in volts.
package units

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit errors
var (
	ErrUnknownUnit      = errors.New("unknown unit")
	ErrIncompatibleUnit = errors.New("incompatible units")
)

// Dimension names the physical dimension of a unit
type Dimension string

const (
	Dimensionless Dimension = ""
	Voltage       Dimension = "voltage"
	Current       Dimension = "current"
	Power         Dimension = "power"
	Length        Dimension = "length"
	Time          Dimension = "time"
	Frequency     Dimension = "frequency"
	Temperature   Dimension = "temperature"
)

// unitDef is a unit expressed relative to the base unit of its dimension:
// base = magnitude * 10^exp + offset
type unitDef struct {
	dim    Dimension
	exp    int
	offset float64
}

var prefixes = map[string]int{
	"G": 9,
	"M": 6,
	"k": 3,
	"":  0,
	"c": -2,
	"m": -3,
	"u": -6,
	"µ": -6,
	"n": -9,
	"p": -12,
}

var baseSymbols = map[string]Dimension{
	"V":  Voltage,
	"A":  Current,
	"W":  Power,
	"m":  Length,
	"s":  Time,
	"Hz": Frequency,
}

var longNames = map[string]string{
	"volt":           "V",
	"volts":          "V",
	"millivolt":      "mV",
	"microvolt":      "uV",
	"ampere":         "A",
	"amp":            "A",
	"milliamp":       "mA",
	"watt":           "W",
	"milliwatt":      "mW",
	"meter":          "m",
	"metre":          "m",
	"millimeter":     "mm",
	"micrometer":     "um",
	"micron":         "um",
	"nanometer":      "nm",
	"second":         "s",
	"millisecond":    "ms",
	"hertz":          "Hz",
	"kelvin":         "K",
	"celsius":        "degC",
	"degree_Celsius": "degC",
	"%":              "percent",
}

var specials = map[string]unitDef{
	"K":             {dim: Temperature},
	"degC":          {dim: Temperature, offset: 273.15},
	"percent":       {dim: Dimensionless, exp: -2},
	"dimensionless": {dim: Dimensionless},
	"":              {dim: Dimensionless},
}

func lookup(name string) (unitDef, error) {
	if alias, ok := longNames[name]; ok {
		name = alias
	}
	if d, ok := specials[name]; ok {
		return d, nil
	}
	if dim, ok := baseSymbols[name]; ok {
		return unitDef{dim: dim}, nil
	}
	for sym, dim := range baseSymbols {
		if !strings.HasSuffix(name, sym) {
			continue
		}
		if exp, ok := prefixes[strings.TrimSuffix(name, sym)]; ok {
			return unitDef{dim: dim, exp: exp}, nil
		}
	}
	return unitDef{}, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
}

// Known reports whether name is a unit this package can convert
func Known(name string) bool {
	_, err := lookup(name)
	return err == nil
}

// Compatible reports whether a and b are known units of the same dimension
func Compatible(a, b string) bool {
	da, err := lookup(a)
	if err != nil {
		return false
	}
	db, err := lookup(b)
	if err != nil {
		return false
	}
	return da.dim == db.dim
}

// Quantity is a magnitude with a unit
type Quantity struct {
	Magnitude float64
	Unit      string
}

// Q builds a Quantity
func Q(magnitude float64, unit string) Quantity {
	return Quantity{Magnitude: magnitude, Unit: unit}
}

// In returns the magnitude of q expressed in unit
func (q Quantity) In(unit string) (float64, error) {
	from, err := lookup(q.Unit)
	if err != nil {
		return 0, err
	}
	to, err := lookup(unit)
	if err != nil {
		return 0, err
	}
	if from.dim != to.dim {
		return 0, fmt.Errorf("%w: cannot convert %s to %s", ErrIncompatibleUnit, q.Unit, unit)
	}
	if from.offset == 0 && to.offset == 0 {
		return scale(q.Magnitude, from.exp-to.exp), nil
	}
	base := scale(q.Magnitude, from.exp) + from.offset
	return scale(base-to.offset, -to.exp), nil
}

// To converts q to unit
func (q Quantity) To(unit string) (Quantity, error) {
	m, err := q.In(unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Magnitude: m, Unit: unit}, nil
}

// Compare returns -1, 0 or +1 comparing q with o after converting o to q's unit
func (q Quantity) Compare(o Quantity) (int, error) {
	m, err := o.In(q.Unit)
	if err != nil {
		return 0, err
	}
	switch {
	case q.Magnitude < m:
		return -1, nil
	case q.Magnitude > m:
		return 1, nil
	}
	return 0, nil
}

func (q Quantity) String() string {
	if q.Unit == "" {
		return strconv.FormatFloat(q.Magnitude, 'g', -1, 64)
	}
	return strconv.FormatFloat(q.Magnitude, 'g', -1, 64) + " " + q.Unit
}

type jsonQuantity struct {
	Magnitude float64 `json:"magnitude"`
	Units     string  `json:"units"`
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonQuantity{Magnitude: q.Magnitude, Units: q.Unit})
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var j jsonQuantity
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	if !Known(j.Units) {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, j.Units)
	}
	q.Magnitude, q.Unit = j.Magnitude, j.Units
	return nil
}

// Parse reads quantities like "5 mV", "5mV" or "-12.5 um"
func Parse(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && strings.ContainsRune("+-.0123456789eE", rune(s[i])) {
		// an 'e' that is not followed by a digit or sign starts the unit
		if (s[i] == 'e' || s[i] == 'E') && (i+1 >= len(s) || !strings.ContainsRune("+-0123456789", rune(s[i+1]))) {
			break
		}
		i++
	}
	m, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid magnitude in %q: %w", s, err)
	}
	unit := strings.TrimSpace(s[i:])
	if !Known(unit) {
		return Quantity{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return Q(m, unit), nil
}

func scale(v float64, exp int) float64 {
	switch {
	case exp == 0:
		return v
	case exp > 0:
		return v * math.Pow10(exp)
	default:
		return v / math.Pow10(-exp)
	}
}
