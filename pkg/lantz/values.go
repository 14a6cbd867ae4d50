package lantz

import (
	"fmt"
	"reflect"
)

// ValueMap is a bidirectional lookup between domain values and the wire
// representation a device uses for them. It is built once when a descriptor
// is defined; numeric values compare by value, so int 1 and float64 1 are the
// same key.
type ValueMap struct {
	forward map[any]any // domain -> wire
	reverse map[any]any // wire -> domain
	domain  []any
}

// NewValueMap builds a ValueMap from domain -> wire pairs. Two domain values
// sharing one wire value make the reverse direction ambiguous and are rejected.
func NewValueMap(m map[any]any) (*ValueMap, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("value map is empty")
	}
	vm := &ValueMap{
		forward: make(map[any]any, len(m)),
		reverse: make(map[any]any, len(m)),
	}
	for domain, wire := range m {
		if !hashable(wire) {
			return nil, fmt.Errorf("value map: wire value %v of type %T cannot be a key", wire, wire)
		}
		dk, wk := canonical(domain), canonical(wire)
		if _, dup := vm.forward[dk]; dup {
			return nil, fmt.Errorf("value map: duplicate domain value %v", domain)
		}
		if prev, dup := vm.reverse[wk]; dup {
			return nil, fmt.Errorf("value map: wire value %v maps back to both %v and %v", wire, prev, domain)
		}
		vm.forward[dk] = wire
		vm.reverse[wk] = domain
		vm.domain = append(vm.domain, domain)
	}
	return vm, nil
}

// ValueSet builds an identity ValueMap restricting a feature to the given values
func ValueSet(values ...any) (*ValueMap, error) {
	m := make(map[any]any, len(values))
	for _, v := range values {
		if !hashable(v) {
			return nil, fmt.Errorf("value set: %v of type %T cannot be a key", v, v)
		}
		if _, dup := m[v]; dup {
			return nil, fmt.Errorf("value set: duplicate value %v", v)
		}
		m[v] = v
	}
	return NewValueMap(m)
}

// MustValues is NewValueMap for use in driver definitions
func MustValues(m map[any]any) *ValueMap {
	vm, err := NewValueMap(m)
	if err != nil {
		panic(err)
	}
	return vm
}

// MustValueSet is ValueSet for use in driver definitions
func MustValueSet(values ...any) *ValueMap {
	vm, err := ValueSet(values...)
	if err != nil {
		panic(err)
	}
	return vm
}

// ToWire translates a domain value to its wire representation
func (vm *ValueMap) ToWire(domain any) (any, error) {
	if !hashable(domain) {
		return nil, fmt.Errorf("%w: %T is not one of %v", ErrUnmappedValue, domain, vm.domain)
	}
	w, ok := vm.forward[canonical(domain)]
	if !ok {
		return nil, fmt.Errorf("%w: %v is not one of %v", ErrUnmappedValue, domain, vm.domain)
	}
	return w, nil
}

// FromWire translates a wire value back to its domain value
func (vm *ValueMap) FromWire(wire any) (any, error) {
	if !hashable(wire) {
		return nil, fmt.Errorf("%w: device returned %T", ErrUnmappedValue, wire)
	}
	d, ok := vm.reverse[canonical(wire)]
	if !ok {
		return nil, fmt.Errorf("%w: device returned %v", ErrUnmappedValue, wire)
	}
	return d, nil
}

// Domain returns the domain values in definition order (map order for NewValueMap)
func (vm *ValueMap) Domain() []any {
	return append([]any(nil), vm.domain...)
}

// hashable reports whether v can index a map. Slices, maps and funcs cannot.
func hashable(v any) bool {
	return v == nil || reflect.TypeOf(v).Comparable()
}

// canonical normalizes numeric values to float64 so map lookups compare by value
func canonical(v any) any {
	if f, ok := toFloat64(v); ok {
		return f
	}
	return v
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
