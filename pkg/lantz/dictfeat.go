package lantz

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/units"
)

// DictFeat is a family of features addressed by a fixed key set, such as one
// voltage per channel. Units, Limits and Values are shared by all keys while
// the read-once cache is kept per key. Keys are validated before any device
// call and the declared key (not the caller's) is passed to Get and Set.
type DictFeat struct {
	Name string
	Doc  string
	Keys []any

	Get func(key any) (any, error)
	Set func(key, value any) error
	// SetMany writes several keys in one transport call, in order
	SetMany func(keys, values []any) error

	Units    string
	Limits   *Limits
	Values   *ValueMap
	ReadOnce bool

	index map[any]int
	cache map[any]any
}

// Range returns the keys lo, lo+1, ..., hi-1
func Range(lo, hi int) []any {
	keys := make([]any, 0, hi-lo)
	for i := lo; i < hi; i++ {
		keys = append(keys, i)
	}
	return keys
}

func (f *DictFeat) validate() error {
	if f.Name == "" {
		return fmt.Errorf("dictfeat without name")
	}
	if f.Get == nil {
		return fmt.Errorf("dictfeat %s: missing getter", f.Name)
	}
	if len(f.Keys) == 0 {
		return fmt.Errorf("dictfeat %s: empty key set", f.Name)
	}
	if f.Units != "" && !units.Known(f.Units) {
		return fmt.Errorf("dictfeat %s: %w: %q", f.Name, units.ErrUnknownUnit, f.Units)
	}
	f.index = make(map[any]int, len(f.Keys))
	for i, k := range f.Keys {
		if !hashable(k) {
			return fmt.Errorf("dictfeat %s: key %v of type %T cannot be a key", f.Name, k, k)
		}
		ck := canonical(k)
		if _, dup := f.index[ck]; dup {
			return fmt.Errorf("dictfeat %s: duplicate key %v", f.Name, k)
		}
		f.index[ck] = i
	}
	f.cache = make(map[any]any)
	return nil
}

// ReadOnly reports whether the feature has no setter
func (f *DictFeat) ReadOnly() bool {
	return f.Set == nil && f.SetMany == nil
}

// Invalidate drops the cached value of key, or of all keys when key is nil
func (f *DictFeat) Invalidate(key any) {
	if key == nil {
		f.cache = make(map[any]any)
		return
	}
	if hashable(key) {
		delete(f.cache, canonical(key))
	}
}

func (f *DictFeat) resolve(key any) (any, error) {
	if !hashable(key) {
		return nil, fmt.Errorf("%w: %s[%v]", ErrUnknownKey, f.Name, key)
	}
	i, ok := f.index[canonical(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s[%v]", ErrUnknownKey, f.Name, key)
	}
	return f.Keys[i], nil
}

func (f *DictFeat) read(key any) (any, error) {
	k, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	ck := canonical(k)
	if f.ReadOnce {
		if v, ok := f.cache[ck]; ok {
			return v, nil
		}
	}
	raw, err := f.Get(k)
	if err != nil {
		return nil, err
	}
	v, err := fromDevice(raw, f.Units, f.Values)
	if err != nil {
		return nil, fmt.Errorf("dictfeat %s[%v]: %w", f.Name, k, err)
	}
	if f.ReadOnce {
		f.cache[ck] = v
	}
	return v, nil
}

func (f *DictFeat) write(key, value any) error {
	k, err := f.resolve(key)
	if err != nil {
		return err
	}
	if f.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.Name)
	}
	wire, err := toDevice(value, f.Units, f.Limits, f.Values)
	if err != nil {
		return fmt.Errorf("dictfeat %s[%v]: %w", f.Name, k, err)
	}
	if f.Set == nil {
		return f.SetMany([]any{k}, []any{wire})
	}
	return f.Set(k, wire)
}

// writeMany validates and converts every pair before the first device call
func (f *DictFeat) writeMany(keys, values []any) error {
	if len(keys) != len(values) {
		return fmt.Errorf("dictfeat %s: %d keys but %d values", f.Name, len(keys), len(values))
	}
	if f.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.Name)
	}
	ks := make([]any, len(keys))
	wires := make([]any, len(values))
	for i := range keys {
		k, err := f.resolve(keys[i])
		if err != nil {
			return err
		}
		w, err := toDevice(values[i], f.Units, f.Limits, f.Values)
		if err != nil {
			return fmt.Errorf("dictfeat %s[%v]: %w", f.Name, k, err)
		}
		ks[i], wires[i] = k, w
	}
	if f.SetMany != nil {
		return f.SetMany(ks, wires)
	}
	for i := range ks {
		if err := f.Set(ks[i], wires[i]); err != nil {
			return err
		}
	}
	return nil
}
