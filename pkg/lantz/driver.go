package lantz

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lumasullo/lantz/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// Instrument is the caller-facing API shared by every concrete driver
type Instrument interface {
	Name() string
	Get(name string) (any, error)
	Set(name string, value any) error
	GetIndexed(name string, key any) (any, error)
	SetIndexed(name string, key, value any) error
	SetIndexedMany(name string, keys, values []any) error
	Invoke(name string, args ...any) (any, error)
	Describe() []Descriptor
	SetRecorder(r Recorder)
	Initialize() error
	Finalize() error
}

// Recorder is told about every successful set, e.g. to journal set points
type Recorder interface {
	Record(instrument, feature string, key, value any) error
}

// Descriptor describes a registered feature, dict feature or action
type Descriptor struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Doc      string `json:"doc,omitempty"`
	Units    string `json:"units,omitempty"`
	Limits   string `json:"limits,omitempty"`
	Values   []any  `json:"values,omitempty"`
	Keys     []any  `json:"keys,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
	ReadOnce bool   `json:"read_once,omitempty"`
}

// Descriptor kinds
const (
	KindFeat     = "feat"
	KindDictFeat = "dictfeat"
	KindAction   = "action"
)

// Driver is the descriptor registry and lifecycle of one instrument.
// Concrete drivers embed it and register their descriptors at construction.
// Every descriptor operation holds the instrument lock, so calls from
// several goroutines are serialized and never interleave on the transport.
// Getters and setters run under that lock and must not call back into the
// Driver.
type Driver struct {
	name string
	Log  *log.Entry

	mu        sync.Mutex
	feats     map[string]*Feat
	dictFeats map[string]*DictFeat
	actions   map[string]*Action
	recorder  Recorder

	stateMu     sync.Mutex
	initHooks   []func() error
	finalHooks  []func() error
	initialized bool
	finalized   bool
}

// NewDriver creates an empty Driver named name
func NewDriver(name string) *Driver {
	return &Driver{
		name:      name,
		Log:       log.WithField("instrument", name),
		feats:     make(map[string]*Feat),
		dictFeats: make(map[string]*DictFeat),
		actions:   make(map[string]*Action),
	}
}

// Name returns the instrument name
func (d *Driver) Name() string {
	return d.name
}

func (d *Driver) checkName(name string) error {
	_, f := d.feats[name]
	_, df := d.dictFeats[name]
	_, a := d.actions[name]
	if f || df || a {
		return fmt.Errorf("%s: descriptor %q already registered", d.name, name)
	}
	return nil
}

// AddFeat registers a feature
func (d *Driver) AddFeat(f *Feat) error {
	if err := f.validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkName(f.Name); err != nil {
		return err
	}
	d.feats[f.Name] = f
	return nil
}

// AddDictFeat registers an indexed feature
func (d *Driver) AddDictFeat(f *DictFeat) error {
	if err := f.validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkName(f.Name); err != nil {
		return err
	}
	d.dictFeats[f.Name] = f
	return nil
}

// AddAction registers an action
func (d *Driver) AddAction(a *Action) error {
	if err := a.validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkName(a.Name); err != nil {
		return err
	}
	d.actions[a.Name] = a
	return nil
}

// MustAddFeat is AddFeat for static driver definitions; it panics on invalid descriptors
func (d *Driver) MustAddFeat(f *Feat) {
	if err := d.AddFeat(f); err != nil {
		panic(err)
	}
}

// MustAddDictFeat is AddDictFeat for static driver definitions
func (d *Driver) MustAddDictFeat(f *DictFeat) {
	if err := d.AddDictFeat(f); err != nil {
		panic(err)
	}
}

// MustAddAction is AddAction for static driver definitions
func (d *Driver) MustAddAction(a *Action) {
	if err := d.AddAction(a); err != nil {
		panic(err)
	}
}

// SetRecorder installs r to be told about successful sets
func (d *Driver) SetRecorder(r Recorder) {
	d.mu.Lock()
	d.recorder = r
	d.mu.Unlock()
}

// OnInitialize appends a hook run by Initialize
func (d *Driver) OnInitialize(fn func() error) {
	d.stateMu.Lock()
	d.initHooks = append(d.initHooks, fn)
	d.stateMu.Unlock()
}

// OnFinalize appends a hook run by Finalize. Hooks run in reverse order of
// registration and must tolerate a partially failed Initialize.
func (d *Driver) OnFinalize(fn func() error) {
	d.stateMu.Lock()
	d.finalHooks = append(d.finalHooks, fn)
	d.stateMu.Unlock()
}

// Initialize runs the initialization hooks in order, stopping at the first
// error. Finalize must still be called after a failed Initialize.
func (d *Driver) Initialize() error {
	d.stateMu.Lock()
	if d.finalized {
		d.stateMu.Unlock()
		return ErrFinalized
	}
	if d.initialized {
		d.stateMu.Unlock()
		return nil
	}
	hooks := append([]func() error(nil), d.initHooks...)
	d.stateMu.Unlock()

	for _, fn := range hooks {
		if err := fn(); err != nil {
			d.Log.Errorf("initialize failed: %v", err)
			return err
		}
	}

	d.stateMu.Lock()
	d.initialized = true
	d.stateMu.Unlock()
	d.Log.Infof("initialized")
	return nil
}

// Finalize releases the instrument's transports exactly once. It does not
// wait for the instrument lock, so closing a transport unblocks a pending read.
// Every hook runs even if an earlier one fails; the first error is returned
// and later ones are logged. Calling Finalize again is a no-op.
func (d *Driver) Finalize() error {
	d.stateMu.Lock()
	if d.finalized {
		d.stateMu.Unlock()
		return nil
	}
	d.finalized = true
	hooks := append([]func() error(nil), d.finalHooks...)
	d.stateMu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](); err != nil {
			if first == nil {
				first = err
			} else {
				d.Log.Warnf("finalize: %v", err)
			}
		}
	}
	d.Log.Infof("finalized")
	return first
}

func (d *Driver) isFinalized() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.finalized
}

// observe counts an operation and logs its outcome
func (d *Driver) observe(name, op string, err error) {
	metrics.FeatureOps.WithLabelValues(d.name, name, op).Inc()
	if err != nil {
		metrics.FeatureErrors.WithLabelValues(d.name, name, op).Inc()
		d.Log.Debugf("%s %s failed: %v", op, name, err)
	}
}

func (d *Driver) record(name string, key, value any) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(d.name, name, key, value); err != nil {
		d.Log.Warnf("recording %s: %v", name, err)
	}
}

// Get reads a feature
func (d *Driver) Get(name string) (v any, err error) {
	if d.isFinalized() {
		return nil, ErrFinalized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.feats[name]
	if !ok {
		return nil, fmt.Errorf("%w: feat %s.%s", ErrNotFound, d.name, name)
	}
	defer func() { d.observe(name, "get", err) }()
	v, err = f.read()
	if err == nil {
		d.Log.Debugf("get %s = %v", name, v)
	}
	return v, err
}

// Set writes a feature
func (d *Driver) Set(name string, value any) (err error) {
	if d.isFinalized() {
		return ErrFinalized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.feats[name]
	if !ok {
		return fmt.Errorf("%w: feat %s.%s", ErrNotFound, d.name, name)
	}
	defer func() { d.observe(name, "set", err) }()
	if err = f.write(value); err != nil {
		return err
	}
	d.Log.Debugf("set %s = %v", name, value)
	d.record(name, nil, value)
	return nil
}

// GetIndexed reads one key of an indexed feature
func (d *Driver) GetIndexed(name string, key any) (v any, err error) {
	if d.isFinalized() {
		return nil, ErrFinalized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.dictFeats[name]
	if !ok {
		return nil, fmt.Errorf("%w: dictfeat %s.%s", ErrNotFound, d.name, name)
	}
	defer func() { d.observe(name, "get", err) }()
	v, err = f.read(key)
	if err == nil {
		d.Log.Debugf("get %s[%v] = %v", name, key, v)
	}
	return v, err
}

// SetIndexed writes one key of an indexed feature
func (d *Driver) SetIndexed(name string, key, value any) (err error) {
	if d.isFinalized() {
		return ErrFinalized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.dictFeats[name]
	if !ok {
		return fmt.Errorf("%w: dictfeat %s.%s", ErrNotFound, d.name, name)
	}
	defer func() { d.observe(name, "set", err) }()
	if err = f.write(key, value); err != nil {
		return err
	}
	d.Log.Debugf("set %s[%v] = %v", name, key, value)
	d.record(name, key, value)
	return nil
}

// SetIndexedMany writes several keys of an indexed feature. It is equivalent
// to sequential SetIndexed calls but uses one transport call when the
// feature supports it. Nothing is written unless every pair is valid.
func (d *Driver) SetIndexedMany(name string, keys, values []any) (err error) {
	if d.isFinalized() {
		return ErrFinalized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.dictFeats[name]
	if !ok {
		return fmt.Errorf("%w: dictfeat %s.%s", ErrNotFound, d.name, name)
	}
	defer func() { d.observe(name, "set", err) }()
	if err = f.writeMany(keys, values); err != nil {
		return err
	}
	for i := range keys {
		d.record(name, keys[i], values[i])
	}
	return nil
}

// Invoke runs an action
func (d *Driver) Invoke(name string, args ...any) (r any, err error) {
	if d.isFinalized() {
		return nil, ErrFinalized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: action %s.%s", ErrNotFound, d.name, name)
	}
	defer func() { d.observe(name, "invoke", err) }()
	d.Log.Debugf("invoke %s %v", name, args)
	return a.invoke(args...)
}

// Invalidate drops read-once caches of a feature or all keys of a dict feature
func (d *Driver) Invalidate(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.feats[name]; ok {
		f.Invalidate()
	}
	if f, ok := d.dictFeats[name]; ok {
		f.Invalidate(nil)
	}
}

// Describe lists all descriptors sorted by name
func (d *Driver) Describe() []Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ds []Descriptor
	for _, f := range d.feats {
		desc := Descriptor{Name: f.Name, Kind: KindFeat, Doc: f.Doc, Units: f.Units,
			ReadOnly: f.ReadOnly(), ReadOnce: f.ReadOnce}
		if f.Limits != nil {
			desc.Limits = f.Limits.String()
		}
		if f.Values != nil {
			desc.Values = f.Values.Domain()
		}
		ds = append(ds, desc)
	}
	for _, f := range d.dictFeats {
		desc := Descriptor{Name: f.Name, Kind: KindDictFeat, Doc: f.Doc, Units: f.Units,
			Keys: append([]any(nil), f.Keys...), ReadOnly: f.ReadOnly(), ReadOnce: f.ReadOnce}
		if f.Limits != nil {
			desc.Limits = f.Limits.String()
		}
		if f.Values != nil {
			desc.Values = f.Values.Domain()
		}
		ds = append(ds, desc)
	}
	for _, a := range d.actions {
		desc := Descriptor{Name: a.Name, Kind: KindAction, Doc: a.Doc, Units: a.Units}
		if a.Limits != nil {
			desc.Limits = a.Limits.String()
		}
		ds = append(ds, desc)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
	return ds
}

// Lookup returns the kind of the descriptor registered as name
func (d *Driver) Lookup(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.feats[name]; ok {
		return KindFeat, true
	}
	if _, ok := d.dictFeats[name]; ok {
		return KindDictFeat, true
	}
	if _, ok := d.actions[name]; ok {
		return KindAction, true
	}
	return "", false
}
