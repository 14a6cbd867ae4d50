package lantz

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/lumasullo/lantz/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDevice records every call that would reach a transport
type stubDevice struct {
	mu     sync.Mutex
	calls  int
	regs   map[any]any
	writes [][]any
}

func newStubDevice() *stubDevice {
	return &stubDevice{regs: make(map[any]any)}
}

func (s *stubDevice) get(key any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.regs[key], nil
}

func (s *stubDevice) set(key, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.regs[key] = value
	s.writes = append(s.writes, []any{key, value})
	return nil
}

func (s *stubDevice) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFeatValueMapRoundTrip(t *testing.T) {
	dev := newStubDevice()
	d := NewDriver("laser")
	d.MustAddFeat(&Feat{
		Name:   "ctl_mode",
		Get:    func() (any, error) { return dev.get("mode") },
		Set:    func(v any) error { return dev.set("mode", v) },
		Values: MustValues(map[any]any{"APC": "POWER", "ACC": "CURRENT"}),
	})

	for _, v := range []string{"APC", "ACC"} {
		require.NoError(t, d.Set("ctl_mode", v))
		got, err := d.Get("ctl_mode")
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	assert.Equal(t, "CURRENT", dev.regs["mode"])

	assert.ErrorIs(t, d.Set("ctl_mode", "XYZ"), ErrUnmappedValue)
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, d.Set("ctl_mode", []any{"APC"}), ErrUnmappedValue)
	})
	dev.regs["mode"] = "BOGUS"
	_, err := d.Get("ctl_mode")
	assert.ErrorIs(t, err, ErrUnmappedValue)
}

func TestFeatLimits(t *testing.T) {
	dev := newStubDevice()
	d := NewDriver("laser")
	d.MustAddFeat(&Feat{
		Name:   "current_sp",
		Get:    func() (any, error) { return dev.get("cur") },
		Set:    func(v any) error { return dev.set("cur", v) },
		Limits: Between(0, 100),
	})

	assert.NoError(t, d.Set("current_sp", 0))
	assert.NoError(t, d.Set("current_sp", 100))
	assert.Equal(t, 2, dev.count())

	assert.ErrorIs(t, d.Set("current_sp", -0.001), ErrOutOfRange)
	assert.ErrorIs(t, d.Set("current_sp", 100.001), ErrOutOfRange)
	assert.ErrorIs(t, d.Set("current_sp", "lots"), ErrOutOfRange)
	assert.Equal(t, 2, dev.count())
}

func TestFeatCachingPolicy(t *testing.T) {
	dev := newStubDevice()
	dev.regs["idn"] = "Ventus 532 nm, 1.5W"
	dev.regs["status"] = "ENABLED"
	d := NewDriver("laser")
	d.MustAddFeat(&Feat{Name: "idn", Get: func() (any, error) { return dev.get("idn") }, ReadOnce: true})
	d.MustAddFeat(&Feat{Name: "status", Get: func() (any, error) { return dev.get("status") }})

	for i := 0; i < 2; i++ {
		v, err := d.Get("idn")
		require.NoError(t, err)
		assert.Equal(t, "Ventus 532 nm, 1.5W", v)
	}
	assert.Equal(t, 1, dev.count())

	for i := 0; i < 2; i++ {
		_, err := d.Get("status")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, dev.count())

	d.Invalidate("idn")
	_, err := d.Get("idn")
	require.NoError(t, err)
	assert.Equal(t, 4, dev.count())
}

func TestFeatReadOnly(t *testing.T) {
	d := NewDriver("laser")
	d.MustAddFeat(&Feat{Name: "status", Get: func() (any, error) { return "ENABLED", nil }})

	assert.ErrorIs(t, d.Set("status", "DISABLED"), ErrReadOnly)
}

func TestFeatUnits(t *testing.T) {
	dev := newStubDevice()
	d := NewDriver("daq")
	d.MustAddFeat(&Feat{
		Name:  "offset",
		Get:   func() (any, error) { return dev.get("offset") },
		Set:   func(v any) error { return dev.set("offset", v) },
		Units: "V",
	})

	require.NoError(t, d.Set("offset", units.Q(5, "mV")))
	require.NoError(t, d.Set("offset", units.Q(0.005, "V")))
	require.Len(t, dev.writes, 2)
	assert.Equal(t, dev.writes[0][1], dev.writes[1][1])
	assert.Equal(t, 0.005, dev.writes[0][1])

	v, err := d.Get("offset")
	require.NoError(t, err)
	assert.Equal(t, units.Q(0.005, "V"), v)

	assert.ErrorIs(t, d.Set("offset", 0.005), ErrIncompatibleUnit)
	assert.ErrorIs(t, d.Set("offset", units.Q(1, "mA")), ErrIncompatibleUnit)
	assert.Len(t, dev.writes, 2)
}

func TestFeatUnitsFromQuantityGetter(t *testing.T) {
	d := NewDriver("stage")
	d.MustAddFeat(&Feat{
		Name:  "position",
		Get:   func() (any, error) { return units.Q(2, "mm"), nil },
		Units: "um",
	})
	d.MustAddFeat(&Feat{
		Name:  "broken",
		Get:   func() (any, error) { return "n/a", nil },
		Units: "um",
	})

	v, err := d.Get("position")
	require.NoError(t, err)
	assert.Equal(t, units.Q(2000, "um"), v)

	_, err = d.Get("broken")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDictFeatUnknownKey(t *testing.T) {
	dev := newStubDevice()
	d := NewDriver("daq")
	d.MustAddDictFeat(&DictFeat{
		Name:  "analog_in",
		Keys:  Range(0, 14),
		Get:   dev.get,
		Units: "V",
	})

	_, err := d.GetIndexed("analog_in", 14)
	assert.ErrorIs(t, err, ErrUnknownKey)
	_, err = d.GetIndexed("analog_in", "AIN0")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.NotPanics(t, func() {
		_, err = d.GetIndexed("analog_in", []any{1})
	})
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.NotPanics(t, func() {
		_, err = d.GetIndexed("analog_in", map[string]any{"ch": 1})
	})
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, 0, dev.count())

	dev.regs[3] = 1.25
	v, err := d.GetIndexed("analog_in", 3.0)
	require.NoError(t, err)
	assert.Equal(t, units.Q(1.25, "V"), v)
	assert.Equal(t, 1, dev.count())
}

func TestDictFeatOutOfRangeNoTransport(t *testing.T) {
	dev := newStubDevice()
	d := NewDriver("daq")
	d.MustAddDictFeat(&DictFeat{
		Name:   "analog_out",
		Keys:   []any{0, 1},
		Get:    dev.get,
		Set:    dev.set,
		Units:  "V",
		Limits: Between(0, 5),
	})

	err := d.SetIndexed("analog_out", 1, units.Q(6, "V"))
	assert.ErrorIs(t, err, ErrOutOfRange)
	err = d.SetIndexed("analog_out", 1, units.Q(math.NaN(), "V"))
	assert.ErrorIs(t, err, ErrOutOfRange)
	err = d.SetIndexedMany("analog_out", []any{0, []any{1}}, []any{units.Q(1, "V"), units.Q(2, "V")})
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, 0, dev.count())

	require.NoError(t, d.SetIndexed("analog_out", 1, units.Q(5000, "mV")))
	assert.Equal(t, 5.0, dev.regs[1])
}

func TestDictFeatPerKeyCache(t *testing.T) {
	dev := newStubDevice()
	dev.regs["a"], dev.regs["b"] = 1, 2
	d := NewDriver("dev")
	d.MustAddDictFeat(&DictFeat{Name: "serial", Keys: []any{"a", "b"}, Get: dev.get, ReadOnce: true})

	for i := 0; i < 3; i++ {
		_, err := d.GetIndexed("serial", "a")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dev.count())

	v, err := d.GetIndexed("serial", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, dev.count())
}

func TestDictFeatWriteMany(t *testing.T) {
	var batches [][]any
	d := NewDriver("daq")
	d.MustAddDictFeat(&DictFeat{
		Name: "analog_out",
		Keys: []any{0, 1},
		Get:  func(any) (any, error) { return 0.0, nil },
		SetMany: func(keys, values []any) error {
			batches = append(batches, append(append([]any{}, keys...), values...))
			return nil
		},
		Units:  "V",
		Limits: Between(0, 5),
	})

	require.NoError(t, d.SetIndexedMany("analog_out", []any{1, 0}, []any{units.Q(1, "V"), units.Q(2500, "mV")}))
	require.Len(t, batches, 1)
	assert.Equal(t, []any{1, 0, 1.0, 2.5}, batches[0])

	err := d.SetIndexedMany("analog_out", []any{0, 1}, []any{units.Q(1, "V"), units.Q(9, "V")})
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Len(t, batches, 1)

	err = d.SetIndexedMany("analog_out", []any{0, 1}, []any{units.Q(1, "V")})
	assert.Error(t, err)

	require.NoError(t, d.SetIndexed("analog_out", 0, units.Q(3, "V")))
	assert.Len(t, batches, 2)
}

func TestDictFeatSequentialFallback(t *testing.T) {
	dev := newStubDevice()
	d := NewDriver("dev")
	d.MustAddDictFeat(&DictFeat{Name: "dio", Keys: Range(0, 3), Get: dev.get, Set: dev.set,
		Values: MustValues(map[any]any{true: 1, false: 0})})

	require.NoError(t, d.SetIndexedMany("dio", []any{2, 0}, []any{true, false}))
	assert.Equal(t, [][]any{{2, 1}, {0, 0}}, dev.writes)

	v, err := d.GetIndexed("dio", 2)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestActionInvoke(t *testing.T) {
	var got []any
	d := NewDriver("stage")
	d.MustAddAction(&Action{
		Name:   "move_abs",
		Units:  "um",
		Limits: Below(100),
		Func: func(args ...any) (any, error) {
			got = append(got, args[0])
			return nil, nil
		},
	})

	_, err := d.Invoke("move_abs", units.Q(0.0625, "mm"))
	require.NoError(t, err)
	_, err = d.Invoke("move_abs", units.Q(0.0625, "mm"))
	require.NoError(t, err)
	assert.Equal(t, []any{62.5, 62.5}, got)

	_, err = d.Invoke("move_abs", units.Q(101, "um"))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = d.Invoke("move_abs", 10)
	assert.ErrorIs(t, err, ErrIncompatibleUnit)
	_, err = d.Invoke("move_abs")
	assert.Error(t, err)
	assert.Len(t, got, 2)
}

func TestDriverNotFoundAndDuplicates(t *testing.T) {
	d := NewDriver("dev")
	d.MustAddFeat(&Feat{Name: "x", Get: func() (any, error) { return 1, nil }})

	_, err := d.Get("y")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.GetIndexed("x", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.Invoke("x")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, d.AddAction(&Action{Name: "x", Func: func(...any) (any, error) { return nil, nil }}))
	assert.Error(t, d.AddFeat(&Feat{Name: "z"}))
	assert.Error(t, d.AddFeat(&Feat{Name: "u", Get: func() (any, error) { return 1, nil }, Units: "furlong"}))
	assert.Error(t, d.AddDictFeat(&DictFeat{Name: "k", Keys: []any{1, 1.0}, Get: func(any) (any, error) { return 1, nil }}))
}

func TestDriverLifecycle(t *testing.T) {
	var order []string
	closeErr := errors.New("close failed")
	d := NewDriver("dev")
	d.MustAddFeat(&Feat{Name: "x", Get: func() (any, error) { return 1, nil }})
	d.OnInitialize(func() error { order = append(order, "open"); return nil })
	d.OnInitialize(func() error { order = append(order, "prime"); return errors.New("prime failed") })
	d.OnFinalize(func() error { order = append(order, "close-a"); return errors.New("secondary") })
	d.OnFinalize(func() error { order = append(order, "close-b"); return closeErr })

	assert.Error(t, d.Initialize())
	assert.ErrorIs(t, d.Finalize(), closeErr)
	assert.Equal(t, []string{"open", "prime", "close-b", "close-a"}, order)

	assert.NoError(t, d.Finalize())
	assert.Len(t, order, 4)

	_, err := d.Get("x")
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, d.Initialize(), ErrFinalized)
}

type memRecorder struct {
	entries []string
}

func (m *memRecorder) Record(instrument, feature string, key, value any) error {
	m.entries = append(m.entries, instrument+"."+feature)
	return nil
}

func TestDriverRecorderAndDescribe(t *testing.T) {
	rec := &memRecorder{}
	dev := newStubDevice()
	d := NewDriver("daq")
	d.SetRecorder(rec)
	d.MustAddFeat(&Feat{Name: "idn", Get: func() (any, error) { return "T7", nil }, ReadOnce: true})
	d.MustAddDictFeat(&DictFeat{Name: "analog_out", Keys: []any{0, 1}, Get: dev.get, Set: dev.set,
		Units: "V", Limits: Between(0, 5)})
	d.MustAddAction(&Action{Name: "address", Func: func(...any) (any, error) { return 0, nil }})

	require.NoError(t, d.SetIndexed("analog_out", 0, units.Q(1, "V")))
	assert.Error(t, d.SetIndexed("analog_out", 0, units.Q(7, "V")))
	assert.Equal(t, []string{"daq.analog_out"}, rec.entries)

	ds := d.Describe()
	require.Len(t, ds, 3)
	assert.Equal(t, "address", ds[0].Name)
	assert.Equal(t, KindAction, ds[0].Kind)
	assert.Equal(t, "analog_out", ds[1].Name)
	assert.Equal(t, "[0, 5]", ds[1].Limits)
	assert.Equal(t, []any{0, 1}, ds[1].Keys)
	assert.True(t, ds[2].ReadOnly)
	assert.True(t, ds[2].ReadOnce)

	ds[1].Keys[0] = 7
	_, err := d.GetIndexed("analog_out", 0)
	assert.NoError(t, err)
	_, err = d.GetIndexed("analog_out", 7)
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, []any{0, 1}, d.Describe()[1].Keys)

	kind, ok := d.Lookup("analog_out")
	assert.True(t, ok)
	assert.Equal(t, KindDictFeat, kind)
}

func TestDisplacement(t *testing.T) {
	d, err := AsDisplacement(units.Q(3, "um"))
	require.NoError(t, err)
	assert.Equal(t, Distance{units.Q(3, "um")}, d)

	d, err = AsDisplacement(-4)
	require.NoError(t, err)
	assert.Equal(t, RawSteps(-4), d)

	d, err = AsDisplacement(float64(7))
	require.NoError(t, err)
	assert.Equal(t, RawSteps(7), d)

	_, err = AsDisplacement(1.5)
	assert.ErrorIs(t, err, ErrIncompatibleUnit)
	_, err = AsDisplacement("up")
	assert.ErrorIs(t, err, ErrIncompatibleUnit)
}

func TestArgs(t *testing.T) {
	args := []any{"AIN0", 2.0, []any{"DAC0", "DAC1"}, []any{1.5, 2}, []int{0, 2}}

	s, err := ArgString(args, 0)
	require.NoError(t, err)
	assert.Equal(t, "AIN0", s)

	n, err := ArgInt(args, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := ArgStrings(args, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"DAC0", "DAC1"}, names)

	values, err := ArgFloats(args, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2}, values)

	ints, err := ArgInts(args, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, ints)

	_, err = ArgString(args, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ArgInts(args, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ArgFloat(args, 9)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
