package lantz

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueMapRoundTrip(t *testing.T) {
	vm := MustValues(map[any]any{true: "ENABLED", false: "DISABLED"})

	for _, d := range []any{true, false} {
		w, err := vm.ToWire(d)
		require.NoError(t, err)
		back, err := vm.FromWire(w)
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}

func TestValueMapNumericKeys(t *testing.T) {
	vm := MustValues(map[any]any{"left": 1, "right": -1})

	d, err := vm.FromWire(float64(-1))
	require.NoError(t, err)
	assert.Equal(t, "right", d)

	d, err = vm.FromWire(int32(1))
	require.NoError(t, err)
	assert.Equal(t, "left", d)
}

func TestValueMapUnmapped(t *testing.T) {
	vm := MustValueSet(9600, 19200, 38400)

	_, err := vm.ToWire(4800)
	assert.ErrorIs(t, err, ErrUnmappedValue)

	_, err = vm.FromWire("garbage")
	assert.ErrorIs(t, err, ErrUnmappedValue)

	w, err := vm.ToWire(19200.0)
	require.NoError(t, err)
	assert.Equal(t, 19200, w)
}

func TestValueMapUnhashable(t *testing.T) {
	vm := MustValues(map[any]any{"APC": "POWER", "ACC": "CURRENT"})

	_, err := vm.ToWire([]any{"APC"})
	assert.ErrorIs(t, err, ErrUnmappedValue)
	_, err = vm.ToWire(map[string]any{"APC": true})
	assert.ErrorIs(t, err, ErrUnmappedValue)
	_, err = vm.FromWire([]byte("POWER"))
	assert.ErrorIs(t, err, ErrUnmappedValue)

	_, err = ValueSet([]int{1}, 2)
	assert.Error(t, err)
	_, err = NewValueMap(map[any]any{"raw": []byte{1}})
	assert.Error(t, err)
}

func TestValueMapRejectsAmbiguous(t *testing.T) {
	_, err := NewValueMap(map[any]any{"a": 1, "b": 1.0})
	assert.Error(t, err)

	_, err = NewValueMap(map[any]any{})
	assert.Error(t, err)

	_, err = ValueSet(1, 1)
	assert.Error(t, err)
}

func TestLimits(t *testing.T) {
	l := Between(0, 5)
	assert.NoError(t, l.Check(0))
	assert.NoError(t, l.Check(5))
	assert.ErrorIs(t, l.Check(-1e-9), ErrOutOfRange)
	assert.ErrorIs(t, l.Check(5+1e-9), ErrOutOfRange)
	assert.ErrorIs(t, l.Check(math.NaN()), ErrOutOfRange)
	assert.ErrorIs(t, l.Check(math.Inf(1)), ErrOutOfRange)
	assert.Equal(t, "[0, 5]", l.String())

	u := Below(100)
	assert.NoError(t, u.Check(-1000))
	assert.NoError(t, u.Check(100))
	assert.ErrorIs(t, u.Check(100.5), ErrOutOfRange)
	assert.ErrorIs(t, u.Check(math.NaN()), ErrOutOfRange)
	assert.Equal(t, "(, 100]", u.String())

	var none *Limits
	assert.NoError(t, none.Check(1e12))
}
