package units

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixConversionIsExact(t *testing.T) {
	a, err := Q(5, "mV").In("V")
	require.NoError(t, err)
	b, err := Q(0.005, "V").In("V")
	require.NoError(t, err)
	assert.Equal(t, b, a)

	um, err := Q(1.5, "mm").In("um")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, um)

	mw, err := Q(1.5, "W").In("mW")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, mw)
}

func TestAliases(t *testing.T) {
	v, err := Q(2, "volts").In("mV")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, v)

	m, err := Q(3, "micrometer").In("um")
	require.NoError(t, err)
	assert.Equal(t, 3.0, m)
}

func TestTemperatureOffset(t *testing.T) {
	k, err := Q(25, "degC").In("K")
	require.NoError(t, err)
	assert.InDelta(t, 298.15, k, 1e-9)

	c, err := Q(273.15, "K").In("degC")
	require.NoError(t, err)
	assert.InDelta(t, 0, c, 1e-9)
}

func TestIncompatible(t *testing.T) {
	_, err := Q(1, "V").In("mW")
	assert.ErrorIs(t, err, ErrIncompatibleUnit)

	_, err = Q(1, "furlong").In("m")
	assert.ErrorIs(t, err, ErrUnknownUnit)

	assert.True(t, Compatible("mV", "kV"))
	assert.False(t, Compatible("mV", "um"))
}

func TestCompare(t *testing.T) {
	c, err := Q(1, "V").Compare(Q(999, "mV"))
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = Q(1, "V").Compare(Q(1000, "mV"))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	_, err = Q(1, "V").Compare(Q(1, "s"))
	assert.ErrorIs(t, err, ErrIncompatibleUnit)
}

func TestParse(t *testing.T) {
	cases := map[string]Quantity{
		"5 mV":     Q(5, "mV"),
		"5mV":      Q(5, "mV"),
		"-12.5 um": Q(-12.5, "um"),
		"1e3 Hz":   Q(1000, "Hz"),
		"20 degC":  Q(20, "degC"),
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Parse("5 parsecs")
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, err = Parse("mV")
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(Q(5, "mV"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"magnitude":5,"units":"mV"}`, string(b))

	var q Quantity
	require.NoError(t, json.Unmarshal([]byte(`{"magnitude":1.5,"units":"um"}`), &q))
	assert.Equal(t, Q(1.5, "um"), q)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"magnitude":1,"units":"bogus"}`), &q), ErrUnknownUnit)
}
