package state

import (
	"path/filepath"
	"testing"

	"github.com/lumasullo/lantz/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T) *State {
	t.Helper()
	s, err := NewState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRead(t *testing.T) {
	s := newState(t)

	require.NoError(t, s.Record("laser", "power_sp", nil, units.Q(750, "mW")))
	require.NoError(t, s.Record("laser", "ctl_mode", nil, "APC"))
	require.NoError(t, s.Record("laser", "power_sp", nil, units.Q(800, "mW")))
	require.NoError(t, s.Record("daq", "analog_out", 1, units.Q(2.5, "V")))

	sps, err := s.SetPoints("laser")
	require.NoError(t, err)
	require.Len(t, sps, 2)
	assert.Equal(t, "ctl_mode", sps[0].Feature)
	assert.Equal(t, "APC", sps[0].Value)

	q, ok := sps[1].Quantity()
	require.True(t, ok)
	assert.Equal(t, units.Q(800, "mW"), q)

	sp, found, err := s.SetPoint("daq", "analog_out", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1.0, sp.Key)
	assert.Equal(t, 2.5, sp.Value)
	assert.Equal(t, "V", sp.Units)
}

func TestMissing(t *testing.T) {
	s := newState(t)

	sps, err := s.SetPoints("nobody")
	require.NoError(t, err)
	assert.Empty(t, sps)

	_, found, err := s.SetPoint("nobody", "x", nil)
	require.NoError(t, err)
	assert.False(t, found)
}
