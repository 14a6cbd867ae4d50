package laserquantum

import (
	"testing"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/sim"
	"github.com/lumasullo/lantz/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVentus(t *testing.T) (*Ventus, *sim.Ventus, *sim.Line) {
	t.Helper()
	laser := sim.NewVentus()
	line := laser.Line()
	v, err := NewVentus("laser", line)
	require.NoError(t, err)
	t.Cleanup(func() { v.Finalize() })
	return v, laser, line
}

func TestVentusInitializePrimesSetPoint(t *testing.T) {
	v, laser, line := newTestVentus(t)
	laser.Enabled = true
	laser.PowerSP = 750

	_, ok := v.PowerSetPoint()
	assert.False(t, ok)

	require.NoError(t, v.Initialize())
	sp, ok := v.PowerSetPoint()
	require.True(t, ok)
	assert.Equal(t, units.Q(750, "mW"), sp)
	assert.Equal(t, []string{"POWER?", "POWER=750"}, line.Commands())
}

func TestVentusPowerSetPointShadow(t *testing.T) {
	v, _, line := newTestVentus(t)
	require.NoError(t, v.Initialize())
	n := len(line.Commands())

	require.NoError(t, v.Set("power_sp", units.Q(1.25, "W")))
	sp, err := v.Get("power_sp")
	require.NoError(t, err)
	assert.Equal(t, units.Q(1250, "mW"), sp)

	assert.Equal(t, []string{"POWER=1250"}, line.Commands()[n:])

	assert.ErrorIs(t, v.Set("power_sp", 500), lantz.ErrIncompatibleUnit)
}

func TestVentusEnableAndMode(t *testing.T) {
	v, laser, _ := newTestVentus(t)

	on, err := v.Get("enabled")
	require.NoError(t, err)
	assert.Equal(t, false, on)

	require.NoError(t, v.Set("enabled", true))
	assert.True(t, laser.Enabled)
	on, err = v.Get("enabled")
	require.NoError(t, err)
	assert.Equal(t, true, on)

	require.NoError(t, v.Set("ctl_mode", "ACC"))
	mode, err := v.Get("ctl_mode")
	require.NoError(t, err)
	assert.Equal(t, "ACC", mode)
	assert.Equal(t, "CURRENT", laser.Mode)

	assert.ErrorIs(t, v.Set("ctl_mode", "TURBO"), lantz.ErrUnmappedValue)
}

func TestVentusCurrentSetPoint(t *testing.T) {
	v, _, line := newTestVentus(t)

	_, err := v.Get("current_sp")
	assert.ErrorIs(t, err, lantz.ErrInvalidState)

	require.NoError(t, v.Set("ctl_mode", "ACC"))
	require.NoError(t, v.Set("current_sp", 85))
	cur, err := v.Get("current_sp")
	require.NoError(t, err)
	assert.Equal(t, 85.0, cur)

	n := len(line.Commands())
	assert.ErrorIs(t, v.Set("current_sp", 100.5), lantz.ErrOutOfRange)
	assert.Len(t, line.Commands(), n)
}

func TestVentusReadings(t *testing.T) {
	v, laser, _ := newTestVentus(t)
	laser.Enabled = true
	laser.PowerSP = 1500

	p, err := v.Get("power")
	require.NoError(t, err)
	assert.Equal(t, units.Q(1500, "mW"), p)

	temp, err := v.Get("laser_temp")
	require.NoError(t, err)
	assert.Equal(t, units.Q(30.5, "degC"), temp)

	temp, err = v.Get("psu_temp")
	require.NoError(t, err)
	assert.Equal(t, units.Q(25.25, "degC"), temp)

	timers, err := v.Get("timers")
	require.NoError(t, err)
	assert.Len(t, timers, 3)

	idn, err := v.Get("idn")
	require.NoError(t, err)
	assert.Equal(t, "Ventus 532 nm, 1.5W", idn)

	status, err := v.Get("status")
	require.NoError(t, err)
	assert.Equal(t, "Interlock OK", status)

	assert.ErrorIs(t, v.Set("status", "x"), lantz.ErrReadOnly)
}

func TestVentusActions(t *testing.T) {
	v, laser, line := newTestVentus(t)

	_, err := v.Invoke("recalibrate", units.Q(1.5, "W"))
	require.NoError(t, err)
	assert.Equal(t, 1500.0, laser.Actual)

	_, err = v.Invoke("store")
	require.NoError(t, err)
	cmds := line.Commands()
	assert.Equal(t, "WRITE", cmds[len(cmds)-1])
}

func TestVentusFinalizeClosesLine(t *testing.T) {
	v, _, _ := newTestVentus(t)
	require.NoError(t, v.Finalize())
	require.NoError(t, v.Finalize())

	_, err := v.Get("status")
	assert.ErrorIs(t, err, lantz.ErrFinalized)
}

func TestNumber(t *testing.T) {
	n, err := number(units.Q(1.5, "mW"))
	require.NoError(t, err)
	assert.Equal(t, "1.5", n)

	n, err = number(40)
	require.NoError(t, err)
	assert.Equal(t, "40", n)

	_, err = number("lots")
	assert.ErrorIs(t, err, lantz.ErrInvalidArgument)
}
