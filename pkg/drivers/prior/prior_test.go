package prior

import (
	"testing"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/sim"
	"github.com/lumasullo/lantz/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNanoScanZ(t *testing.T) (*NanoScanZ, *sim.NanoScanZ, *sim.Line) {
	t.Helper()
	stage := sim.NewNanoScanZ()
	line := stage.Line()
	s, err := NewNanoScanZ("focus", line)
	require.NoError(t, err)
	t.Cleanup(func() { s.Finalize() })
	return s, stage, line
}

func TestNanoScanZFeatures(t *testing.T) {
	s, stage, line := newTestNanoScanZ(t)

	baud, err := s.Get("baudrate")
	require.NoError(t, err)
	assert.Equal(t, 9600, baud)
	require.NoError(t, s.Set("baudrate", 19200))
	assert.Equal(t, 19200, stage.Baud)
	assert.ErrorIs(t, s.Set("baudrate", 4800), lantz.ErrUnmappedValue)

	moving, err := s.Get("moving")
	require.NoError(t, err)
	assert.Equal(t, false, moving)

	for i := 0; i < 2; i++ {
		idn, err := s.Get("idn")
		require.NoError(t, err)
		assert.Equal(t, "Prior Scientific Instruments NanoScanZ 02/03/2015 NZ12345", idn)
	}
	ver, err := s.Get("software_version")
	require.NoError(t, err)
	assert.Equal(t, "2.10", ver)

	assert.Equal(t, []string{"BAUD", "BAUD 19200", "$", "DATE", "SERIAL", "VER"}, line.Commands())
}

func TestNanoScanZPosition(t *testing.T) {
	s, stage, _ := newTestNanoScanZ(t)

	_, err := s.Invoke("move_abs", units.Q(40, "um"))
	require.NoError(t, err)
	assert.Equal(t, 40.0, stage.Position())

	require.NoError(t, s.Set("position", units.Q(0, "um")))
	pos, err := s.Get("position")
	require.NoError(t, err)
	assert.Equal(t, units.Q(0, "um"), pos)
	assert.Equal(t, 40.0, stage.Position())

	_, err = s.Invoke("move_abs", units.Q(0.2, "mm"))
	assert.ErrorIs(t, err, lantz.ErrOutOfRange)
	_, err = s.Invoke("move_abs", 50)
	assert.ErrorIs(t, err, lantz.ErrIncompatibleUnit)

	_, err = s.Invoke("move_abs", units.Q(10, "um"))
	require.NoError(t, err)
	_, err = s.Invoke("go_zero")
	require.NoError(t, err)
	assert.Equal(t, 40.0, stage.Position())
}

func TestNanoScanZMoveRel(t *testing.T) {
	s, stage, line := newTestNanoScanZ(t)
	require.NoError(t, s.Set("step", units.Q(500, "nm")))

	_, err := s.Invoke("move_rel", units.Q(2.5, "um"))
	require.NoError(t, err)
	_, err = s.Invoke("move_rel", units.Q(-1, "um"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, stage.Position())

	_, err = s.Invoke("move_rel", -3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stage.Position())

	cmds := line.Commands()
	assert.Equal(t, []string{"C 0.5", "U 2.5", "D 1", "D", "D", "D"}, cmds)

	_, err = s.Invoke("move_rel", "up")
	assert.ErrorIs(t, err, lantz.ErrIncompatibleUnit)
	_, err = s.Invoke("move_rel", units.Q(1, "V"))
	assert.ErrorIs(t, err, lantz.ErrIncompatibleUnit)
}

func newProScan(t *testing.T) (*ProScanIII, *sim.ProScan) {
	t.Helper()
	ctl := sim.NewProScan()
	p, err := NewProScanIII("zstage", ctl, 12)
	require.NoError(t, err)
	t.Cleanup(func() { p.Finalize() })
	return p, ctl
}

func TestProScanIII(t *testing.T) {
	p, ctl := newProScan(t)

	require.NoError(t, p.Set("z_position", units.Q(-650, "um")))
	pos, err := p.Get("z_position")
	require.NoError(t, err)
	assert.Equal(t, units.Q(-650, "um"), pos)

	assert.ErrorIs(t, p.Set("z_position", units.Q(1.5, "cm")), lantz.ErrOutOfRange)
	assert.Equal(t, 1, ctl.Moves())

	_, err = p.Invoke("z_move_relative", units.Q(0.05, "mm"))
	require.NoError(t, err)
	_, err = p.Invoke("z_move_relative", -100)
	require.NoError(t, err)
	pos, err = p.Get("z_position")
	require.NoError(t, err)
	assert.InDelta(t, -700, pos.(units.Quantity).Magnitude, 1e-9)

	host, err := p.Get("z_host_position")
	require.NoError(t, err)
	assert.Equal(t, "left", host)
	require.NoError(t, p.Set("z_host_position", "right"))
	host, err = p.Get("z_host_position")
	require.NoError(t, err)
	assert.Equal(t, "right", host)

	require.NoError(t, p.Set("z_um_per_revolution", 250))
	rev, err := p.Get("z_um_per_revolution")
	require.NoError(t, err)
	assert.Equal(t, 250.0, rev)
}

func TestProScanIIIFinalizeDisconnects(t *testing.T) {
	p, ctl := newProScan(t)
	assert.True(t, ctl.Connected())

	require.NoError(t, p.Finalize())
	assert.False(t, ctl.Connected())
	assert.NoError(t, p.Finalize())

	_, err := NewProScanIII("bad", sim.NewProScan(), 0)
	assert.ErrorIs(t, err, lantz.ErrTransport)
}

func TestNanoScanZRejectsNonNumericLength(t *testing.T) {
	s, _, line := newTestNanoScanZ(t)

	assert.ErrorIs(t, s.sendUm("V", "far"), lantz.ErrInvalidArgument)
	assert.Empty(t, line.Commands())

	require.NoError(t, s.sendUm("V", units.Q(2.5, "um")))
	assert.Equal(t, []string{"V 2.5"}, line.Commands())
}
