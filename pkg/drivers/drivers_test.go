package drivers

import (
	"testing"

	"github.com/lumasullo/lantz/pkg/config"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSimulated(t *testing.T) {
	for _, inst := range config.NewDefaultConfig(t.TempDir() + "/c.yaml").Instruments {
		t.Run(inst.Driver, func(t *testing.T) {
			i, err := Open(inst)
			require.NoError(t, err)
			require.NoError(t, i.Initialize())
			assert.Equal(t, inst.Name, i.Name())
			assert.NotEmpty(t, i.Describe())
			assert.NoError(t, i.Finalize())
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(&config.Instrument{Name: "x", Driver: "acme.widget"})
	assert.ErrorIs(t, err, lantz.ErrNotFound)

	_, err = Open(&config.Instrument{Name: "daq", Driver: "labjack.t7", Link: "470012345"})
	assert.ErrorIs(t, err, lantz.ErrTransport)

	_, err = Open(&config.Instrument{Name: "z", Driver: "prior.proscaniii", Link: "COMX"})
	assert.ErrorIs(t, err, lantz.ErrTransport)

	_, err = Open(&config.Instrument{Name: "z", Driver: "prior.proscaniii", Link: "COM4"})
	assert.ErrorIs(t, err, lantz.ErrTransport)

	i, err := Open(&config.Instrument{Name: "laser", Driver: "laserquantum.ventus", Link: "/dev/lantz-missing"})
	assert.ErrorIs(t, err, lantz.ErrTransport)
	assert.Nil(t, i)
}

func TestRegister(t *testing.T) {
	Register("test.echo", func(inst *config.Instrument) (lantz.Instrument, error) {
		d := lantz.NewDriver(inst.Name)
		d.MustAddFeat(&lantz.Feat{Name: "link", Get: func() (any, error) { return inst.Link, nil }})
		return d, nil
	})
	assert.Contains(t, Names(), "test.echo")

	i, err := Open(&config.Instrument{Name: "e", Driver: "test.echo", Link: "here"})
	require.NoError(t, err)
	v, err := i.Get("link")
	require.NoError(t, err)
	assert.Equal(t, "here", v)
}

func TestSimulatedLaserEndToEnd(t *testing.T) {
	i, err := Open(&config.Instrument{Name: "laser", Driver: "laserquantum.ventus", Link: SimLink})
	require.NoError(t, err)
	require.NoError(t, i.Initialize())
	defer i.Finalize()

	require.NoError(t, i.Set("enabled", true))
	require.NoError(t, i.Set("power_sp", units.Q(300, "mW")))
	p, err := i.Get("power")
	require.NoError(t, err)
	assert.Equal(t, units.Q(300, "mW"), p)
}
