package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lantz", ConfigFile)
	c := NewDefaultConfig(path)
	c.Instruments[1].Timeout = 3 * time.Second
	require.NoError(t, c.Persist(false))

	err := c.Persist(false)
	assert.ErrorAs(t, err, &ErrConfigFileExists{})
	require.NoError(t, c.Persist(true))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c.Instruments, loaded.Instruments)
	assert.Equal(t, DefaultHTTPAddr, loaded.HTTP.Addr)
	assert.Equal(t, path, loaded.Path())

	laser, ok := loaded.Instrument("laser")
	require.True(t, ok)
	assert.Equal(t, "laserquantum.ventus", laser.Driver)
	assert.Equal(t, 3*time.Second, laser.Timeout)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log:
  level: debug
instruments:
  - name: laser
    driver: laserquantum.ventus
    link: /dev/ttyUSB0
    timeout: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, DefaultLogFormat, c.Log.Format)
	require.Len(t, c.Instruments, 1)
	assert.Equal(t, 500*time.Millisecond, c.Instruments[0].Timeout)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
instruments:
  - name: a
    driver: prior.nanoscanz
  - name: a
    driver: prior.proscaniii
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)

	c := &Config{Instruments: []*Instrument{{Name: "x"}}}
	assert.Error(t, c.Validate())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
