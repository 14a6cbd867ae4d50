// Package drivers builds instruments from configuration entries.
package drivers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lumasullo/lantz/pkg/config"
	"github.com/lumasullo/lantz/pkg/drivers/labjack"
	"github.com/lumasullo/lantz/pkg/drivers/laserquantum"
	"github.com/lumasullo/lantz/pkg/drivers/prior"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/ljm"
	"github.com/lumasullo/lantz/pkg/sim"
)

// SimLink selects the in-memory simulation of a driver
const SimLink = "sim://"

// Factory builds an instrument from its configuration
type Factory func(inst *config.Instrument) (lantz.Instrument, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		"labjack.t7":          openT7,
		"laserquantum.ventus": openVentus,
		"prior.nanoscanz":     openNanoScanZ,
		"prior.proscaniii":    openProScanIII,
	}

	ljmLibrary     ljm.Library
	proScanBinding func() prior.Binding
)

// Register adds or replaces a driver
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// RegisterLJM installs the LabJack library used for non simulated T7 links
func RegisterLJM(lib ljm.Library) {
	mu.Lock()
	defer mu.Unlock()
	ljmLibrary = lib
}

// RegisterProScan installs the constructor of the ProScan controller binding
func RegisterProScan(newBinding func() prior.Binding) {
	mu.Lock()
	defer mu.Unlock()
	proScanBinding = newBinding
}

// Names lists the registered drivers
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open builds the instrument described by inst. The instrument is not
// initialized yet.
func Open(inst *config.Instrument) (lantz.Instrument, error) {
	mu.RLock()
	f, ok := factories[inst.Driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: driver %q (have %s)", lantz.ErrNotFound, inst.Driver, strings.Join(Names(), ", "))
	}
	return f(inst)
}

func isSim(link string) bool {
	return strings.HasPrefix(link, SimLink)
}

func openT7(inst *config.Instrument) (lantz.Instrument, error) {
	if isSim(inst.Link) {
		i, err := labjack.NewT7(inst.Name, sim.NewLJM(), ljm.Any)
		if err != nil {
			return nil, err
		}
		return i, nil
	}
	mu.RLock()
	lib := ljmLibrary
	mu.RUnlock()
	if lib == nil {
		return nil, fmt.Errorf("%w: no LJM library registered for %s", lantz.ErrTransport, inst.Name)
	}
	i, err := labjack.NewT7(inst.Name, lib, inst.Link)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func openVentus(inst *config.Instrument) (lantz.Instrument, error) {
	if isSim(inst.Link) {
		i, err := laserquantum.NewVentus(inst.Name, sim.NewVentus().Line())
		if err != nil {
			return nil, err
		}
		return i, nil
	}
	i, err := laserquantum.OpenVentus(inst.Name, inst.Link, inst.Timeout)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func openNanoScanZ(inst *config.Instrument) (lantz.Instrument, error) {
	if isSim(inst.Link) {
		i, err := prior.NewNanoScanZ(inst.Name, sim.NewNanoScanZ().Line())
		if err != nil {
			return nil, err
		}
		return i, nil
	}
	i, err := prior.OpenNanoScanZ(inst.Name, inst.Link, inst.Timeout)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// openProScanIII accepts links like COM5 or 5
func openProScanIII(inst *config.Instrument) (lantz.Instrument, error) {
	if isSim(inst.Link) {
		i, err := prior.NewProScanIII(inst.Name, sim.NewProScan(), 1)
		if err != nil {
			return nil, err
		}
		return i, nil
	}
	port, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(inst.Link), "COM"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: invalid COM port %q", lantz.ErrTransport, inst.Name, inst.Link)
	}
	mu.RLock()
	newBinding := proScanBinding
	mu.RUnlock()
	if newBinding == nil {
		return nil, fmt.Errorf("%w: no ProScan binding registered for %s", lantz.ErrTransport, inst.Name)
	}
	i, err := prior.NewProScanIII(inst.Name, newBinding(), port)
	if err != nil {
		return nil, err
	}
	return i, nil
}
