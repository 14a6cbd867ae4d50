// Package laserquantum contains drivers for Laser Quantum lasers.
package laserquantum

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/serial"
	"github.com/lumasullo/lantz/pkg/units"
)

// VentusLine is the fixed line configuration of the Ventus power supply
var VentusLine = serial.Config{
	Encoding:        "ascii",
	SendTermination: "\r",
	RecvTermination: "\r\n",
	Baud:            19200,
	Size:            8,
	Parity:          serial.ParityNone,
	StopBits:        serial.Stop1,
}

// Ventus drives a Ventus 532 nm 1.5 W laser. The power set point cannot be
// read back from the device; power_sp returns the last value written.
type Ventus struct {
	*lantz.Driver

	port *serial.Port

	powerSP    float64
	powerSPSet bool
}

// OpenVentus connects to the laser at link, a serial device or socket://host:port
func OpenVentus(name, link string, timeout time.Duration) (*Ventus, error) {
	cfg := VentusLine
	cfg.Name, cfg.Timeout = name, timeout
	p, err := serial.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Open(link); err != nil {
		return nil, err
	}
	return newVentus(name, p), nil
}

// NewVentus uses an already open connection
func NewVentus(name string, conn io.ReadWriteCloser) (*Ventus, error) {
	cfg := VentusLine
	cfg.Name = name
	p, err := serial.New(cfg)
	if err != nil {
		return nil, err
	}
	p.Attach(conn)
	return newVentus(name, p), nil
}

func newVentus(name string, p *serial.Port) *Ventus {
	v := &Ventus{Driver: lantz.NewDriver(name), port: p}
	v.define()
	v.OnInitialize(v.primePowerSetPoint)
	v.OnFinalize(p.Close)
	return v
}

// primePowerSetPoint seeds the local set point from the emitted power
func (v *Ventus) primePowerSetPoint() error {
	p, err := v.Get("power")
	if err != nil {
		return err
	}
	return v.Set("power_sp", p)
}

func (v *Ventus) command(format string, args ...any) error {
	_, err := v.port.Query(fmt.Sprintf(format, args...))
	return err
}

// queryNumber parses replies like "1500mW", "25.30C" or "85.0%"
func (v *Ventus) queryNumber(cmd, suffix string) (float64, error) {
	r, err := v.port.Query(cmd)
	if err != nil {
		return 0, err
	}
	s, _, _ := strings.Cut(r, suffix)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s returned %q", lantz.ErrDecode, cmd, r)
	}
	return f, nil
}

func number(v any) (string, error) {
	f, err := lantz.Float(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func (v *Ventus) define() {
	v.MustAddFeat(&lantz.Feat{
		Name:     "idn",
		Doc:      "Identification of the device",
		ReadOnce: true,
		Get:      func() (any, error) { return "Ventus 532 nm, 1.5W", nil },
	})

	v.MustAddFeat(&lantz.Feat{
		Name: "status",
		Doc:  "Status of the interlock circuitry",
		Get:  func() (any, error) { return v.port.Query("STAT?") },
	})

	v.MustAddFeat(&lantz.Feat{
		Name:   "enabled",
		Doc:    "Laser emission",
		Values: lantz.MustValues(map[any]any{true: "ENABLED", false: "DISABLED"}),
		Get:    func() (any, error) { return v.port.Query("STATUS?") },
		Set: func(value any) error {
			if value == "ENABLED" {
				return v.command("ON")
			}
			return v.command("OFF")
		},
	})

	v.MustAddFeat(&lantz.Feat{
		Name:   "ctl_mode",
		Doc:    "Control mode: APC (constant power) or ACC (constant current)",
		Values: lantz.MustValues(map[any]any{"APC": "POWER", "ACC": "CURRENT"}),
		Get:    func() (any, error) { return v.port.Query("CONTROL?") },
		Set:    func(value any) error { return v.command("CONTROL=%v", value) },
	})

	v.MustAddFeat(&lantz.Feat{
		Name:   "current_sp",
		Doc:    "Diode current as a percentage of the maximum; readable in current control mode only",
		Limits: lantz.Between(0, 100),
		Get: func() (any, error) {
			mode, err := v.port.Query("CONTROL?")
			if err != nil {
				return nil, err
			}
			if mode != "CURRENT" {
				return nil, fmt.Errorf("%w: laser not in current mode", lantz.ErrInvalidState)
			}
			return v.queryNumber("CURRENT?", "%")
		},
		Set: func(value any) error {
			n, err := number(value)
			if err != nil {
				return err
			}
			return v.command("CURRENT=%s", n)
		},
	})

	v.MustAddFeat(&lantz.Feat{
		Name:  "power_sp",
		Doc:   "Output power set point in APC mode, returned from the last write",
		Units: "mW",
		Get: func() (any, error) {
			if !v.powerSPSet {
				return nil, fmt.Errorf("%w: power set point unknown before initialize", lantz.ErrInvalidState)
			}
			return v.powerSP, nil
		},
		Set: func(value any) error {
			f, err := lantz.Float(value)
			if err != nil {
				return err
			}
			if err := v.command("POWER=%s", strconv.FormatFloat(f, 'f', -1, 64)); err != nil {
				return err
			}
			v.powerSP = f
			v.powerSPSet = true
			return nil
		},
	})

	v.MustAddFeat(&lantz.Feat{
		Name:  "power",
		Doc:   "Emitted power",
		Units: "mW",
		Get: func() (any, error) {
			r, err := v.port.Query("POWER?")
			if err != nil {
				return nil, err
			}
			s, _, _ := strings.Cut(r, "mW")
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("%w: POWER? returned %q", lantz.ErrDecode, r)
			}
			return n, nil
		},
	})

	v.MustAddFeat(&lantz.Feat{
		Name:  "laser_temp",
		Doc:   "Temperature of the laser head",
		Units: "degC",
		Get:   func() (any, error) { return v.queryNumber("LASTEMP?", "C") },
	})

	v.MustAddFeat(&lantz.Feat{
		Name:  "psu_temp",
		Doc:   "Temperature of the power supply",
		Units: "degC",
		Get:   func() (any, error) { return v.queryNumber("PSUTEMP?", "C") },
	})

	v.MustAddFeat(&lantz.Feat{
		Name: "timers",
		Doc:  "PSU on time, laser enabled time and laser operation time",
		Get: func() (any, error) {
			out := make([]string, 3)
			for i := range out {
				r, err := v.port.Query("TIMERS?")
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		},
	})

	v.MustAddAction(&lantz.Action{
		Name:  "recalibrate",
		Doc:   "Recalibrate the internal power meter to the measured power",
		Units: "mW",
		Func: func(args ...any) (any, error) {
			n, err := number(args[0])
			if err != nil {
				return nil, err
			}
			return nil, v.command("ACTP=%s", n)
		},
	})

	v.MustAddAction(&lantz.Action{
		Name: "store",
		Doc:  "Store the recalibrated power into long term memory",
		Func: func(args ...any) (any, error) {
			return nil, v.command("WRITE")
		},
	})
}

// PowerSetPoint returns the locally tracked power set point
func (v *Ventus) PowerSetPoint() (units.Quantity, bool) {
	p, err := v.Get("power_sp")
	if err != nil {
		return units.Quantity{}, false
	}
	return p.(units.Quantity), true
}
