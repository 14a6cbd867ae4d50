// Package prior contains drivers for Prior Scientific stages.
package prior

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/serial"
)

// NanoScanZLine is the fixed line configuration of the NanoScanZ controller
var NanoScanZLine = serial.Config{
	Encoding:        "ascii",
	SendTermination: "\r",
	RecvTermination: "\r",
	Baud:            9600,
	Size:            8,
	Parity:          serial.ParityNone,
	StopBits:        serial.Stop1,
}

// NanoScanZ drives the NanoScanZ nano focusing piezo stage. Positions are
// in micrometers.
type NanoScanZ struct {
	*lantz.Driver

	port *serial.Port
}

// OpenNanoScanZ connects to the stage at link, a serial device or socket://host:port
func OpenNanoScanZ(name, link string, timeout time.Duration) (*NanoScanZ, error) {
	cfg := NanoScanZLine
	cfg.Name, cfg.Timeout = name, timeout
	p, err := serial.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Open(link); err != nil {
		return nil, err
	}
	return newNanoScanZ(name, p), nil
}

// NewNanoScanZ uses an already open connection
func NewNanoScanZ(name string, conn io.ReadWriteCloser) (*NanoScanZ, error) {
	cfg := NanoScanZLine
	cfg.Name = name
	p, err := serial.New(cfg)
	if err != nil {
		return nil, err
	}
	p.Attach(conn)
	return newNanoScanZ(name, p), nil
}

func newNanoScanZ(name string, p *serial.Port) *NanoScanZ {
	s := &NanoScanZ{Driver: lantz.NewDriver(name), port: p}
	s.define()
	s.OnFinalize(p.Close)
	return s
}

func (s *NanoScanZ) query(format string, args ...any) (string, error) {
	return s.port.Query(fmt.Sprintf(format, args...))
}

func (s *NanoScanZ) queryFloat(cmd string) (any, error) {
	r, err := s.port.Query(cmd)
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s returned %q", lantz.ErrDecode, cmd, r)
	}
	return f, nil
}

// sendUm sends cmd with a length in micrometers as its argument
func (s *NanoScanZ) sendUm(cmd string, v any) error {
	f, err := lantz.Float(v)
	if err != nil {
		return err
	}
	_, err = s.query("%s %s", cmd, strconv.FormatFloat(f, 'f', -1, 64))
	return err
}

func (s *NanoScanZ) define() {
	s.MustAddFeat(&lantz.Feat{
		Name:   "baudrate",
		Doc:    "Baud rate of the controller; do not change it when daisy chained to a ProScan",
		Values: lantz.MustValueSet(9600, 19200, 38400),
		Get: func() (any, error) {
			r, err := s.port.Query("BAUD")
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(strings.TrimSpace(r))
			if err != nil {
				return nil, fmt.Errorf("%w: BAUD returned %q", lantz.ErrDecode, r)
			}
			return n, nil
		},
		Set: func(v any) error {
			_, err := s.query("BAUD %v", v)
			return err
		},
	})

	s.MustAddFeat(&lantz.Feat{
		Name:   "moving",
		Doc:    "Movement status",
		Values: lantz.MustValues(map[any]any{true: "4", false: "0"}),
		Get:    func() (any, error) { return s.port.Query("$") },
	})

	s.MustAddFeat(&lantz.Feat{
		Name:     "idn",
		Doc:      "Identification of the device",
		ReadOnce: true,
		Get: func() (any, error) {
			date, err := s.port.Query("DATE")
			if err != nil {
				return nil, err
			}
			sn, err := s.port.Query("SERIAL")
			if err != nil {
				return nil, err
			}
			return date + " " + sn, nil
		},
	})

	s.MustAddFeat(&lantz.Feat{
		Name: "position",
		Doc: "Current position. Setting it redefines the current position " +
			"(relative display mode) without moving the stage",
		Units: "um",
		Get:   func() (any, error) { return s.queryFloat("PZ") },
		Set:   func(v any) error { return s.sendUm("PZ", v) },
	})

	s.MustAddFeat(&lantz.Feat{
		Name:  "step",
		Doc:   "Default step size of relative moves given in steps",
		Units: "um",
		Get:   func() (any, error) { return s.queryFloat("C") },
		Set:   func(v any) error { return s.sendUm("C", v) },
	})

	s.MustAddFeat(&lantz.Feat{
		Name:     "software_version",
		ReadOnce: true,
		Get:      func() (any, error) { return s.port.Query("VER") },
	})

	s.MustAddAction(&lantz.Action{
		Name: "go_zero",
		Doc:  "Move to zero including any position redefinition",
		Func: func(args ...any) (any, error) {
			_, err := s.port.Query("M")
			return nil, err
		},
	})

	s.MustAddAction(&lantz.Action{
		Name:   "move_abs",
		Doc:    "Move to an absolute position, independent of any position redefinition",
		Units:  "um",
		Limits: lantz.Below(100),
		Func: func(args ...any) (any, error) {
			return nil, s.sendUm("V", args[0])
		},
	})

	s.MustAddAction(&lantz.Action{
		Name: "move_rel",
		Doc: "Move relative to the current position by a distance, or by a " +
			"number of steps of the size given by the step feature",
		Func: func(args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("%w: move_rel needs a displacement", lantz.ErrInvalidArgument)
			}
			d, err := lantz.AsDisplacement(args[0])
			if err != nil {
				return nil, err
			}
			return nil, s.moveRel(d)
		},
	})
}

func (s *NanoScanZ) moveRel(d lantz.Displacement) error {
	switch d := d.(type) {
	case lantz.Distance:
		m, err := d.In("um")
		if err != nil {
			return err
		}
		switch {
		case m > 0:
			err = s.sendUm("U", m)
		case m < 0:
			err = s.sendUm("D", -m)
		}
		return err
	case lantz.RawSteps:
		cmd, n := "U", int(d)
		if n < 0 {
			cmd, n = "D", -n
		}
		for i := 0; i < n; i++ {
			if _, err := s.port.Query(cmd); err != nil {
				return err
			}
		}
	}
	return nil
}
