package prior

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/lantz"
)

// Binding is the Z axis interface of the ProScan III controller library.
// Distances are in micrometers.
type Binding interface {
	Connect(port int) error
	DisConnect() error

	Position() (float64, error)
	MoveToAbsolute(um float64) error
	MoveUp(um float64) error
	MoveDown(um float64) error

	MicronsPerMotorRevolution() (float64, error)
	SetMicronsPerMotorRevolution(um float64) error
	HostDirection() (int, error)
	SetHostDirection(d int) error
}

// ProScanIII drives the Z axis of a ProScan III controller
type ProScanIII struct {
	*lantz.Driver

	z Binding
}

// NewProScanIII connects the controller on the given COM port
func NewProScanIII(name string, z Binding, port int) (*ProScanIII, error) {
	if err := z.Connect(port); err != nil {
		return nil, fmt.Errorf("%s: connect COM%d: %w", name, port, err)
	}
	p := &ProScanIII{Driver: lantz.NewDriver(name), z: z}
	p.define()
	p.OnFinalize(z.DisConnect)
	return p, nil
}

func (p *ProScanIII) define() {
	p.MustAddFeat(&lantz.Feat{
		Name:   "z_position",
		Doc:    "Current Z position; setting it moves the stage there",
		Units:  "um",
		Limits: lantz.Between(-10000, 10000),
		Get:    func() (any, error) { return p.z.Position() },
		Set: func(v any) error {
			f, err := lantz.Float(v)
			if err != nil {
				return err
			}
			return p.z.MoveToAbsolute(f)
		},
	})

	p.MustAddFeat(&lantz.Feat{
		Name: "z_um_per_revolution",
		Get:  func() (any, error) { return p.z.MicronsPerMotorRevolution() },
		Set: func(v any) error {
			f, err := lantz.Float(v)
			if err != nil {
				return err
			}
			return p.z.SetMicronsPerMotorRevolution(f)
		},
	})

	p.MustAddFeat(&lantz.Feat{
		Name:   "z_host_position",
		Values: lantz.MustValues(map[any]any{"left": 1, "right": -1}),
		Get:    func() (any, error) { return p.z.HostDirection() },
		Set: func(v any) error {
			d, err := lantz.Int(v)
			if err != nil {
				return err
			}
			return p.z.SetHostDirection(d)
		},
	})

	p.MustAddAction(&lantz.Action{
		Name: "z_move_relative",
		Doc:  "Move Z by a distance; a bare number is taken as micrometers",
		Func: func(args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("%w: z_move_relative needs a displacement", lantz.ErrInvalidArgument)
			}
			d, err := lantz.AsDisplacement(args[0])
			if err != nil {
				return nil, err
			}
			var m float64
			switch d := d.(type) {
			case lantz.Distance:
				if m, err = d.In("um"); err != nil {
					return nil, err
				}
			case lantz.RawSteps:
				m = float64(d)
			}
			switch {
			case m > 0:
				return nil, p.z.MoveUp(m)
			case m < 0:
				return nil, p.z.MoveDown(-m)
			}
			return nil, nil
		},
	})
}
