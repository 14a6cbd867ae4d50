package lantz

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/units"
)

// Action is a one-shot command. When Units or Limits are set they apply to
// the first argument, which reaches Func as its magnitude in Units. Nothing
// is cached; every Invoke is a fresh device call.
type Action struct {
	Name string
	Doc  string

	Func func(args ...any) (any, error)

	Units  string
	Limits *Limits
}

func (a *Action) validate() error {
	if a.Name == "" {
		return fmt.Errorf("action without name")
	}
	if a.Func == nil {
		return fmt.Errorf("action %s: missing handler", a.Name)
	}
	if a.Units != "" && !units.Known(a.Units) {
		return fmt.Errorf("action %s: %w: %q", a.Name, units.ErrUnknownUnit, a.Units)
	}
	return nil
}

func (a *Action) invoke(args ...any) (any, error) {
	if a.Units != "" || a.Limits != nil {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: action %s needs an argument", ErrInvalidArgument, a.Name)
		}
		x, err := normalize(args[0], a.Units, a.Limits)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name, err)
		}
		args = append([]any{x}, args[1:]...)
	}
	return a.Func(args...)
}
