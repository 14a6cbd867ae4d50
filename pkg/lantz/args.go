package lantz

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/units"
)

// Float converts a numeric wire value to float64
func Float(v any) (float64, error) {
	if q, ok := asQuantity(v); ok {
		return q.Magnitude, nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, fmt.Errorf("%w: %v (%T) is not a number", ErrInvalidArgument, v, v)
	}
	return f, nil
}

// Int converts a whole numeric value to int
func Int(v any) (int, error) {
	f, err := Float(v)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %v is not a whole number", ErrInvalidArgument, v)
	}
	return int(f), nil
}

func arg(args []any, i int) (any, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i+1)
	}
	return args[i], nil
}

// ArgString returns args[i] as a string
func ArgString(args []any, i int) (string, error) {
	a, err := arg(args, i)
	if err != nil {
		return "", err
	}
	s, ok := a.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d: %v is not a string", ErrInvalidArgument, i+1, a)
	}
	return s, nil
}

// ArgFloat returns args[i] as a float64
func ArgFloat(args []any, i int) (float64, error) {
	a, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	return Float(a)
}

// ArgInt returns args[i] as an int
func ArgInt(args []any, i int) (int, error) {
	a, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	return Int(a)
}

// list accepts typed slices as well as []any, which is what JSON decodes to
func list(args []any, i int) ([]any, error) {
	a, err := arg(args, i)
	if err != nil {
		return nil, err
	}
	switch l := a.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for j := range l {
			out[j] = l[j]
		}
		return out, nil
	case []float64:
		out := make([]any, len(l))
		for j := range l {
			out[j] = l[j]
		}
		return out, nil
	case []int:
		out := make([]any, len(l))
		for j := range l {
			out[j] = l[j]
		}
		return out, nil
	case []units.Quantity:
		out := make([]any, len(l))
		for j := range l {
			out[j] = l[j]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: argument %d: %v is not a list", ErrInvalidArgument, i+1, a)
}

// ArgStrings returns args[i] as a []string
func ArgStrings(args []any, i int) ([]string, error) {
	l, err := list(args, i)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(l))
	for j, v := range l {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: argument %d[%d]: %v is not a string", ErrInvalidArgument, i+1, j, v)
		}
		out[j] = s
	}
	return out, nil
}

// ArgFloats returns args[i] as a []float64
func ArgFloats(args []any, i int) ([]float64, error) {
	l, err := list(args, i)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(l))
	for j, v := range l {
		f, err := Float(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d[%d]: %w", i+1, j, err)
		}
		out[j] = f
	}
	return out, nil
}

// ArgInts returns args[i] as a []int
func ArgInts(args []any, i int) ([]int, error) {
	l, err := list(args, i)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(l))
	for j, v := range l {
		n, err := Int(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d[%d]: %w", i+1, j, err)
		}
		out[j] = n
	}
	return out, nil
}
