package sim

import (
	"strconv"
	"strings"
	"sync"
)

// NanoScanZ simulates a Prior NanoScanZ piezo focusing stage. Positions
// are in micrometers.
type NanoScanZ struct {
	mu       sync.Mutex
	Baud     int
	Absolute float64
	Offset   float64
	Step     float64
	Moving   bool
}

// NewNanoScanZ returns a stage at 0 um with a 0.1 um step
func NewNanoScanZ() *NanoScanZ {
	return &NanoScanZ{Baud: 9600, Step: 0.1}
}

// Line returns a serial line answering like the stage
func (s *NanoScanZ) Line() *Line {
	return NewLine("\r", "\r", s.Respond)
}

func formatUm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Respond answers a single command
func (s *NanoScanZ) Respond(cmd string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, arg, hasArg := strings.Cut(cmd, " ")
	var x float64
	if hasArg {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "E,4"
		}
		x = f
	}
	switch name {
	case "BAUD":
		if !hasArg {
			return strconv.Itoa(s.Baud)
		}
		s.Baud = int(x)
		return "0"
	case "$":
		if s.Moving {
			return "4"
		}
		return "0"
	case "DATE":
		return "Prior Scientific Instruments NanoScanZ 02/03/2015"
	case "SERIAL":
		return "NZ12345"
	case "VER":
		return "2.10"
	case "PZ":
		if !hasArg {
			return formatUm(s.Absolute - s.Offset)
		}
		s.Offset = s.Absolute - x
		return "0"
	case "C":
		if !hasArg {
			return formatUm(s.Step)
		}
		s.Step = x
		return "0"
	case "M":
		s.Absolute = s.Offset
		return "R"
	case "V":
		s.Absolute = x
		return "R"
	case "U", "D":
		d := s.Step
		if hasArg {
			d = x
		}
		if name == "D" {
			d = -d
		}
		s.Absolute += d
		return "R"
	}
	return "E,1"
}

// Position returns the absolute stage position
func (s *NanoScanZ) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Absolute
}
