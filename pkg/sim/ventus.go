package sim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Ventus simulates the command set of a Laser Quantum Ventus laser
type Ventus struct {
	mu       sync.Mutex
	Enabled  bool
	Mode     string
	Current  float64
	PowerSP  float64
	Actual   float64
	LaserT   float64
	PSUT     float64
	timerIdx int
}

// NewVentus returns a laser that is disabled, in power mode, set to 100 mW
func NewVentus() *Ventus {
	return &Ventus{Mode: "POWER", Current: 50, PowerSP: 100, LaserT: 30.5, PSUT: 25.25}
}

var ventusTimers = []string{
	"PSU Time = 1234.5 Hours",
	"Laser Enabled Time = 345.5 Hours",
	"Laser Operation Time = 300.0 Hours",
}

// Line returns a serial line answering like the laser
func (v *Ventus) Line() *Line {
	return NewLine("\r", "\r\n", v.Respond)
}

// Respond answers a single command
func (v *Ventus) Respond(cmd string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if name, arg, ok := strings.Cut(cmd, "="); ok {
		f, err := strconv.ParseFloat(arg, 64)
		switch {
		case name == "CONTROL" && (arg == "POWER" || arg == "CURRENT"):
			v.Mode = arg
		case err != nil:
			return "ERROR"
		case name == "CURRENT":
			v.Current = f
		case name == "POWER":
			v.PowerSP = f
		case name == "ACTP":
			v.Actual = f
		default:
			return "ERROR"
		}
		return "OK"
	}
	switch cmd {
	case "STAT?":
		return "Interlock OK"
	case "STATUS?":
		if v.Enabled {
			return "ENABLED"
		}
		return "DISABLED"
	case "ON":
		v.Enabled = true
		return "OK"
	case "OFF":
		v.Enabled = false
		return "OK"
	case "CONTROL?":
		return v.Mode
	case "CURRENT?":
		return strconv.FormatFloat(v.Current, 'f', 1, 64) + "%"
	case "POWER?":
		if !v.Enabled {
			return "0mW"
		}
		return fmt.Sprintf("%dmW", int(v.PowerSP))
	case "LASTEMP?":
		return strconv.FormatFloat(v.LaserT, 'f', 2, 64) + "C"
	case "PSUTEMP?":
		return strconv.FormatFloat(v.PSUT, 'f', 2, 64) + "C"
	case "TIMERS?":
		t := ventusTimers[v.timerIdx%len(ventusTimers)]
		v.timerIdx++
		return t
	case "WRITE":
		return "OK"
	}
	return "ERROR"
}
