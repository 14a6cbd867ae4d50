// Package sim provides in-memory instruments: a LabJack library, a ProScan
// controller and serial lines that answer like the real devices. They back
// sim:// links and the driver tests.
package sim

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/ljm"
)

// MaxSampleRate is the simulated aggregate stream throughput in samples/s
const MaxSampleRate = 100000

var registerName = regexp.MustCompile(`^(AIN|DAC|DIO)(\d+)$`)

type simStream struct {
	scansPerRead int
	scanList     []int
	rate         float64
	stop         chan struct{}
}

// LJM simulates a single T7 behind the LJM library. AIN channels read back
// their register value, which defaults to 0.1 V per channel number.
type LJM struct {
	SerialNumber int

	mu     sync.Mutex
	next   ljm.Handle
	open   map[ljm.Handle]chan struct{}
	regs   map[string]float64
	stream *simStream
	writes int
}

// NewLJM creates a simulated library with one device
func NewLJM() *LJM {
	return &LJM{
		SerialNumber: 470012345,
		open:         make(map[ljm.Handle]chan struct{}),
		regs:         make(map[string]float64),
	}
}

func (l *LJM) checkHandle(h ljm.Handle) error {
	if _, ok := l.open[h]; !ok {
		return fmt.Errorf("%w: ljm handle %d is not open", lantz.ErrTransport, h)
	}
	return nil
}

func (l *LJM) OpenS(deviceType, connectionType, identifier string) (ljm.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if deviceType != ljm.Any && deviceType != "T7" {
		return 0, fmt.Errorf("%w: no %s device found", lantz.ErrTransport, deviceType)
	}
	if identifier != ljm.Any && identifier != strconv.Itoa(l.SerialNumber) {
		return 0, fmt.Errorf("%w: no device with identifier %s", lantz.ErrTransport, identifier)
	}
	l.next++
	l.open[l.next] = make(chan struct{})
	return l.next, nil
}

func (l *LJM) Close(h ljm.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	closed, ok := l.open[h]
	if !ok {
		return fmt.Errorf("%w: ljm handle %d is not open", lantz.ErrTransport, h)
	}
	close(closed)
	delete(l.open, h)
	l.stream = nil
	return nil
}

func (l *LJM) value(name string) (float64, error) {
	if name == "SERIAL_NUMBER" {
		return float64(l.SerialNumber), nil
	}
	if v, ok := l.regs[name]; ok {
		return v, nil
	}
	m := registerName.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: register %s", lantz.ErrNotFound, name)
	}
	n, _ := strconv.Atoi(m[2])
	if m[1] == "AIN" {
		return float64(n) / 10, nil
	}
	return 0, nil
}

func (l *LJM) ReadName(h ljm.Handle, name string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkHandle(h); err != nil {
		return 0, err
	}
	return l.value(name)
}

func (l *LJM) WriteName(h ljm.Handle, name string, value float64) error {
	return l.WriteNames(h, []string{name}, []float64{value})
}

func (l *LJM) WriteNames(h ljm.Handle, names []string, values []float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkHandle(h); err != nil {
		return err
	}
	if len(names) != len(values) {
		return fmt.Errorf("%w: %d names but %d values", lantz.ErrDecode, len(names), len(values))
	}
	for _, n := range names {
		if _, err := l.value(n); err != nil {
			return err
		}
	}
	for i, n := range names {
		l.regs[n] = values[i]
	}
	l.writes++
	return nil
}

// WriteCalls counts WriteName and WriteNames calls that reached the device
func (l *LJM) WriteCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// Register returns the stored value of a register
func (l *LJM) Register(name string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.regs[name]
	return v, ok
}

func (l *LJM) NameToAddress(name string) (int, int, error) {
	if name == "SERIAL_NUMBER" {
		return 60028, ljm.Uint32, nil
	}
	m := registerName.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: register %s", lantz.ErrNotFound, name)
	}
	n, _ := strconv.Atoi(m[2])
	switch m[1] {
	case "AIN":
		return 2 * n, ljm.Float32, nil
	case "DAC":
		return 1000 + 2*n, ljm.Float32, nil
	default:
		return 2000 + n, ljm.Uint16, nil
	}
}

func (l *LJM) NamesToAddresses(names []string) ([]int, []int, error) {
	addrs := make([]int, len(names))
	types := make([]int, len(names))
	for i, n := range names {
		a, t, err := l.NameToAddress(n)
		if err != nil {
			return nil, nil, err
		}
		addrs[i], types[i] = a, t
	}
	return addrs, types, nil
}

func (l *LJM) StreamStart(h ljm.Handle, scansPerRead int, scanList []int, scanRate float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkHandle(h); err != nil {
		return 0, err
	}
	if l.stream != nil {
		return 0, fmt.Errorf("%w: stream already active", lantz.ErrInvalidState)
	}
	rate := scanRate
	if limit := float64(MaxSampleRate) / float64(len(scanList)); rate > limit {
		rate = limit
	}
	l.stream = &simStream{
		scansPerRead: scansPerRead,
		scanList:     append([]int(nil), scanList...),
		rate:         rate,
		stop:         make(chan struct{}),
	}
	return rate, nil
}

// StreamRead waits one batch period and returns the AIN values of the scan list
func (l *LJM) StreamRead(h ljm.Handle) ([]float64, int, int, error) {
	l.mu.Lock()
	if err := l.checkHandle(h); err != nil {
		l.mu.Unlock()
		return nil, 0, 0, err
	}
	closed := l.open[h]
	s := l.stream
	l.mu.Unlock()
	if s == nil {
		return nil, 0, 0, fmt.Errorf("%w: no stream is running", lantz.ErrInvalidState)
	}

	period := time.Duration(float64(s.scansPerRead) / s.rate * float64(time.Second))
	select {
	case <-closed:
		return nil, 0, 0, fmt.Errorf("%w: device closed during stream read", lantz.ErrTransport)
	case <-s.stop:
		return nil, 0, 0, fmt.Errorf("%w: stream stopped during read", lantz.ErrInvalidState)
	case <-time.After(period):
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	data := make([]float64, 0, s.scansPerRead*len(s.scanList))
	for i := 0; i < s.scansPerRead; i++ {
		for _, addr := range s.scanList {
			var v float64
			if addr%2 == 0 && addr < 28 {
				v, _ = l.value(fmt.Sprintf("AIN%d", addr/2))
			}
			data = append(data, v)
		}
	}
	return data, 0, 0, nil
}

func (l *LJM) StreamStop(h ljm.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkHandle(h); err != nil {
		return err
	}
	if l.stream == nil {
		return fmt.Errorf("%w: no stream is running", lantz.ErrInvalidState)
	}
	close(l.stream.stop)
	l.stream = nil
	return nil
}
