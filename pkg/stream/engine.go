// Package stream implements the start/read/stop state machine of buffered
// streaming acquisition over a scan list of channel addresses.
package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// State of an Engine
type State byte

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Streaming:
		return "Streaming"
	}
	return fmt.Sprintf("State(%d)", byte(s))
}

// Backend is the device side of a stream
type Backend interface {
	// Start begins streaming and returns the scan rate the device will use
	Start(scansPerRead int, scanList []int, scanRate float64) (float64, error)
	// Read blocks until one batch of scansPerRead scans is available
	Read() (data []float64, deviceBacklog, hostBacklog int, err error)
	Stop() error
}

// BufferRetainer is implemented by backends that report whether acquired but
// unread data survives Stop
type BufferRetainer interface {
	RetainsBufferOnStop() bool
}

// Batch is one read of scansPerRead scans
type Batch struct {
	Session uuid.UUID `json:"session"`
	Seq     int       `json:"seq"`

	// Data is channel interleaved: scan i, channel j is Data[i*Channels+j]
	Data     []float64 `json:"data"`
	Channels int       `json:"channels"`

	DeviceBacklog int `json:"device_backlog"`
	HostBacklog   int `json:"host_backlog"`
}

// Scans returns the number of scans in the batch
func (b Batch) Scans() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Channel returns the samples of the j-th scan list entry
func (b Batch) Channel(j int) []float64 {
	out := make([]float64, 0, b.Scans())
	for i := j; i < len(b.Data); i += b.Channels {
		out = append(out, b.Data[i])
	}
	return out
}

// Session describes the current or last streaming session
type Session struct {
	ID           uuid.UUID `json:"id"`
	ScanList     []int     `json:"scan_list"`
	ScansPerRead int       `json:"scans_per_read"`
	ScanRate     float64   `json:"scan_rate"`
	ActualRate   float64   `json:"actual_rate"`
	State        string    `json:"state"`
	Batches      int       `json:"batches"`
	Started      time.Time `json:"started"`
}

// Engine guards a Backend with the stream state machine:
// Idle -> Start -> Streaming -> Stop -> Idle. Read is only legal while
// Streaming. The backend is not locked during Read, so Stop or closing the
// device from another goroutine can end a pending read.
type Engine struct {
	name    string
	backend Backend
	log     *log.Entry

	mu      sync.Mutex
	state   State
	session Session

	readLock sync.Mutex
}

// New creates an idle Engine; name labels logs and metrics
func New(name string, b Backend) *Engine {
	return &Engine{
		name:    name,
		backend: b,
		log:     log.WithFields(log.Fields{"instrument": name, "component": "stream"}),
	}
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Running reports whether the engine is Streaming
func (e *Engine) Running() bool {
	return e.State() == Streaming
}

// Session returns a snapshot of the current or last session
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	s.ScanList = append([]int(nil), e.session.ScanList...)
	s.State = e.state.String()
	return s
}

// RetainsBuffer reports whether the backend keeps unread data after Stop.
// Backends that do not declare it are assumed to discard it.
func (e *Engine) RetainsBuffer() bool {
	if r, ok := e.backend.(BufferRetainer); ok {
		return r.RetainsBufferOnStop()
	}
	return false
}

// Start validates the configuration, starts the device and returns the
// negotiated scan rate
func (e *Engine) Start(scansPerRead int, scanList []int, scanRate float64) (float64, error) {
	if len(scanList) == 0 {
		return 0, fmt.Errorf("%w: scan list is empty", lantz.ErrOutOfRange)
	}
	if scanRate <= 0 {
		return 0, fmt.Errorf("%w: scan rate %v must be positive", lantz.ErrOutOfRange, scanRate)
	}
	if scansPerRead <= 0 {
		return 0, fmt.Errorf("%w: scans per read %d must be positive", lantz.ErrOutOfRange, scansPerRead)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Streaming {
		return 0, fmt.Errorf("%w: %s is already streaming (session %s)", lantz.ErrInvalidState, e.name, e.session.ID)
	}

	list := append([]int(nil), scanList...)
	actual, err := e.backend.Start(scansPerRead, list, scanRate)
	if err != nil {
		return 0, err
	}
	if actual <= 0 {
		e.backend.Stop()
		return 0, fmt.Errorf("%w: device negotiated scan rate %v", lantz.ErrDecode, actual)
	}

	e.state = Streaming
	e.session = Session{
		ID:           uuid.New(),
		ScanList:     list,
		ScansPerRead: scansPerRead,
		ScanRate:     scanRate,
		ActualRate:   actual,
		Started:      time.Now(),
	}
	metrics.StreamRunning.WithLabelValues(e.name).Set(1)
	if actual != scanRate {
		e.log.Infof("session %s: requested %v scans/s, device runs at %v", e.session.ID, scanRate, actual)
	} else {
		e.log.Infof("session %s: streaming %d channels at %v scans/s", e.session.ID, len(list), actual)
	}
	return actual, nil
}

// Read blocks until the next batch is available
func (e *Engine) Read() (Batch, error) {
	e.readLock.Lock()
	defer e.readLock.Unlock()

	e.mu.Lock()
	if e.state != Streaming {
		e.mu.Unlock()
		return Batch{}, fmt.Errorf("%w: %s is not streaming", lantz.ErrInvalidState, e.name)
	}
	id := e.session.ID
	channels := len(e.session.ScanList)
	want := e.session.ScansPerRead * channels
	e.mu.Unlock()

	data, devBacklog, hostBacklog, err := e.backend.Read()
	if err != nil {
		return Batch{}, err
	}
	if len(data) != want {
		return Batch{}, fmt.Errorf("%w: batch of %d values, expected %d", lantz.ErrDecode, len(data), want)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Streaming || e.session.ID != id {
		return Batch{}, fmt.Errorf("%w: session %s stopped during read", lantz.ErrInvalidState, id)
	}
	e.session.Batches++
	metrics.StreamScans.WithLabelValues(e.name).Add(float64(len(data) / channels))
	if devBacklog > 0 || hostBacklog > 0 {
		e.log.Debugf("session %s: backlog device=%d host=%d", id, devBacklog, hostBacklog)
	}
	return Batch{
		Session:       id,
		Seq:           e.session.Batches,
		Data:          data,
		Channels:      channels,
		DeviceBacklog: devBacklog,
		HostBacklog:   hostBacklog,
	}, nil
}

// Stop ends the session. Stopping an idle engine is a no-op. The engine is
// Idle afterwards even if the device reports an error.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Streaming {
		return nil
	}
	e.state = Idle
	metrics.StreamRunning.WithLabelValues(e.name).Set(0)
	err := e.backend.Stop()
	if err != nil {
		e.log.Warnf("session %s: stop: %v", e.session.ID, err)
	} else {
		e.log.Infof("session %s: stopped after %d batches", e.session.ID, e.session.Batches)
	}
	return err
}
