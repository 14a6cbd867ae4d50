package sim

import (
	"fmt"
	"sync"

	"github.com/lumasullo/lantz/pkg/lantz"
)

// ProScan simulates the Z axis of a Prior ProScan III controller
type ProScan struct {
	mu        sync.Mutex
	connected bool
	port      int
	position  float64
	umPerRev  float64
	direction int
	moves     int
}

// NewProScan returns a disconnected controller at 0 um
func NewProScan() *ProScan {
	return &ProScan{umPerRev: 100, direction: 1}
}

func (p *ProScan) check() error {
	if !p.connected {
		return fmt.Errorf("%w: controller not connected", lantz.ErrTransport)
	}
	return nil
}

func (p *ProScan) Connect(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port <= 0 {
		return fmt.Errorf("%w: invalid port COM%d", lantz.ErrTransport, port)
	}
	p.connected, p.port = true, port
	return nil
}

func (p *ProScan) DisConnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.connected = false
	return nil
}

func (p *ProScan) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.check()
}

func (p *ProScan) MoveToAbsolute(um float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.position = um
	p.moves++
	return nil
}

func (p *ProScan) MoveUp(um float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.position += um
	p.moves++
	return nil
}

func (p *ProScan) MoveDown(um float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.position -= um
	p.moves++
	return nil
}

func (p *ProScan) MicronsPerMotorRevolution() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.umPerRev, p.check()
}

func (p *ProScan) SetMicronsPerMotorRevolution(um float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.umPerRev = um
	return nil
}

func (p *ProScan) HostDirection() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.direction, p.check()
}

func (p *ProScan) SetHostDirection(d int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.direction = d
	return nil
}

// Moves counts the motion commands received
func (p *ProScan) Moves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves
}

// Connected reports whether Connect was called without a later DisConnect
func (p *ProScan) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}
