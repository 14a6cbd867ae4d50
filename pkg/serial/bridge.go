package serial

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/lumasullo/lantz/pkg/lantz"
	log "github.com/sirupsen/logrus"
)

// Bridge relays raw bytes between a local serial device and a TCP peer, so
// instruments on this host can be opened elsewhere with a socket:// link.
// One peer is served at a time; a new connection replaces the previous one.
type Bridge struct {
	Device io.ReadWriteCloser

	mu   sync.Mutex
	peer net.Conn
}

func NewBridge(device io.ReadWriteCloser) *Bridge {
	return &Bridge{Device: device}
}

// OpenBridge opens a device path like Port.Open does, with cfg line settings
func OpenBridge(path string, cfg Config) (*Bridge, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	dev, err := p.openDevice(path)
	if err != nil {
		return nil, err
	}
	log.Infof("bridge: opened %s at %d baud", path, p.cfg.Baud)
	return NewBridge(dev), nil
}

// Serve accepts peers on ln until ctx is done, the listener fails or the
// device fails. It returns nil when ctx ends it. Closing the device is left
// to the caller.
func (b *Bridge) Serve(ctx context.Context, ln net.Listener) error {
	inner, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go b.fromDevice(errc, cancel)
	go func() {
		<-inner.Done()
		ln.Close()
	}()

	var acceptErr error
	for {
		c, err := ln.Accept()
		if err != nil {
			acceptErr = err
			break
		}
		log.Infof("bridge: peer %s connected", c.RemoteAddr())
		b.swap(c)
		go b.toDevice(c)
	}
	b.swap(nil)

	select {
	case err := <-errc:
		return fmt.Errorf("%w: device: %v", lantz.ErrTransport, err)
	default:
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: accept: %v", lantz.ErrTransport, acceptErr)
}

func (b *Bridge) swap(c net.Conn) {
	b.mu.Lock()
	old := b.peer
	b.peer = c
	b.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// fromDevice forwards device output to the current peer; output without a
// peer is dropped
func (b *Bridge) fromDevice(errc chan<- error, cancel context.CancelFunc) {
	buf := make([]byte, readChunk)
	for {
		n, err := b.Device.Read(buf)
		if n > 0 {
			log.Debugf("Read b='%# x', n=%v, err=%v", buf[:n], n, err)
			b.mu.Lock()
			if b.peer != nil {
				if _, werr := b.peer.Write(buf[:n]); werr != nil {
					log.Warnf("bridge: writing to peer %s: %v", b.peer.RemoteAddr(), werr)
					b.peer.Close()
					b.peer = nil
				}
			}
			b.mu.Unlock()
		}
		if err != nil {
			errc <- err
			cancel()
			return
		}
	}
}

func (b *Bridge) toDevice(c net.Conn) {
	defer func() {
		b.mu.Lock()
		if b.peer == c {
			b.peer = nil
		}
		b.mu.Unlock()
		c.Close()
		log.Infof("bridge: peer %s disconnected", c.RemoteAddr())
	}()

	buf := make([]byte, readChunk)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			wn, werr := b.Device.Write(buf[:n])
			log.Debugf("Write b='%# x', n=%v, err=%v", buf[:n], wn, werr)
			if werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
