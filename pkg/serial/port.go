// Package serial implements the line protocol engine used by message based
// instruments: framing with send and receive terminators, a fixed character
// encoding and the write-then-read query round trip.
package serial

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/metrics"
	log "github.com/sirupsen/logrus"
	goserial "github.com/tarm/serial"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Parity and stop bit settings, re-exported so drivers need not import tarm/serial
const (
	ParityNone = goserial.ParityNone
	ParityOdd  = goserial.ParityOdd
	ParityEven = goserial.ParityEven
	Stop1      = goserial.Stop1
	Stop2      = goserial.Stop2
)

// DefaultTimeout bounds Read when Config.Timeout is zero
const DefaultTimeout = 2 * time.Second

const readChunk = 256

// Config is fixed at instrument definition time
type Config struct {
	// Name labels log lines and metrics
	Name string

	// Encoding is one of ascii, utf-8, latin-1 or cp1252
	Encoding        string
	SendTermination string
	RecvTermination string

	Baud     int
	Size     byte
	Parity   goserial.Parity
	StopBits goserial.StopBits
	RTSCTS   bool
	DSRDTR   bool
	XONXOFF  bool

	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.Encoding == "" {
		c.Encoding = "ascii"
	}
	if c.SendTermination == "" {
		c.SendTermination = "\n"
	}
	if c.RecvTermination == "" {
		c.RecvTermination = "\n"
	}
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.Size == 0 {
		c.Size = 8
	}
	if c.Parity == 0 {
		c.Parity = ParityNone
	}
	if c.StopBits == 0 {
		c.StopBits = Stop1
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

type chunk struct {
	b   []byte
	err error
}

// Port is one open line to an instrument, either a local serial device or a
// TCP socket (e.g. a serial-to-ethernet bridge)
type Port struct {
	cfg   Config
	codec encoding.Encoding

	conn         io.ReadWriteCloser
	rlock, wlock sync.Mutex
	qlock        sync.Mutex

	link      string
	connected bool
	Done      chan struct{}

	chunks  chan chunk
	pending []byte
	once    sync.Once

	// stale is set when a read timed out, so a late reply may still arrive
	stale bool
}

// New creates a closed Port. It fails for unknown encodings.
func New(cfg Config) (*Port, error) {
	cfg.defaults()
	p := &Port{cfg: cfg}
	switch cfg.Encoding {
	case "ascii", "utf-8", "utf8":
	case "latin-1", "latin1", "iso-8859-1":
		p.codec = charmap.ISO8859_1
	case "cp1252", "windows-1252":
		p.codec = charmap.Windows1252
	default:
		return nil, fmt.Errorf("serial %s: unsupported encoding %q", cfg.Name, cfg.Encoding)
	}
	return p, nil
}

// Config returns the port configuration with defaults applied
func (p *Port) Config() Config {
	return p.cfg
}

// Open attaches to the instrument via a serial device or a tcp socket.
// Links are device paths (/dev/ttyUSB0, COM3, file:///dev/ttyS0) or
// socket://host:port and tcp://host:port.
func (p *Port) Open(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("%w: %v", lantz.ErrTransport, err)
	}

	var conn io.ReadWriteCloser
	switch u.Scheme {
	case "socket", "tcp":
		c, err := net.DialTimeout("tcp", u.Host, p.cfg.Timeout)
		if err != nil {
			p.transportError("open")
			return fmt.Errorf("%w: %v", lantz.ErrTransport, err)
		}
		c.(*net.TCPConn).SetKeepAlive(true)
		c.(*net.TCPConn).SetKeepAlivePeriod(30 * time.Second)
		conn = c
	case "file", "":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		c, err := p.openDevice(path)
		if err != nil {
			return err
		}
		conn = c
	default:
		return fmt.Errorf("%w: can not find a valid connection string in %q", lantz.ErrTransport, link)
	}
	p.link = link
	p.Attach(conn)
	log.Infof("serial %s: connected to %s", p.cfg.Name, link)
	return nil
}

func (p *Port) openDevice(path string) (io.ReadWriteCloser, error) {
	if p.cfg.RTSCTS || p.cfg.DSRDTR || p.cfg.XONXOFF {
		log.Warnf("serial %s: flow control (rtscts=%v dsrdtr=%v xonxoff=%v) is not applied by the serial backend",
			p.cfg.Name, p.cfg.RTSCTS, p.cfg.DSRDTR, p.cfg.XONXOFF)
	}
	c, err := goserial.OpenPort(&goserial.Config{
		Name:     path,
		Baud:     p.cfg.Baud,
		Size:     p.cfg.Size,
		Parity:   p.cfg.Parity,
		StopBits: p.cfg.StopBits,
	})
	if err != nil {
		p.transportError("open")
		return nil, fmt.Errorf("%w: %v", lantz.ErrTransport, err)
	}
	return c, nil
}

// Attach uses an already open connection, e.g. a stub in tests
func (p *Port) Attach(conn io.ReadWriteCloser) {
	p.rlock.Lock()
	p.wlock.Lock()
	defer p.rlock.Unlock()
	defer p.wlock.Unlock()

	p.conn = conn
	p.connected = true
	p.Done = make(chan struct{})
	p.chunks = make(chan chunk, 16)
	p.pending = nil
	p.once = sync.Once{}
	go p.reader(conn, p.chunks, p.Done)
}

// reader feeds chunks read from conn until it fails or the port closes
func (p *Port) reader(conn io.Reader, out chan<- chunk, done <-chan struct{}) {
	for {
		b := make([]byte, readChunk)
		n, err := conn.Read(b)
		if n > 0 {
			log.Debugf("Read b='%# x', n=%v, err=%v", b[0:n], n, err)
			select {
			case out <- chunk{b: b[:n]}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case out <- chunk{err: err}:
			case <-done:
			}
			return
		}
	}
}

// Close closes the underlying connection. It is safe to call on a port that
// was never opened and a second call is a no-op.
func (p *Port) Close() error {
	var err error
	p.once.Do(func() {
		if p.Done == nil {
			return
		}
		close(p.Done)
		err = p.conn.Close()
		p.wlock.Lock()
		p.connected = false
		p.wlock.Unlock()
		log.Debugf("serial %s: closed", p.cfg.Name)
	})
	if err != nil {
		return fmt.Errorf("%w: close: %v", lantz.ErrTransport, err)
	}
	return nil
}

func (p *Port) transportError(kind string) {
	metrics.TransportErrors.WithLabelValues(p.cfg.Name, kind).Inc()
}

func (p *Port) encode(s string) ([]byte, error) {
	switch {
	case p.codec != nil:
		b, err := p.codec.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: cannot encode %q as %s: %v", lantz.ErrDecode, s, p.cfg.Encoding, err)
		}
		return b, nil
	case p.cfg.Encoding == "ascii":
		for i := 0; i < len(s); i++ {
			if s[i] >= utf8.RuneSelf {
				return nil, fmt.Errorf("%w: %q is not ascii", lantz.ErrDecode, s)
			}
		}
	}
	return []byte(s), nil
}

func (p *Port) decode(b []byte) (string, error) {
	switch {
	case p.codec != nil:
		d, err := p.codec.NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("%w: %v", lantz.ErrDecode, err)
		}
		return string(d), nil
	case p.cfg.Encoding == "ascii":
		for _, c := range b {
			if c >= utf8.RuneSelf {
				return "", fmt.Errorf("%w: non-ascii byte %#x in response", lantz.ErrDecode, c)
			}
		}
	default:
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: invalid utf-8 in response", lantz.ErrDecode)
		}
	}
	return string(b), nil
}

// Write sends command followed by the send terminator
func (p *Port) Write(command string) error {
	b, err := p.encode(command + p.cfg.SendTermination)
	if err != nil {
		p.transportError("encode")
		return err
	}

	p.wlock.Lock()
	defer p.wlock.Unlock()
	if !p.connected {
		return fmt.Errorf("%w: port %s is not open", lantz.ErrTransport, p.cfg.Name)
	}
	n, err := p.conn.Write(b)
	log.Debugf("Write b='%# x', n=%v, err=%v", b, n, err)
	if err != nil {
		p.transportError("write")
		return fmt.Errorf("%w: write: %v", lantz.ErrTransport, err)
	}
	return nil
}

// Read returns the next response with the receive terminator stripped.
// Bytes after the terminator are kept for the next call.
func (p *Port) Read() (string, error) {
	p.rlock.Lock()
	defer p.rlock.Unlock()
	if p.Done == nil {
		return "", fmt.Errorf("%w: port %s is not open", lantz.ErrTransport, p.cfg.Name)
	}

	term := []byte(p.cfg.RecvTermination)
	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()
	for {
		if i := bytes.Index(p.pending, term); i >= 0 {
			frame := p.pending[:i]
			p.pending = append([]byte(nil), p.pending[i+len(term):]...)
			s, err := p.decode(frame)
			if err != nil {
				p.transportError("decode")
			}
			return s, err
		}
		select {
		case <-p.Done:
			return "", fmt.Errorf("%w: port %s closed", lantz.ErrTransport, p.cfg.Name)
		case c := <-p.chunks:
			if c.err != nil {
				p.transportError("read")
				// the reader has exited; keep reporting the failure
				p.chunks <- c
				return "", fmt.Errorf("%w: read: %v", lantz.ErrTransport, c.err)
			}
			p.pending = append(p.pending, c.b...)
		case <-timer.C:
			p.transportError("timeout")
			p.stale = true
			return "", fmt.Errorf("%w: no %q within %v on %s", lantz.ErrTimeout, p.cfg.RecvTermination, p.cfg.Timeout, p.cfg.Name)
		}
	}
}

// discardStale drops input buffered since a timed out read, such as the late
// reply to that query
func (p *Port) discardStale() {
	p.rlock.Lock()
	defer p.rlock.Unlock()
	if !p.stale {
		return
	}
	p.stale = false
	dropped := p.pending
	p.pending = nil
	for {
		select {
		case c := <-p.chunks:
			if c.err != nil {
				p.chunks <- c
				return
			}
			dropped = append(dropped, c.b...)
		default:
			if len(dropped) > 0 {
				log.Debugf("Discard b='%# x', n=%v", dropped, len(dropped))
			}
			return
		}
	}
}

// Query writes command and reads the response; concurrent queries on the
// same port never interleave. Input left over from a timed out query is
// dropped before the command is sent.
func (p *Port) Query(command string) (string, error) {
	p.qlock.Lock()
	defer p.qlock.Unlock()

	start := time.Now()
	defer func() {
		metrics.Queries.WithLabelValues(p.cfg.Name).Inc()
		metrics.QueryDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
	}()

	p.discardStale()
	if err := p.Write(command); err != nil {
		return "", err
	}
	return p.Read()
}
