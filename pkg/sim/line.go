package sim

import (
	"bytes"
	"io"
	"sync"
)

// Line is an io.ReadWriteCloser that answers every command terminated by
// sendTerm with the reply of respond followed by recvTerm
type Line struct {
	sendTerm string
	recvTerm string
	respond  func(cmd string) string

	mu       sync.Mutex
	in       bytes.Buffer
	out      chan []byte
	leftover []byte
	closed   chan struct{}
	once     sync.Once
	commands []string
}

// NewLine creates a Line serving respond
func NewLine(sendTerm, recvTerm string, respond func(cmd string) string) *Line {
	return &Line{
		sendTerm: sendTerm,
		recvTerm: recvTerm,
		respond:  respond,
		out:      make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (l *Line) Write(b []byte) (int, error) {
	select {
	case <-l.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.in.Write(b)
	for {
		i := bytes.Index(l.in.Bytes(), []byte(l.sendTerm))
		if i < 0 {
			break
		}
		cmd := string(l.in.Next(i))
		l.in.Next(len(l.sendTerm))
		l.commands = append(l.commands, cmd)
		l.out <- []byte(l.respond(cmd) + l.recvTerm)
	}
	return len(b), nil
}

func (l *Line) Read(b []byte) (int, error) {
	if len(l.leftover) == 0 {
		select {
		case r := <-l.out:
			l.leftover = r
		case <-l.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, l.leftover)
	l.leftover = l.leftover[n:]
	return n, nil
}

func (l *Line) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// Commands returns every command received so far
func (l *Line) Commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commands...)
}
