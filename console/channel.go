// Package console runs the operator side of the control loop: it reads bytes from every input channel,
// assembles lines with backspace editing, hands them to an interpreter and broadcasts every response
package console

import (
	"errors"
	"io"
)

// ErrNoData is returned by ReadByte when nothing is buffered
var ErrNoData = errors.New("no data available")

// Channel is a byte stream an operator types commands into. *machine.UART satisfies it on TinyGo
type Channel interface {
	io.Writer
	// Buffered is the number of bytes that can be read without blocking
	Buffered() int
	// ReadByte fails when nothing is buffered and returns io.EOF once input has ended
	ReadByte() (byte, error)
}

// Endpoint is a named Channel
type Endpoint struct {
	Name string
	// NoEcho is set for terminals that already echo what the operator types
	NoEcho bool
	Channel
}

// StreamChannel turns a blocking reader into a polled Channel. A goroutine copies bytes from the reader into a
// bounded queue which the control loop drains without blocking
type StreamChannel struct {
	w      io.Writer
	closer io.Closer
	queue  chan byte
	done   chan struct{}
}

const streamQueueSize = 1024

// NewStreamChannel starts reading r. If r also implements io.Closer, Close closes it
func NewStreamChannel(r io.Reader, w io.Writer) *StreamChannel {
	s := &StreamChannel{
		w:     w,
		queue: make(chan byte, streamQueueSize),
		done:  make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}

	go s.pump(r)

	return s
}

func (s *StreamChannel) pump(r io.Reader) {
	defer close(s.queue)

	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			select {
			case s.queue <- b:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Buffered implements Channel
func (s *StreamChannel) Buffered() int {
	return len(s.queue)
}

// ReadByte implements Channel. It returns io.EOF once the reader is exhausted and the queue is drained
func (s *StreamChannel) ReadByte() (byte, error) {
	select {
	case b, ok := <-s.queue:
		if !ok {
			return 0, io.EOF
		}
		return b, nil
	default:
		return 0, ErrNoData
	}
}

// Write implements Channel
func (s *StreamChannel) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// Close stops the reader goroutine and closes the underlying reader when possible
func (s *StreamChannel) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
