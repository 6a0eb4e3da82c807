package console

import (
	"context"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultTick is the control loop period
	DefaultTick = time.Millisecond

	// MaxLineLength bounds a line buffer. Bytes past it are dropped until the line is completed
	MaxLineLength = 256

	backspace = 8
	del       = 127
	echoErase = "\b \b"
)

// Handler runs a complete input line
type Handler interface {
	Execute(ctx context.Context, line string)
}

// Advancer is stepped once per control loop tick
type Advancer interface {
	Advance()
}

// Session owns the input channels. It assembles a line buffer per channel and hands complete lines to the
// Handler
type Session struct {
	endpoints []Endpoint
	buffers   [][]byte
	closed    []bool

	handler Handler
	out     *Broadcaster
	logger  *zap.Logger
}

// NewSession creates a Session reading from endpoints. Responses and prompts are written with out, which
// normally broadcasts to the same endpoints
func NewSession(handler Handler, out *Broadcaster, logger *zap.Logger, endpoints ...Endpoint) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		endpoints: endpoints,
		buffers:   make([][]byte, len(endpoints)),
		closed:    make([]bool, len(endpoints)),
		handler:   handler,
		out:       out,
		logger:    logger,
	}
}

// Run prints the first prompt and then polls input and advances motion every tick until ctx is cancelled
func (s *Session) Run(ctx context.Context, advancer Advancer, tick time.Duration) error {
	if tick <= 0 {
		tick = DefaultTick
	}

	s.out.Prompt()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		s.Poll(ctx)
		advancer.Advance()

		select {
		case <-ctx.Done():
			s.logger.Debug("session stopped", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
		}
	}
}

// Poll consumes all bytes that are available on every endpoint without blocking
func (s *Session) Poll(ctx context.Context) {
	for i := range s.endpoints {
		if s.closed[i] {
			continue
		}
		s.poll(ctx, i)
	}
}

func (s *Session) poll(ctx context.Context, i int) {
	e := s.endpoints[i]
	// io.EOF can arrive with nothing buffered
	for {
		b, err := e.ReadByte()
		if err == io.EOF {
			s.logger.Info("endpoint closed", zap.String("endpoint", e.Name))
			s.closed[i] = true
			return
		}
		if err != nil {
			return
		}

		s.handleByte(ctx, i, b)
	}
}

func (s *Session) handleByte(ctx context.Context, i int, b byte) {
	e := s.endpoints[i]

	switch b {
	case backspace, del:
		if len(s.buffers[i]) == 0 {
			return
		}
		s.buffers[i] = s.buffers[i][:len(s.buffers[i])-1]
		s.echo(e, echoErase)
	case '\n', '\r', ';':
		if len(s.buffers[i]) == 0 {
			return
		}
		line := string(s.buffers[i])
		s.buffers[i] = s.buffers[i][:0]

		s.logger.Debug("received line", zap.String("endpoint", e.Name), zap.String("line", line))
		s.handler.Execute(ctx, line)
		s.out.Prompt()
	default:
		if len(s.buffers[i]) >= MaxLineLength {
			return
		}
		s.buffers[i] = append(s.buffers[i], b)
		s.echo(e, string(b))
	}
}

func (s *Session) echo(e Endpoint, str string) {
	if e.NoEcho {
		return
	}
	_, err := e.Write([]byte(str))
	if err != nil {
		s.logger.Warn("error echoing input", zap.String("endpoint", e.Name), zap.Error(err))
	}
}

// Close closes every endpoint whose Channel is an io.Closer
func (s *Session) Close() error {
	return CloseAll(s.endpoints...)
}

// CloseAll closes every endpoint whose Channel is an io.Closer and combines the errors
func CloseAll(endpoints ...Endpoint) error {
	var err error
	for _, e := range endpoints {
		c, ok := e.Channel.(io.Closer)
		if !ok {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	return err
}
