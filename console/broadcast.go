package console

import (
	"go.uber.org/zap"

	"github.com/calvinmclean/taurino"
)

const newline = "\r\n"

// Broadcaster prints every response on all endpoints so operators on different channels see the same output
type Broadcaster struct {
	endpoints []Endpoint
	logger    *zap.Logger
}

var _ taurino.Printer = &Broadcaster{}

// NewBroadcaster creates a Broadcaster for the endpoints
func NewBroadcaster(logger *zap.Logger, endpoints ...Endpoint) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{endpoints: endpoints, logger: logger}
}

// Println writes msg on a fresh line of every endpoint
func (b *Broadcaster) Println(msg string) {
	b.write(newline + msg)
}

// Prompt starts a fresh input line on every endpoint
func (b *Broadcaster) Prompt() {
	b.write(newline + taurino.Prompt)
}

func (b *Broadcaster) write(s string) {
	for _, e := range b.endpoints {
		_, err := e.Write([]byte(s))
		if err != nil {
			b.logger.Warn("error writing to endpoint", zap.String("endpoint", e.Name), zap.Error(err))
		}
	}
}
