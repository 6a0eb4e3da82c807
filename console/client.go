package console

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const clientPollInterval = time.Millisecond

// Exchange sends one command line on ch and collects the response. The response is complete once nothing has
// arrived for quiet
func Exchange(ctx context.Context, ch Channel, line string, quiet time.Duration) (string, error) {
	_, err := ch.Write([]byte(line + "\n"))
	if err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}

	var response strings.Builder
	lastData := time.Now()
	for time.Since(lastData) < quiet {
		for ch.Buffered() > 0 {
			b, err := ch.ReadByte()
			if err != nil {
				break
			}
			response.WriteByte(b)
			lastData = time.Now()
		}

		select {
		case <-ctx.Done():
			return response.String(), ctx.Err()
		case <-time.After(clientPollInterval):
		}
	}

	return response.String(), nil
}
