package inference

import (
	"context"
	"time"
)

// Health is a point-in-time snapshot of backend reachability, polled by
// the autonomous loop's gate (spec §4.1, §4.11).
type Health struct {
	Reachable         bool
	Latency           time.Duration
	ConsecutiveErrors int
	NeedsRestart      bool
}

// CheckHealth issues a minimal, low-token-budget request on the
// slot-agnostic path and records latency without disturbing any worker
// slot's cache state.
func (c *Client) CheckHealth(ctx context.Context) Health {
	result, err := c.Generate(ctx, GenerateRequest{
		Prompt:      "ping",
		Temperature: 0,
		MaxTokens:   1,
		SlotID:      NoSlot,
	})

	return Health{
		Reachable:         err == nil,
		Latency:           result.Latency,
		ConsecutiveErrors: c.ConsecutiveErrors(),
		NeedsRestart:      c.NeedsRestart(),
	}
}
