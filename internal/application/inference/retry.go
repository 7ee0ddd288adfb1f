package inference

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// settleDelay is the extra pause inserted before a retried attempt once
// cache_prompt has been forced off, giving the backend a moment to drop
// the stale prefix cache for that slot (spec §4.1).
const settleDelay = 250 * time.Millisecond

// IsWorkerSlot reports whether slotID addresses one of the W worker
// slots [0, workerCount) as opposed to a management slot (spec §4.1,
// §5: worker k always uses slot k; evaluator/task-generator/memory use
// dedicated slots outside that range).
func IsWorkerSlot(slotID, workerCount int) bool {
	return slotID >= 0 && slotID < workerCount
}

// GenerateWithRetry runs Generate under the spec's fixed retry policy:
// three attempts, exponential backoff doubling from a 1s base (the wait
// doubled again after a connection error; a 503 gets the plain schedule), with
// cache_prompt forced false (plus a settle delay) on every retried
// attempt regardless of what the caller originally requested. After the
// retry budget is exhausted it returns a sentinel content value rather
// than surfacing the final error, so a caller can treat the miss as "no
// content" without special-casing error types (spec §4.1).
func (c *Client) GenerateWithRetry(ctx context.Context, req GenerateRequest) GenerateResult {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptReq := req
		if attempt > 1 {
			attemptReq.CachePrompt = false
			select {
			case <-ctx.Done():
				return GenerateResult{Content: NoContentSentinel}
			case <-time.After(settleDelay):
			}
		}

		result, err := c.Generate(ctx, attemptReq)
		if err == nil {
			return result
		}
		lastErr = err

		log.Warn().
			Err(err).
			Int("slot_id", req.SlotID).
			Int("attempt", attempt).
			Msg("inference generate failed, backing off")

		if attempt == maxAttempts {
			break
		}

		delay := backoff
		if strings.Contains(err.Error(), "connection error") {
			delay *= 2
		}
		select {
		case <-ctx.Done():
			return GenerateResult{Content: NoContentSentinel}
		case <-time.After(delay):
		}
		backoff *= 2
	}

	_ = lastErr
	return GenerateResult{Content: NoContentSentinel}
}
