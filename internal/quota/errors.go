package quota

import (
	"errors"
	"fmt"
	"time"
)

// ErrForbidden covers capability/organization mismatches.
var ErrForbidden = errors.New("forbidden")

// ExceededError reports an exhausted quota with enough structure for a
// client to implement backoff or an upgrade prompt without further calls.
type ExceededError struct {
	Message    string
	UsageCount int64
	Limit      int64
	// ResetTime is set for rolling-window quotas (guests). Organization
	// ledgers have no window, so it stays nil there.
	ResetTime *time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d", e.UsageCount, e.Limit)
}

// Remaining is the number of calls left, never negative.
func (e *ExceededError) Remaining() int64 {
	if e.UsageCount >= e.Limit {
		return 0
	}
	return e.Limit - e.UsageCount
}

// AsExceeded unwraps an ExceededError when err carries one.
func AsExceeded(err error) *ExceededError {
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		return exceeded
	}
	return nil
}
