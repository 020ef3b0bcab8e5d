package query

import "errors"

var (
	ErrCapExceeded = errors.New("query: safety cap exceeded")
	ErrQuery       = errors.New("query: evaluation error")
	ErrRateLimited = errors.New("query: rate limited")
	ErrNoSuchColl  = errors.New("query: no such collection")
)

// MaxPathDepth, MaxInSetSize, MaxSortFields, MaxProjectionFields, and
// MaxLimit are the safety caps every query must respect.
const (
	MaxPathDepth        = 32
	MaxInSetSize        = 1000
	MaxSortFields       = 8
	MaxProjectionFields = 64
	MaxLimit            = 10000
)

// RetryableRateLimit is returned in place of the bare ErrRateLimited
// sentinel when the limiter can suggest a concrete wait.
type RetryableRateLimit struct {
	RetryAfterMs int64
}

func (e *RetryableRateLimit) Error() string { return "query: rate limited, retry later" }

func (e *RetryableRateLimit) Is(target error) bool { return target == ErrRateLimited }
