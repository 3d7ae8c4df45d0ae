package queue

import "time"

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second

	maxBackoff = time.Hour
)

// Policy controls redelivery of a failed job.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BackoffBase: DefaultBackoffBase}
}

// normalized fills zero fields with defaults.
func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	return p
}

// Delay returns base * 2^(attempt-1), capped at one hour.
func Delay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
