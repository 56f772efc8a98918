package worker

import "time"

// Backoff returns the delay before retry number attempt (1-based).
type Backoff func(attempt int) time.Duration

// FixedBackoff waits the same delay before every retry.
func FixedBackoff(delay time.Duration) Backoff {
	return func(int) time.Duration {
		return delay
	}
}

// DelayListBackoff uses delays[attempt-1] and repeats the last entry once the
// list is exhausted.
func DelayListBackoff(delays []time.Duration) Backoff {
	list := append([]time.Duration(nil), delays...)
	return func(attempt int) time.Duration {
		return pickRetryDelay(attempt, list)
	}
}

// RetryPolicy bounds how often a dataset that is still being restored is retried.
type RetryPolicy struct {
	MaxRetries int
	Backoff    Backoff
}

// DefaultRetryPolicy retries three times, two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: FixedBackoff(2 * time.Second)}
}

// Next reports the delay before retry number attempt and whether it is allowed.
func (p RetryPolicy) Next(attempt int) (time.Duration, bool) {
	if p.MaxRetries <= 0 || attempt > p.MaxRetries {
		return 0, false
	}
	return p.Delay(attempt), true
}

// Delay is the backoff for attempt, ignoring the retry limit.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	if d := p.Backoff(attempt); d > 0 {
		return d
	}
	return 0
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
