package player

import "time"

// RetryPolicy bounds how often and how long a track waits for its source before erroring.
type RetryPolicy struct {
	Delays []time.Duration
}

// DefaultRetryPolicy backs off 2s, 5s, then 10s.
var DefaultRetryPolicy = RetryPolicy{Delays: []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}}

// SingleRetry waits once for 3s.
var SingleRetry = RetryPolicy{Delays: []time.Duration{3 * time.Second}}

// Delay returns the wait before retry attempt (1-based), or false when retries are exhausted.
func (p RetryPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(p.Delays) {
		return 0, false
	}
	return p.Delays[attempt-1], true
}

// Attempts is the number of retries the policy allows.
func (p RetryPolicy) Attempts() int { return len(p.Delays) }

// PolicyFromDelays builds a policy from configured delays, falling back to the default when empty.
func PolicyFromDelays(delays []time.Duration) RetryPolicy {
	if len(delays) == 0 {
		return DefaultRetryPolicy
	}
	return RetryPolicy{Delays: append([]time.Duration(nil), delays...)}
}
