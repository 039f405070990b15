package supervisor

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy spaces consecutive cycles. A zero Initial restarts at once.
// A cycle that ran for at least ResetAfter resets the delay.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	ResetAfter time.Duration
}

func (p BackoffPolicy) newBackOff() backoff.BackOff {
	if p.Initial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	if b.MaxInterval < p.Initial {
		b.MaxInterval = p.Initial
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
