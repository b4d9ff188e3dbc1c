package history

import "time"

// Decision is the retry policy verdict for a staged entry.
type Decision int

const (
	// Run means the entry may be handed to the transformer.
	Run Decision = iota
	// Deferred means the last failure is younger than the backoff.
	Deferred
	// Exhausted means the entry used up its attempts.
	Exhausted
)

func (d Decision) String() string {
	switch d {
	case Deferred:
		return "deferred"
	case Exhausted:
		return "exhausted"
	default:
		return "run"
	}
}

// RetryPolicy bounds transformer attempts for entries whose output never
// appears. MaxAttempts of zero disables the bound.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Decide evaluates s at now. It is only consulted for entries that still lack
// output, so every recorded attempt counts against the bound.
func (p RetryPolicy) Decide(s Summary, now time.Time) Decision {
	if s.Attempts == 0 {
		return Run
	}
	if p.MaxAttempts > 0 && s.Attempts >= p.MaxAttempts {
		return Exhausted
	}
	if p.Backoff > 0 && s.LastOutcome == OutcomeFailed && now.Sub(s.LastAttemptAt) < p.Backoff {
		return Deferred
	}
	return Run
}
