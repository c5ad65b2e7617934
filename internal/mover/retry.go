package mover

// RetryPolicy runs an operation up to MaxTries times, invoking the
// cleanup hook after every failed attempt. Retries are immediate, the
// operations here are local filesystem work where backoff buys nothing.
type RetryPolicy struct {
	MaxTries int
	// OnFailure cleans up after a failed attempt, e.g. removing a
	// corrupt partial copy. May be nil.
	OnFailure func(attempt int, err error)
}

// Do runs op until it succeeds or MaxTries is exhausted, returning the
// last error. Attempts are numbered from 1.
func (p RetryPolicy) Do(op func(attempt int) error) error {
	tries := p.MaxTries
	if tries < 1 {
		tries = 1
	}
	var err error
	for attempt := 1; attempt <= tries; attempt++ {
		err = op(attempt)
		if err == nil {
			return nil
		}
		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}
	}
	return err
}
