package store

import "github.com/jonboulle/clockwork"

// Option configures a store.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock sets the clock used for audit timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
