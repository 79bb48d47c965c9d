package storage

import "github.com/rs/zerolog"

type options struct {
	log zerolog.Logger
}

// Option configures a store.
type Option func(*options)

// WithLogger sets the logger used for recovery warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
