package instrument

import "github.com/arloliu/go-scpi/logger"

type options struct {
	logger logger.Logger
}

// Option customizes a driver at construction time.
type Option func(*options)

// WithLogger sets the logger used by the driver. Defaults to the package
// default logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

func applyOptions(opts []Option) *options {
	o := &options{logger: logger.GetLogger()}
	for _, opt := range opts {
		opt(o)
	}

	return o
}
