package receiver

import "github.com/ygrebnov/httppipe/internal/wire"

// config holds receiver configuration.
type config struct {
	// WorkerCount is the number of concurrent GET workers.
	// Default: wire.WorkerCount.
	WorkerCount int
}

func defaultConfig() config {
	return config{WorkerCount: wire.WorkerCount}
}

// Option configures a receiver. Use New(endpoint, opts...) to construct one.
type Option func(*config)

// WithWorkerCount overrides the number of concurrent GET workers.
func WithWorkerCount(n int) Option {
	return func(c *config) { c.WorkerCount = n }
}
