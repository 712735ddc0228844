package sender

import "github.com/ygrebnov/httppipe/internal/wire"

// config holds sender configuration.
type config struct {
	// WorkerCount is the number of concurrent PUT workers.
	// Default: wire.WorkerCount.
	WorkerCount int

	// PacketSize is the target payload size of each packet read from stdin.
	// Default: wire.PacketSize.
	PacketSize int

	// ReadBufferSize is the chunk size used when reading stdin.
	// Default: wire.ReadBufferSize.
	ReadBufferSize int
}

func defaultConfig() config {
	return config{
		WorkerCount:    wire.WorkerCount,
		PacketSize:     wire.PacketSize,
		ReadBufferSize: wire.ReadBufferSize,
	}
}

// Option configures a sender. Use New(endpoint, opts...) to construct one.
type Option func(*config)

// WithWorkerCount overrides the number of concurrent PUT workers.
func WithWorkerCount(n int) Option {
	return func(c *config) { c.WorkerCount = n }
}

// WithPacketSize overrides the target per-packet payload size in bytes.
func WithPacketSize(n int) Option {
	return func(c *config) { c.PacketSize = n }
}

// WithReadBufferSize overrides the stdin read chunk size in bytes.
func WithReadBufferSize(n int) Option {
	return func(c *config) { c.ReadBufferSize = n }
}
