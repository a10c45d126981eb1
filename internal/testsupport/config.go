package testsupport

import (
	"path/filepath"
	"testing"

	"flowq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxRetries sets how many timeouts the supervisor retries before failing an item.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Supervisor.MaxRetries = n
	}
}

// WithProcessingTimeout sets the global processing timeout in seconds.
func WithProcessingTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Supervisor.ProcessingTimeout = seconds
	}
}

// WithDeadLetterAfter sets the retry count at which failed items are dead-lettered.
func WithDeadLetterAfter(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cleanup.DeadLetterAfter = n
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
