package config

const (
	defaultDataDir            = "~/.local/share/flowq"
	defaultLogDir             = "~/.local/share/flowq/logs"
	defaultAPIBind            = "127.0.0.1:7611"
	defaultMaxParallel        = 1
	defaultPriority           = 5
	defaultClaimRetryAttempts = 3
	defaultSupervisorInterval = 30
	defaultProcessingTimeout  = 1800
	defaultMaxRetries         = 3
	defaultCleanupInterval    = 300
	defaultRetentionHours     = 168
	defaultDeadLetterAfter    = 3
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultConfigPath         = "~/.config/flowq/config.toml"
	projectConfigFilename     = "flowq.toml"
	apiTokenEnv               = "FLOWQ_API_TOKEN"
	databaseFilename          = "flowq.db"
	daemonLockFilename        = "flowq.lock"
	daemonPIDFilename         = "flowq.pid"
	logFilename               = "flowq.log"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			DefaultMaxParallel: defaultMaxParallel,
			DefaultPriority:    defaultPriority,
			ClaimRetryAttempts: defaultClaimRetryAttempts,
		},
		Supervisor: Supervisor{
			Enabled:           true,
			Interval:          defaultSupervisorInterval,
			ProcessingTimeout: defaultProcessingTimeout,
			MaxRetries:        defaultMaxRetries,
		},
		Cleanup: Cleanup{
			Enabled:         true,
			Interval:        defaultCleanupInterval,
			RetentionHours:  defaultRetentionHours,
			DeadLetterAfter: defaultDeadLetterAfter,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
