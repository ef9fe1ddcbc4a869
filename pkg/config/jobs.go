package config

import "time"

// JobsConfig configures the background worker.
type JobsConfig struct {
	PollInterval    time.Duration
	StaleAfter      time.Duration
	ReaperInterval  time.Duration
	ShutdownTimeout time.Duration
	MaxAttempts     int
	PauseFlagPath   string
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		PollInterval:    getEnvDuration("JOBS_POLL_INTERVAL", 3*time.Second),
		StaleAfter:      getEnvDuration("JOBS_STALE_AFTER", 20*time.Minute),
		ReaperInterval:  getEnvDuration("JOBS_REAPER_INTERVAL", time.Minute),
		ShutdownTimeout: getEnvDuration("JOBS_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxAttempts:     getEnvInt("JOBS_MAX_ATTEMPTS", 3),
		PauseFlagPath:   getEnv("JOBS_PAUSE_FLAG", "generation_paused.flag"),
	}
}
