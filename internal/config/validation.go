package config

import (
	"time"

	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

// validate performs configuration validation using domain-specific methods.
func (cv *configurationValidator) validate() error {
	if err := cv.validateBuild(); err != nil {
		return err
	}
	if err := cv.validateSampler(); err != nil {
		return err
	}
	if err := cv.validateHistory(); err != nil {
		return err
	}
	if err := cv.validateDaemon(); err != nil {
		return err
	}
	if err := cv.validateDurations(); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validateBuild() error {
	b := cv.config.Build
	if b.ParallelJobs < 0 {
		return berrors.ValidationFailed("build.parallel_jobs", "must be zero (auto) or positive")
	}
	if b.PersistEvery <= 0 {
		return berrors.ValidationFailed("build.persist_every", "must be positive")
	}
	if b.OutputBufferLines < 100 {
		return berrors.ValidationFailed("build.output_buffer_lines", "must be at least 100")
	}
	return nil
}

func (cv *configurationValidator) validateSampler() error {
	s := cv.config.Sampler
	if s.MaxSamples <= 0 {
		return berrors.ValidationFailed("sampler.max_samples", "must be positive")
	}
	if s.CPUThreshold <= 0 || s.CPUThreshold > 100*64 {
		// aggregate CPU across a process tree can exceed 100 per core
		return berrors.ValidationFailed("sampler.cpu_threshold", "out of range")
	}
	return nil
}

func (cv *configurationValidator) validateHistory() error {
	h := cv.config.History
	if h.MinSamples < 1 {
		return berrors.ValidationFailed("history.min_samples", "must be at least 1")
	}
	if h.WindowSize < h.MinSamples {
		return berrors.ValidationFailed("history.window_size", "must be at least history.min_samples")
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if d == nil {
		return nil
	}
	if d.HTTP.Port < 1 || d.HTTP.Port > 65535 {
		return berrors.ValidationFailed("daemon.http.port", "must be a valid TCP port")
	}
	return nil
}

// validateDurations checks every duration-valued string field up front so a
// typo fails at load time, not mid-session.
func (cv *configurationValidator) validateDurations() error {
	checks := []struct {
		field string
		raw   string
	}{
		{"build.grace_period", cv.config.Build.GracePeriod},
		{"build.retry_initial_delay", cv.config.Build.RetryInitialDelay},
		{"build.retry_max_delay", cv.config.Build.RetryMaxDelay},
		{"sampler.interval", cv.config.Sampler.Interval},
		{"storage.session_retention", cv.config.Storage.SessionRetention},
	}
	if cv.config.Daemon != nil {
		checks = append(checks,
			struct {
				field string
				raw   string
			}{"daemon.stop_timeout", cv.config.Daemon.StopTimeout},
			struct {
				field string
				raw   string
			}{"daemon.eviction.interval", cv.config.Daemon.Eviction.Interval},
		)
	}
	if cv.config.Notify != nil {
		checks = append(checks, struct {
			field string
			raw   string
		}{"notify.connect_timeout", cv.config.Notify.ConnectTimeout})
	}

	for _, c := range checks {
		if c.raw == "" {
			continue
		}
		if _, err := time.ParseDuration(c.raw); err != nil {
			return berrors.ValidationFailed(c.field, "not a valid duration")
		}
	}
	return nil
}
