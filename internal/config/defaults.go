package config

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// defaultAppliers lists every domain applier in dependency order.
func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&ProjectDefaultApplier{},
		&BuildDefaultApplier{},
		&SamplerDefaultApplier{},
		&HistoryDefaultApplier{},
		&HealthDefaultApplier{},
		&DependencyDefaultApplier{},
		&FixDefaultApplier{},
		&StorageDefaultApplier{},
		&DaemonDefaultApplier{},
		&NotifyDefaultApplier{},
		&MonitoringDefaultApplier{},
	}
}

// ApplyDefaults runs every domain applier against the configuration.
func ApplyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers() {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ProjectDefaultApplier handles project tree defaults.
type ProjectDefaultApplier struct{}

func (p *ProjectDefaultApplier) Domain() string { return "project" }

func (p *ProjectDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Project.BuildDir == "" {
		cfg.Project.BuildDir = "build"
	}
	return nil
}

// BuildDefaultApplier handles Build configuration defaults.
type BuildDefaultApplier struct{}

func (b *BuildDefaultApplier) Domain() string { return "build" }

func (b *BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	// ParallelJobs 0 means auto (resolved at spawn time); negative coerced to auto.
	if cfg.Build.ParallelJobs < 0 {
		cfg.Build.ParallelJobs = 0
	}
	if cfg.Build.GracePeriod == "" {
		cfg.Build.GracePeriod = "5s"
	}
	if cfg.Build.PersistEvery <= 0 {
		cfg.Build.PersistEvery = 50
	}
	if cfg.Build.OutputBufferLines <= 0 {
		cfg.Build.OutputBufferLines = 2000
	}

	if cfg.Build.RetryBackoff == "" {
		cfg.Build.RetryBackoff = RetryBackoffFixed
	} else {
		cfg.Build.RetryBackoff = NormalizeRetryBackoff(string(cfg.Build.RetryBackoff))
		if cfg.Build.RetryBackoff == "" { // fallback to default if unknown
			cfg.Build.RetryBackoff = RetryBackoffFixed
		}
	}
	if cfg.Build.RetryInitialDelay == "" {
		cfg.Build.RetryInitialDelay = "250ms"
	}
	if cfg.Build.RetryMaxDelay == "" {
		cfg.Build.RetryMaxDelay = "1s"
	}
	if cfg.Build.MaxRetries < 0 {
		cfg.Build.MaxRetries = 0
	}
	if cfg.Build.MaxRetries == 0 { // a failed durable write gets exactly one retry
		cfg.Build.MaxRetries = 1
	}
	return nil
}

// SamplerDefaultApplier handles resource sampler defaults.
type SamplerDefaultApplier struct{}

func (s *SamplerDefaultApplier) Domain() string { return "sampler" }

func (s *SamplerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Sampler.Interval == "" {
		cfg.Sampler.Interval = "2.5s"
	}
	if cfg.Sampler.MaxSamples <= 0 {
		cfg.Sampler.MaxSamples = 100
	}
	if cfg.Sampler.CPUThreshold <= 0 {
		cfg.Sampler.CPUThreshold = 50
	}
	if cfg.Sampler.MemoryThresholdMB <= 0 {
		cfg.Sampler.MemoryThresholdMB = 500
	}
	if cfg.Sampler.PeakCPUThreshold <= 0 {
		cfg.Sampler.PeakCPUThreshold = 80
	}
	if cfg.Sampler.PeakMemoryMB <= 0 {
		cfg.Sampler.PeakMemoryMB = 1024
	}
	if cfg.Sampler.PeakDeltaPercent <= 0 {
		cfg.Sampler.PeakDeltaPercent = 20
	}
	return nil
}

// HistoryDefaultApplier handles duration history defaults.
type HistoryDefaultApplier struct{}

func (h *HistoryDefaultApplier) Domain() string { return "history" }

func (h *HistoryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.History.WindowSize <= 0 {
		cfg.History.WindowSize = 20
	}
	if cfg.History.MinSamples <= 0 {
		cfg.History.MinSamples = 3
	}
	if cfg.History.RecentWeights <= 0 {
		cfg.History.RecentWeights = 10
	}
	if cfg.History.OutlierSigma <= 0 {
		cfg.History.OutlierSigma = 2.5
	}
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 30
	}
	return nil
}

// HealthDefaultApplier handles health scoring defaults.
type HealthDefaultApplier struct{}

func (h *HealthDefaultApplier) Domain() string { return "health" }

func (h *HealthDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Health.MinOutcomes <= 0 {
		cfg.Health.MinOutcomes = 5
	}
	if cfg.Health.WindowSize <= 0 {
		cfg.Health.WindowSize = 10
	}
	if cfg.Health.MedianMultiple <= 1 {
		cfg.Health.MedianMultiple = 2.0
	}
	if cfg.Health.PeakCPULimit <= 0 {
		cfg.Health.PeakCPULimit = 80
	}
	if cfg.Health.PeakMemoryMB <= 0 {
		cfg.Health.PeakMemoryMB = 1024
	}
	return nil
}

// DependencyDefaultApplier handles dependency tracker defaults.
type DependencyDefaultApplier struct{}

func (d *DependencyDefaultApplier) Domain() string { return "dependencies" }

func (d *DependencyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Dependencies.IgnoreDirs == nil {
		cfg.Dependencies.IgnoreDirs = []string{
			"build", ".git", "__pycache__", ".pytest_cache", "node_modules",
			".vscode", ".idea", ".vs", "venv", ".venv",
		}
	}
	return nil
}

// FixDefaultApplier handles fix matcher defaults.
type FixDefaultApplier struct{}

func (f *FixDefaultApplier) Domain() string { return "fixes" }

func (f *FixDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Fixes.ConfidenceFloor <= 0 {
		cfg.Fixes.ConfidenceFloor = 50
	}
	return nil
}

// StorageDefaultApplier handles storage path defaults.
type StorageDefaultApplier struct{}

func (s *StorageDefaultApplier) Domain() string { return "storage" }

func (s *StorageDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./buildmon-data"
	}
	if cfg.Storage.DatabaseFile == "" {
		cfg.Storage.DatabaseFile = "history.db"
	}
	if cfg.Storage.SessionRetention == "" {
		cfg.Storage.SessionRetention = "24h"
	}
	return nil
}

// DaemonDefaultApplier handles Daemon configuration defaults.
type DaemonDefaultApplier struct{}

func (d *DaemonDefaultApplier) Domain() string { return "daemon" }

func (d *DaemonDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Daemon == nil {
		return nil // No daemon config to apply defaults to
	}

	if cfg.Daemon.HTTP.Port == 0 {
		cfg.Daemon.HTTP.Port = 8337
	}
	if cfg.Daemon.StopTimeout == "" {
		cfg.Daemon.StopTimeout = "30s"
	}
	if cfg.Daemon.Eviction.Interval == "" {
		cfg.Daemon.Eviction.Interval = "10m"
	}
	return nil
}

// NotifyDefaultApplier handles lifecycle notification defaults.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify == nil {
		return nil
	}
	if cfg.Notify.URL == "" {
		cfg.Notify.URL = "nats://localhost:4222"
	}
	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = "buildmon.sessions"
	}
	if cfg.Notify.ConnectTimeout == "" {
		cfg.Notify.ConnectTimeout = "5s"
	}
	return nil
}

// MonitoringDefaultApplier handles Monitoring configuration defaults.
type MonitoringDefaultApplier struct{}

func (m *MonitoringDefaultApplier) Domain() string { return "monitoring" }

func (m *MonitoringDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Monitoring == nil {
		cfg.Monitoring = &MonitoringConfig{}
	}

	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = "/metrics"
	}
	if cfg.Monitoring.Health.Path == "" {
		cfg.Monitoring.Health.Path = "/healthz"
	}
	if cfg.Monitoring.Logging.Level == "" {
		cfg.Monitoring.Logging.Level = LogLevelInfo
	} else {
		cfg.Monitoring.Logging.Level = NormalizeLogLevel(string(cfg.Monitoring.Logging.Level))
	}
	if cfg.Monitoring.Logging.Format == "" {
		cfg.Monitoring.Logging.Format = LogFormatText
	} else {
		cfg.Monitoring.Logging.Format = NormalizeLogFormat(string(cfg.Monitoring.Logging.Format))
	}

	return nil
}
