package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Project      ProjectConfig     `yaml:"project"`
	Build        BuildConfig       `yaml:"build"`
	Sampler      SamplerConfig     `yaml:"sampler"`
	History      HistoryConfig     `yaml:"history"`
	Health       HealthConfig      `yaml:"health"`
	Dependencies DependencyConfig  `yaml:"dependencies"`
	Fixes        FixConfig         `yaml:"fixes"`
	Storage      StorageConfig     `yaml:"storage"`
	Daemon       *DaemonConfig     `yaml:"daemon,omitempty"`
	Notify       *NotifyConfig     `yaml:"notify,omitempty"`
	Monitoring   *MonitoringConfig `yaml:"monitoring,omitempty"`
}

// ProjectConfig identifies the project tree being supervised.
type ProjectConfig struct {
	Root     string `yaml:"root"`      // project root, defaults to "."
	BuildDir string `yaml:"build_dir"` // relative to root, defaults to "build"
}

// BuildConfig controls process spawning and session bookkeeping.
type BuildConfig struct {
	ParallelJobs      int              `yaml:"parallel_jobs"`       // 0 = auto (NumCPU)
	GracePeriod       string           `yaml:"grace_period"`        // before SIGKILL escalation
	PersistEvery      int              `yaml:"persist_every"`       // output lines between registry writes
	OutputBufferLines int              `yaml:"output_buffer_lines"` // bounded per-session output buffer
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
	MaxRetries        int              `yaml:"max_retries"` // persistence write retries
}

// SamplerConfig controls the per-session resource sampling loop.
type SamplerConfig struct {
	Interval          string  `yaml:"interval"`            // default 2.5s
	MaxSamples        int     `yaml:"max_samples"`         // bounded series, default 100
	CPUThreshold      float64 `yaml:"cpu_threshold"`       // summary emitted above this, default 50
	MemoryThresholdMB int     `yaml:"memory_threshold_mb"` // summary emitted above this, default 500
	PeakCPUThreshold  float64 `yaml:"peak_cpu_threshold"`  // spike detection, default 80
	PeakMemoryMB      int     `yaml:"peak_memory_mb"`      // spike detection, default 1024
	PeakDeltaPercent  float64 `yaml:"peak_delta_percent"`  // peak must exceed average by this, default 20
}

// HistoryConfig controls the rolling duration windows and the predictor.
type HistoryConfig struct {
	WindowSize    int     `yaml:"window_size"`    // default 20
	MinSamples    int     `yaml:"min_samples"`    // default 3
	RecentWeights int     `yaml:"recent_weights"` // most recent N samples weighted, default 10
	OutlierSigma  float64 `yaml:"outlier_sigma"`  // default 2.5
	RetentionDays int     `yaml:"retention_days"` // default 30
}

// HealthConfig controls the composite health score.
type HealthConfig struct {
	MinOutcomes    int     `yaml:"min_outcomes"`    // default 5
	WindowSize     int     `yaml:"window_size"`     // default 10
	MedianMultiple float64 `yaml:"median_multiple"` // speed score floor point, default 2.0
	PeakCPULimit   float64 `yaml:"peak_cpu_limit"`  // resource score threshold, default 80
	PeakMemoryMB   int     `yaml:"peak_memory_mb"`  // resource score threshold, default 1024
}

// DependencyConfig controls the dependency snapshot tracker.
type DependencyConfig struct {
	ExtraPaths []string `yaml:"extra_paths,omitempty"` // additional tracked files, relative to root
	IgnoreDirs []string `yaml:"ignore_dirs,omitempty"`
}

// FixConfig controls fix suggestion matching.
type FixConfig struct {
	ConfidenceFloor int `yaml:"confidence_floor"` // default 50
}

// StorageConfig locates the durable stores.
type StorageConfig struct {
	DataDir          string `yaml:"data_dir"`          // default "./buildmon-data"
	DatabaseFile     string `yaml:"database_file"`     // history + health, default "history.db"
	SessionRetention string `yaml:"session_retention"` // terminal session TTL, default 24h
}

// DaemonConfig enables the long-running supervisor with its HTTP API.
type DaemonConfig struct {
	HTTP        DaemonHTTPConfig `yaml:"http"`
	StopTimeout string           `yaml:"stop_timeout"` // default 30s
	Eviction    EvictionConfig   `yaml:"eviction"`
}

// DaemonHTTPConfig holds the API listener settings.
type DaemonHTTPConfig struct {
	Port int `yaml:"port"` // default 8337
}

// EvictionConfig controls the retention sweeps.
type EvictionConfig struct {
	Interval string `yaml:"interval"` // session sweep cadence, default 10m
}

// NotifyConfig enables lifecycle event publishing over NATS.
type NotifyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`             // default nats://localhost:4222
	SubjectPrefix  string `yaml:"subject_prefix"`  // default buildmon.sessions
	ConnectTimeout string `yaml:"connect_timeout"` // default 5s
}

// MonitoringConfig holds metrics and logging settings.
type MonitoringConfig struct {
	Metrics MetricsConfig  `yaml:"metrics"`
	Health  HealthEndpoint `yaml:"health"`
	Logging LoggingConfig  `yaml:"logging"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthEndpoint controls the liveness endpoint path.
type HealthEndpoint struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls slog handler selection.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load loads configuration from the specified file, applies defaults,
// environment overrides and validation.
func Load(configPath string) (*Config, error) {
	// Load .env/.env.local if present; absence is not an error.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				fmt.Fprintf(os.Stderr, "Note: %s could not be loaded: %v\n", envPath, err)
			}
			break
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ApplyDefaults(&config); err != nil {
		return nil, err
	}
	applyEnvOverrides(&config)
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied and no file read.
// Used by one-shot CLI commands when no config file exists.
func Default() *Config {
	cfg := &Config{}
	_ = ApplyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides lets BUILDMON_* variables override file values. Runs
// after the defaults applier so Monitoring is materialized; CLI flags are
// applied later and win over everything.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUILDMON_PROJECT_ROOT"); v != "" {
		cfg.Project.Root = v
	}
	if v := os.Getenv("BUILDMON_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("BUILDMON_LOG_LEVEL"); v != "" {
		cfg.Monitoring.Logging.Level = NormalizeLogLevel(v)
	}
	if v := os.Getenv("BUILDMON_LOG_FORMAT"); v != "" {
		cfg.Monitoring.Logging.Format = NormalizeLogFormat(v)
	}
	if v := os.Getenv("BUILDMON_DAEMON_PORT"); v != "" && cfg.Daemon != nil {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.HTTP.Port = port
		}
	}
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Project: ProjectConfig{
			Root:     ".",
			BuildDir: "build",
		},
		Build: BuildConfig{
			ParallelJobs: 0,
			GracePeriod:  "5s",
		},
		Storage: StorageConfig{
			DataDir: "./buildmon-data",
		},
		Daemon: &DaemonConfig{
			HTTP: DaemonHTTPConfig{Port: 8337},
		},
		Notify: &NotifyConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "buildmon.sessions",
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ParseDurationDefault parses a duration string, falling back to def on empty
// or invalid input.
func ParseDurationDefault(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
