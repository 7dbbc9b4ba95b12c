package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	EtaModel EtaModelConfig `yaml:"eta_model"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
}

// DeviceConfig holds chamber connection and setpoint settings.
type DeviceConfig struct {
	BaseURL            string    `yaml:"base_url"`
	TargetTemperatures []float64 `yaml:"target_temperatures"`
	CurrentSetIndex    int       `yaml:"current_set_index"`
	Tolerance          float64   `yaml:"tolerance"`     // °C
	PollInterval       Duration  `yaml:"poll_interval"` // Device sampling cadence
	Wait               Duration  `yaml:"wait"`          // Hold time after target reached
	AutoAbort          bool      `yaml:"auto_abort"`    // Abort a running program to enter Manual mode
	Retries            int       `yaml:"retries"`
	RetryDelay         Duration  `yaml:"retry_delay"`
	Timeout            Duration  `yaml:"timeout"`
}

// EtaModelConfig holds estimation settings.
type EtaModelConfig struct {
	Model          string    `yaml:"model"`             // "ekf" or "exp"
	TauHeating     Duration  `yaml:"tau_heating"`
	TauCooling     Duration  `yaml:"tau_cooling"`
	TauHeatingInfo string    `yaml:"tau_heating_info"`
	TauCoolingInfo string    `yaml:"tau_cooling_info"`
	TauOverride    bool      `yaml:"tau_override"`      // Persist learned tau back to this file
	TauSmoothing   int       `yaml:"tau_smoothing"`     // Rolling median width applied by the driver
	WindowSize     int       `yaml:"window_size"`
	OutlierZ       float64   `yaml:"outlier_threshold"`
	PInit          []float64 `yaml:"p_init"`
	QProcess       []float64 `yaml:"q_process"`
	RMeasurement   float64   `yaml:"r_measurement"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Path        string   `yaml:"path"`
	RunLogDir   string   `yaml:"run_log_dir"`
	LogInterval Duration `yaml:"log_interval"` // Run-log write cadence, decoupled from polling
	HistoryDB   string   `yaml:"history_db"`
}

// ServerConfig holds settings for the live-view HTTP server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			BaseURL:            "http://192.168.96.21/atmoweb",
			TargetTemperatures: []float64{40.0},
			CurrentSetIndex:    0,
			Tolerance:          0.5,
			PollInterval:       Duration(60 * time.Second),
			Wait:               Duration(60 * time.Second),
			AutoAbort:          false,
			Retries:            3,
			RetryDelay:         Duration(2 * time.Second),
			Timeout:            Duration(10 * time.Second),
		},
		EtaModel: EtaModelConfig{
			Model:        "ekf",
			TauHeating:   Duration(10 * time.Minute),
			TauCooling:   Duration(12 * time.Minute),
			TauOverride:  false,
			TauSmoothing: 5,
			WindowSize:   20,
			OutlierZ:     4.0,
			PInit:        []float64{10.0, 2.0, 5.0},
			QProcess:     []float64{0.0025, 0.001, 0.004},
			RMeasurement: 0.01,
		},
		Logging: LoggingConfig{
			Level:       "INFO",
			Path:        "./logs/thermoctl.log",
			RunLogDir:   "./logs/runs",
			LogInterval: Duration(10 * time.Second),
			HistoryDB:   "./data/history.db",
		},
		Server: ServerConfig{
			Enabled: true,
			Address: "localhost:1921",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// If it exists, defaults are merged with the file's values; the file is not
// rewritten, preserving user formatting and comments.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Env fallback for the device address (useful for pointing a run at
		// the simulator without touching the config file).
		if url := os.Getenv("THERMOCTL_DEVICE_URL"); url != "" {
			cfg.Device.BaseURL = url
		}

		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}
	return cfg, nil
}

// Validate checks for misconfiguration. These are hard failures: a bad config
// indicates operator error, not a runtime condition to ride out.
func (c *Config) Validate() error {
	d := &c.Device
	if len(d.TargetTemperatures) == 0 {
		return fmt.Errorf("config: target_temperatures must be a non-empty list")
	}
	if d.CurrentSetIndex < 0 || d.CurrentSetIndex >= len(d.TargetTemperatures) {
		return fmt.Errorf("config: current_set_index %d out of range [0,%d]", d.CurrentSetIndex, len(d.TargetTemperatures)-1)
	}
	if d.Tolerance <= 0 {
		return fmt.Errorf("config: tolerance must be positive, got %v", d.Tolerance)
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}

	m := &c.EtaModel
	if m.Model != "ekf" && m.Model != "exp" {
		return fmt.Errorf("config: eta_model.model must be \"ekf\" or \"exp\", got %q", m.Model)
	}
	if m.TauHeating <= 0 || m.TauCooling <= 0 {
		return fmt.Errorf("config: tau_heating and tau_cooling must be positive")
	}
	if len(m.PInit) != 3 {
		return fmt.Errorf("config: p_init must have 3 entries, got %d", len(m.PInit))
	}
	if len(m.QProcess) != 3 {
		return fmt.Errorf("config: q_process must have 3 entries, got %d", len(m.QProcess))
	}
	return nil
}

// Target returns the active setpoint.
func (c *Config) Target() float64 {
	return c.Device.TargetTemperatures[c.Device.CurrentSetIndex]
}

// NextSetIndex returns the index the run after this one should use.
func (c *Config) NextSetIndex() int {
	n := len(c.Device.TargetTemperatures)
	if n <= 1 {
		return c.Device.CurrentSetIndex
	}
	return (c.Device.CurrentSetIndex + 1) % n
}

// Save writes the configuration to the path with a commented header.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# thermoctl configuration
# ----------------------
# Durations accept ns, us, ms, s, m, h or a bare number of seconds.
# eta_model.model: ekf (Kalman filter) or exp (fixed exponential fit)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
