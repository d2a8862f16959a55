package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Device     DeviceConfig     `yaml:"device"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// AuthConfig holds the settings used to verify user and operator bearer tokens.
// Tokens are minted by an external identity provider.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// DeviceConfig holds the timing thresholds of the device protocol.
type DeviceConfig struct {
	OnlineWindowSeconds    int           `yaml:"online_window_seconds"`
	FirstPollWindowSeconds int           `yaml:"first_poll_window_seconds"`
	OfflineAlertSeconds    int           `yaml:"offline_alert_seconds"`
	LowBatteryPercent      int           `yaml:"low_battery_percent"`
	OnlineWindow           time.Duration `yaml:"-"`
	FirstPollWindow        time.Duration `yaml:"-"`
	OfflineAlertAfter      time.Duration `yaml:"-"`
}

// SimulatorConfig configures cmd/lockersim, a polling controller emulator.
type SimulatorConfig struct {
	BaseURL         string        `yaml:"base_url"`
	DeviceID        string        `yaml:"device_id"`
	APIKey          string        `yaml:"api_key"`
	CabinetIDs      []string      `yaml:"cabinet_ids"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	BatteryLevel    int           `yaml:"battery_level"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Device.OnlineWindowSeconds <= 0 {
		cfg.Device.OnlineWindowSeconds = 300
	}
	if cfg.Device.FirstPollWindowSeconds <= 0 {
		cfg.Device.FirstPollWindowSeconds = 60
	}
	if cfg.Device.OfflineAlertSeconds <= 0 {
		cfg.Device.OfflineAlertSeconds = 600
	}
	if cfg.Device.LowBatteryPercent <= 0 {
		cfg.Device.LowBatteryPercent = 20
	}
	cfg.Device.OnlineWindow = time.Duration(cfg.Device.OnlineWindowSeconds) * time.Second
	cfg.Device.FirstPollWindow = time.Duration(cfg.Device.FirstPollWindowSeconds) * time.Second
	cfg.Device.OfflineAlertAfter = time.Duration(cfg.Device.OfflineAlertSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Simulator.IntervalSeconds <= 0 {
		cfg.Simulator.IntervalSeconds = 5
	}
	cfg.Simulator.Interval = time.Duration(cfg.Simulator.IntervalSeconds) * time.Second
	if cfg.Simulator.BatteryLevel <= 0 {
		cfg.Simulator.BatteryLevel = 100
	}
}
