package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Booking    BookingConfig    `yaml:"booking"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Lock       LockConfig       `yaml:"lock"`
	Push       PushConfig       `yaml:"push"`
	Events     EventsConfig     `yaml:"events"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`

	// Warnings lists settings that were invalid and fell back to a default.
	Warnings []string `yaml:"-"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                   string `yaml:"driver"`
	DSN                      string `yaml:"dsn"`
	MaxOpenConns             int    `yaml:"max_open_conns"`
	MaxIdleConns             int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes   int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel                 string `yaml:"log_level"`
	EnforceOverlapConstraint bool   `yaml:"enforce_overlap_constraint"`
}

// BookingConfig holds the restaurant's booking rules.
type BookingConfig struct {
	Timezone            string `yaml:"timezone"`
	OpeningTime         string `yaml:"opening_time"`
	ClosingTime         string `yaml:"closing_time"`
	SlotMinutes         int    `yaml:"slot_minutes"`
	AutoAssignMaxGuests int    `yaml:"auto_assign_max_guests"`
	ImminentMinutes     int    `yaml:"imminent_minutes"`
	NoShowGraceMinutes  int    `yaml:"no_show_grace_minutes"`
	MaxAdvanceDays      int    `yaml:"max_advance_days"`
}

// SweeperConfig controls the background reservation sweep.
type SweeperConfig struct {
	Disabled        bool          `yaml:"disabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// LockConfig selects the per-table lock backend.
type LockConfig struct {
	Backend       string `yaml:"backend"` // local | redis
	WaitMillis    int    `yaml:"wait_ms"`
	TTLMillis     int    `yaml:"ttl_ms"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// PushConfig holds the VAPID keys for staff web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// EventsConfig holds the message broker used for guest notifications.
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret       string   `yaml:"jwt_secret"`
	TokenTTLMinutes int      `yaml:"token_ttl_minutes"`
	StaffRoles      []string `yaml:"staff_roles"`
	Disabled        bool     `yaml:"disabled"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides are the settings that may come from the environment,
// usually secrets and connection strings. Unset variables keep the file value.
type envOverrides struct {
	Port            *int    `envconfig:"PORT"`
	DBDriver        *string `envconfig:"DB_DRIVER"`
	DBDSN           *string `envconfig:"DB_DSN"`
	RedisAddr       *string `envconfig:"REDIS_ADDR"`
	RedisPassword   *string `envconfig:"REDIS_PASSWORD"`
	VAPIDPublicKey  *string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey *string `envconfig:"VAPID_PRIVATE_KEY"`
	AMQPURL         *string `envconfig:"AMQP_URL"`
	JWTSecret       *string `envconfig:"JWT_SECRET"`
	AuthDisabled    *bool   `envconfig:"AUTH_DISABLED"`
	LogLevel        *string `envconfig:"LOG_LEVEL"`
}

// EnvPrefix is the prefix of every environment override, e.g. BOOKING_DB_DSN.
const EnvPrefix = "BOOKING"

// Load reads the configuration from the given path, applies environment
// overrides and fills in defaults.
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

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}
	setInt(&cfg.Server.Port, env.Port)
	setString(&cfg.Database.Driver, env.DBDriver)
	setString(&cfg.Database.DSN, env.DBDSN)
	setString(&cfg.Lock.RedisAddr, env.RedisAddr)
	setString(&cfg.Lock.RedisPassword, env.RedisPassword)
	setString(&cfg.Push.PublicKey, env.VAPIDPublicKey)
	setString(&cfg.Push.PrivateKey, env.VAPIDPrivateKey)
	setString(&cfg.Events.AMQPURL, env.AMQPURL)
	setString(&cfg.Auth.JWTSecret, env.JWTSecret)
	setString(&cfg.Log.Level, env.LogLevel)
	if env.AuthDisabled != nil {
		cfg.Auth.Disabled = *env.AuthDisabled
	}
	return nil
}

func (cfg *Config) applyDefaults() {
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
		cfg.Server.CacheTTLSeconds = 2
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:booking.db?cache=shared"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		if cfg.Database.Driver == "sqlite" {
			cfg.Database.MaxOpenConns = 1
		} else {
			cfg.Database.MaxOpenConns = 10
		}
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	b := &cfg.Booking
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	if b.OpeningTime == "" {
		b.OpeningTime = "12:00"
	}
	if b.ClosingTime == "" {
		b.ClosingTime = "23:00"
	}
	if b.SlotMinutes <= 0 {
		b.SlotMinutes = 90
	}
	if b.AutoAssignMaxGuests <= 0 {
		b.AutoAssignMaxGuests = 6
	}
	if b.ImminentMinutes <= 0 {
		b.ImminentMinutes = 60
	}
	if b.NoShowGraceMinutes <= 0 {
		b.NoShowGraceMinutes = 15
	}
	if b.MaxAdvanceDays <= 0 {
		b.MaxAdvanceDays = 90
	}

	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
	cfg.Sweeper.Interval = time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second

	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "local"
	}
	if cfg.Lock.WaitMillis <= 0 {
		cfg.Lock.WaitMillis = 2000
	}
	if cfg.Lock.TTLMillis <= 0 {
		cfg.Lock.TTLMillis = 5000
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "booking.events"
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.Warnings = append(cfg.Warnings, "worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = 720
	}
	if len(cfg.Auth.StaffRoles) == 0 {
		cfg.Auth.StaffRoles = []string{"staff", "admin"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}
