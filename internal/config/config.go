package config

import (
	"errors"
	"fmt"
	"os"

	"arenda/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Lock       LockConfig       `yaml:"lock"`
	Booking    BookingConfig    `yaml:"booking"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Sync       SyncConfig       `yaml:"sync"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Managers   []int64          `yaml:"managers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LockConfig struct {
	WaitSeconds     int `yaml:"wait_seconds"`
	LeaseTTLSeconds int `yaml:"lease_ttl_seconds"`
}

type BookingConfig struct {
	HoldMinutes       int `yaml:"hold_minutes"`
	MaxBookingDays    int `yaml:"max_booking_days"`
	MinBookingAdvance int `yaml:"min_booking_advance"`
}

type SweeperConfig struct {
	Enabled            bool `yaml:"enabled"`
	IntervalSeconds    int  `yaml:"interval_seconds"`
	BookingGraceMinute int  `yaml:"booking_grace_minutes"`
}

type SyncConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BlocksSpreadSheetID   string `yaml:"blocks_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside local development.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Environment variables are expanded before parsing so secrets stay out
	// of the YAML file.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Sync.Enabled && (c.Google.GoogleCredentialsFile == "" || c.Google.BlocksSpreadSheetID == "") {
		return errors.New("sync requires google credentials_file and blocks_spreadsheet_id")
	}
	return nil
}

// ValidateProperties rejects seed files with missing or duplicate ids.
func ValidateProperties(properties []*models.Property) error {
	ids := make(map[int64]bool)
	uids := make(map[string]bool)
	for _, p := range properties {
		if p.ID == 0 {
			return fmt.Errorf("property '%s' has invalid ID 0", p.Name)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate property ID found: %d", p.ID)
		}
		ids[p.ID] = true
		if p.UID != "" {
			if uids[p.UID] {
				return fmt.Errorf("duplicate property UID found: %s", p.UID)
			}
			uids[p.UID] = true
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Lock.WaitSeconds == 0 {
		c.Lock.WaitSeconds = models.DefaultLockWaitSeconds
	}
	if c.Lock.LeaseTTLSeconds == 0 {
		c.Lock.LeaseTTLSeconds = 30
	}

	if c.Booking.HoldMinutes == 0 {
		c.Booking.HoldMinutes = models.DefaultHoldMinutes
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = 365
	}

	if c.Sweeper.IntervalSeconds == 0 {
		c.Sweeper.IntervalSeconds = models.DefaultSweepIntervalSeconds
	}
	if c.Sweeper.BookingGraceMinute == 0 {
		c.Sweeper.BookingGraceMinute = 5
	}

	if c.Sync.IntervalMinutes == 0 {
		c.Sync.IntervalMinutes = 15
	}
}
