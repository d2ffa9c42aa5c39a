package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"clipcast/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Engine     EngineConfig     `yaml:"engine"`
	Notify     NotifyConfig     `yaml:"notify"`
	Reports    ReportsConfig    `yaml:"reports"`
	Google     GoogleConfig     `yaml:"google"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

// DispatchConfig points at the platform dispatcher sidecar that performs
// the actual platform API calls and metric fetches.
type DispatchConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
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

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type ReportsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Path     string        `yaml:"path"`
}

type GoogleConfig struct {
	Enabled          bool   `yaml:"enabled"`
	CredentialsFile  string `yaml:"credentials_file"`
	RollupsSheetID   string `yaml:"rollups_spreadsheet_id"`
	RollupsSheetName string `yaml:"rollups_sheet_name"`
}

// EngineConfig is the immutable configuration handed to the planner, the
// queue workers, the checkback scheduler and the rate limiter.
type EngineConfig struct {
	Planner   PlannerConfig          `yaml:"planner"`
	Queue     QueueConfig            `yaml:"queue"`
	Checkback CheckbackConfig        `yaml:"checkback"`
	Limits    map[string]ActionLimit `yaml:"limits"`
}

type PlannerConfig struct {
	MinGap             time.Duration `yaml:"min_gap"`
	MaxGap             time.Duration `yaml:"max_gap"`
	HorizonDays        int           `yaml:"horizon_days"`
	StarvationInterval time.Duration `yaml:"starvation_interval"`
}

// Horizon returns the scheduling horizon as a duration.
func (p PlannerConfig) Horizon() time.Duration {
	return time.Duration(p.HorizonDays) * 24 * time.Hour
}

type QueueConfig struct {
	Workers        int           `yaml:"workers"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	ClaimTimeout   time.Duration `yaml:"claim_timeout"`
}

type CheckbackConfig struct {
	OffsetsHours []int         `yaml:"offsets_hours"`
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// ActionLimit caps an action type per account. Zero means uncapped.
type ActionLimit struct {
	PerDay  int `yaml:"per_day"`
	PerHour int `yaml:"per_hour"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; real deployments pass secrets via environment.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

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
	if c.Notify.Enabled && c.Notify.BotToken == "" {
		return errors.New("notify enabled but bot_token is empty")
	}
	if c.Google.Enabled && (c.Google.CredentialsFile == "" || c.Google.RollupsSheetID == "") {
		return errors.New("google sheets enabled but credentials_file or rollups_spreadsheet_id missing")
	}
	return ValidateEngine(c.Engine)
}

// ValidateEngine rejects gap/cadence configurations the planner and
// scheduler cannot honor.
func ValidateEngine(e EngineConfig) error {
	if e.Planner.MinGap <= 0 {
		return errors.New("planner min_gap must be positive")
	}
	if e.Planner.MaxGap <= e.Planner.MinGap {
		return fmt.Errorf("planner max_gap %s must exceed min_gap %s", e.Planner.MaxGap, e.Planner.MinGap)
	}
	if e.Planner.HorizonDays <= 0 {
		return errors.New("planner horizon_days must be positive")
	}
	if len(e.Checkback.OffsetsHours) == 0 {
		return errors.New("checkback offsets_hours must not be empty")
	}
	if !sort.IntsAreSorted(e.Checkback.OffsetsHours) {
		return errors.New("checkback offsets_hours must be strictly increasing")
	}
	for i, h := range e.Checkback.OffsetsHours {
		if h <= 0 {
			return fmt.Errorf("checkback offset %d must be positive", h)
		}
		if i > 0 && e.Checkback.OffsetsHours[i-1] == h {
			return fmt.Errorf("duplicate checkback offset %d", h)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "clipcast"
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Reports.Enabled && c.Reports.Interval == 0 {
		c.Reports.Interval = 24 * time.Hour
	}
	if c.Reports.Path == "" {
		c.Reports.Path = "./reports"
	}
	if c.Google.RollupsSheetName == "" {
		c.Google.RollupsSheetName = "Rollups"
	}

	// Planner defaults.
	if c.Engine.Planner.MinGap == 0 {
		c.Engine.Planner.MinGap = 2 * time.Hour
	}
	if c.Engine.Planner.MaxGap == 0 {
		c.Engine.Planner.MaxGap = 24 * time.Hour
	}
	if c.Engine.Planner.HorizonDays == 0 {
		c.Engine.Planner.HorizonDays = 60
	}
	if c.Engine.Planner.StarvationInterval == 0 {
		c.Engine.Planner.StarvationInterval = time.Hour
	}

	// Queue defaults.
	if c.Engine.Queue.Workers == 0 {
		c.Engine.Queue.Workers = 4
	}
	if c.Engine.Queue.PollInterval == 0 {
		c.Engine.Queue.PollInterval = 5 * time.Second
	}
	if c.Engine.Queue.MaxRetries == 0 {
		c.Engine.Queue.MaxRetries = models.DefaultMaxRetries
	}
	if c.Engine.Queue.RetryBaseDelay == 0 {
		c.Engine.Queue.RetryBaseDelay = 5 * time.Minute
	}
	if c.Engine.Queue.RetryMaxDelay == 0 {
		c.Engine.Queue.RetryMaxDelay = 6 * time.Hour
	}
	if c.Engine.Queue.PublishTimeout == 0 {
		c.Engine.Queue.PublishTimeout = 30 * time.Second
	}
	if c.Engine.Queue.ClaimTimeout == 0 {
		c.Engine.Queue.ClaimTimeout = 10 * time.Minute
	}

	// Checkback defaults.
	if len(c.Engine.Checkback.OffsetsHours) == 0 {
		c.Engine.Checkback.OffsetsHours = append([]int(nil), models.DefaultCheckbackOffsetsHours...)
	}
	if c.Engine.Checkback.Workers == 0 {
		c.Engine.Checkback.Workers = 2
	}
	if c.Engine.Checkback.PollInterval == 0 {
		c.Engine.Checkback.PollInterval = 30 * time.Second
	}
	if c.Engine.Checkback.RetryDelay == 0 {
		c.Engine.Checkback.RetryDelay = 15 * time.Minute
	}
	if c.Engine.Checkback.MaxAttempts == 0 {
		c.Engine.Checkback.MaxAttempts = models.DefaultCheckbackAttempts
	}
	if c.Engine.Checkback.FetchTimeout == 0 {
		c.Engine.Checkback.FetchTimeout = 30 * time.Second
	}

	// Engagement caps: publish is deliberately uncapped here, the planner
	// gap constraints govern publish pacing.
	if c.Engine.Limits == nil {
		c.Engine.Limits = map[string]ActionLimit{
			models.ActionLike:    {PerDay: 100, PerHour: 20},
			models.ActionComment: {PerDay: 50, PerHour: 10},
			models.ActionFollow:  {PerDay: 200, PerHour: 50},
			models.ActionMessage: {PerDay: 100, PerHour: 20},
		}
	}
}
