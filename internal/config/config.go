package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Engine     EngineConfig     `yaml:"engine"`
	Session    SessionConfig    `yaml:"session"`
	Mail       MailConfig       `yaml:"mail"`
	Forms      FormsConfig      `yaml:"forms"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type StorageConfig struct {
	// Path of the sqlite profile store. Used when redis is not configured.
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type EngineConfig struct {
	TickIntervalSec     int `yaml:"tick_interval_sec"`
	ConfirmAfterSec     int `yaml:"confirm_after_sec"`
	ReconcileDebounceMs int `yaml:"reconcile_debounce_ms"`
}

func (c EngineConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

func (c EngineConfig) ConfirmAfter() time.Duration {
	return time.Duration(c.ConfirmAfterSec) * time.Second
}

func (c EngineConfig) ReconcileDebounce() time.Duration {
	return time.Duration(c.ReconcileDebounceMs) * time.Millisecond
}

type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours"`
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type MailConfig struct {
	Enabled              bool    `yaml:"enabled"`
	BaseURL              string  `yaml:"base_url"`
	ServiceID            string  `yaml:"service_id"`
	CustomerTemplateID   string  `yaml:"customer_template_id"`
	RestaurantTemplateID string  `yaml:"restaurant_template_id"`
	PublicKey            string  `yaml:"public_key"`
	RestaurantEmail      string  `yaml:"restaurant_email"`
	RestaurantName       string  `yaml:"restaurant_name"`
	RestaurantPhone      string  `yaml:"restaurant_phone"`
	RestaurantAddress    string  `yaml:"restaurant_address"`
	SendRPS              float64 `yaml:"send_rps"`
	SendBurst            int     `yaml:"send_burst"`
}

type FormsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
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

// Load reads .env (when present), expands environment references inside the
// YAML and decodes the config with defaults and validation applied.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Storage.Path == "" && c.Redis.Address == "" {
		return errors.New("either storage.path or redis.address is required")
	}
	if c.Engine.TickIntervalSec < 0 || c.Engine.ConfirmAfterSec < 0 {
		return errors.New("engine intervals must not be negative")
	}
	if c.Mail.Enabled {
		if c.Mail.ServiceID == "" || c.Mail.PublicKey == "" {
			return errors.New("mail.service_id and mail.public_key are required when mail is enabled")
		}
		if c.Mail.CustomerTemplateID == "" && c.Mail.RestaurantTemplateID == "" {
			return errors.New("mail requires at least one template id")
		}
	}
	if c.Forms.Enabled {
		if c.Forms.CredentialsFile == "" || c.Forms.SpreadsheetID == "" {
			return errors.New("forms.credentials_file and forms.spreadsheet_id are required when forms is enabled")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "dynasty"
	}
	if c.Engine.TickIntervalSec == 0 {
		c.Engine.TickIntervalSec = 10
	}
	if c.Engine.ConfirmAfterSec == 0 {
		c.Engine.ConfirmAfterSec = 60
	}
	if c.Engine.ReconcileDebounceMs == 0 {
		c.Engine.ReconcileDebounceMs = 100
	}
	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = 24
	}
	if c.Mail.BaseURL == "" {
		c.Mail.BaseURL = "https://api.emailjs.com"
	}
	if c.Mail.SendRPS == 0 {
		c.Mail.SendRPS = 1
	}
	if c.Mail.SendBurst == 0 {
		c.Mail.SendBurst = 2
	}
	if c.Forms.SheetName == "" {
		c.Forms.SheetName = "Form Responses 1"
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Enabled && !c.API.Auth.Enabled && len(c.API.Auth.APIKeys) > 0 {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
