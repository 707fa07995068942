package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const DefaultBackupDirectory = "/var/lib/dbwarden/backups"

type Config struct {
	App           AppConfig      `mapstructure:"app"`
	Server        ServerConfig   `mapstructure:"server"`
	Registry      RegistryConfig `mapstructure:"registry"`
	HTTP          HTTPConfig     `mapstructure:"http"`
	Schedule      ScheduleConfig `mapstructure:"schedule"`
	Backups       []BackupConfig `mapstructure:"backups"`
	UploadTargets []UploadTarget `mapstructure:"upload_targets"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Rotation of LogFile
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups"`
	LogMaxAgeDays int `mapstructure:"log_max_age_days"`
}

// ServerConfig is the database server the dump tools connect to.
type ServerConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// PostgreSQL specific
	SSLMode string `mapstructure:"ssl_mode"`

	// MongoDB specific
	AuthDatabase string `mapstructure:"auth_database"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	APIToken string `mapstructure:"api_token"`

	DecryptorRequestsPerMinute int `mapstructure:"decryptor_requests_per_minute"`
}

type ScheduleConfig struct {
	BackupCron    string `mapstructure:"backup_cron"`
	RetentionCron string `mapstructure:"retention_cron"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// BackupConfig seeds one backup policy into the registry.
type BackupConfig struct {
	Database    string `mapstructure:"database"`
	Directory   string `mapstructure:"directory"`
	Format      string `mapstructure:"backup_format"`
	Password    string `mapstructure:"plain_backup_password"`
	TimesPerDay int    `mapstructure:"backup_times_per_day"`
	AutoRemove  bool   `mapstructure:"is_auto_remove"`
}

type UploadTarget struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Local mirror
	Path string `mapstructure:"path"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DBWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "dbwarden")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("server.type", "postgresql")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 5432)
	v.SetDefault("registry.path", "dbwarden.db")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.decryptor_requests_per_minute", 10)
	v.SetDefault("schedule.backup_cron", "0 0 * * * *")
	v.SetDefault("schedule.retention_cron", "0 0 3 * * *")
	v.SetDefault("schedule.retention_days", 7)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyBackupDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyBackupDefaults fills list entries, which viper defaults cannot reach.
func (c *Config) applyBackupDefaults() {
	for i := range c.Backups {
		if c.Backups[i].Directory == "" {
			c.Backups[i].Directory = DefaultBackupDirectory
		}
		if c.Backups[i].Format == "" {
			c.Backups[i].Format = "dump"
		}
		if c.Backups[i].TimesPerDay == 0 {
			c.Backups[i].TimesPerDay = 5
		}
	}
}

func (c *Config) Validate() error {
	switch c.Server.Type {
	case "postgresql", "mysql", "mongodb":
	default:
		return fmt.Errorf("server.type %q is not supported", c.Server.Type)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}

	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required")
	}

	if c.Schedule.RetentionDays < 0 {
		return fmt.Errorf("schedule.retention_days must not be negative")
	}

	seen := make(map[string]bool, len(c.Backups))
	for i, b := range c.Backups {
		if b.Database == "" {
			return fmt.Errorf("backups[%d]: database is required", i)
		}
		if seen[b.Database] {
			return fmt.Errorf("backups[%d]: duplicate database %q", i, b.Database)
		}
		seen[b.Database] = true
	}

	return nil
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
