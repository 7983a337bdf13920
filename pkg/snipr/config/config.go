package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	App      AppConfig      `mapstructure:"app"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AppConfig struct {
	// BaseURL is the public base used to compose full short-link strings.
	// Empty means short URLs are rendered as relative paths.
	BaseURL         string `mapstructure:"base_url"`
	SlugLength      int    `mapstructure:"slug_length"`
	MaxSlugAttempts int    `mapstructure:"max_slug_attempts"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	TokenTTL  int    `mapstructure:"token_ttl_hours"`
	// AllowedEmails lists the identities permitted to use the dashboard.
	AllowedEmails []string `mapstructure:"allowed_emails"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type CacheConfig struct {
	MaxEntries      int `mapstructure:"max_entries"`
	StatsTTLSeconds int `mapstructure:"stats_ttl_seconds"`
	QRTTLSeconds    int `mapstructure:"qr_ttl_seconds"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("SNIPR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	viper.SetDefault("database.path", "snipr.db")

	viper.SetDefault("app.base_url", "")
	viper.SetDefault("app.slug_length", 8)
	viper.SetDefault("app.max_slug_attempts", 3)

	viper.SetDefault("auth.jwt_secret", "snipr-dev-secret-change-in-production")
	viper.SetDefault("auth.token_ttl_hours", 24)
	viper.SetDefault("auth.allowed_emails", []string{})

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output_path", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("cache.max_entries", 1000)
	viper.SetDefault("cache.stats_ttl_seconds", 60)
	viper.SetDefault("cache.qr_ttl_seconds", 3600)
}
