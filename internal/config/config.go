package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingSecret = errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
	ErrSharedSecret  = errors.New("access and refresh token secrets must differ")
)

const (
	BlobBackendDisk  = "disk"
	BlobBackendMinio = "minio"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"db_host"`
	Port     string `mapstructure:"db_port"`
	User     string `mapstructure:"db_user"`
	Password string `mapstructure:"db_password"`
	Name     string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"db_sslmode"`
}

// DSN renders a postgres:// connection URL for lib/pq. Every component is escaped, so
// empty values and special characters in the password survive.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(d.User),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

type S3Config struct {
	Endpoint  string `mapstructure:"s3_endpoint"`
	AccessKey string `mapstructure:"s3_access_key"`
	SecretKey string `mapstructure:"s3_secret_key"`
	Bucket    string `mapstructure:"s3_bucket"`
}

// Config is built once in main and handed to every component that needs it.
type Config struct {
	Environment     string        `mapstructure:"environment"`
	LogLevel        string        `mapstructure:"log_level"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	ListenPort      string        `mapstructure:"listen_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AccessTokenSecret  string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret string        `mapstructure:"refresh_token_secret"`
	AccessTokenTTL     time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `mapstructure:"refresh_token_ttl"`

	PasswordMinLength int `mapstructure:"password_min_length"`
	PasswordMinScore  int `mapstructure:"password_min_score"`

	Database DatabaseConfig `mapstructure:",squash"`
	S3       S3Config       `mapstructure:",squash"`

	BlobBackend     string   `mapstructure:"blob_backend"`
	FileStoragePath string   `mapstructure:"file_storage_path"`
	MaxUploadSize   int64    `mapstructure:"max_upload_size"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AuthRateLimit   string   `mapstructure:"auth_rate_limit"`
	MetricsPassword string   `mapstructure:"metrics_password"`
}

// IsProduction reports whether ENVIRONMENT is "Production" (case-insensitive).
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "Production")
}

// ListenAddress joins address and port for http.Server.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.ListenAddr, c.ListenPort)
}

// LoadEnvFile loads variables from the given .env files into the process environment.
// Variables that are already set are not overwritten.
func LoadEnvFile(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// Load reads configuration from the environment on top of defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return ErrMissingSecret
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return ErrSharedSecret
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("invalid ACCESS_TOKEN_TTL '%s'", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL < 0 {
		return fmt.Errorf("invalid REFRESH_TOKEN_TTL '%s'", c.RefreshTokenTTL)
	}
	if c.PasswordMinLength < 0 {
		return fmt.Errorf("invalid PASSWORD_MIN_LENGTH %d", c.PasswordMinLength)
	}
	if c.PasswordMinScore < 0 || c.PasswordMinScore > 4 {
		return fmt.Errorf("invalid PASSWORD_MIN_SCORE %d, must be 0-4", c.PasswordMinScore)
	}
	switch c.BlobBackend {
	case BlobBackendDisk:
		if c.FileStoragePath == "" {
			return errors.New("FILE_STORAGE_PATH must be set for the disk backend")
		}
	case BlobBackendMinio:
		if c.S3.Endpoint == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "" || c.S3.Bucket == "" {
			return errors.New("minio configuration incomplete")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND '%s'", c.BlobBackend)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE %d", c.MaxUploadSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "Development")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", "")
	v.SetDefault("listen_port", "3000")
	v.SetDefault("shutdown_timeout", "10s")

	v.SetDefault("access_token_secret", "")
	v.SetDefault("refresh_token_secret", "")
	v.SetDefault("access_token_ttl", "10m")
	v.SetDefault("refresh_token_ttl", "0s")
	v.SetDefault("password_min_length", 0)
	v.SetDefault("password_min_score", 0)

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "drivebox")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_bucket", "")

	v.SetDefault("blob_backend", BlobBackendDisk)
	v.SetDefault("file_storage_path", "./uploads")
	v.SetDefault("max_upload_size", 32<<20)
	v.SetDefault("allowed_origins", "")
	v.SetDefault("auth_rate_limit", "30-M")
	v.SetDefault("metrics_password", "")
}

// splitList trims entries and drops empty ones, so "a, b," becomes [a b].
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
