package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":3000", cfg.ListenAddress())
	assert.Equal(t, 10*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, time.Duration(0), cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, BlobBackendDisk, cfg.BlobBackend)
	assert.Equal(t, "./uploads", cfg.FileStoragePath)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadSize)
	assert.Equal(t, "30-M", cfg.AuthRateLimit)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LISTEN_ADDR", "127.0.0.1")
	t.Setenv("LISTEN_PORT", "8080")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REFRESH_TOKEN_TTL", "720h")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "files")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MAX_UPLOAD_SIZE", "1024")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddress())
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "files", cfg.Database.Name)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxUploadSize)
	assert.Equal(t, "postgres://postgres@db.internal:5432/files?sslmode=disable", cfg.Database.DSN())
}

func TestDSN_DefaultConfigKeepsDatabaseName(t *testing.T) {
	setSecrets(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Empty(t, cfg.Database.Password)

	dsn := cfg.Database.DSN()
	opts, err := pq.ParseURL(dsn)
	require.NoError(t, err)
	assert.Contains(t, opts, "dbname=drivebox")
	assert.Contains(t, opts, "host=localhost")
	assert.NotContains(t, opts, "password")

	_, err = pq.NewConnector(dsn)
	assert.NoError(t, err)
}

func TestDSN_EscapesSpecialCharacters(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     "6543",
		User:     "app user",
		Password: "p@ss word/'?#",
		Name:     "files",
		SSLMode:  "require",
	}

	u, err := url.Parse(db.DSN())
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:6543", u.Host)
	assert.Equal(t, "/files", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "app user", u.User.Username())
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word/'?#", pw)

	_, err = pq.NewConnector(db.DSN())
	assert.NoError(t, err)
}

func TestLoad_PasswordPolicy(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.PasswordMinLength)
	assert.Zero(t, cfg.PasswordMinScore)

	t.Setenv("PASSWORD_MIN_LENGTH", "12")
	t.Setenv("PASSWORD_MIN_SCORE", "3")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.PasswordMinLength)
	assert.Equal(t, 3, cfg.PasswordMinScore)

	t.Setenv("PASSWORD_MIN_SCORE", "5")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestLoad_SharedSecret(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "same")
	t.Setenv("REFRESH_TOKEN_SECRET", "same")

	_, err := Load()
	assert.ErrorIs(t, err, ErrSharedSecret)
}

func TestLoad_MinioRequiresCredentials(t *testing.T) {
	setSecrets(t)
	t.Setenv("BLOB_BACKEND", "minio")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_ACCESS_KEY", "admin")
	t.Setenv("S3_SECRET_KEY", "secretpassword")
	t.Setenv("S3_BUCKET", "files")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "files", cfg.S3.Bucket)
}

func TestLoad_UnknownBackend(t *testing.T) {
	setSecrets(t)
	t.Setenv("BLOB_BACKEND", "tape")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DRIVEBOX_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("DRIVEBOX_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("DRIVEBOX_TEST_KEY"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("DRIVEBOX_TEST_KEY"))

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
