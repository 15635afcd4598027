package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadUsesLegacyEnvNames(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "todos")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, 3307, cfg.Database.Port)
	require.Equal(t, "production", cfg.Logging.Env)
	require.True(t, cfg.Realtime.SerializeTeamEvents)
	require.Equal(t, 256, cfg.Realtime.SendBuffer)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "app:@tcp(db.internal:3307)/todos?parseTime=true", cfg.Database.DSN())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoadReadsConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskhub.yaml")
	yaml := []byte("auth:\n  jwt_secret: from-file\ndatabase:\n  driver: sqlite\n  path: /tmp/x.db\nrealtime:\n  serialize_team_events: false\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--server.port", "9090", "--env-file", filepath.Join(dir, "missing.env")}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Auth.JWTSecret)
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.False(t, cfg.Realtime.SerializeTeamEvents)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "0.0.0.0:9090", cfg.ServerAddr())
	require.Contains(t, cfg.Database.DSN(), "file:/tmp/x.db")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{
		Server:   ServerConfig{Port: 1},
		Auth:     AuthConfig{JWTSecret: "x"},
		Database: DatabaseConfig{Driver: "oracle"},
		Realtime: RealtimeConfig{SendBuffer: 1},
	}
	require.Error(t, cfg.Validate())
}
