package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"ENV", "PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL",
	"ALLOCATION_TEMPLATE", "CORS_ORIGINS", "ROLLOVER_SCHEDULE", "ROLLOVER_ENABLED",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		old, ok := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if ok {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "calendar.db", cfg.DBPath)
	assert.Equal(t, "0 5 1 * *", cfg.RolloverSchedule)
	assert.True(t, cfg.RolloverEnabled)
	assert.False(t, cfg.EnvFileLoaded)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/calendar")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("ROLLOVER_ENABLED", "false")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.RolloverEnabled)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	// GIVEN: A .env file and one variable already set in the process
	// WHEN: Loading
	// THEN: The file fills the gaps and the process environment wins

	clearEnv(t)
	t.Setenv("PORT", "7000")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=6000\nDB_DRIVER=memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.EnvFileLoaded)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.DBDriver)
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("ROLLOVER_ENABLED", "sometimes")

	_, err := Load(missingFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "ROLLOVER_ENABLED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"sqlite ok", Config{Port: 8080, DBDriver: DriverSQLite, DBPath: ":memory:"}, ""},
		{"memory ok", Config{Port: 8080, DBDriver: DriverMemory}, ""},
		{"postgres needs url", Config{Port: 8080, DBDriver: DriverPostgres}, "DATABASE_URL"},
		{"unknown driver", Config{Port: 8080, DBDriver: "mongo"}, "unknown DB_DRIVER"},
		{"bad port", Config{Port: 70000, DBDriver: DriverMemory}, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := NewLogger(env)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}
