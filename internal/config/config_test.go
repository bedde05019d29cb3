package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	require.Equal(t, LogLevelDebug, cfg.LogLevel)
	require.Equal(t, 8, cfg.FTP.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.FTP.BackoffBase)
	require.Equal(t, 10*time.Second, cfg.FTP.ConnectTimeout)
	require.Equal(t, 100*datasize.KB, cfg.Transfer.ChunkSize)
	require.True(t, cfg.Transfer.ExitIfFileNotFound)
	require.Equal(t, 100*time.Millisecond, cfg.Sync.ExistInterval)
	require.Equal(t, 300*time.Millisecond, cfg.Sync.TailInterval)
	require.Equal(t, 60*time.Second, cfg.Sync.DependencyTimeout)
	require.Equal(t, ".command.scheduler.trace", cfg.Trace.File)
	require.Equal(t, ".command.init.job1.log", cfg.LogFileName("job1"))
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "ftpstage.yml")
	content := `log_level: info
ftp:
  user: anonymous
  port: 2121
  connect_timeout: 3s
transfer:
  chunk_size: 64KB
  exit_if_file_not_found: true
sync:
  tail_interval: 50ms
trace:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FTPSTAGE_FTP_PASSWORD=secret\n"), 0o644))

	t.Setenv(EnvPrefix+"EXIT_IF_FILE_NOT_FOUND", "false")
	t.Cleanup(func() { os.Unsetenv(EnvPrefix + "FTP_PASSWORD") })

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, LogLevelInfo, cfg.LogLevel)
	require.Equal(t, "anonymous", cfg.FTP.User)
	require.Equal(t, "secret", cfg.FTP.Password)
	require.Equal(t, 2121, cfg.FTP.Port)
	require.Equal(t, 3*time.Second, cfg.FTP.ConnectTimeout)
	require.Equal(t, 64*datasize.KB, cfg.Transfer.ChunkSize)
	require.False(t, cfg.Transfer.ExitIfFileNotFound)
	require.Equal(t, 50*time.Millisecond, cfg.Sync.TailInterval)
	require.Equal(t, 100*time.Millisecond, cfg.Sync.ExistInterval)
	require.True(t, cfg.Trace.Enabled)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{name: "Defaults", mutate: func(c *Config) {}},
		{name: "Unknown log level", mutate: func(c *Config) { c.LogLevel = "trace" }, expectError: true},
		{name: "No attempts", mutate: func(c *Config) { c.FTP.MaxAttempts = 0 }, expectError: true},
		{name: "Zero timeout", mutate: func(c *Config) { c.FTP.ConnectTimeout = 0 }, expectError: true},
		{name: "Zero chunk", mutate: func(c *Config) { c.Transfer.ChunkSize = 0 }, expectError: true},
		{name: "Zero interval", mutate: func(c *Config) { c.Sync.TailInterval = 0 }, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.SetDefaults()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
