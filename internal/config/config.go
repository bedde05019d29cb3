package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	EnvPrefix = "FTPSTAGE_"

	defaultTraceFile      = ".command.scheduler.trace"
	defaultLogFilePattern = ".command.init.%s.log"
)

type FTPConfig struct {
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Port           int           `yaml:"port"`
	// Bounds the connect and every read or write of a session.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

type TransferConfig struct {
	ChunkSize          datasize.ByteSize `yaml:"chunk_size"`
	ExitIfFileNotFound bool              `yaml:"exit_if_file_not_found"`
	MinWorkers         int               `yaml:"min_workers"`
	// Pacing sleeps shorter than this are skipped.
	MinPacingSleep time.Duration `yaml:"min_pacing_sleep"`
}

type SyncConfig struct {
	ExistInterval          time.Duration `yaml:"exist_interval"`
	TailInterval           time.Duration `yaml:"tail_interval"`
	TailTimeout            time.Duration `yaml:"tail_timeout"`
	CompletionPollInterval time.Duration `yaml:"completion_poll_interval"`
	DependencyTimeout      time.Duration `yaml:"dependency_timeout"`
}

type ResolverConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type TraceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	File     string `yaml:"file"`
	RedisURL string `yaml:"redis_url"`
}

type Config struct {
	LogLevel         string         `yaml:"log_level"`
	LogFilePattern   string         `yaml:"log_file_pattern"`
	LogMaxSizeMB     int            `yaml:"log_max_size_mb"`
	NotifyCompletion bool           `yaml:"notify_completion"`
	FTP              FTPConfig      `yaml:"ftp"`
	Transfer         TransferConfig `yaml:"transfer"`
	Sync             SyncConfig     `yaml:"sync"`
	Resolver         ResolverConfig `yaml:"resolver"`
	Trace            TraceConfig    `yaml:"trace"`
}

func (c *Config) SetDefaults() {
	c.LogLevel = LogLevelDebug
	c.LogFilePattern = defaultLogFilePattern
	c.LogMaxSizeMB = 100

	c.FTP = FTPConfig{
		User:           "root",
		Password:       "password",
		Port:           21,
		ConnectTimeout: 10 * time.Second,
		MaxAttempts:    8,
		BackoffBase:    2 * time.Second,
		BackoffMax:     10 * time.Minute,
	}

	c.Transfer = TransferConfig{
		ChunkSize:          100 * datasize.KB,
		ExitIfFileNotFound: true,
		MinWorkers:         10,
		MinPacingSleep:     10 * time.Millisecond,
	}

	c.Sync = SyncConfig{
		ExistInterval:          100 * time.Millisecond,
		TailInterval:           300 * time.Millisecond,
		TailTimeout:            time.Hour,
		CompletionPollInterval: 100 * time.Millisecond,
		DependencyTimeout:      60 * time.Second,
	}

	c.Resolver = ResolverConfig{
		Timeout: 10 * time.Second,
	}

	c.Trace = TraceConfig{
		File: defaultTraceFile,
	}
}

// LogFileName returns the log file of the run with the given name.
func (c *Config) LogFileName(name string) string {
	return fmt.Sprintf(c.LogFilePattern, name)
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}

	if c.FTP.MaxAttempts < 1 {
		return fmt.Errorf("ftp.max_attempts must be positive")
	}

	if c.FTP.ConnectTimeout <= 0 {
		return fmt.Errorf("ftp.connect_timeout must be positive")
	}

	if c.Transfer.ChunkSize == 0 {
		return fmt.Errorf("transfer.chunk_size must be positive")
	}

	if c.Sync.ExistInterval <= 0 || c.Sync.TailInterval <= 0 || c.Sync.CompletionPollInterval <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}

	return nil
}

/*
Load builds the configuration in layers: defaults, then the YAML file (a
missing file is not an error), then a .env file next to the working
directory, then FTPSTAGE_* environment variables.
*/
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv(EnvPrefix + "FTP_USER"); v != "" {
		c.FTP.User = v
	}

	if v := os.Getenv(EnvPrefix + "FTP_PASSWORD"); v != "" {
		c.FTP.Password = v
	}

	if v := os.Getenv(EnvPrefix + "TRACE_REDIS_URL"); v != "" {
		c.Trace.RedisURL = v
	}

	if v := os.Getenv(EnvPrefix + "EXIT_IF_FILE_NOT_FOUND"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sEXIT_IF_FILE_NOT_FOUND: %w", EnvPrefix, err)
		}
		c.Transfer.ExitIfFileNotFound = b
	}

	if v := os.Getenv(EnvPrefix + "CHUNK_SIZE"); v != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("cannot parse %sCHUNK_SIZE: %w", EnvPrefix, err)
		}
		c.Transfer.ChunkSize = size
	}

	return nil
}
