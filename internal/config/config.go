// Package config loads stockroom settings and locates the data directory.
//
// Settings come from, in increasing precedence: built-in defaults, the
// optional <data-dir>/config.toml, STOCKROOM_* environment variables, and
// command-line flags bound by the CLI. Nested keys map to env names by
// replacing dots with underscores (remote.url -> STOCKROOM_REMOTE_URL).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mschirtzinger/stockroom/internal/types"
)

const (
	// DirName is the data directory created by "stockroom init"
	DirName = ".stockroom"

	// FileName is the optional config file inside the data directory
	FileName = "config.toml"

	// DBFileName is the default local store file inside the data directory
	DBFileName = "stockroom.db"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "STOCKROOM"
)

// Connectivity modes.
const (
	ModeFlag   = "flag"   // offline while the flag file exists
	ModeProbe  = "probe"  // poll the remote health endpoint
	ModeOnline = "online" // always online
)

// Config is the resolved configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`
	DB      string `mapstructure:"db"`

	Remote       RemoteConfig       `mapstructure:"remote"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Daemon       DaemonConfig       `mapstructure:"daemon"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Log          LogConfig          `mapstructure:"log"`
}

// RemoteConfig addresses the authoritative store.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Rate    float64       `mapstructure:"rate"` // requests per second, 0 = unlimited
	Burst   int           `mapstructure:"burst"`
}

// ConnectivityConfig selects the oracle.
type ConnectivityConfig struct {
	Mode          string        `mapstructure:"mode"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// DashboardConfig configures the WebSocket feed.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DaemonConfig configures the long-running sync process.
type DaemonConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// StorageConfig bounds the local store.
type StorageConfig struct {
	MaxMB int `mapstructure:"max_mb"`
}

// LogConfig routes component logs.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", DBFileName)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.rate", 20.0)
	v.SetDefault("remote.burst", 5)
	v.SetDefault("connectivity.mode", ModeFlag)
	v.SetDefault("connectivity.probe_interval", 15*time.Second)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("daemon.refresh_interval", 30*time.Second)
	v.SetDefault("storage.max_mb", 50)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads <dataDir>/config.toml into v if it exists and returns the
// resolved configuration. dataDir may be empty before "stockroom init".
func Load(v *viper.Viper, dataDir string) (*Config, error) {
	if dataDir != "" {
		v.SetDefault("data_dir", dataDir)

		path := filepath.Join(dataDir, FileName)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Connectivity.Mode {
	case ModeFlag, ModeProbe, ModeOnline:
	default:
		return fmt.Errorf("%w: connectivity.mode must be flag, probe or online (got %q)", types.ErrInvalidArgument, c.Connectivity.Mode)
	}
	if c.Connectivity.Mode == ModeProbe && c.Remote.URL == "" {
		return fmt.Errorf("%w: connectivity.mode=probe needs remote.url", types.ErrInvalidArgument)
	}
	if c.Remote.Rate < 0 || c.Remote.Burst < 0 {
		return fmt.Errorf("%w: remote.rate and remote.burst must not be negative", types.ErrInvalidArgument)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("%w: remote.timeout must be positive", types.ErrInvalidArgument)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("%w: dashboard.port out of range (got %d)", types.ErrInvalidArgument, c.Dashboard.Port)
	}
	if c.Storage.MaxMB < 0 {
		return fmt.Errorf("%w: storage.max_mb must not be negative", types.ErrInvalidArgument)
	}
	return nil
}

// DBPath returns the store path, relative paths resolved against DataDir.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.DB) || c.DataDir == "" {
		return c.DB
	}
	return filepath.Join(c.DataDir, c.DB)
}

// LogPath returns the log file path, relative paths resolved against
// DataDir. Empty means no log file.
func (c *Config) LogPath() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) || c.DataDir == "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, c.Log.File)
}

// FindDataDir walks up from the working directory looking for DirName.
// STOCKROOM_DIR overrides the search. Returns "" when none is found.
func FindDataDir() string {
	if dir := os.Getenv(EnvPrefix + "_DIR"); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return FindDataDirFrom(cwd)
}

// FindDataDirFrom walks up from start looking for DirName.
func FindDataDirFrom(start string) string {
	dir := start
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// defaultFile is written by Init. Every key is commented out so the
// built-in defaults stay in charge until the user opts in.
const defaultFile = `# stockroom configuration
# Environment variables override these (remote.url -> STOCKROOM_REMOTE_URL).

# db = "stockroom.db"

[remote]
# url = "http://localhost:8787"
# token = ""
# timeout = "10s"
# rate = 20.0
# burst = 5

[connectivity]
# flag: offline while .stockroom/offline exists
# probe: poll the remote health endpoint
# online: always online
# mode = "flag"
# probe_interval = "15s"

[dashboard]
# port = 8080

[daemon]
# refresh_interval = "30s"

[storage]
# max_mb = 50

[log]
# file = "stockroom.log"
# max_size_mb = 10
# max_backups = 3
`

// Init creates DirName under root with a default config file. An existing
// config file is left untouched.
func Init(root string) (string, error) {
	dataDir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dataDir, err)
	}

	path := filepath.Join(dataDir, FileName)
	// #nosec G304 - path is inside the data directory
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if errors.Is(err, fs.ErrExist) {
		return dataDir, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.WriteString(defaultFile); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return dataDir, nil
}
