package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/stockroom/internal/types"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(New(), dataDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dataDir)
	}
	if cfg.DBPath() != filepath.Join(dataDir, DBFileName) {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.Connectivity.Mode != ModeFlag {
		t.Errorf("Connectivity.Mode = %q, want %q", cfg.Connectivity.Mode, ModeFlag)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout = %v, want 10s", cfg.Remote.Timeout)
	}
	if cfg.Dashboard.Port != 8080 || cfg.Storage.MaxMB != 50 {
		t.Errorf("Dashboard.Port = %d, Storage.MaxMB = %d", cfg.Dashboard.Port, cfg.Storage.MaxMB)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dataDir := t.TempDir()
	content := `
[remote]
url = "http://inventory.local"
timeout = "3s"

[connectivity]
mode = "probe"

[dashboard]
port = 9090
`
	if err := os.WriteFile(filepath.Join(dataDir, FileName), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("STOCKROOM_DASHBOARD_PORT", "9191")

	cfg, err := Load(New(), dataDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Remote.URL != "http://inventory.local" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout = %v, want 3s", cfg.Remote.Timeout)
	}
	if cfg.Connectivity.Mode != ModeProbe {
		t.Errorf("Connectivity.Mode = %q, want probe", cfg.Connectivity.Mode)
	}
	if cfg.Dashboard.Port != 9191 {
		t.Errorf("Dashboard.Port = %d, want env override 9191", cfg.Dashboard.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown mode", map[string]string{"STOCKROOM_CONNECTIVITY_MODE": "carrier-pigeon"}},
		{"probe without url", map[string]string{"STOCKROOM_CONNECTIVITY_MODE": "probe"}},
		{"negative rate", map[string]string{"STOCKROOM_REMOTE_RATE": "-1"}},
		{"port out of range", map[string]string{"STOCKROOM_DASHBOARD_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(New(), t.TempDir())
			if !errors.Is(err, types.ErrInvalidArgument) {
				t.Errorf("Load() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, FileName), []byte("[remote\nurl="), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(New(), dataDir); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestFindDataDirFrom(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, DirName)
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	if got := FindDataDirFrom(nested); got != dataDir {
		t.Errorf("FindDataDirFrom(nested) = %q, want %q", got, dataDir)
	}

	if got := FindDataDirFrom(t.TempDir()); got != "" {
		t.Errorf("FindDataDirFrom(unrelated) = %q, want none", got)
	}
}

func TestFindDataDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STOCKROOM_DIR", dir)
	if got := FindDataDir(); got != dir {
		t.Errorf("FindDataDir() = %q, want %q", got, dir)
	}
}

func TestInit(t *testing.T) {
	root := t.TempDir()

	dataDir, err := Init(root)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if dataDir != filepath.Join(root, DirName) {
		t.Errorf("Init() = %q", dataDir)
	}
	if _, err := os.Stat(filepath.Join(dataDir, FileName)); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	// A second init keeps the existing file and still loads.
	if _, err := Init(root); err != nil {
		t.Fatalf("second Init() failed: %v", err)
	}
	if _, err := Load(New(), dataDir); err != nil {
		t.Fatalf("Load() after Init() failed: %v", err)
	}
}

func TestLogWriter(t *testing.T) {
	cfg := &Config{}
	w, closeLog := cfg.LogWriter(false)
	if w != io.Discard {
		t.Error("quiet config should discard logs")
	}
	_ = closeLog()

	cfg = &Config{DataDir: t.TempDir(), Log: LogConfig{File: "stockroom.log", MaxSizeMB: 1, MaxBackups: 1}}
	w, closeLog = cfg.LogWriter(false)
	Logger(w, "sync").Printf("hello")
	if err := closeLog(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[sync] hello") {
		t.Errorf("log file = %q, want prefixed line", data)
	}
}
