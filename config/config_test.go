package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("got %+v, want %+v", cfg, Default())
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("WASMEXEC_MAX_MEMORY_PAGES", "32")
	t.Setenv("WASMEXEC_EXECUTION_TIMEOUT", "5s")
	t.Setenv("WASMEXEC_LOG_FORMAT", "json")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxMemoryPages != 32 || cfg.ExecutionTimeout != 5*time.Second || cfg.LogFormat != FormatJSON {
		t.Errorf("got %+v", cfg)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("WASMEXEC_LISTEN", "127.0.0.1:1")

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := RegisterFlags(v, fs, KeyListen, KeyModuleCacheSize); err != nil {
		t.Fatal(err)
	}
	if err := fs.Parse([]string{"--listen", "127.0.0.1:2"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:2" {
		t.Errorf("Listen = %q, want the flag value", cfg.Listen)
	}
	if cfg.ModuleCacheSize != Default().ModuleCacheSize {
		t.Errorf("unset flag overrode default: %d", cfg.ModuleCacheSize)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executor.yaml")
	data := "listen: 0.0.0.0:9000\nledger_path: /var/lib/ledger\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" || cfg.LedgerPath != "/var/lib/ledger" || cfg.LogLevel != "debug" {
		t.Errorf("got %+v", cfg)
	}
	if cfg.Ledger().Path != "/var/lib/ledger" {
		t.Errorf("ledger path not propagated")
	}
}

func TestRegisterUnknownKey(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := RegisterFlags(viper.New(), fs, "bogus"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pages", func(c *Config) { c.MaxMemoryPages = 0 }},
		{"too many pages", func(c *Config) { c.MaxMemoryPages = 65537 }},
		{"negative timeout", func(c *Config) { c.ExecutionTimeout = -time.Second }},
		{"negative cache", func(c *Config) { c.ModuleCacheSize = -1 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{FormatConsole, FormatJSON} {
		t.Run(format, func(t *testing.T) {
			c := Default()
			c.LogFormat = format
			c.LogLevel = "warn"
			l, err := c.NewLogger()
			if err != nil {
				t.Fatal(err)
			}
			if l.Core().Enabled(-1) {
				t.Error("debug enabled at warn level")
			}
		})
	}
}

func TestDerivedSettings(t *testing.T) {
	c := Default()
	c.MaxMemoryPages = 8
	c.ExecutionTimeout = time.Minute
	if got := c.Executor(); got.MaxMemoryPages != 8 || got.ModuleCacheSize != c.ModuleCacheSize {
		t.Errorf("executor config = %+v", got)
	}
	if got := c.Server(); got.ExecutionTimeout != time.Minute {
		t.Errorf("server config = %+v", got)
	}
}

func TestBootstrap(t *testing.T) {
	cfg, log, err := Bootstrap(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer InstallLogger(nil)
	if cfg.Listen == "" || log == nil {
		t.Errorf("cfg = %+v, log = %v", cfg, log)
	}

	t.Setenv("WASMEXEC_LOG_FORMAT", "xml")
	if _, _, err := Bootstrap(viper.New(), ""); err == nil {
		t.Error("expected invalid format error")
	}
}
