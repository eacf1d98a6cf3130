package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/executor"
	"github.com/wippyai/wasm-executor/ledger"
	"github.com/wippyai/wasm-executor/rpc"
	"github.com/wippyai/wasm-executor/runtime"
)

// EnvPrefix prefixes every environment override, e.g. WASMEXEC_LISTEN.
const EnvPrefix = "WASMEXEC"

// Keys of the configuration values.
const (
	KeyListen           = "listen"
	KeyMaxMemoryPages   = "max_memory_pages"
	KeyExecutionTimeout = "execution_timeout"
	KeyModuleCacheSize  = "module_cache_size"
	KeyLedgerPath       = "ledger_path"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the process configuration shared by the binaries.
type Config struct {
	Listen           string        `mapstructure:"listen"`
	MaxMemoryPages   uint32        `mapstructure:"max_memory_pages"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	ModuleCacheSize  int           `mapstructure:"module_cache_size"`
	LedgerPath       string        `mapstructure:"ledger_path"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:           "127.0.0.1:7450",
		MaxMemoryPages:   16,
		ExecutionTimeout: 30 * time.Second,
		ModuleCacheSize:  engine.DefaultCacheSize,
		LogLevel:         "info",
		LogFormat:        FormatConsole,
	}
}

// SetDefaults registers the defaults of Default with v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyMaxMemoryPages, d.MaxMemoryPages)
	v.SetDefault(KeyExecutionTimeout, d.ExecutionTimeout)
	v.SetDefault(KeyModuleCacheSize, d.ModuleCacheSize)
	v.SetDefault(KeyLedgerPath, d.LedgerPath)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
}

// flagName maps a key to its command-line spelling.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds the flags for keys to fs and binds them to v. Flags
// left unset on the command line do not override files or the environment.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet, keys ...string) error {
	d := Default()
	for _, key := range keys {
		name := flagName(key)
		switch key {
		case KeyListen:
			fs.String(name, d.Listen, "address to listen on")
		case KeyMaxMemoryPages:
			fs.Uint32(name, d.MaxMemoryPages, "linear memory cap in 64KiB pages")
		case KeyExecutionTimeout:
			fs.Duration(name, d.ExecutionTimeout, "wall-clock limit per execution (0 disables)")
		case KeyModuleCacheSize:
			fs.Int(name, d.ModuleCacheSize, "number of compiled modules kept")
		case KeyLedgerPath:
			fs.String(name, d.LedgerPath, "LevelDB directory of the ledger (empty keeps it in memory)")
		case KeyLogLevel:
			fs.String(name, d.LogLevel, "log level: debug, info, warn or error")
		case KeyLogFormat:
			fs.String(name, d.LogFormat, "log format: console or json")
		default:
			return fmt.Errorf("unknown config key %q", key)
		}
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration from defaults, the optional file, the
// environment and bound flags, in increasing priority.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.MaxMemoryPages == 0 || c.MaxMemoryPages > 65536 {
		return fmt.Errorf("max_memory_pages must be in 1..65536, got %d", c.MaxMemoryPages)
	}
	if c.ExecutionTimeout < 0 {
		return fmt.Errorf("execution_timeout must not be negative")
	}
	if c.ModuleCacheSize < 0 {
		return fmt.Errorf("module_cache_size must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("log_format must be %q or %q, got %q", FormatConsole, FormatJSON, c.LogFormat)
	}
	return nil
}

// NewLogger builds the process logger: the development encoder for console
// output, the production one for JSON.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if c.LogFormat == FormatJSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// InstallLogger routes every package logger through l.
func InstallLogger(l *zap.Logger) {
	runtime.SetLogger(l)
	engine.SetLogger(l)
	executor.SetLogger(l)
	rpc.SetLogger(l)
}

// Executor returns the executor settings.
func (c *Config) Executor() *executor.Config {
	return &executor.Config{
		MaxMemoryPages:  c.MaxMemoryPages,
		ModuleCacheSize: c.ModuleCacheSize,
	}
}

// Server returns the RPC server settings.
func (c *Config) Server() *rpc.ServerConfig {
	return &rpc.ServerConfig{ExecutionTimeout: c.ExecutionTimeout}
}

// Ledger returns the ledger settings.
func (c *Config) Ledger() *ledger.Config {
	return &ledger.Config{Path: c.LedgerPath}
}

// Bootstrap loads the configuration and installs the logger it describes.
// Callers should Sync the returned logger before exiting.
func Bootstrap(v *viper.Viper, file string) (*Config, *zap.Logger, error) {
	cfg, err := Load(v, file)
	if err != nil {
		return nil, nil, err
	}
	log, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	InstallLogger(log)
	return cfg, log, nil
}
