package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileNames are searched by FindConfig, in order.
var ConfigFileNames = []string{"taffy.yaml", "taffy.yml"}

// EnvPrefix marks environment variables that override file settings.
const EnvPrefix = "TAFFY_"

// Config is the runtime configuration read from taffy.yaml.
type Config struct {
	GC        GCConfig        `yaml:"gc"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Futures   FuturesConfig   `yaml:"futures"`
	Number    NumberConfig    `yaml:"number"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
}

type GCConfig struct {
	// Threshold is the registered node count that starts a collection.
	Threshold int `yaml:"threshold,omitempty"`
	// Growth multiplies the live node count into the next threshold.
	Growth float64 `yaml:"growth,omitempty"`
	// Background runs collections on their own goroutine. Defaults to true.
	Background *bool `yaml:"background,omitempty"`
}

// BackgroundEnabled reports the effective background setting.
func (g GCConfig) BackgroundEnabled() bool { return g.Background == nil || *g.Background }

type EvaluatorConfig struct {
	MaxStackDepth int `yaml:"max_stack_depth,omitempty"`
}

type FuturesConfig struct {
	// MaxThreads bounds concurrently running future goroutines. Blocks
	// beyond the bound run on the caller.
	MaxThreads int `yaml:"max_threads,omitempty"`
}

type NumberConfig struct {
	// Precision is the number of significant digits Numbers print with.
	Precision int `yaml:"precision,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

type StoreConfig struct {
	// Path is the sqlite file the Store class opens by default.
	Path string `yaml:"path,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a taffy.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses taffy.yaml content. The path is only used in
// error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for taffy.yaml starting from dir and walking up
// to the filesystem root. It returns "" and a nil error when there is
// none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.GC.Threshold < 0 {
		return fmt.Errorf("%s: gc.threshold must not be negative", path)
	}
	if c.GC.Growth != 0 && c.GC.Growth <= 1 {
		return fmt.Errorf("%s: gc.growth must be greater than 1, got %g", path, c.GC.Growth)
	}
	if c.Evaluator.MaxStackDepth < 0 {
		return fmt.Errorf("%s: evaluator.max_stack_depth must not be negative", path)
	}
	if c.Futures.MaxThreads < 0 {
		return fmt.Errorf("%s: futures.max_threads must not be negative", path)
	}
	if c.Number.Precision < 0 {
		return fmt.Errorf("%s: number.precision must not be negative", path)
	}
	if c.Log.Level != "" {
		if _, err := ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.GC.Threshold == 0 {
		c.GC.Threshold = DefaultGCThreshold
	}
	if c.GC.Growth == 0 {
		c.GC.Growth = DefaultGCGrowth
	}
	if c.Evaluator.MaxStackDepth == 0 {
		c.Evaluator.MaxStackDepth = DefaultMaxStackDepth
	}
	if c.Futures.MaxThreads == 0 {
		c.Futures.MaxThreads = DefaultFutureMaxThreads
	}
	if c.Number.Precision == 0 {
		c.Number.Precision = DefaultNumberPrecision
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// LoadEnv loads the given .env files (".env" when none are named) into
// the process environment. Missing files are ignored; variables that
// are already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TAFFY_* variables, e.g.
// TAFFY_GC_THRESHOLD or TAFFY_LOG_LEVEL. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"GC_THRESHOLD":              &c.GC.Threshold,
		"EVALUATOR_MAX_STACK_DEPTH": &c.Evaluator.MaxStackDepth,
		"FUTURES_MAX_THREADS":       &c.Futures.MaxThreads,
		"NUMBER_PRECISION":          &c.Number.Precision,
	}
	for key, field := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*field = n
	}
	if v, ok := lookup(EnvPrefix + "GC_GROWTH"); ok {
		g, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sGC_GROWTH: %w", EnvPrefix, err)
		}
		c.GC.Growth = g
	}
	if v, ok := lookup(EnvPrefix + "GC_BACKGROUND"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sGC_BACKGROUND: %w", EnvPrefix, err)
		}
		c.GC.Background = &b
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "STORE_PATH"); ok {
		c.Store.Path = v
	}
	if err := c.validate("environment"); err != nil {
		return err
	}
	c.setDefaults()
	return nil
}

// Load finds and loads the configuration for a script in dir. An
// explicit path wins over the search. The .env file next to the config
// (or in dir) is loaded first, then TAFFY_* variables apply.
func Load(explicit, dir string) (*Config, error) {
	path := explicit
	if path == "" {
		found, err := FindConfig(dir)
		if err != nil {
			return nil, err
		}
		path = found
	}

	envDir := dir
	if path != "" {
		envDir = filepath.Dir(path)
	}
	if err := LoadEnv(filepath.Join(envDir, ".env")); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
