package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("gc:\n  threshold: 100\n"), "taffy.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GC.Threshold != 100 {
		t.Errorf("threshold = %d", cfg.GC.Threshold)
	}
	if cfg.GC.Growth != DefaultGCGrowth || !cfg.GC.BackgroundEnabled() {
		t.Errorf("gc defaults = %+v", cfg.GC)
	}
	if cfg.Evaluator.MaxStackDepth != DefaultMaxStackDepth || cfg.Futures.MaxThreads != DefaultFutureMaxThreads ||
		cfg.Number.Precision != DefaultNumberPrecision || cfg.Log.Level != DefaultLogLevel {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestParseConfigFull(t *testing.T) {
	src := `
gc:
  threshold: 10
  growth: 2.5
  background: false
evaluator:
  max_stack_depth: 50
futures:
  max_threads: 2
number:
  precision: 8
log:
  level: debug
store:
  path: objects.db
`
	cfg, err := ParseConfig([]byte(src), "taffy.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GC.BackgroundEnabled() || cfg.GC.Growth != 2.5 || cfg.Evaluator.MaxStackDepth != 50 ||
		cfg.Futures.MaxThreads != 2 || cfg.Number.Precision != 8 || cfg.Log.Level != "debug" ||
		cfg.Store.Path != "objects.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bad yaml", "gc: [", "parsing"},
		{"negative threshold", "gc:\n  threshold: -1\n", "gc.threshold"},
		{"growth too small", "gc:\n  growth: 0.5\n", "gc.growth"},
		{"negative depth", "evaluator:\n  max_stack_depth: -3\n", "max_stack_depth"},
		{"bad level", "log:\n  level: loud\n", "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.src), "taffy.yaml")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "taffy.yml")
	if err := os.WriteFile(want, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindConfig(nested)
	if err != nil || got != want {
		t.Fatalf("FindConfig = %q, %v; want %q", got, err, want)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TAFFY_GC_THRESHOLD":  "77",
		"TAFFY_GC_BACKGROUND": "false",
		"TAFFY_LOG_LEVEL":     "error",
		"TAFFY_STORE_PATH":    "/tmp/x.db",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.GC.Threshold != 77 || cfg.GC.BackgroundEnabled() || cfg.Log.Level != "error" || cfg.Store.Path != "/tmp/x.db" {
		t.Fatalf("cfg = %+v", cfg)
	}

	env["TAFFY_FUTURES_MAX_THREADS"] = "many"
	if err := Default().ApplyEnv(lookup); err == nil {
		t.Fatal("non-numeric max threads accepted")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "taffy.yaml"), []byte("number:\n  precision: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TAFFY_EVALUATOR_MAX_STACK_DEPTH=123\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TAFFY_EVALUATOR_MAX_STACK_DEPTH") })

	cfg, err := Load("", dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Number.Precision != 5 || cfg.Evaluator.MaxStackDepth != 123 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo,
		"warning": slog.LevelWarn, "error": slog.LevelError} {
		if got, err := ParseLevel(in); err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}
