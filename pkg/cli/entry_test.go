package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/taffy/internal/config"
)

// runCLI runs the driver with a private config so no taffy.yaml above
// the test directory is picked up.
func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "taffy.yaml")
	if err := os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	argv := append([]string{"taffy", "--config", cfg}, args...)
	status := Main(context.Background(), argv, strings.NewReader(stdin), &stdout, &stderr)
	return status, stdout.String(), stderr.String()
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{"file", []string{"main.ty"}, options{file: "main.ty"}, false},
		{"eval", []string{"-e", "1"}, options{source: "1", hasSource: true}, false},
		{"config", []string{"--config", "c.yaml", "main.ty"}, options{config: "c.yaml", file: "main.ty"}, false},
		{"store equals", []string{"--store=db.sqlite", "-e", "1"}, options{store: "db.sqlite", source: "1", hasSource: true}, false},
		{"version", []string{"--version"}, options{version: true}, false},
		{"help", []string{"-h"}, options{help: true}, false},
		{"stdin dash", []string{"-"}, options{file: "-"}, false},
		{"missing eval source", []string{"-e"}, options{}, true},
		{"unknown flag", []string{"--fast"}, options{}, true},
		{"two files", []string{"a.ty", "b.ty"}, options{}, true},
		{"eval and file", []string{"-e", "1", "a.ty"}, options{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseArgs(%q) succeeded", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs(%q): %v", tt.args, err)
			}
			if *got != tt.want {
				t.Errorf("parseArgs(%q) = %+v, want %+v", tt.args, *got, tt.want)
			}
		})
	}
}

func TestRunEval(t *testing.T) {
	status, out, errOut := runCLI(t, "", "-e", `io putLine: 6 * 7`)
	if status != ExitOK {
		t.Fatalf("status = %d, stderr = %q", status, errOut)
	}
	if out != "42\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.ty")
	if err := os.WriteFile(path, []byte("io putLine: \"hello\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, out, errOut := runCLI(t, "", path)
	if status != ExitOK {
		t.Fatalf("status = %d, stderr = %q", status, errOut)
	}
	if out != "hello\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunStdin(t *testing.T) {
	status, out, _ := runCLI(t, "io put: 1 + 1", "-")
	if status != ExitOK || out != "2" {
		t.Errorf("status = %d, stdout = %q", status, out)
	}
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		status     int
		wantStderr string
	}{
		{"exit", []string{"-e", "io put: 1\nexit"}, ExitOK, ""},
		{"uncaught", []string{"-e", "x = 1 / 0"}, ExitFailure, "DivideByZeroException"},
		{"parse failure", []string{"-e", "x = \"abc\" + "}, ExitFailure, "ParseFailureException"},
		{"missing file", []string{filepath.Join(os.TempDir(), "no-such-taffy-file.ty")}, ExitUsage, "reading"},
		{"bad flag", []string{"--nope"}, ExitUsage, "unknown option"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, errOut := runCLI(t, "", tt.args...)
			if status != tt.status {
				t.Errorf("status = %d, want %d (stderr %q)", status, tt.status, errOut)
			}
			if !strings.Contains(errOut, tt.wantStderr) {
				t.Errorf("stderr = %q, want it to contain %q", errOut, tt.wantStderr)
			}
		})
	}
}

func TestBacktraceIsPrinted(t *testing.T) {
	src := `
class Thrower
{
    (@) fail
    {
        [kernel assert: no]
    }
}
t = new Thrower
[t fail]`
	status, _, errOut := runCLI(t, "", "-e", src)
	if status != ExitFailure {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(errOut, "Thrower fail") {
		t.Errorf("stderr %q has no backtrace", errOut)
	}
	if strings.Contains(errOut, "\033[") {
		t.Errorf("stderr %q is coloured but is not a terminal", errOut)
	}
}

func TestVersion(t *testing.T) {
	status, out, _ := runCLI(t, "", "--version")
	if status != ExitOK || out != "taffy "+config.Version+"\n" {
		t.Errorf("status = %d, stdout = %q", status, out)
	}
}

func TestStorePersistsGlobals(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")
	if status, _, errOut := runCLI(t, "", "--store", db, "-e", "count = 41"); status != ExitOK {
		t.Fatalf("first run: status = %d, stderr = %q", status, errOut)
	}
	status, out, errOut := runCLI(t, "", "--store", db, "-e", "count++\nio putLine: count")
	if status != ExitOK {
		t.Fatalf("second run: status = %d, stderr = %q", status, errOut)
	}
	if out != "42\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestColorEnabled(t *testing.T) {
	env := func(vars map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		}
	}
	var buf bytes.Buffer
	if colorEnabled(&buf, env(nil)) {
		t.Error("a buffer is not a terminal")
	}
	if colorEnabled(os.Stdout, env(map[string]string{"NO_COLOR": ""})) {
		t.Error("NO_COLOR was ignored")
	}
	if colorEnabled(os.Stdout, env(map[string]string{"TERM": "dumb"})) {
		t.Error("TERM=dumb was ignored")
	}

	p := painter{enabled: true}
	if got := p.paint(red, "boom\n"); got != red+"boom"+reset+"\n" {
		t.Errorf("paint = %q", got)
	}
	if got := (painter{}).paint(red, "boom"); got != "boom" {
		t.Errorf("disabled paint = %q", got)
	}
}
