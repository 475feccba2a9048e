package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/taffy/internal/config"
)

// TestFunctional runs every testdata program that has a .want file
// through the driver and compares its stdout.
func TestFunctional(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*"+config.SourceFileExt))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Skip("no programs in testdata")
	}
	for _, file := range files {
		wantFile := strings.TrimSuffix(file, config.SourceFileExt) + ".want"
		want, err := os.ReadFile(wantFile)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		name := strings.TrimSuffix(filepath.Base(file), config.SourceFileExt)
		t.Run(name, func(t *testing.T) {
			status, out, errOut := runCLI(t, "", file)
			if status != ExitOK {
				t.Fatalf("status = %d, stderr:\n%s", status, errOut)
			}
			if out != string(want) {
				t.Errorf("output mismatch\n got: %q\nwant: %q", out, string(want))
			}
		})
	}
}
