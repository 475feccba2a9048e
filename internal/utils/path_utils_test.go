package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestModuleDir(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"", "."},
		{"<eval>", "."},
		{"main.ty", "."},
		{filepath.Join("src", "app", "main.ty"), filepath.Join("src", "app")},
		{filepath.Join("src", "lib.taffy"), "src"},
	}
	for _, tt := range tests {
		if got := ModuleDir(tt.file); got != tt.want {
			t.Errorf("ModuleDir(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestImportFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "shapes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Circle.ty", "Square.taffy", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		path []string
		want string
	}{
		{[]string{"shapes", "Circle"}, filepath.Join(dir, "Circle.ty")},
		{[]string{"shapes", "Square"}, filepath.Join(dir, "Square.taffy")},
		{[]string{"shapes", "Triangle"}, ""},
		{[]string{"missing", "Thing"}, ""},
	}
	for _, tt := range tests {
		got, err := ImportFile(root, tt.path)
		if err != nil {
			t.Fatalf("ImportFile(%v): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("ImportFile(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}

	files, err := SourceFiles(root, []string{"shapes"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "Circle.ty"), filepath.Join(dir, "Square.taffy")}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("SourceFiles = %v, want %v", files, want)
	}
	if files, err := SourceFiles(root, []string{"nowhere"}); err != nil || files != nil {
		t.Errorf("SourceFiles(missing) = %v, %v", files, err)
	}
}
