package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestFileStorage_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# comment\n10.0.0.1:8080\n\n10.0.0.2:3128:u:p\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	lines, err := NewFileStorage(path, false).Load()
	if err != nil {
		t.Fatalf("Load() returned an error: %v", err)
	}
	want := []string{"# comment", "10.0.0.1:8080", "", "10.0.0.2:3128:u:p"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Expected %q, got %q", want, lines)
	}
}

func TestFileStorage_MissingFile(t *testing.T) {
	dir := t.TempDir()

	noTemplate := filepath.Join(dir, "a", "proxies.txt")
	lines, err := NewFileStorage(noTemplate, false).Load()
	if err != nil || lines != nil {
		t.Fatalf("Expected (nil, nil) for a missing file, got (%v, %v)", lines, err)
	}
	if _, err := os.Stat(noTemplate); !os.IsNotExist(err) {
		t.Error("Did not expect a template to be created")
	}

	withTemplate := filepath.Join(dir, "b", "proxies.txt")
	fs := NewFileStorage(withTemplate, true)
	if _, err := fs.Load(); err != nil {
		t.Fatalf("Load() returned an error: %v", err)
	}
	data, err := os.ReadFile(withTemplate)
	if err != nil {
		t.Fatalf("Expected a template file to be created: %v", err)
	}
	if !strings.HasPrefix(string(data), "#") {
		t.Errorf("Expected template to be commented, got %q", data)
	}

	// The template holds only comments, so a second load yields no proxies.
	lines, err = fs.Load()
	if err != nil {
		t.Fatalf("Second Load() returned an error: %v", err)
	}
	for _, line := range lines {
		if line != "" && !strings.HasPrefix(line, "#") {
			t.Errorf("Unexpected non-comment template line %q", line)
		}
	}
	if fs.Path() != withTemplate {
		t.Errorf("Unexpected Path() %s", fs.Path())
	}
}
