// Package testutil holds shared test helpers: a sandboxed temp directory,
// viper setup and a fake catalog server.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestEnv is a temporary directory that refuses paths escaping it.
type TestEnv struct {
	t       *testing.T
	rootDir string
}

// NewTestEnv creates a sandbox removed when the test completes.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return &TestEnv{t: t, rootDir: t.TempDir()}
}

// RootDir returns the sandbox root.
func (e *TestEnv) RootDir() string {
	return e.rootDir
}

// Path joins elem under the sandbox root and fails the test if the result escapes it.
func (e *TestEnv) Path(elem ...string) string {
	e.t.Helper()

	p := filepath.Clean(filepath.Join(e.rootDir, filepath.Join(elem...)))
	root := filepath.Clean(e.rootDir)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		e.t.Fatalf("path %q escapes test sandbox %q", p, e.rootDir)
	}
	return p
}

// WriteFile writes content under the sandbox, creating parent directories.
func (e *TestEnv) WriteFile(path string, content []byte) {
	e.t.Helper()

	abs := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", abs, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		e.t.Fatalf("failed to write file %q: %v", abs, err)
	}
}

// ReadFile reads a file from the sandbox.
func (e *TestEnv) ReadFile(path string) []byte {
	e.t.Helper()

	content, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read file %q: %v", path, err)
	}
	return content
}

// FileExists reports whether path exists in the sandbox.
func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()

	_, err := os.Stat(e.Path(path))
	return err == nil
}

// Chdir moves into a sandbox directory and moves back when the test completes.
func (e *TestEnv) Chdir(path string) {
	e.t.Helper()

	orig, err := os.Getwd()
	if err != nil {
		e.t.Fatalf("failed to get current directory: %v", err)
	}
	if err := os.Chdir(e.Path(path)); err != nil {
		e.t.Fatalf("failed to change directory to %q: %v", path, err)
	}
	e.t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			e.t.Errorf("failed to restore directory to %q: %v", orig, err)
		}
	})
}
