package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v; want nil", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = ""
	cfg.PID = -1
	cfg.ArchiveFormat = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil; want errors")
	}
	for _, want := range []string{"listen address", "invalid pid", "invalid archive format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestValidateReportRequiresArchive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GenerateReport = true
	cfg.ArchiveEnabled = false

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with report but no archive = nil; want error")
	}
}

func TestValidateArchiveDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArchiveEnabled = true
	cfg.ArchiveDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with empty archive dir = nil; want error")
	}

	// Validate only checks; the directory is created when the archive
	// writer opens it.
	dir := filepath.Join(t.TempDir(), "not-yet-created")
	cfg.ArchiveDir = dir
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v; want nil", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Validate() created %q", dir)
	}
}

func TestEnvTruthy(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"", false},
		{"off", false},
	}

	for _, tt := range tests {
		t.Setenv("TEST_VERBOSE_TOGGLE", tt.value)
		if got := envTruthy("TEST_VERBOSE_TOGGLE"); got != tt.want {
			t.Errorf("envTruthy(%q) = %v; want %v", tt.value, got, tt.want)
		}
	}
}
