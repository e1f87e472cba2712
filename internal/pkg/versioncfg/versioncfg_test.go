package versioncfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCurrent_MissingArtifactFallsBack(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "cms.yaml"))
	version, err := f.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if version != DefaultVersion {
		t.Errorf("expected %q, got %q", DefaultVersion, version)
	}
}

func TestCurrent_EmptyVersionKeyFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cms.yaml")
	if err := os.WriteFile(path, []byte("name: Amber CMS\n"), 0o644); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}
	version, err := New(path).Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if version != DefaultVersion {
		t.Errorf("expected %q, got %q", DefaultVersion, version)
	}
}

func TestSet_CreatesMissingArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cms.yaml")
	f := New(path)
	if err := f.Set("2.0.0"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	version, err := f.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if version != "2.0.0" {
		t.Errorf("expected 2.0.0, got %q", version)
	}
}

// TestSet_PreservesSurroundingContent verifies the in-place substitution:
// only the version line changes, everything else survives byte for byte.
func TestSet_PreservesSurroundingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cms.yaml")
	seed := "name: Amber CMS\nversion: \"1.0.0\"\ntimezone: UTC\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}

	f := New(path)
	if err := f.Set("3.1.4"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	want := "name: Amber CMS\nversion: \"3.1.4\"\ntimezone: UTC\n"
	if string(raw) != want {
		t.Errorf("unexpected artifact content:\n%s", raw)
	}
}

// TestSet_DollarSignVersionIsLiteral guards against the substitution treating
// the new value as a regexp replacement template.
func TestSet_DollarSignVersionIsLiteral(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cms.yaml")
	if err := os.WriteFile(path, []byte("version: \"1.0.0\"\n"), 0o644); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}

	f := New(path)
	if err := f.Set("2.0$1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if string(raw) != "version: \"2.0$1\"\n" {
		t.Errorf("version with $ was not substituted literally:\n%s", raw)
	}
	version, err := f.Current()
	if err != nil || version != "2.0$1" {
		t.Errorf("expected 2.0$1, got %q err=%v", version, err)
	}
}

func TestSet_PrependsWhenVersionKeyAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cms.yaml")
	if err := os.WriteFile(path, []byte("name: Amber CMS\n"), 0o644); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}

	if err := New(path).Set("2.0.0"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if !strings.HasPrefix(string(raw), "version: \"2.0.0\"\n") {
		t.Errorf("expected version line prepended, got:\n%s", raw)
	}
	if !strings.Contains(string(raw), "name: Amber CMS\n") {
		t.Errorf("existing content lost:\n%s", raw)
	}
}
