package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/watchdog/internal/config"
)

func TestLoadConfigAbsentReturnsDefaults(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nonexistent"), nil)
	cfg := s.LoadConfig()
	if cfg != config.Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := New(t.TempDir(), nil)
	cfg := config.Default()
	cfg.TargetExePath = "/opt/heka/heka"
	cfg.MaxRestarts = 3
	if err := s.SaveConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := s.LoadConfig()
	if got != cfg {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", cfg, got)
	}
}

func TestSaveCreatesDirLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deep", "state")
	s := New(dir, nil)
	if err := s.SaveConfig(config.Default()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "watchdog-config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestConfigDocumentIsPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	if err := s.SaveConfig(config.Default()); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "watchdog-config.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"") {
		t.Fatalf("document not indented:\n%s", b)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Fatalf("document must end with a newline")
	}
}

func TestCrashHistoryRoundTripAndClear(t *testing.T) {
	s := New(t.TempDir(), nil)
	if got := s.LoadCrashes(); len(got) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(got))
	}
	code := 1
	sig := "SIGKILL"
	entries := []CrashEntry{
		{Timestamp: 1700000000000, ExitCode: &code, UptimeMs: 500, Stderr: "boom"},
		{Timestamp: 1700000001000, Signal: &sig, UptimeMs: 70000},
	}
	if err := s.SaveCrashes(entries); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := s.LoadCrashes()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ExitCode == nil || *got[0].ExitCode != 1 || got[0].Signal != nil {
		t.Fatalf("entry 0 mismatch: %+v", got[0])
	}
	if got[1].Signal == nil || *got[1].Signal != "SIGKILL" || got[1].ExitCode != nil {
		t.Fatalf("entry 1 mismatch: %+v", got[1])
	}
	if err := s.ClearCrashes(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := s.LoadCrashes(); len(got) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(got))
	}
}

func TestCrashEntryNullFieldsOnDisk(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	sig := "SIGTERM"
	if err := s.SaveCrashes([]CrashEntry{{Timestamp: 1, Signal: &sig}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "watchdog-crashes.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := raw[0]["exitCode"]; !ok || v != nil {
		t.Fatalf("exitCode should be an explicit null, got %v", raw[0])
	}
}

func TestCorruptDocumentsFallBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "watchdog-config.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "watchdog-crashes.json"), []byte("[1,2"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(dir, nil)
	if cfg := s.LoadConfig(); cfg != config.Default() {
		t.Fatalf("corrupt config should yield defaults, got %+v", cfg)
	}
	if got := s.LoadCrashes(); got != nil {
		t.Fatalf("corrupt history should yield nil, got %v", got)
	}
}
