package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loykin/watchdog/internal/config"
)

const (
	configFile  = "watchdog-config.json"
	crashesFile = "watchdog-crashes.json"
)

// CrashEntry is one observed crash of the target, appended to the persistent
// history. Pointer fields are null in the JSON document when the value is
// unknown (e.g. signal-terminated processes have no exit code).
type CrashEntry struct {
	Timestamp int64   `json:"timestamp"` // epoch ms
	ExitCode  *int    `json:"exitCode"`
	Signal    *string `json:"signal"`
	UptimeMs  int64   `json:"uptimeMs"`
	Stderr    string  `json:"stderr"` // last 2 KiB of accumulated stderr at exit
}

// Store persists the supervisor configuration and the crash history as two
// pretty-printed JSON documents under a per-user directory. The directory is
// created lazily on first write; reads tolerate absence. The supervisor is
// the only writer, so no locking beyond full-file overwrites is needed.
type Store struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) Dir() string { return s.dir }

// LoadConfig returns the stored configuration overlaid on the defaults.
// A missing or unreadable document yields the defaults.
func (s *Store) LoadConfig() config.Config {
	cfg := config.Default()
	b, err := os.ReadFile(filepath.Join(s.dir, configFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read config document", "error", err)
		}
		return cfg
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		s.logger.Warn("parse config document, using defaults", "error", err)
		return config.Default()
	}
	cfg.Normalize()
	return cfg
}

// SaveConfig overwrites the configuration document.
func (s *Store) SaveConfig(cfg config.Config) error {
	return s.writeJSON(configFile, cfg)
}

// LoadCrashes returns the persisted crash history, oldest first. Absence is
// an empty history, not an error.
func (s *Store) LoadCrashes() []CrashEntry {
	b, err := os.ReadFile(filepath.Join(s.dir, crashesFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read crash history", "error", err)
		}
		return nil
	}
	var entries []CrashEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		s.logger.Warn("parse crash history", "error", err)
		return nil
	}
	return entries
}

// SaveCrashes overwrites the crash history document.
func (s *Store) SaveCrashes(entries []CrashEntry) error {
	if entries == nil {
		entries = []CrashEntry{}
	}
	return s.writeJSON(crashesFile, entries)
}

// ClearCrashes empties the persisted history.
func (s *Store) ClearCrashes() error {
	return s.SaveCrashes(nil)
}

func (s *Store) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(filepath.Join(s.dir, name), b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
