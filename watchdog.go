// Package watchdog supervises a single local target process: it launches the
// target, restarts it after crashes with rate-limited exponential backoff,
// probes its health endpoint, samples its resource footprint and aggregates
// its output and auxiliary log files into one bounded, categorized stream.
package watchdog

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/watchdog/internal/config"
	"github.com/loykin/watchdog/internal/history"
	"github.com/loykin/watchdog/internal/history/sqlite"
	"github.com/loykin/watchdog/internal/logbuf"
	"github.com/loykin/watchdog/internal/metrics"
	"github.com/loykin/watchdog/internal/server"
	"github.com/loykin/watchdog/internal/store"
	"github.com/loykin/watchdog/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases, so
// conversions are zero-cost.

type Config = config.Config

type Patch = config.Patch

type Mode = config.Mode

const (
	ModeDev        = config.ModeDev
	ModeProduction = config.ModeProduction
)

type Status = supervisor.Status

type State = supervisor.State

const (
	StateIdle        = supervisor.StateIdle
	StateRunning     = supervisor.StateRunning
	StateCrashed     = supervisor.StateCrashed
	StateRestarting  = supervisor.StateRestarting
	StateStopped     = supervisor.StateStopped
	StateMaxRestarts = supervisor.StateMaxRestarts
)

type Event = supervisor.Event

type EventType = supervisor.EventType

type CrashEntry = store.CrashEntry

type LogEntry = logbuf.Entry

type LogCategory = logbuf.Category

type Watch = logbuf.Watch

// Supervisor is a thin facade over internal/supervisor for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// Options configures New. Zero values pick the defaults: state under
// ~/.claude-launcher, the standard watched files under ~/.hekabrain, no
// history mirror.
type Options struct {
	DataDir           string
	Logger            *slog.Logger
	Watches           []Watch
	HistorySQLitePath string
}

// New builds a supervisor from persisted state. The target is not started.
func New(opts Options) (*Supervisor, error) {
	dir := opts.DataDir
	if dir == "" {
		dir = config.DefaultBootstrap().DataDir
	}
	var sinks []history.Sink
	if opts.HistorySQLitePath != "" {
		sink, err := sqlite.New(opts.HistorySQLitePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	inner := supervisor.New(supervisor.Options{
		Logger:  opts.Logger,
		Store:   store.New(dir, opts.Logger),
		Watches: opts.Watches,
		Sinks:   sinks,
	})
	return &Supervisor{inner: inner}, nil
}

func (s *Supervisor) Start(mode *Mode) (Status, error)       { return s.inner.Start(mode) }
func (s *Supervisor) Stop() (Status, error)                  { return s.inner.Stop() }
func (s *Supervisor) Restart() (Status, error)               { return s.inner.Restart() }
func (s *Supervisor) BuildAndRun() (Status, error)           { return s.inner.BuildAndRun() }
func (s *Supervisor) Status() Status                         { return s.inner.Status() }
func (s *Supervisor) Config() Config                         { return s.inner.Config() }
func (s *Supervisor) UpdateConfig(p Patch) (Config, error)   { return s.inner.UpdateConfig(p) }
func (s *Supervisor) Crashes() []CrashEntry                  { return s.inner.Crashes() }
func (s *Supervisor) ClearCrashes() error                    { return s.inner.ClearCrashes() }
func (s *Supervisor) Logs(limit int, c LogCategory) []LogEntry {
	return s.inner.Logs(limit, c)
}
func (s *Supervisor) ClearLogs()                  { s.inner.ClearLogs() }
func (s *Supervisor) OnEvent(fn func(Event)) func() { return s.inner.OnEvent(fn) }
func (s *Supervisor) Shutdown()                   { s.inner.Shutdown() }

// NewHTTPServer starts an HTTP server exposing the command surface for the
// given supervisor. Bind addr to loopback; the API carries no authentication.
func NewHTTPServer(addr string, s *Supervisor) *http.Server {
	return server.NewServer(addr, s.inner)
}

// RegisterMetrics registers the supervisor's Prometheus collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers with the default registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }
