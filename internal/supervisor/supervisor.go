package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/watchdog/internal/config"
	"github.com/loykin/watchdog/internal/history"
	"github.com/loykin/watchdog/internal/logbuf"
	"github.com/loykin/watchdog/internal/metrics"
	"github.com/loykin/watchdog/internal/probe"
	"github.com/loykin/watchdog/internal/sampler"
	"github.com/loykin/watchdog/internal/store"
)

const (
	backoffInitial  = 1 * time.Second
	backoffMax      = 30 * time.Second
	stabilityUptime = 60 * time.Second // uptime beyond this rewinds the backoff ladder
	stopGrace       = 5 * time.Second  // graceful termination window before force kill
	killReapWindow  = 2 * time.Second  // wait for the reaper after a force kill

	stderrAccumCap = 10 * 1024 // per-run stderr accumulator cap
	crashStderrCap = 2 * 1024  // tail copied into a CrashEntry

	// apiPortEnv tells the target where to expose its /status endpoint.
	apiPortEnv = "HEKABRAIN_API_PORT"
)

// Supervisor owns the child process and its finite state machine. All
// transitions of state, pid, start time, backoff and the crash window are
// serialized through a single actor goroutine fed by a command channel;
// Status is served from a lock-guarded snapshot and never blocks on the
// actor.
type Supervisor struct {
	logger *slog.Logger
	st     *store.Store
	logs   *logbuf.Buffer
	tailer *logbuf.Tailer
	prober *probe.Prober
	smplr  *sampler.Sampler
	sinks  []history.Sink
	events emitter

	cmdCh  chan command
	doneCh chan struct{}

	// Snapshot fields, guarded by mu. Written only by the actor goroutine.
	mu         sync.RWMutex
	cfg        config.Config
	state      State
	pid        int // 0 when no live child
	startTime  time.Time
	backoff    time.Duration
	crashTimes []time.Time
	crashes    []store.CrashEntry

	// Actor-local state, touched only by the actor goroutine.
	child      *childHandle
	exitCh     <-chan ExitStatus
	stderrTail *tailBuffer
	backoffGen int
	tailerOn   bool
}

// Options configures a Supervisor.
type Options struct {
	Logger  *slog.Logger
	Store   *store.Store
	Watches []logbuf.Watch // nil = logbuf.DefaultWatches()
	Sinks   []history.Sink // optional crash-history mirrors
}

type action int

const (
	actionStart action = iota
	actionStop
	actionRestart
	actionBuildAndRun
	actionUpdateConfig
	actionClearCrashes
	actionBackoffFire
	actionShutdown
)

type command struct {
	action action
	mode   *config.Mode
	patch  config.Patch
	gen    int
	reply  chan error
}

// New loads persisted state and starts the actor. The supervisor begins in
// StateIdle; nothing is spawned until Start.
func New(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	watches := opts.Watches
	if watches == nil {
		watches = logbuf.DefaultWatches()
	}
	buf := logbuf.NewBuffer(logbuf.DefaultMaxEntries)
	s := &Supervisor{
		logger:     logger,
		st:         opts.Store,
		logs:       buf,
		tailer:     logbuf.NewTailer(buf, watches, logbuf.DefaultPollInterval),
		sinks:      opts.Sinks,
		cmdCh:      make(chan command, 16),
		doneCh:     make(chan struct{}),
		state:      StateIdle,
		backoff:    backoffInitial,
		stderrTail: newTailBuffer(stderrAccumCap),
	}
	s.cfg = opts.Store.LoadConfig()
	s.crashes = opts.Store.LoadCrashes()
	s.prober = probe.New(func() probe.Settings {
		cfg := s.Config()
		return probe.Settings{
			Port:     cfg.HealthCheckPort,
			Interval: time.Duration(cfg.HealthCheckIntervalMs) * time.Millisecond,
		}
	})
	s.smplr = sampler.New(sampler.DefaultInterval)
	buf.OnEntry(func(e logbuf.Entry) {
		entry := e
		s.events.emit(Event{Type: EventLog, Log: &entry})
	})
	go s.run()
	return s
}

// OnEvent registers a listener for status/crash/log/max-restarts events and
// returns a function that unregisters it. Listeners are called synchronously
// from internal goroutines and must be fast and safe for concurrent use.
func (s *Supervisor) OnEvent(fn func(Event)) func() { return s.events.subscribe(fn) }

// Start spawns the target. A non-nil mode overrides the configured mode for
// this and subsequent runs (in memory; persist with UpdateConfig).
func (s *Supervisor) Start(mode *config.Mode) (Status, error) {
	err := s.do(command{action: actionStart, mode: mode})
	return s.Status(), err
}

// Stop terminates the child and leaves the supervisor stopped. Idempotent;
// a pending restart is cancelled.
func (s *Supervisor) Stop() (Status, error) {
	err := s.do(command{action: actionStop})
	return s.Status(), err
}

// Restart stops the child, clears the crash window and backoff ladder, and
// starts again. Start is refused in StateMaxRestarts, so apart from Stop
// this is the only exit from that state.
func (s *Supervisor) Restart() (Status, error) {
	err := s.do(command{action: actionRestart})
	return s.Status(), err
}

// BuildAndRun runs the configured build command against the dev tree and, on
// success, starts the target in production mode. Blocks until the build
// completes.
func (s *Supervisor) BuildAndRun() (Status, error) {
	err := s.do(command{action: actionBuildAndRun})
	return s.Status(), err
}

// UpdateConfig merges the patch, persists the document and returns the
// merged view. Health probe changes take effect on the next probe cycle;
// mode and path changes on the next Start.
func (s *Supervisor) UpdateConfig(patch config.Patch) (config.Config, error) {
	err := s.do(command{action: actionUpdateConfig, patch: patch})
	return s.Config(), err
}

// ClearCrashes empties the crash history, on disk and in memory.
func (s *Supervisor) ClearCrashes() error {
	return s.do(command{action: actionClearCrashes})
}

// Shutdown stops the child and terminates the actor. The supervisor must
// not be used afterwards.
func (s *Supervisor) Shutdown() {
	_ = s.do(command{action: actionShutdown})
	for _, sink := range s.sinks {
		_ = sink.Close()
	}
}

// Config returns a copy of the current configuration.
func (s *Supervisor) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Crashes returns a copy of the crash history, oldest first.
func (s *Supervisor) Crashes() []store.CrashEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.CrashEntry, len(s.crashes))
	copy(out, s.crashes)
	return out
}

// Logs returns the tail of the log ring, optionally filtered by category.
func (s *Supervisor) Logs(limit int, category logbuf.Category) []logbuf.Entry {
	return s.logs.Logs(limit, category)
}

// ClearLogs empties the log ring.
func (s *Supervisor) ClearLogs() { s.logs.Clear() }

// Status returns a consistent snapshot. Never blocks on the actor.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	cfg := s.cfg
	state := s.state
	pid := s.pid
	startTime := s.startTime
	backoff := s.backoff
	total := len(s.crashes)
	recent := countWithin(s.crashTimes, time.Duration(cfg.RestartWindowMs)*time.Millisecond)
	s.mu.RUnlock()

	st := Status{
		Status:        state,
		Mode:          cfg.Mode,
		ExePath:       cfg.ExePath(),
		TotalCrashes:  total,
		RecentCrashes: recent,
		BackoffMs:     backoff.Milliseconds(),
	}
	if state == StateRunning {
		st.UptimeMs = time.Since(startTime).Milliseconds()
	}
	if pid != 0 {
		p := pid
		st.PID = &p
	}
	if last, ok := s.prober.Last(); last != 0 {
		l := last
		st.LastHealthCheck = &l
		st.HealthCheckOk = ok
	}
	st.Memory, st.CPU = s.smplr.Last()
	return st
}

func countWithin(times []time.Time, window time.Duration) int {
	cutoff := time.Now().Add(-window)
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func (s *Supervisor) do(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmdCh <- cmd:
		return <-cmd.reply
	case <-s.doneCh:
		return fmt.Errorf("supervisor is shut down")
	}
}

// run is the actor loop. It is the only goroutine that mutates the FSM.
func (s *Supervisor) run() {
	for {
		select {
		case cmd := <-s.cmdCh:
			if s.handleCommand(cmd) {
				return
			}
		case es := <-s.exitCh:
			s.handleExit(es)
		}
	}
}

// handleCommand dispatches one command; returns true on shutdown.
func (s *Supervisor) handleCommand(cmd command) bool {
	var err error
	switch cmd.action {
	case actionStart:
		err = s.doStart(cmd.mode)
	case actionStop:
		s.doStop()
	case actionRestart:
		err = s.doRestart()
	case actionBuildAndRun:
		err = s.doBuildAndRun()
	case actionUpdateConfig:
		err = s.doUpdateConfig(cmd.patch)
	case actionClearCrashes:
		err = s.doClearCrashes()
	case actionBackoffFire:
		s.onBackoffFire(cmd.gen)
	case actionShutdown:
		s.doStop()
		close(s.doneCh)
		if cmd.reply != nil {
			cmd.reply <- nil
		}
		// Commands that raced into the queue still get an answer.
		go func() {
			for cmd := range s.cmdCh {
				if cmd.reply != nil {
					cmd.reply <- fmt.Errorf("supervisor is shut down")
				}
			}
		}()
		return true
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
	return false
}

// --- Start ---

func (s *Supervisor) doStart(mode *config.Mode) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state == StateRunning {
		return fmt.Errorf("target is already running")
	}
	if state == StateMaxRestarts {
		return fmt.Errorf("restart limit reached; use restart to resume")
	}
	if mode != nil {
		s.mu.Lock()
		s.cfg.Mode = *mode
		s.mu.Unlock()
	}
	cfg := s.Config()

	var spec childSpec
	switch cfg.Mode {
	case config.ModeProduction:
		if cfg.TargetExePath == "" {
			s.pushSupervisorError("no executable path configured for production mode")
			s.setState(StateStopped)
			return fmt.Errorf("targetExePath is not configured")
		}
		spec = childSpec{Exe: cfg.TargetExePath}
	default:
		if cfg.TargetDevPath == "" {
			s.pushSupervisorError("no project path configured for dev mode")
			s.setState(StateStopped)
			return fmt.Errorf("targetDevPath is not configured")
		}
		spec = childSpec{Commandline: cfg.DevCommand, Dir: cfg.TargetDevPath}
	}
	spec.Env = []string{apiPortEnv + "=" + strconv.Itoa(cfg.HealthCheckPort)}

	s.stderrTail.Reset()
	child, exitCh, err := spawn(spec, s.onChildLine)
	if err != nil {
		s.pushSupervisorError("failed to launch target: " + err.Error())
		s.logger.Error("spawn failed", "mode", cfg.Mode, "error", err)
		s.setState(StateStopped)
		return fmt.Errorf("spawn target: %w", err)
	}
	s.child = child
	s.exitCh = exitCh

	s.mu.Lock()
	s.pid = child.pid
	s.startTime = time.Now()
	s.mu.Unlock()

	s.setState(StateRunning)
	metrics.IncSpawn()
	s.logger.Info("target started", "pid", child.pid, "mode", cfg.Mode)

	s.prober.Start()
	s.smplr.Start(child.pid)
	if !s.tailerOn {
		s.tailer.Start()
		s.tailerOn = true
	}
	return nil
}

// onChildLine feeds one captured stream line into the aggregator and the
// per-run stderr accumulator.
func (s *Supervisor) onChildLine(line string, src logbuf.Source) {
	if src == logbuf.SourceStderr {
		s.stderrTail.WriteString(line + "\n")
	}
	s.logs.Push(line, src, logbuf.CategoryConsole)
}

// pushSupervisorError surfaces a supervisor-side failure through the log
// ring, where the shell reads user-visible errors.
func (s *Supervisor) pushSupervisorError(msg string) {
	s.logs.Append(logbuf.Entry{
		Timestamp: time.Now().UnixMilli(),
		Level:     logbuf.LevelError,
		Category:  logbuf.CategorySystem,
		Message:   msg,
		Source:    logbuf.SourceStderr,
	})
}

// --- Exit handling ---

func (s *Supervisor) handleExit(es ExitStatus) {
	s.prober.Stop()
	s.smplr.Stop()
	s.child = nil
	s.exitCh = nil

	s.mu.Lock()
	s.pid = 0
	uptime := time.Since(s.startTime)
	state := s.state
	cfg := s.cfg
	s.mu.Unlock()

	clean := es.Code != nil && *es.Code == 0
	if state == StateStopped || clean {
		s.logger.Info("target exited", "uptime", uptime)
		s.setState(StateStopped)
		return
	}

	entry := store.CrashEntry{
		Timestamp: time.Now().UnixMilli(),
		ExitCode:  es.Code,
		Signal:    es.Signal,
		UptimeMs:  uptime.Milliseconds(),
		Stderr:    s.stderrTail.Tail(crashStderrCap),
	}
	if es.Err != nil {
		s.logger.Warn("target wait failed", "error", es.Err)
	}

	now := time.Now()
	window := time.Duration(cfg.RestartWindowMs) * time.Millisecond
	s.mu.Lock()
	s.crashes = append(s.crashes, entry)
	s.crashTimes = pruneOlder(append(s.crashTimes, now), now.Add(-window))
	recent := len(s.crashTimes)
	crashesCopy := make([]store.CrashEntry, len(s.crashes))
	copy(crashesCopy, s.crashes)
	s.mu.Unlock()

	if err := s.st.SaveCrashes(crashesCopy); err != nil {
		s.logger.Warn("persist crash history", "error", err)
	}
	for _, sink := range s.sinks {
		if err := sink.Record(context.Background(), entry); err != nil {
			s.logger.Warn("mirror crash entry", "error", err)
		}
	}
	metrics.IncCrash()
	s.logger.Warn("target crashed",
		"exit_code", es.Code, "signal", es.Signal, "uptime", uptime, "recent_crashes", recent)

	s.events.emit(Event{Type: EventCrash, Crash: &entry})
	s.setState(StateCrashed)

	if !cfg.AutoRestart {
		return
	}
	if recent >= cfg.MaxRestarts {
		s.setState(StateMaxRestarts)
		s.events.emit(Event{Type: EventMaxRestarts})
		s.logger.Error("restart rate limit reached", "recent_crashes", recent, "max_restarts", cfg.MaxRestarts)
		return
	}

	s.mu.Lock()
	if uptime > stabilityUptime {
		// A long stable run means this crash is intermittent, not a failure
		// loop: rewind the ladder.
		s.backoff = backoffInitial
	}
	delay := s.backoff
	s.backoff = minDuration(s.backoff*2, backoffMax)
	s.mu.Unlock()

	s.setState(StateRestarting)
	s.scheduleRestart(delay)
	metrics.IncRestart()
	metrics.SetBackoff(delay.Seconds())
	s.logger.Info("restart scheduled", "delay", delay)
}

func (s *Supervisor) scheduleRestart(delay time.Duration) {
	s.backoffGen++
	gen := s.backoffGen
	time.AfterFunc(delay, func() {
		select {
		case s.cmdCh <- command{action: actionBackoffFire, gen: gen}:
		case <-s.doneCh:
		}
	})
}

func (s *Supervisor) onBackoffFire(gen int) {
	if gen != s.backoffGen {
		return // cancelled or superseded
	}
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state != StateRestarting {
		return
	}
	if err := s.doStart(nil); err != nil {
		s.logger.Error("scheduled restart failed", "error", err)
	}
}

func pruneOlder(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// --- Stop / Restart / BuildAndRun ---

// doStop cancels any pending restart, tears down the auxiliary loops and
// terminates the child: graceful signal, then force kill after the grace
// window. The state is set to stopped before termination so the exit is
// treated as orderly.
func (s *Supervisor) doStop() {
	s.backoffGen++ // invalidate any armed backoff timer
	s.prober.Stop()
	s.smplr.Stop()
	if s.tailerOn {
		s.tailer.Stop()
		s.tailerOn = false
	}

	s.setState(StateStopped)
	if s.child == nil {
		return
	}
	s.child.signalStop()
	select {
	case <-s.exitCh:
	case <-time.After(stopGrace):
		s.logger.Warn("graceful stop timed out, killing", "pid", s.child.pid)
		s.child.kill()
		select {
		case <-s.exitCh:
		case <-time.After(killReapWindow):
			s.logger.Error("child did not exit after kill", "pid", s.child.pid)
		}
	}
	s.child = nil
	s.exitCh = nil
	s.mu.Lock()
	s.pid = 0
	s.mu.Unlock()
	s.logger.Info("target stopped")
}

func (s *Supervisor) doRestart() error {
	s.doStop()
	s.mu.Lock()
	s.crashTimes = nil
	s.backoff = backoffInitial
	s.mu.Unlock()
	metrics.SetBackoff(0)
	return s.doStart(nil)
}

func (s *Supervisor) doBuildAndRun() error {
	cfg := s.Config()
	if cfg.TargetDevPath == "" {
		s.pushSupervisorError("no project path configured, cannot build")
		return fmt.Errorf("targetDevPath is not configured")
	}
	s.doStop()

	s.logger.Info("build started", "command", cfg.BuildCommand, "dir", cfg.TargetDevPath)
	spec := childSpec{Commandline: cfg.BuildCommand, Dir: cfg.TargetDevPath}
	_, exitCh, err := spawn(spec, func(line string, src logbuf.Source) {
		s.logs.Push(line, src, logbuf.CategoryConsole)
	})
	if err != nil {
		s.pushSupervisorError("failed to run build command: " + err.Error())
		return fmt.Errorf("spawn build: %w", err)
	}
	es := <-exitCh
	if es.Code == nil || *es.Code != 0 {
		s.pushSupervisorError("build failed, target not started")
		s.logger.Error("build failed", "exit_code", es.Code, "signal", es.Signal)
		return fmt.Errorf("build command failed")
	}
	s.logger.Info("build succeeded, starting production target")
	prod := config.ModeProduction
	return s.doStart(&prod)
}

// --- Config / crash history ---

func (s *Supervisor) doUpdateConfig(patch config.Patch) error {
	s.mu.Lock()
	patch.Apply(&s.cfg)
	s.cfg.Normalize()
	cfg := s.cfg
	s.mu.Unlock()
	if err := s.st.SaveConfig(cfg); err != nil {
		// Keep the merged view in memory; persistence failures are
		// diagnostic only.
		s.logger.Warn("persist config", "error", err)
	}
	return nil
}

func (s *Supervisor) doClearCrashes() error {
	s.mu.Lock()
	s.crashes = nil
	s.mu.Unlock()
	if err := s.st.ClearCrashes(); err != nil {
		s.logger.Warn("clear crash history", "error", err)
		return err
	}
	for _, sink := range s.sinks {
		if err := sink.Clear(context.Background()); err != nil {
			s.logger.Warn("clear crash mirror", "error", err)
		}
	}
	return nil
}

// setState records a transition and publishes status-changed when the state
// actually changed.
func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	metrics.RecordStateTransition(string(prev), string(next))
	st := s.Status()
	s.events.emit(Event{Type: EventStatusChanged, Status: &st})
}
