package supervisor

import (
	"github.com/loykin/watchdog/internal/config"
)

// State is the supervisor's finite-state-machine state.
type State string

const (
	StateIdle        State = "idle"         // never started this session
	StateRunning     State = "running"      // child spawned and not yet observed exited
	StateCrashed     State = "crashed"      // child exited abnormally
	StateRestarting  State = "restarting"   // backoff timer armed
	StateStopped     State = "stopped"      // orderly shutdown; terminal per session
	StateMaxRestarts State = "max_restarts" // rate limit exhausted; terminal until restart()
)

// Status is a consistent snapshot of the supervisor, always available and
// non-blocking to obtain. Pointer fields are null when unknown.
type Status struct {
	Status          State       `json:"status"`
	Mode            config.Mode `json:"mode"`
	ExePath         string      `json:"exePath"`
	PID             *int        `json:"pid"`
	UptimeMs        int64       `json:"uptimeMs"`
	TotalCrashes    int         `json:"totalCrashes"`
	RecentCrashes   int         `json:"recentCrashes"`
	BackoffMs       int64       `json:"backoffMs"`
	LastHealthCheck *int64      `json:"lastHealthCheck"`
	HealthCheckOk   bool        `json:"healthCheckOk"`
	Memory          *uint64     `json:"memory"`
	CPU             *float64    `json:"cpu"`
}
