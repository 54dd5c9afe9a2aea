package config

import (
	"fmt"
)

// Mode selects how the target is launched.
type Mode string

const (
	ModeDev        Mode = "dev"        // run the dev command against the source tree
	ModeProduction Mode = "production" // execute the built binary directly
)

// Config is the persisted supervisor configuration document.
// Field names match the on-disk JSON layout consumed by the launcher shell.
type Config struct {
	TargetExePath         string `json:"targetExePath"`         // absolute path to the production executable
	TargetDevPath         string `json:"targetDevPath"`         // absolute path to the source tree for dev mode
	Mode                  Mode   `json:"mode"`                  // dev | production
	AutoRestart           bool   `json:"autoRestart"`           // restart after crashes
	MaxRestarts           int    `json:"maxRestarts"`           // crashes allowed inside the rolling window
	RestartWindowMs       int    `json:"restartWindowMs"`       // rolling window width
	HealthCheckPort       int    `json:"healthCheckPort"`       // TCP port the target serves /status on
	HealthCheckIntervalMs int    `json:"healthCheckIntervalMs"` // probe cadence
	DevCommand            string `json:"devCommand"`            // command run in dev mode (cwd = targetDevPath)
	BuildCommand          string `json:"buildCommand"`          // command run by build-and-run (cwd = targetDevPath)
}

// Default returns the configuration used when no document exists on disk.
// Reads overlay the stored document on top of this, so absent fields keep
// their defaults.
func Default() Config {
	return Config{
		Mode:                  ModeDev,
		AutoRestart:           true,
		MaxRestarts:           5,
		RestartWindowMs:       300000,
		HealthCheckPort:       3001,
		HealthCheckIntervalMs: 10000,
		DevCommand:            "npx electron-vite dev",
		BuildCommand:          "npx electron-vite build",
	}
}

// Normalize clamps out-of-range values back to their defaults. Documents
// written by older shells may carry zeroes for fields they did not know.
func (c *Config) Normalize() {
	d := Default()
	if c.Mode != ModeDev && c.Mode != ModeProduction {
		c.Mode = d.Mode
	}
	if c.MaxRestarts < 1 {
		c.MaxRestarts = d.MaxRestarts
	}
	if c.RestartWindowMs <= 0 {
		c.RestartWindowMs = d.RestartWindowMs
	}
	if c.HealthCheckPort < 1 || c.HealthCheckPort > 65535 {
		c.HealthCheckPort = d.HealthCheckPort
	}
	if c.HealthCheckIntervalMs <= 0 {
		c.HealthCheckIntervalMs = d.HealthCheckIntervalMs
	}
	if c.DevCommand == "" {
		c.DevCommand = d.DevCommand
	}
	if c.BuildCommand == "" {
		c.BuildCommand = d.BuildCommand
	}
}

// Validate reports the first invalid field, if any.
func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeProduction {
		return fmt.Errorf("invalid mode %q, must be one of: dev, production", c.Mode)
	}
	if c.MaxRestarts < 1 {
		return fmt.Errorf("maxRestarts must be >= 1, got %d", c.MaxRestarts)
	}
	if c.RestartWindowMs <= 0 {
		return fmt.Errorf("restartWindowMs must be positive, got %d", c.RestartWindowMs)
	}
	if c.HealthCheckPort < 1 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("healthCheckPort must be in 1..65535, got %d", c.HealthCheckPort)
	}
	if c.HealthCheckIntervalMs <= 0 {
		return fmt.Errorf("healthCheckIntervalMs must be positive, got %d", c.HealthCheckIntervalMs)
	}
	return nil
}

// ExePath resolves the path the supervisor will launch for the current mode.
func (c *Config) ExePath() string {
	if c.Mode == ModeProduction {
		return c.TargetExePath
	}
	return c.TargetDevPath
}

// Patch is a partial configuration update. Nil fields are left untouched.
type Patch struct {
	TargetExePath         *string `json:"targetExePath,omitempty"`
	TargetDevPath         *string `json:"targetDevPath,omitempty"`
	Mode                  *Mode   `json:"mode,omitempty"`
	AutoRestart           *bool   `json:"autoRestart,omitempty"`
	MaxRestarts           *int    `json:"maxRestarts,omitempty"`
	RestartWindowMs       *int    `json:"restartWindowMs,omitempty"`
	HealthCheckPort       *int    `json:"healthCheckPort,omitempty"`
	HealthCheckIntervalMs *int    `json:"healthCheckIntervalMs,omitempty"`
	DevCommand            *string `json:"devCommand,omitempty"`
	BuildCommand          *string `json:"buildCommand,omitempty"`
}

// Apply merges the patch into c.
func (p *Patch) Apply(c *Config) {
	if p.TargetExePath != nil {
		c.TargetExePath = *p.TargetExePath
	}
	if p.TargetDevPath != nil {
		c.TargetDevPath = *p.TargetDevPath
	}
	if p.Mode != nil {
		c.Mode = *p.Mode
	}
	if p.AutoRestart != nil {
		c.AutoRestart = *p.AutoRestart
	}
	if p.MaxRestarts != nil {
		c.MaxRestarts = *p.MaxRestarts
	}
	if p.RestartWindowMs != nil {
		c.RestartWindowMs = *p.RestartWindowMs
	}
	if p.HealthCheckPort != nil {
		c.HealthCheckPort = *p.HealthCheckPort
	}
	if p.HealthCheckIntervalMs != nil {
		c.HealthCheckIntervalMs = *p.HealthCheckIntervalMs
	}
	if p.DevCommand != nil {
		c.DevCommand = *p.DevCommand
	}
	if p.BuildCommand != nil {
		c.BuildCommand = *p.BuildCommand
	}
}
