package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/watchdog"
)

func newStartCmd(gf *GlobalFlags) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			if mode != "" {
				body["mode"] = mode
			}
			var st watchdog.Status
			if err := newAPIClient(gf).call("POST", "/start", nil, body, &st); err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "override mode: dev or production")
	return cmd
}

func newStopCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st watchdog.Status
			if err := newAPIClient(gf).call("POST", "/stop", nil, nil, &st); err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
}

func newRestartCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the target and reset the crash window",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st watchdog.Status
			if err := newAPIClient(gf).call("POST", "/restart", nil, nil, &st); err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
}

func newBuildCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the dev tree, then start the production target",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st watchdog.Status
			if err := newAPIClient(gf).call("POST", "/build", nil, nil, &st); err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
}

func newStatusCmd(gf *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervisor status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st watchdog.Status
			if err := newAPIClient(gf).call("GET", "/status", nil, nil, &st); err != nil {
				return err
			}
			if asJSON {
				return printJSON(st)
			}
			printStatus(st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newLogsCmd(gf *GlobalFlags) *cobra.Command {
	var limit int
	var category string
	var clear bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show or clear the aggregated target logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(gf)
			if clear {
				return c.call("DELETE", "/logs", nil, nil, nil)
			}
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if category != "" {
				q.Set("category", category)
			}
			var entries []watchdog.LogEntry
			if err := c.call("GET", "/logs", q, nil, &entries); err != nil {
				return err
			}
			for _, e := range entries {
				ts := time.UnixMilli(e.Timestamp).Format("15:04:05.000")
				fmt.Printf("%s %-7s %-11s %s\n", ts, e.Level, e.Category, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to show")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the log buffer instead")
	return cmd
}

func newCrashesCmd(gf *GlobalFlags) *cobra.Command {
	var clear bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "crashes",
		Short: "Show or clear the crash history",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(gf)
			if clear {
				return c.call("DELETE", "/crashes", nil, nil, nil)
			}
			var entries []watchdog.CrashEntry
			if err := c.call("GET", "/crashes", nil, nil, &entries); err != nil {
				return err
			}
			if asJSON {
				return printJSON(entries)
			}
			for _, e := range entries {
				ts := time.UnixMilli(e.Timestamp).Format(time.RFC3339)
				code := "-"
				if e.ExitCode != nil {
					code = strconv.Itoa(*e.ExitCode)
				}
				sig := "-"
				if e.Signal != nil {
					sig = *e.Signal
				}
				fmt.Printf("%s  exit=%s signal=%s uptime=%s\n", ts, code, sig,
					(time.Duration(e.UptimeMs) * time.Millisecond).String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the crash history instead")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newConfigCmd(gf *GlobalFlags) *cobra.Command {
	var patchJSON string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or patch the supervisor configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(gf)
			if patchJSON != "" {
				var patch watchdog.Patch
				if err := json.Unmarshal([]byte(patchJSON), &patch); err != nil {
					return fmt.Errorf("invalid patch JSON: %w", err)
				}
				var cfg watchdog.Config
				if err := c.call("PATCH", "/config", nil, patch, &cfg); err != nil {
					return err
				}
				return printJSON(cfg)
			}
			var cfg watchdog.Config
			if err := c.call("GET", "/config", nil, nil, &cfg); err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	cmd.Flags().StringVar(&patchJSON, "set", "", "JSON object of fields to change")
	return cmd
}

func printStatus(st watchdog.Status) {
	pid := "-"
	if st.PID != nil {
		pid = strconv.Itoa(*st.PID)
	}
	fmt.Printf("status=%s mode=%s pid=%s uptime=%s crashes=%d/%d backoff=%s\n",
		st.Status, st.Mode, pid,
		(time.Duration(st.UptimeMs) * time.Millisecond).String(),
		st.RecentCrashes, st.TotalCrashes,
		(time.Duration(st.BackoffMs) * time.Millisecond).String())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
