package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string // optional bootstrap TOML for the daemon
	APIURL     string // daemon base URL for client commands
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "watchdog",
		Short: "Supervise a local target process with crash-rate-limited restarts",
	}
	root.PersistentFlags().StringVar(&gf.ConfigPath, "config", "", "path to bootstrap TOML (serve only)")
	root.PersistentFlags().StringVar(&gf.APIURL, "api-url", "http://127.0.0.1:8199", "daemon API base URL")

	root.AddCommand(newServeCmd(gf))
	root.AddCommand(newStartCmd(gf))
	root.AddCommand(newStopCmd(gf))
	root.AddCommand(newRestartCmd(gf))
	root.AddCommand(newBuildCmd(gf))
	root.AddCommand(newStatusCmd(gf))
	root.AddCommand(newLogsCmd(gf))
	root.AddCommand(newCrashesCmd(gf))
	root.AddCommand(newConfigCmd(gf))
	return root
}
