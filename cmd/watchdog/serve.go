package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/watchdog"
	"github.com/loykin/watchdog/internal/config"
	"github.com/loykin/watchdog/internal/logbuf"
	"github.com/loykin/watchdog/internal/logger"
)

func newServeCmd(gf *GlobalFlags) *cobra.Command {
	var autostart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon and its command API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(gf, autostart)
		},
	}
	cmd.Flags().BoolVar(&autostart, "start", false, "start the target immediately")
	return cmd
}

func runServe(gf *GlobalFlags, autostart bool) error {
	boot, err := config.LoadBootstrap(gf.ConfigPath)
	if err != nil {
		return fmt.Errorf("load bootstrap config: %w", err)
	}
	logDir := boot.LogDir
	if logDir == "" {
		logDir = boot.DataDir
	}
	log := logger.New(logger.Options{Level: boot.LogLevel, Dir: logDir})

	var watches []watchdog.Watch
	for _, w := range boot.WatchFiles {
		watches = append(watches, watchdog.Watch{Path: w.Path, Category: logbuf.Category(w.Category)})
	}
	sup, err := watchdog.New(watchdog.Options{
		DataDir:           boot.DataDir,
		Logger:            log,
		Watches:           watches,
		HistorySQLitePath: boot.History.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}
	if err := watchdog.RegisterMetricsDefault(); err != nil {
		log.Warn("register metrics", "error", err)
	}

	srv := watchdog.NewHTTPServer(boot.Listen, sup)
	log.Info("daemon listening", "addr", boot.Listen, "data_dir", boot.DataDir)

	if autostart {
		if _, err := sup.Start(nil); err != nil {
			log.Error("initial start failed", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	sup.Shutdown()
	return nil
}
