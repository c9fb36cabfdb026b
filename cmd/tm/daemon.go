package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidemark/tidemark/internal/daemon"
	"github.com/tidemark/tidemark/internal/dashboard"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/syncer"
	"gopkg.in/natefinch/lumberjack.v2"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon (foreground)",
	Long: `Keep the local database synced with the server.

The daemon runs an immediate sync at startup, then syncs again whenever
local edits land (debounced) and on a fixed interval as a safety net.
Concurrent triggers share one run.

With --dashboard a WebSocket server broadcasts run progress and results:

  tm daemon --dashboard            # ws://localhost:7340/ws
  tm daemon --interval 10m --log-file ~/.local/share/tidemark/daemon.log`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		dashboardPort, _ := cmd.Flags().GetInt("dashboard-port")
		logFile, _ := cmd.Flags().GetString("log-file")
		if logFile == "" {
			logFile = viper.GetString("log_file")
		}

		logger := log.New(os.Stderr, "[tm] ", log.LstdFlags)
		if logFile != "" {
			logger = log.New(&lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     30, // days
			}, "[tm] ", log.LstdFlags)
		}

		st := openStore()
		defer st.Close()

		var notifier *dashboard.Notifier
		var dashServer *dashboard.Server
		if withDashboard {
			dashServer = dashboard.NewServer(&dashboard.Config{
				Port:   dashboardPort,
				Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
			})
			if err := dashServer.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			notifier = dashboard.NewNotifier(dashServer)
			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", dashboardPort)
		}

		syncConfig := &syncer.Config{Logger: logger}
		if notifier != nil {
			syncConfig.OnProgress = notifier.ProgressFunc()
		}
		coordinator := newCoordinator(st, syncConfig)

		daemonConfig := daemon.DefaultConfig()
		daemonConfig.Logger = logger
		if interval > 0 {
			daemonConfig.SyncInterval = interval
		}
		if notifier != nil {
			daemonConfig.OnRunStarted = notifier.SyncStarted
			daemonConfig.OnRunFinished = func(result *syncer.Result, err error, elapsed time.Duration) {
				notifier.SyncFinished(result, err, elapsed)
				broadcastStats(st, notifier)
			}
		}

		d, err := daemon.New(st, coordinator, storePath(), daemonConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Syncing %s every %v\n", storePath(), daemonConfig.SyncInterval)
		fmt.Println("Press Ctrl+C to stop")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}

		if dashServer != nil {
			if err := dashServer.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			}
		}
	},
}

func broadcastStats(st *store.Store, notifier *dashboard.Notifier) {
	ctx := context.Background()
	tasks, err := st.CountTasks(ctx)
	if err != nil {
		return
	}
	dirty, err := st.CountDirty(ctx)
	if err != nil {
		return
	}
	at, _ := st.LastSyncAt(ctx)
	notifier.Stats(tasks, dirty, at)
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "background sync interval (default: 5m)")
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("dashboard-port", "p", 7340, "dashboard port")
	daemonCmd.Flags().String("log-file", "", "log to a rotating file instead of stderr")
	rootCmd.AddCommand(daemonCmd)
}
