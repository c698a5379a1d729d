package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"spool/internal/daemon"
	"spool/internal/ipc"
	"spool/internal/logging"
	"spool/internal/queue"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the spool daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
				logging.RetentionTarget{
					Dir:     cfg.Paths.LogDir,
					Pattern: "*.log",
					Exclude: []string{logging.DaemonLogPath(cfg)},
				})

			pidPath := filepath.Join(cfg.Paths.LogDir, "spoold.pid")
			if err := writePIDFile(pidPath); err != nil {
				return fmt.Errorf("write pid file: %w", err)
			}
			defer os.Remove(pidPath)

			store, err := queue.Open(cfg)
			if err != nil {
				logger.Error("open queue store", logging.Error(err))
				return err
			}
			defer store.Close()

			d, err := daemon.New(cfg, store, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			ipcServer, err := ipc.NewServer(signalCtx, ctx.socketPath(), d, logger)
			if err != nil {
				return fmt.Errorf("start IPC server: %w", err)
			}
			defer ipcServer.Close()
			ipcServer.Serve()

			if err := d.Start(signalCtx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			select {
			case <-signalCtx.Done():
			case <-d.Done():
			}
			logger.Info("spool daemon shutting down")
			return nil
		},
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
