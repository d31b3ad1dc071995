// Command lantern starts the engine against a single data root.
//
// Grounded on sovereign/cmd/sovereign/main.go's wiring order (open
// storage, construct services, mux routes, serve, graceful shutdown on
// SIGINT/SIGTERM) and on bitswalk-ldf's cobra-based root command, chosen
// over sovereign's own os.Args-parsing cmd/sovereign-cli/main.go since
// the rest of the pack favors cobra for CLI entry points.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/temochka/lantern/internal/authdb"
	"github.com/temochka/lantern/internal/config"
	"github.com/temochka/lantern/internal/httpapi"
	"github.com/temochka/lantern/internal/logging"
	"github.com/temochka/lantern/internal/migrate"
	"github.com/temochka/lantern/internal/userdb"
)

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lantern <root>",
		Short: "Lantern is a single-user SQL query and live-subscription engine.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Println(usageBanner)
				return nil
			}
			return run(args[0])
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const usageBanner = `lantern <root>

Starts the engine rooted at <root>, binding 127.0.0.1:4666.

Environment variables:
  LANTERN_PASSWORD   master password (generated and logged if unset)
  SKIP_AUTH          "1" disables authentication entirely`

func run(root string) error {
	log := logging.New(logLevel)

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.GeneratedPassword != "" {
		log.Warn("no LANTERN_PASSWORD set, generated a random master password", "password", cfg.GeneratedPassword)
	}
	if cfg.SkipAuth {
		log.Warn("SKIP_AUTH=1: authentication is disabled")
	}

	paths := migrate.NewPaths(root)
	if err := os.MkdirAll(paths.LanternDir, 0o755); err != nil {
		return fmt.Errorf("create lantern dir: %w", err)
	}

	userDB, err := userdb.Open(lanternFile(paths.LanternDir, "user.sqlite3"), log)
	if err != nil {
		return fmt.Errorf("open user database: %w", err)
	}
	defer userDB.Close()

	authDB, err := authdb.Open(lanternFile(paths.LanternDir, "lantern.sqlite3"), log)
	if err != nil {
		return fmt.Errorf("open auth database: %w", err)
	}
	defer authDB.Close()

	if err := migrate.Reconcile(context.Background(), paths, userDB, log); err != nil {
		return fmt.Errorf("reconcile migrations: %w", err)
	}

	server := httpapi.New(cfg, authDB, userDB, paths, log)

	httpServer := &http.Server{Addr: config.ListenAddr, Handler: server.Mux()}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	log.Info("lantern listening", "addr", config.ListenAddr, "root", root)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func lanternFile(dir, name string) string {
	return filepath.Join(dir, name)
}
