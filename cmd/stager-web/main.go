// Command stager-web runs the staging API locally on a SQLite database and
// a blob directory, with uploads and downloads served by the same process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smiley-maker/rooms-that-sell/internal/config"
	"github.com/smiley-maker/rooms-that-sell/internal/logging"
)

const defaultConfigPath = "~/.config/rooms-that-sell/config.toml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stager-web",
	Short: "Local virtual staging server",
	Long: `stager-web serves the staging API on your machine. Projects, images and
exports are kept in SQLite; photos live in a local blob directory that the
server also exposes for browser uploads and downloads.

Examples:
  stager-web serve
  stager-web serve --config ./stager.toml
  stager-web config init`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ExpandPath(configPath)
		if err != nil {
			return err
		}
		if err := config.WriteSample(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the TOML configuration file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	path, err := config.ExpandPath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.Logging.Level)

	app, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	app.startup.
		Build(commitHash, buildTime).
		Config("addr", cfg.Server.Addr).
		Config("allowedOrigin", cfg.Server.AllowedOrigin).
		InitDuration(time.Since(initStart)).
		Log()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting web server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "\n  Rooms That Sell API: http://%s/api/health\n\n", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigCh:
	}

	log.Info().Msg("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
