// Command postlensd runs the postlens desktop companion as a single
// long-lived process, following the teacher's
// cmd/oriond/main.go signal-handling and graceful-shutdown shape, with
// its flag-based CLI replaced by a cobra root command with subcommands,
// grounded on the colorized cobra tools under
// Lawliet-lgtm-copilot-help/cmd/debug_tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/postlens/agent/internal/agent"
	"github.com/postlens/agent/internal/config"
)

const buildVersion = "0.1.0"

const defaultShutdownTimeout = 10 * time.Second

var (
	configPath string
	debugLog   bool

	colorCyan   = color.New(color.FgCyan, color.Bold)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "postlensd",
	Short:   "postlens desktop detection companion",
	Version: buildVersion,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the postlens agent in the foreground",
	RunE:  runAgent,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		colorCyan.Printf("postlensd %s\n", buildVersion)
		return nil
	},
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "load the effective configuration and print it as YAML",
	RunE:  runConfigDump,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect postlens's configuration",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (optional; defaults layered with env vars)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug-level logging")

	configCmd.AddCommand(configDumpCmd)
	rootCmd.AddCommand(runCmd, versionCmd, configCmd)
}

func setupLogger() {
	level := slog.LevelInfo
	if debugLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	colorYellow.Println("# effective postlensd configuration")
	fmt.Print(string(out))
	return nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	setupLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	slog.Info("starting postlens agent", "instance_id", cfg.InstanceID, "config", configPath)
	colorGreen.Printf("postlens agent starting (instance %s)\n", cfg.InstanceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	a := agent.New(cfg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("agent exited with error", "error", err)
		}
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	a.Shutdown(shutdownCtx)

	<-errChan
	slog.Info("postlens agent stopped")
	return nil
}
