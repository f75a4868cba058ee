package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	ProjectName    = "curtis-cluster"
	ProjectVersion = "1.0.0"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   ProjectName,
	Short: "Instrument cluster service for Curtis motor controllers",
	Long: `curtis-cluster decodes Curtis controller CAN frames from a live bus or a
candump log, tracks speed, distance, energy and range, and drives the turn
signal, highbeam, brake and horn relays.

Telemetry is published to Redis and to renderers over a WebSocket feed.`,
	Version:       ProjectVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cluster service",
	RunE:  runService,
}

var (
	runReplay  bool
	runSource  string
	runInput   string
	runDebugIO bool
	runListen  string
	runNoRedis bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "Path to YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG or a name)")

	runCmd.Flags().BoolVarP(&runReplay, "replay", "r", false, "Replay a log at its recorded speed")
	runCmd.Flags().StringVar(&runSource, "source", "", "Frame source: stdin, file, serial or can")
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "Log file or serial device (implies --source file if unset)")
	runCmd.Flags().BoolVar(&runDebugIO, "debug-io", false, "Use in-memory pins instead of GPIO")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Renderer feed listen address")
	runCmd.Flags().BoolVar(&runNoRedis, "no-redis", false, "Do not connect to Redis")

	rootCmd.AddCommand(runCmd)
}

// loadConfig applies config file, environment, then flags. override carries
// the subcommand's own flags.
func loadConfig(override func(*Config)) (*Config, *LeveledLogger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		level, err := ParseLogLevel(logLevel)
		if err != nil {
			return nil, nil, err
		}
		cfg.LogLevel = int(level)
	}

	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := NewLeveledLogger(
		log.New(os.Stderr, fmt.Sprintf("%s: ", ProjectName), log.LstdFlags),
		LogLevel(cfg.LogLevel),
	)
	return cfg, logger, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *Config) {
	if runSource != "" {
		cfg.Source.Type = runSource
	}
	if runInput != "" {
		cfg.Source.Path = runInput
		if runSource == "" {
			cfg.Source.Type = "file"
		}
	}
	if cmd.Flags().Changed("replay") {
		cfg.Source.Replay = runReplay
	}
	if runDebugIO {
		cfg.IO.Type = "debug"
	}
	if runListen != "" {
		cfg.Feed.ListenAddr = runListen
	}
	if runNoRedis {
		cfg.Redis.Enabled = false
	}
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(func(c *Config) { applyRunFlags(cmd, c) })
	if err != nil {
		return err
	}

	logger.Info("%s v%s starting (log level %s)", ProjectName, ProjectVersion, logger.GetLevel())

	// Handle SIGINT and SIGTERM before any output is driven
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	app, err := NewClusterApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create cluster app: %w", err)
	}
	defer app.Destroy()

	// Run until signal received or a component gives up
	select {
	case sig := <-sigChan:
		logger.Info("Received %v", sig)
		return nil
	case err := <-app.Fatal():
		logger.Error("Stopping: %v", err)
		return err
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s: %v", ProjectName, err)
	}
}
