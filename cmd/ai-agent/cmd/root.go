package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/liaoxianfu/ai-agent/internal/config"
	"github.com/liaoxianfu/ai-agent/internal/httplog"
	"github.com/liaoxianfu/ai-agent/internal/logging"
	"github.com/liaoxianfu/ai-agent/internal/server"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// envFile is the dotenv file exported before the settings are read.
	envFile string
	// listenAddress overrides the configured server address.
	listenAddress string
	// debug overrides the configured debug switch.
	debug bool

	// rootCmd represents the base command for running the service.
	rootCmd = &cobra.Command{
		Use:   "ai-agent",
		Short: "Run the ai-agent HTTP service.",
		Long: `Starts the HTTP service with its logging pipeline.

Every request is tagged with the X-Request-ID header, or a generated id, and
every line logged while handling it carries that id. Logs go to the console
and to daily rotating files in the log directory.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
)

func run(c *cobra.Command, _ []string) (err error) {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if c.Flags().Changed("addr") {
		cfg.Server.Address = listenAddress
	}
	if c.Flags().Changed("debug") {
		cfg.Log.Debug = debug
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	formatter, err := httplog.FormatterByName(cfg.Log.RequestFormat, cfg.Log.GCPProject)
	if err != nil {
		return err
	}

	logCfg, err := cfg.Logging()
	if err != nil {
		return err
	}

	pipeline, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		err = multierr.Append(err, pipeline.Close())
	}()

	restore, err := pipeline.Install()
	if err != nil {
		return err
	}
	defer restore()

	return server.New(pipeline, server.Options{
		Address:           cfg.Server.Address,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		HelloDelay:        cfg.Server.HelloDelay,
		RequestFormatter:  formatter,
	}).Run(ctx)
}

// Execute runs the ai-agent CLI and exits with non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "path to dotenv file")
	rootCmd.Flags().StringVarP(&listenAddress, "addr", "a", config.DefaultAddress, "listen address")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", true, "log DEBUG lines to the console")
}
