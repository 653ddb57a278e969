package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"parking-service/internal/client"
	"parking-service/internal/config"
	"parking-service/internal/logger"
)

var (
	logLevel   = "info"
	configPath = config.DefaultPath
	listenAddr = ""
	redisAddr  = ""
)

var (
	gService      = "Service:"
	gControl      = "Control:"
	commandGroups = []string{
		gService,
		gControl,
	}
)

// newLogger builds the service logger from --log. Output goes to stdout like
// the daemon always did; systemd picks it up from there.
func newLogger(out io.Writer) (*logger.Logger, error) {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %v", err)
	}
	return logger.NewLogger(out, level), nil
}

// setupLogger configures the logrus standard logger used by the HTTP client
// and the CLI subcommands.
func setupLogger() error {
	l, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	logrus.SetLevel(l.Entry().Logger.GetLevel())
	logrus.SetFormatter(l.Entry().Logger.Formatter)
	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrServiceNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: parking service is not running")
		fmt.Fprintf(os.Stderr, "Is it listening on %s? Start it with 'parking-service run'.\n", serviceAddr())
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parking-service",
		Short: "Autonomous parallel parking controller",
		Long: `parking-service drives a small vehicle into a parking bay between two
parked cars using five side-facing ultrasonic rangers.

It runs as a service ("run"), as a headless simulation ("simulate"), and as
a client for a running service (status, config, start, stop, reset, estop).`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log", "l", logLevel, "log level (0-4, or none, error, warn, info, debug)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&listenAddr, "listen", listenAddr, "HTTP API address (default from config, 127.0.0.1:8470)")
	globalFlags.StringVar(&redisAddr, "redis", redisAddr, "Redis address host:port (default from config)")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewRunCommand(),
		NewSimulateCommand(),
		NewPortsCommand(),
		NewStatusCommand(),
		NewConfigCommand(),
	)
	cmd.AddCommand(NewControlCommands()...)

	return cmd
}
