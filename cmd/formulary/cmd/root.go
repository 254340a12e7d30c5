package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/formulary/internal/version"
)

var (
	// configPath to the configuration YAML file; empty means formulary.yaml if present.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command.
	rootCmd = &cobra.Command{
		Use:   "formulary",
		Short: "Install packages from checksum-pinned descriptors",
		Long: "formulary reads package descriptors, downloads the artifacts they name, " +
			"verifies each against its SHA-256 and only then places files into the binary directory.",
		SilenceUsage: true,
	}
)

// Execute runs the formulary CLI and exits with non-zero status on error.
func Execute() {
	rootCmd.AddCommand(
		newInstallCommand(),
		newUpgradeCommand(),
		newUninstallCommand(),
		newFetchCommand(),
		newAuditCommand(),
		newCreateCommand(),
		newInfoCommand(),
		newListCommand(),
		version.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}
