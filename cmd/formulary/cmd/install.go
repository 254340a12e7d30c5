package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/formulary/internal/service/installer"
)

func newInstallCommand() *cobra.Command {
	var (
		pinnedVersion string
		force         bool
	)

	command := &cobra.Command{
		Use:   "install <name>[@version]",
		Short: "Download, verify and install a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return installer.Run(ctx, &installer.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Name:       args[0],
				Version:    pinnedVersion,
				Force:      force,
			})
		},
	}

	command.Flags().StringVar(&pinnedVersion, "version", "", "install this release instead of the latest")
	command.Flags().BoolVarP(&force, "force", "f", false, "reinstall and kill processes running installed files")

	return command
}

func newUpgradeCommand() *cobra.Command {
	var force bool

	command := &cobra.Command{
		Use:   "upgrade <name>",
		Short: "Upgrade an installed package to its latest release",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return installer.Upgrade(ctx, &installer.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Name:       args[0],
				Force:      force,
			})
		},
	}

	command.Flags().BoolVarP(&force, "force", "f", false, "kill processes running installed files")

	return command
}

func newFetchCommand() *cobra.Command {
	var pinnedVersion string

	command := &cobra.Command{
		Use:   "fetch <name>[@version]",
		Short: "Download and verify artifacts into the cache without installing",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return installer.Fetch(ctx, &installer.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Name:       args[0],
				Version:    pinnedVersion,
			})
		},
	}

	command.Flags().StringVar(&pinnedVersion, "version", "", "fetch this release instead of the latest")

	return command
}
