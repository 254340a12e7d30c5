package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/formulary/internal/service/uninstaller"
)

func newUninstallCommand() *cobra.Command {
	var force bool

	command := &cobra.Command{
		Use:     "uninstall <name>",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove an installed package",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return uninstaller.Run(ctx, &uninstaller.Options{
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
