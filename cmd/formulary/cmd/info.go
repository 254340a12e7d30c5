package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/formulary/internal/service/inspector"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>[@version]",
		Short: "Show a descriptor and its install state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return inspector.Info(ctx, &inspector.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Name:       args[0],
			}, cmd.OutOrStdout())
		},
	}
}

func newListCommand() *cobra.Command {
	var available bool

	command := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return inspector.List(ctx, &inspector.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Available:  available,
			}, cmd.OutOrStdout())
		},
	}

	command.Flags().BoolVarP(&available, "available", "a", false, "list every known descriptor instead")

	return command
}
