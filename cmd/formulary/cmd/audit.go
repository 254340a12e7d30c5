package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/formulary/internal/service/auditor"
)

func newAuditCommand() *cobra.Command {
	var online bool

	command := &cobra.Command{
		Use:   "audit [name...]",
		Short: "Check descriptors for consistency problems",
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			_, err := auditor.Run(ctx, &auditor.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Names:      args,
				Online:     online,
			})

			return err
		},
	}

	command.Flags().BoolVar(&online, "online", false, "also download every artifact and verify its checksum")

	return command
}
