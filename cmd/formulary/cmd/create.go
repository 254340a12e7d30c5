package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/formulary/internal/service/packager"
)

func newCreateCommand() *cobra.Command {
	opts := new(packager.Options)

	command := &cobra.Command{
		Use:   "create <url>",
		Short: "Write a descriptor for a release artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			opts.ConfigPath = configPath
			opts.LogLevel = logLevel
			opts.URL = args[0]

			_, err := packager.Run(ctx, opts)

			return err
		},
	}

	flags := command.Flags()
	flags.StringVar(&opts.Name, "name", "", "package name (guessed from the artifact file name)")
	flags.StringVar(&opts.Version, "version", "", "release version (guessed from the artifact file name)")
	flags.StringVar(&opts.Description, "desc", "", "one-line description")
	flags.StringVar(&opts.Homepage, "homepage", "", "project homepage")
	flags.StringVar(&opts.File, "file", "", "local copy of the artifact used for the checksum")
	flags.StringVar(&opts.Source, "source", "", "install source inside the artifact")
	flags.StringVar(&opts.Target, "target", "", "installed file name")
	flags.StringVarP(&opts.OutputDir, "output", "o", "", "directory receiving the descriptor")
	flags.BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing descriptor")

	return command
}
