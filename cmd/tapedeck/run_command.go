package main

import (
	"github.com/spf13/cobra"

	"tapedeck/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the recorder in the foreground",
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}
