package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print the configuration, layers and files of a sealed artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := c.app.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.RenderArtifact(cmd.OutOrStdout(), artifact)
		},
	}
}
