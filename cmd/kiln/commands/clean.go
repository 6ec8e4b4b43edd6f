package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the step cache and tool caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, _ := cmd.Flags().GetBool("tools")
			all, _ := cmd.Flags().GetBool("all")
			contextDir, _ := cmd.Flags().GetString("context")

			opts := app.CleanOptions{Context: contextDir}

			switch {
			case all:
				opts.Build = true
				opts.Tools = true
			case tools:
				opts.Tools = true
			default:
				opts.Build = true
			}

			return c.app.Clean(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringP("context", "c", ".", "Build context whose cache is removed")
	cmd.Flags().BoolP("tools", "t", false, "Clean tool resolution and environment caches")
	cmd.Flags().BoolP("all", "a", false, "Clean all caches (steps, tools, and environments)")

	return cmd
}
