package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [context]",
		Short: "Build and seal an artifact",
		Long: "Build binds the working directory, installs the manifest's dependencies, copies the source tree\n" +
			"and seals the result as an OCI image layout. The context is a directory or a git URL.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := buildOptions(cmd.Flags(), args)
			opts.Load, _ = cmd.Flags().GetBool("load")
			_, err := c.app.Build(cmd.Context(), opts)
			return err
		},
	}
	addBuildFlags(cmd.Flags())
	cmd.Flags().Bool("load", false, "Load the sealed artifact into the local docker daemon")
	return cmd
}

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [context]",
		Short: "Print the build steps and their cache keys without building",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := c.app.Plan(cmd.Context(), buildOptions(cmd.Flags(), args))
			if err != nil {
				return err
			}
			return app.RenderPlan(cmd.OutOrStdout(), plan)
		},
	}
	addBuildFlags(cmd.Flags())
	return cmd
}

func addBuildFlags(flags *pflag.FlagSet) {
	flags.StringP("context", "c", ".", "Build context directory or git URL")
	flags.StringP("file", "f", "", "Recipe file (default: kiln.yaml in the context)")
	flags.StringP("workdir", "w", "", "Working directory inside the artifact")
	flags.StringP("manifest", "m", "", "Dependency manifest, relative to the context")
	flags.StringP("source", "s", "", "Source directory, relative to the context")
	flags.String("dest", "", "Destination of the source tree, relative to the working directory")
	flags.StringP("output", "o", "", "Artifact output directory (default: .kiln/artifacts/<name>)")
	flags.StringP("tag", "t", "", "Artifact tag (default: latest)")
	flags.BoolP("no-cache", "n", false, "Bypass the step cache and force execution")
}

func buildOptions(flags *pflag.FlagSet, args []string) app.BuildOptions {
	var opts app.BuildOptions
	opts.Context, _ = flags.GetString("context")
	if len(args) == 1 {
		opts.Context = args[0]
	}
	opts.RecipeFile, _ = flags.GetString("file")
	opts.WorkingDir, _ = flags.GetString("workdir")
	opts.Manifest, _ = flags.GetString("manifest")
	opts.Source, _ = flags.GetString("source")
	opts.Dest, _ = flags.GetString("dest")
	opts.Output, _ = flags.GetString("output")
	opts.Tag, _ = flags.GetString("tag")
	opts.NoCache, _ = flags.GetBool("no-cache")
	return opts
}
