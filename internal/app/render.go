package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.trai.ch/kiln/internal/core/domain"
)

const shortKeyLen = 12

// RenderPlan writes the ordered steps of plan as a table.
func RenderPlan(w io.Writer, plan *domain.Plan) error {
	if _, err := fmt.Fprintf(w, "context: %s\noutput:  %s\n\n", plan.ContextDir, plan.Output); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STEP\tDESCRIPTION\tSTATUS\tCACHE KEY")
	for i, step := range plan.Steps {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, step.Description, step.Status, shortKey(step.CacheKey))
	}
	return tw.Flush()
}

// RenderArtifact writes the configuration, layers and files of a sealed artifact.
func RenderArtifact(w io.Writer, artifact *domain.Artifact) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "name:\t%s\n", artifact.Name)
	_, _ = fmt.Fprintf(tw, "path:\t%s\n", artifact.Path)
	_, _ = fmt.Fprintf(tw, "manifest:\t%s\n", artifact.ManifestDigest)
	_, _ = fmt.Fprintf(tw, "workdir:\t%s\n", artifact.WorkingDir)
	if len(artifact.Entrypoint) > 0 {
		_, _ = fmt.Fprintf(tw, "entrypoint:\t%s\n", strings.Join(artifact.Entrypoint, " "))
	}
	if len(artifact.Cmd) > 0 {
		_, _ = fmt.Fprintf(tw, "cmd:\t%s\n", strings.Join(artifact.Cmd, " "))
	}
	for _, env := range artifact.Env {
		_, _ = fmt.Fprintf(tw, "env:\t%s\n", env)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nlayers (%d):\n", len(artifact.Layers))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, l := range artifact.Layers {
		if l.Empty {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", "-", "0 B", l.CreatedBy)
			continue
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%d B\t%s\n", shortKey(l.Digest.Encoded()), l.Size, l.CreatedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nfiles (%d):\n", len(artifact.Files))
	for _, f := range artifact.Files {
		name := "/" + f.Path
		switch {
		case f.IsDir():
			name += "/"
		case f.IsSymlink():
			name += " -> " + f.Link
		}
		if _, err := fmt.Fprintf(w, "  %s\n", name); err != nil {
			return err
		}
	}
	return nil
}

func shortKey(key string) string {
	if key == "" {
		return "-"
	}
	if len(key) > shortKeyLen {
		return key[:shortKeyLen]
	}
	return key
}
