package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <blob>",
		Short: "Summarize a compiled technique blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			blob, err := technique.DecodeBlob(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			printBlob(cmd.OutOrStdout(), blob)
			return nil
		},
	}
}

func printBlob(w io.Writer, b *technique.Blob) {
	fmt.Fprintf(w, "checksum: %016x\n", b.Checksum)
	if b.Compute {
		fmt.Fprintf(w, "compute: workgroup %dx%dx%d, %d words\n",
			b.WorkgroupSize[0], b.WorkgroupSize[1], b.WorkgroupSize[2], len(b.ComputeCode))
	} else {
		fmt.Fprintf(w, "graphics: vertex %d words, fragment %d words\n", len(b.VertexCode), len(b.FragmentCode))
	}

	fmt.Fprintf(w, "bindings: %d\n", len(b.Bindings))
	for i, bd := range b.Bindings {
		fmt.Fprintf(w, "  @binding(%d) %s %v hash=%016x", i, bd.Name, bd.Kind, bd.Hash)
		if bd.MinSize > 0 {
			fmt.Fprintf(w, " size=%d", bd.MinSize)
		}
		fmt.Fprintln(w)
	}
	if len(b.VertexAttributes) > 0 {
		fmt.Fprintf(w, "vertex attributes: %d\n", len(b.VertexAttributes))
		for i, a := range b.VertexAttributes {
			fmt.Fprintf(w, "  @location(%d) %s binding=%d offset=%d format=%v\n", i, a.Name, a.Binding, a.Offset, a.Format)
		}
	}
	if len(b.ColorAttachments) > 0 {
		fmt.Fprintf(w, "color attachments: %d\n", len(b.ColorAttachments))
		for i, c := range b.ColorAttachments {
			if c.BackBuffer {
				fmt.Fprintf(w, "  %d: back buffer\n", i)
			} else {
				fmt.Fprintf(w, "  %d: %v\n", i, c.Format)
			}
		}
	}
	if len(b.Includes) > 0 {
		fmt.Fprintf(w, "includes: %v\n", b.Includes)
	}
}
