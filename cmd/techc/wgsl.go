package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/spf13/cobra"
)

func newWGSLCommand(opts *options) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "wgsl <technique.json>",
		Short: "Print the WGSL generated for a technique",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			desc, err := technique.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			src, err := technique.Generate(desc, opts.preProcessor())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			stages := []struct{ name, code string }{
				{"vertex", src.Vertex},
				{"fragment", src.Fragment},
				{"compute", src.Compute},
			}
			printed := 0
			for _, s := range stages {
				if s.code == "" || (stage != "" && stage != s.name) {
					continue
				}
				if stage == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "// ---- %s ----\n", s.name)
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.code)
				printed++
			}
			if printed == 0 {
				return fmt.Errorf("%s has no %s stage", args[0], stage)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&stage, "stage", "s", "", "only print one stage: vertex, fragment or compute")
	return cmd
}
