package main

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBuildCommand(opts *options) *cobra.Command {
	var blobRoot string
	var force bool
	cmd := &cobra.Command{
		Use:   "build <technique.json>...",
		Short: "Compile techniques into blobs, skipping those whose blob is up to date",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compiler := technique.NewCompiler(
				technique.WithShaderCompiler(newShaderCompiler()),
				technique.WithPreProcessor(opts.preProcessor()),
				technique.WithLogger(opts.logger))
			defer compiler.Release()
			cache := technique.NewCache(compiler, technique.WithBlobRoot(blobRoot), technique.WithCacheLogger(opts.logger))

			failed := 0
			for _, path := range args {
				before := cache.Stats().Regenerations
				var err error
				if force {
					_, err = cache.Rebuild(path)
				} else {
					_, err = cache.Load(path)
				}
				if err != nil {
					opts.logger.Error("failed to compile technique", zap.String("path", path), zap.Error(err))
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				status := "up to date"
				if cache.Stats().Regenerations > before {
					status = "compiled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", path, cache.BlobPath(path), status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d techniques failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&blobRoot, "out", "o", technique.DefaultBlobRoot, "directory blobs are written below")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "recompile even when the blob checksum matches")
	return cmd
}
