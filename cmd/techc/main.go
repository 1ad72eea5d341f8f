// Command techc compiles technique JSON files into the blobs the device loads, so shipped builds do not compile
// shaders at startup. It can also print the generated WGSL of a technique and summarize an existing blob.
package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newShaderCompiler is replaced by tests.
var newShaderCompiler = func() shader.Compiler { return shader.NewNagaCompiler() }

type options struct {
	includeDir string
	verbose    bool
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "techc",
		Short:         "Compile oxy-gfx technique files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := zap.NewDevelopmentConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.includeDir, "include-dir", "I", "", "directory @oxy:include annotations resolve against")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(newBuildCommand(opts), newWGSLCommand(opts), newInspectCommand())
	return root
}

func (o *options) preProcessor() shader.PreProcessor {
	return shader.NewPreProcessor(shader.WithIncludeDir(o.includeDir))
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "techc:", err)
		os.Exit(1)
	}
}
