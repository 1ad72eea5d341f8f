package shader

import (
	"io/fs"
	"os"
)

// PreProcessorBuilderOption configures the pre-processor returned by NewPreProcessor.
type PreProcessorBuilderOption func(*preProcessor)

// WithIncludeDir resolves file includes against dir on disk.
func WithIncludeDir(dir string) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		if dir != "" {
			p.includeFS = os.DirFS(dir)
		}
	}
}

// WithIncludeFS resolves file includes against fsys.
func WithIncludeFS(fsys fs.FS) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		p.includeFS = fsys
	}
}
