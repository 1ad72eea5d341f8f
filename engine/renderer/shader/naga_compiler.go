package shader

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"go.uber.org/zap"
)

// nagaCompiler is the Compiler backed by the pure Go naga WGSL front end.
type nagaCompiler struct {
	logger *zap.Logger
}

var _ Compiler = &nagaCompiler{}

// NewNagaCompiler creates the default Compiler. It is safe for concurrent use; every call compiles an independent
// module.
//
// Parameters:
//   - opts: optional configuration such as WithCompilerLogger
//
// Returns:
//   - Compiler: the compiler
func NewNagaCompiler(opts ...NagaCompilerBuilderOption) Compiler {
	c := &nagaCompiler{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.L()
	}
	return c
}

func (c *nagaCompiler) Compile(stage gputypes.ShaderStage, source string) ([]uint32, error) {
	start := time.Now()
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, newCompileError(stage, source, err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("%s shader: spir-v output is %d bytes, not a whole number of words", StageName(stage), len(spirv))
	}

	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}

	c.logger.Debug("compiled shader",
		zap.String("stage", StageName(stage)),
		zap.Int("words", len(words)),
		zap.Duration("elapsed", time.Since(start)))
	return words, nil
}
