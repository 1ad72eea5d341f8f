// Package technique turns declarative technique JSON into compiled pipeline state. A technique names its shader
// stages, binding table, vertex layout, attachments and fixed-function state; the compiler generates a WGSL module
// per stage, compiles the stages in parallel and packs the result into a Blob that the disk cache keys by the
// checksum of the JSON.
package technique

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// compiler is the implementation of the Compiler interface.
type compiler struct {
	mu sync.Mutex

	shaderCompiler shader.Compiler
	preProcessor   shader.PreProcessor
	logger         *zap.Logger

	maxWorkers int
	pool       worker.DynamicWorkerPool
	taskID     int
}

// Compiler compiles technique JSON into blobs.
type Compiler interface {
	// Compile parses the technique JSON, generates the WGSL of each stage and compiles the stages in parallel.
	// Calls are serialized; the stages of one call run concurrently on the compiler's worker pool.
	//
	// Parameters:
	//   - data: the technique JSON
	//
	// Returns:
	//   - *Blob: the compiled technique, its Checksum the hash of data
	//   - error: a parse error, an include failure, or the *shader.CompileError of the first failing stage
	Compile(data []byte) (*Blob, error)

	// Release stops the worker pool. The compiler must not be used afterwards.
	Release()
}

var _ Compiler = &compiler{}

// NewCompiler creates a technique compiler. Without options it compiles with naga, expands only the built-in
// include snippets and runs one worker per stage kind.
//
// Parameters:
//   - opts: optional configuration such as WithShaderCompiler and WithPreProcessor
//
// Returns:
//   - Compiler: the compiler
func NewCompiler(opts ...CompilerBuilderOption) Compiler {
	c := &compiler{
		maxWorkers: min(runtime.NumCPU(), 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.L()
	}
	if c.shaderCompiler == nil {
		c.shaderCompiler = shader.NewNagaCompiler(shader.WithCompilerLogger(c.logger))
	}
	if c.preProcessor == nil {
		c.preProcessor = shader.NewPreProcessor()
	}
	c.pool = worker.NewDynamicWorkerPool(c.maxWorkers, 16, time.Second)
	return c
}

type stageJob struct {
	stage  gputypes.ShaderStage
	source string
	code   []uint32
	err    error
}

func (c *compiler) Compile(data []byte) (*Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	desc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	sources, err := Generate(desc, c.preProcessor)
	if err != nil {
		return nil, err
	}

	var jobs []*stageJob
	for _, s := range []struct {
		stage  gputypes.ShaderStage
		source string
	}{
		{gputypes.ShaderStageVertex, sources.Vertex},
		{gputypes.ShaderStageFragment, sources.Fragment},
		{gputypes.ShaderStageCompute, sources.Compute},
	} {
		if s.source != "" {
			jobs = append(jobs, &stageJob{stage: s.stage, source: s.source})
		}
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		c.taskID++
		c.pool.SubmitTask(worker.Task{
			ID: c.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				job.code, job.err = c.shaderCompiler.Compile(job.stage, job.source)
				return nil, job.err
			},
		})
	}
	wg.Wait()

	blob := &Blob{
		Checksum:      desc.Checksum,
		Compute:       desc.IsCompute(),
		PipelineState: desc.PipelineState,
		Includes:      sources.Includes,
	}
	for _, job := range jobs {
		if job.err != nil {
			return nil, fmt.Errorf("failed to compile technique: %w", job.err)
		}
		switch job.stage {
		case gputypes.ShaderStageVertex:
			blob.VertexCode = job.code
		case gputypes.ShaderStageFragment:
			blob.FragmentCode = job.code
		default:
			blob.ComputeCode = job.code
		}
	}

	c.logger.Debug("compiled technique",
		zap.Uint64("checksum", blob.Checksum),
		zap.Int("stages", len(jobs)),
		zap.Int("bindings", len(blob.Bindings)),
		zap.Duration("elapsed", time.Since(start)))
	return blob, nil
}

func (c *compiler) Release() {
	c.pool.Stop()
}
