// Package shader turns generated WGSL into SPIR-V for the backend. It holds the Compiler interface, the
// diagnostics it reports, the @oxy:include pre-processor and a light reflection pass used to cross-check generated
// sources against a technique's binding table.
package shader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
)

// Compiler compiles the source of a single shader stage into SPIR-V words.
type Compiler interface {
	// Compile compiles WGSL source for the given stage.
	//
	// Parameters:
	//   - stage: the pipeline stage the source is written for
	//   - source: the full WGSL source, entry point named "main"
	//
	// Returns:
	//   - []uint32: SPIR-V words
	//   - error: a *CompileError carrying the diagnostic position when compilation fails
	Compile(stage gputypes.ShaderStage, source string) ([]uint32, error)
}

// contextLines is the number of source lines printed on either side of a diagnostic.
const contextLines = 2

// CompileError is a shader diagnostic. Line and Column are 1-based and zero when the compiler did not report a
// position.
type CompileError struct {
	Stage   gputypes.ShaderStage
	Source  string
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "%s shader:%d:%d: %s", StageName(e.Stage), e.Line, e.Column, e.Message)
	} else {
		fmt.Fprintf(&sb, "%s shader: %s", StageName(e.Stage), e.Message)
		return sb.String()
	}

	lines := strings.Split(e.Source, "\n")
	first := max(e.Line-contextLines, 1)
	last := min(e.Line+contextLines, len(lines))
	width := len(strconv.Itoa(last))
	for n := first; n <= last; n++ {
		marker := " "
		if n == e.Line {
			marker = ">"
		}
		fmt.Fprintf(&sb, "\n%s %*d | %s", marker, width, n, lines[n-1])
	}
	return sb.String()
}

// StageName returns the lower case name of a single shader stage.
func StageName(stage gputypes.ShaderStage) string {
	switch stage {
	case gputypes.ShaderStageVertex:
		return "vertex"
	case gputypes.ShaderStageFragment:
		return "fragment"
	case gputypes.ShaderStageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

var (
	// diagnosticLineColumnRegex matches "line 12, column 4: message"
	diagnosticLineColumnRegex = regexp.MustCompile(`line (\d+), column (\d+):\s*(.*)`)

	// diagnosticPairRegex matches "12:4: message"
	diagnosticPairRegex = regexp.MustCompile(`(?:^|\s)(\d+):(\d+):\s*(.*)`)
)

// newCompileError builds a CompileError from a compiler's raw error text, extracting the position when the text
// carries one.
func newCompileError(stage gputypes.ShaderStage, source string, err error) *CompileError {
	ce := &CompileError{
		Stage:   stage,
		Source:  source,
		Message: err.Error(),
	}

	match := diagnosticLineColumnRegex.FindStringSubmatch(ce.Message)
	if match == nil {
		match = diagnosticPairRegex.FindStringSubmatch(ce.Message)
	}
	if match == nil {
		return ce
	}

	line, lineErr := strconv.Atoi(match[1])
	column, colErr := strconv.Atoi(match[2])
	if lineErr != nil || colErr != nil || line <= 0 || line > strings.Count(source, "\n")+1 {
		return ce
	}
	ce.Line = line
	ce.Column = column
	ce.Message = strings.TrimSpace(match[3])
	return ce
}
