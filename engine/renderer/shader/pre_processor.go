// pre_processor.go implements the Oxy WGSL pre-processor. It scans stage source for @oxy: annotations and replaces
// them with injected snippet or file source and generated const declarations. Included files are recorded so the
// device can watch them for hot reload alongside the technique JSON.
package shader

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
)

//go:embed assets/color.wgsl
var colorSource string

//go:embed assets/fullscreen.wgsl
var fullscreenSource string

//go:embed assets/hash.wgsl
var hashSource string

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// snippets maps built-in snippet names to their embedded WGSL source.
	snippets map[AnnotationArg]string

	// includeFS resolves file includes. Nil disables file includes.
	includeFS fs.FS

	// includes accumulates the file includes resolved during a Process call, in first-seen order.
	includes []string
}

// PreProcessor expands @oxy: annotations in WGSL stage source.
type PreProcessor interface {
	// Process replaces @oxy:include annotations with the snippet or file they name and @oxy:define annotations
	// with const declarations. Includes nest; each snippet or file is emitted once per call and an include cycle
	// is an error.
	//
	// The includes list is reset at the start of each call and can be retrieved via Includes() after Process
	// returns. Process is not safe for concurrent use.
	//
	// Parameters:
	//   - source: the raw WGSL source containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL source with annotations replaced
	//   - error: an error if any annotation is malformed, names an unknown snippet, or a file cannot be read
	Process(source string) (string, error)

	// Includes returns the file includes resolved during the most recent call to Process, as slash separated
	// paths relative to the include directory. Built-in snippets are not listed.
	//
	// Returns:
	//   - []string: the included files
	Includes() []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the built-in snippets registered.
//
// Parameters:
//   - opts: optional configuration such as WithIncludeDir
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(opts ...PreProcessorBuilderOption) PreProcessor {
	p := &preProcessor{
		snippets: map[AnnotationArg]string{
			AnnotationArgColor:      colorSource,
			AnnotationArgFullscreen: fullscreenSource,
			AnnotationArgHash:       hashSource,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.includes = p.includes[:0]
	emitted := make(map[AnnotationArg]bool)
	return p.expand(source, nil, emitted)
}

func (p *preProcessor) Includes() []string {
	return slices.Clone(p.includes)
}

// expand processes one source text. stack holds the includes currently being expanded, for cycle detection.
func (p *preProcessor) expand(source string, stack []AnnotationArg, emitted map[AnnotationArg]bool) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", p.wrap(stack, err)
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			arg := a.Args[0]
			if slices.Contains(stack, arg) {
				return "", p.wrap(stack, fmt.Errorf("line %d: include cycle through %q", a.Line, arg))
			}
			if emitted[arg] {
				continue
			}

			included, err := p.resolve(arg)
			if err != nil {
				return "", p.wrap(stack, fmt.Errorf("line %d: %w", a.Line, err))
			}
			emitted[arg] = true

			expanded, err := p.expand(included, append(stack, arg), emitted)
			if err != nil {
				return "", err
			}
			out = append(out, expanded)
		case AnnotationTypeDefine:
			out = append(out, fmt.Sprintf("const %s = %s;", a.Args[0], a.Args[1]))
		default:
			return "", p.wrap(stack, fmt.Errorf("line %d: unknown annotation type %q", a.Line, a.Type))
		}
	}
	return strings.Join(out, "\n"), nil
}

// resolve returns the source of a snippet or include file.
func (p *preProcessor) resolve(arg AnnotationArg) (string, error) {
	if !isFileInclude(arg) {
		src, ok := p.snippets[arg]
		if !ok {
			return "", fmt.Errorf("unknown snippet %q", arg)
		}
		return src, nil
	}

	if p.includeFS == nil {
		return "", fmt.Errorf("cannot include %q: no include directory configured", arg)
	}
	data, err := fs.ReadFile(p.includeFS, string(arg))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("include file %q not found: %w", arg, os.ErrNotExist)
		}
		return "", fmt.Errorf("failed to read include file %q: %w", arg, err)
	}
	p.includes = append(p.includes, string(arg))
	return string(data), nil
}

// wrap prefixes an error with the include currently being expanded so nested failures name their file.
func (p *preProcessor) wrap(stack []AnnotationArg, err error) error {
	if len(stack) == 0 {
		return err
	}
	return fmt.Errorf("in %s: %w", stack[len(stack)-1], err)
}
