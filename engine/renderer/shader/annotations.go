// annotations.go defines the @oxy: annotations understood by the technique pre-processor. Annotations are
// single-line WGSL comments; they are replaced before the source reaches the compiler.
package shader

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects a WGSL snippet at the annotation site. The argument is either the name of a
	// built-in snippet or a slash separated path ending in .wgsl, resolved against the pre-processor's include
	// directory.
	//
	// Syntax: //@oxy:include <snippet|file.wgsl>
	//
	// Example: //@oxy:include color
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeDefine substitutes a constant into the source. Everything after the name is the value and the
	// annotation becomes a WGSL const declaration.
	//
	// Syntax: //@oxy:define <name> <value>
	//
	// Example: //@oxy:define MAX_LIGHTS 16u
	AnnotationTypeDefine AnnotationType = "define"
)

// Annotation represents a single parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments:
	//   - include: [0] = snippet name or file path
	//   - define:  [0] = constant name, [1] = value text
	Args []AnnotationArg

	// Line is the 1-based line number in the source where this annotation was found.
	Line int
}

// AnnotationArg is a single annotation argument.
type AnnotationArg string

// Built-in snippets accepted by @oxy:include.
const (
	// AnnotationArgColor provides sRGB/linear conversion and luminance helpers.
	// Source: engine/renderer/shader/assets/color.wgsl
	AnnotationArgColor AnnotationArg = "color"

	// AnnotationArgFullscreen provides the fullscreen triangle position/uv helpers for post passes.
	// Source: engine/renderer/shader/assets/fullscreen.wgsl
	AnnotationArgFullscreen AnnotationArg = "fullscreen"

	// AnnotationArgHash provides integer hash and random helpers for compute kernels.
	// Source: engine/renderer/shader/assets/hash.wgsl
	AnnotationArgHash AnnotationArg = "hash"
)

// validSnippets lists the built-in snippet names accepted by @oxy:include.
var validSnippets = []AnnotationArg{
	AnnotationArgColor,
	AnnotationArgFullscreen,
	AnnotationArgHash,
}

// isFileInclude reports whether an include argument names a file rather than a built-in snippet.
func isFileInclude(arg AnnotationArg) bool {
	return strings.HasSuffix(string(arg), ".wgsl")
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(AnnotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		arg := AnnotationArg(args[1])
		if isFileInclude(arg) {
			clean := path.Clean(args[1])
			if path.IsAbs(clean) || strings.HasPrefix(clean, "..") {
				return nil, fmt.Errorf("line %d: include path %q escapes the include directory", lineNum, args[1])
			}
			arg = AnnotationArg(clean)
		} else if !slices.Contains(validSnippets, arg) {
			return nil, fmt.Errorf("line %d: unknown snippet %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []AnnotationArg{arg},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeDefine):
		if len(args) < 3 {
			return nil, fmt.Errorf("line %d: @oxy define annotation requires a name and a value", lineNum)
		}
		if !isIdentifier(args[1]) {
			return nil, fmt.Errorf("line %d: invalid constant name %q in @oxy define annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: AnnotationTypeDefine,
			Args: []AnnotationArg{AnnotationArg(args[1]), AnnotationArg(strings.Join(args[2:], " "))},
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

// isIdentifier reports whether s is a valid WGSL identifier.
func isIdentifier(s string) bool {
	if s == "" || s == "_" || strings.HasPrefix(s, "__") {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
