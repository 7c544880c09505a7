// Package errors provides structured error types for the Sage template engine.
//
// This package defines SageError, a unified error type for compile-time
// argument validation failures and render-time execution failures, with
// rich metadata for display and programmatic handling.
package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for filtering and templating.
type ErrorClass string

const (
	ClassArgs      ErrorClass = "args"      // Plugin argument validation (compile time)
	ClassUndefined ErrorClass = "undefined" // Unknown plugin or partial
	ClassExecute   ErrorClass = "execute"   // Plugin or instruction failure (render time)
	ClassResource  ErrorClass = "resource"  // Dependent resource unavailable
	ClassFormat    ErrorClass = "format"    // Invalid reference or template tree
	ClassConfig    ErrorClass = "config"    // Startup configuration
)

// SageError represents any error from compiling or rendering a template.
type SageError struct {
	Class      ErrorClass     `json:"class"`                // Error category
	Code       string         `json:"code"`                 // Error code (e.g., "ARGS-0001")
	Message    string         `json:"message"`              // Human-readable message
	Hints      []string       `json:"hints,omitempty"`      // Suggestions for fixing
	Identifier string         `json:"identifier,omitempty"` // Offending plugin identifier
	Args       []string       `json:"args,omitempty"`       // Offending plugin arguments
	File       string         `json:"file,omitempty"`       // Template path (if known)
	Data       map[string]any `json:"data,omitempty"`       // Template variables
}

// Error implements the error interface.
func (e *SageError) Error() string {
	return e.String()
}

// String returns a formatted string representation of the error.
func (e *SageError) String() string {
	var sb strings.Builder

	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// PrettyString returns a multi-line formatted string for display.
func (e *SageError) PrettyString() string {
	var sb strings.Builder

	switch e.Class {
	case ClassArgs, ClassUndefined, ClassFormat:
		sb.WriteString("Compile error")
	case ClassConfig:
		sb.WriteString("Configuration error")
	default:
		sb.WriteString("Render error")
	}

	if e.File != "" {
		sb.WriteString(":\n  in: ")
		sb.WriteString(e.File)
		sb.WriteString("\n  ")
	} else {
		sb.WriteString(":\n  ")
	}

	sb.WriteString(e.Message)

	if e.Identifier != "" {
		sb.WriteString("\n  at: ")
		sb.WriteString(e.Identifier)
		if len(e.Args) > 0 {
			sb.WriteString(" ")
			sb.WriteString(strings.Join(e.Args, " "))
		}
	}

	for i, hint := range e.Hints {
		sb.WriteString("\n  ")
		if i == 0 {
			sb.WriteString("Hint: ")
		} else {
			sb.WriteString("  or: ")
		}
		sb.WriteString(hint)
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *SageError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithFile returns a copy of the error with the template path set.
func (e *SageError) WithFile(file string) *SageError {
	copy := *e
	copy.File = file
	return &copy
}

// WithSite returns a copy of the error carrying the plugin call site.
func (e *SageError) WithSite(identifier string, args []string) *SageError {
	copy := *e
	copy.Identifier = identifier
	copy.Args = args
	return &copy
}

// IsCompileError returns true if the error aborts compiling a template.
func (e *SageError) IsCompileError() bool {
	return e.Class == ClassArgs || e.Class == ClassUndefined || e.Class == ClassFormat
}

// IsRenderError returns true if the error aborted a render.
func (e *SageError) IsRenderError() bool {
	return e.Class == ClassExecute || e.Class == ClassResource
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass // Error category
	Template string     // Message template with {{.placeholders}}
	Hints    []string   // Hint templates (may use {{.placeholders}})
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Argument errors (ARGS-0xxx)
	// ========================================
	"ARGS-0001": {
		Class:    ClassArgs,
		Template: "`{{.Identifier}}` requires arguments",
	},
	"ARGS-0002": {
		Class:    ClassArgs,
		Template: "`{{.Identifier}}` expects at least {{.Min}} argument(s), got {{.Got}}",
	},
	"ARGS-0003": {
		Class:    ClassArgs,
		Template: "`{{.Identifier}}` expects at most {{.Max}} argument(s), got {{.Got}}",
	},
	"ARGS-0004": {
		Class:    ClassArgs,
		Template: "`{{.Identifier}}` expects exactly {{.Want}} argument(s), got {{.Got}}",
	},
	"ARGS-0005": {
		Class:    ClassArgs,
		Template: "invalid arguments to `{{.Identifier}}`: {{.Reason}}",
	},

	// ========================================
	// Undefined errors (UNDEF-0xxx)
	// ========================================
	"UNDEF-0001": {
		Class:    ClassUndefined,
		Template: "unknown formatter '{{.Name}}'",
		// Hint "Did you mean `X`?" added dynamically by fuzzy matching
	},
	"UNDEF-0002": {
		Class:    ClassUndefined,
		Template: "unknown predicate '{{.Name}}'",
	},
	"UNDEF-0003": {
		Class:    ClassUndefined,
		Template: "unknown partial '{{.Name}}'",
	},

	// ========================================
	// Execution errors (EXEC-0xxx)
	// ========================================
	"EXEC-0001": {
		Class:    ClassExecute,
		Template: "`{{.Identifier}}` failed: {{.Reason}}",
	},
	"EXEC-0002": {
		Class:    ClassExecute,
		Template: "`{{.Identifier}}` raised an unexpected error: {{.Reason}}",
	},
	"EXEC-0003": {
		Class:    ClassExecute,
		Template: "private sub-render nesting exceeded {{.Max}} levels",
		Hints:    []string{"check for a partial or formatter that renders itself"},
	},
	"EXEC-0004": {
		Class:    ClassExecute,
		Template: "`{{.Identifier}}` cached argument has type {{.Got}}, want {{.Want}}",
	},

	// ========================================
	// Resource errors (RES-0xxx)
	// ========================================
	"RES-0001": {
		Class:    ClassResource,
		Template: "failed to load resource '{{.Path}}': {{.Reason}}",
	},
	"RES-0002": {
		Class:    ClassResource,
		Template: "failed to query data source '{{.Driver}}': {{.Reason}}",
	},

	// ========================================
	// Format errors (FORMAT-0xxx)
	// ========================================
	"FORMAT-0001": {
		Class:    ClassFormat,
		Template: "invalid variable reference '{{.Path}}': {{.Reason}}",
	},
	"FORMAT-0002": {
		Class:    ClassFormat,
		Template: "invalid instruction at {{.Location}}: {{.Reason}}",
		Hints:    []string{"each instruction needs exactly one of text, var, section, repeat, predicate, if or apply"},
	},

	// ========================================
	// Configuration errors (CONFIG-0xxx)
	// ========================================
	"CONFIG-0001": {
		Class:    ClassConfig,
		Template: "duplicate {{.Kind}} identifier '{{.Name}}'",
	},
	"CONFIG-0002": {
		Class:    ClassConfig,
		Template: "cannot disable unknown plugin '{{.Name}}'",
	},
}

// New creates a SageError from the catalog.
// If the code is not found, returns a generic error with the code as message.
func New(code string, data map[string]any) *SageError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := code
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &SageError{
			Class:   ClassExecute, // Default class
			Code:    code,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	err := &SageError{
		Class:   def.Class,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Data:    data,
	}
	if id, ok := data["Identifier"].(string); ok {
		err.Identifier = id
	}
	return err
}

// NewSimple creates a simple error without using the catalog.
func NewSimple(class ErrorClass, message string) *SageError {
	return &SageError{
		Class:   class,
		Message: message,
	}
}

// NewArgument creates an ARGS-0005 error for a plugin whose arguments
// failed validation.
func NewArgument(identifier, reason string) *SageError {
	return New("ARGS-0005", map[string]any{"Identifier": identifier, "Reason": reason})
}

// NewExecute creates an EXEC-0001 error for a plugin that failed at render time.
func NewExecute(identifier, reason string) *SageError {
	return New("EXEC-0001", map[string]any{"Identifier": identifier, "Reason": reason})
}

// IsClass reports whether err is a SageError of the given class.
func IsClass(err error, class ErrorClass) bool {
	var se *SageError
	return errors.As(err, &se) && se.Class == class
}

// HasCode reports whether err is a SageError with the given code.
func HasCode(err error, code string) bool {
	var se *SageError
	return errors.As(err, &se) && se.Code == code
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FindClosestMatch finds the closest match to the given string from candidates.
// Returns the best match if the distance is within the threshold, otherwise empty string.
func FindClosestMatch(input string, candidates []string) string {
	if len(input) == 0 || len(candidates) == 0 {
		return ""
	}

	inputLower := strings.ToLower(input)

	// Sorted so ties resolve the same way on every run
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	var bestMatch string
	bestDistance := -1

	for _, candidate := range sorted {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if bestDistance == -1 || dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	// Short words (1-3): max 1 edit
	// Medium words (4-6): max 2 edits
	// Longer words (7+): max 3 edits
	threshold := 1
	if len(input) >= 4 && len(input) <= 6 {
		threshold = 2
	} else if len(input) >= 7 {
		threshold = 3
	}

	if bestDistance <= 0 || bestDistance > threshold {
		return ""
	}

	return bestMatch
}

// NewUnknownPlugin creates an undefined formatter/predicate error with
// optional fuzzy matching against the registered identifiers.
func NewUnknownPlugin(code, name string, available []string) *SageError {
	err := New(code, map[string]any{"Name": name})
	if suggestion := FindClosestMatch(name, available); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// Errorf is a convenience wrapper producing an execute-class error for
// plugin identifier id.
func Errorf(id string, format string, args ...any) *SageError {
	return NewExecute(id, fmt.Sprintf(format, args...))
}
