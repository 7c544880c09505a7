// Package sage provides the public API for compiling and rendering
// instruction-tree templates against JSON-like data.
//
//	engine, err := sage.New(sage.WithLocale("en-GB"))
//	tmpl, err := engine.Compile([]byte(src))
//	out, err := tmpl.Render(data)
//
// A Template is immutable once compiled and may be rendered from any number
// of goroutines at once; every render gets its own context stack and output
// buffer.
package sage

import (
	"errors"
	"io"
	"sort"
	"time"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/plugins"
	"github.com/sambeau/sage/pkg/sage/tree"
	"github.com/sambeau/sage/pkg/sage/value"
)

// Version is the engine version reported by the CLI.
const Version = "0.4.0"

// Engine compiles templates against a plugin library and carries the
// render settings every template it compiles inherits.
type Engine struct {
	lib        *evaluator.Library
	baseURLKey string
	disabled   []string
	maxDepth   int
	logger     Logger
	locale     string
	location   *time.Location
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLibrary uses lib instead of the standard plugin library. Combined
// with WithDisabled the engine works on a copy, and lib is left unchanged.
func WithLibrary(lib *evaluator.Library) Option {
	return func(e *Engine) { e.lib = lib }
}

// WithBaseURLKey sets the reference AbsUrl resolves for the site root.
func WithBaseURLKey(key string) Option {
	return func(e *Engine) { e.baseURLKey = key }
}

// WithDisabled leaves the named plugins out of the standard library.
func WithDisabled(ids ...string) Option {
	return func(e *Engine) { e.disabled = append(e.disabled, ids...) }
}

// WithMaxDepth bounds private sub-render nesting.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithLogger sets the logger used by the log formatter.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLocale sets the default locale of locale-aware formatters.
func WithLocale(locale string) Option {
	return func(e *Engine) { e.locale = locale }
}

// WithLocation sets the time zone of date formatters.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// WithClock replaces the clock used by relative-time formatters.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. Without WithLibrary it uses the standard plugin
// library.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		maxDepth: evaluator.DefaultMaxDepth,
		logger:   DefaultLogger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lib == nil {
		lib, err := plugins.Default(plugins.Options{BaseURLKey: e.baseURLKey, Disabled: e.disabled})
		if err != nil {
			return nil, err
		}
		e.lib = lib
	} else if len(e.disabled) > 0 {
		// The caller's library may back other engines
		lib := e.lib.Clone()
		if err := lib.Disable(e.disabled...); err != nil {
			return nil, err
		}
		e.lib = lib
	}
	if e.maxDepth <= 0 {
		e.maxDepth = evaluator.DefaultMaxDepth
	}
	return e, nil
}

// Library returns the engine's plugin library.
func (e *Engine) Library() *evaluator.Library {
	return e.lib
}

// Compile decodes an instruction tree. Every plugin call site is validated
// here; a template that compiles only fails at render time through its
// plugins.
func (e *Engine) Compile(src []byte) (*Template, error) {
	t, err := tree.Decode(src, e.lib)
	if err != nil {
		return nil, err
	}
	return &Template{engine: e, tree: t}, nil
}

// CompileFile reads and compiles filename.
func (e *Engine) CompileFile(filename string) (*Template, error) {
	t, err := tree.DecodeFile(filename, e.lib)
	if err != nil {
		return nil, err
	}
	return &Template{Name: filename, engine: e, tree: t}, nil
}

// Render renders tmpl against data.
func (e *Engine) Render(tmpl *Template, data value.Value) (string, error) {
	return tmpl.Render(data)
}

// Template is a compiled instruction tree.
type Template struct {
	Name string

	engine *Engine
	tree   *tree.Template
}

// newContext builds the per-render context.
func (t *Template) newContext(data value.Value) *evaluator.Context {
	e := t.engine
	ctx := evaluator.NewContext(data)
	ctx.MaxDepth = e.maxDepth
	ctx.Logger = e.logger
	ctx.Locale = e.locale
	ctx.Location = e.location
	ctx.Partials = t.tree.Partials
	ctx.Now = e.now
	return ctx
}

// Render renders the template against data and returns the output.
func (t *Template) Render(data value.Value) (string, error) {
	ctx := t.newContext(data)
	if err := ctx.Execute(t.tree.Body); err != nil {
		return "", t.annotate(err)
	}
	return ctx.Buffer().String(), nil
}

// RenderGo converts data with value.FromGo and renders it.
func (t *Template) RenderGo(data any) (string, error) {
	return t.Render(value.FromGo(data))
}

// RenderJSON parses data as JSON and renders it.
func (t *Template) RenderJSON(data string) (string, error) {
	v, err := value.ParseJSON(data)
	if err != nil {
		return "", serrors.New("RES-0001", map[string]any{"Path": "json", "Reason": err.Error()})
	}
	return t.Render(v)
}

// RenderTo renders the template and writes the output to w.
func (t *Template) RenderTo(w io.Writer, data value.Value) error {
	out, err := t.Render(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Dependencies lists every variable reference the template makes.
func (t *Template) Dependencies() []string {
	return t.tree.Dependencies()
}

// Partials lists the names of the template's partials, sorted.
func (t *Template) Partials() []string {
	names := make([]string, 0, len(t.tree.Partials))
	for name := range t.tree.Partials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Template) annotate(err error) error {
	var se *serrors.SageError
	if t.Name != "" && errors.As(err, &se) && se.File == "" {
		return se.WithFile(t.Name)
	}
	return err
}
