package evaluator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/value"
)

// Plugin is the part shared by formatters and predicates.
type Plugin interface {
	Identifier() string
	RequiresArgs() bool
	// Validate runs once per call site when a template is compiled. It may
	// cache a parsed form of the arguments with SetOpaque.
	Validate(args *Arguments) error
}

// Formatter replaces the value of a variable before it is written.
type Formatter interface {
	Plugin
	Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error)
}

// Predicate decides which branch of a predicate block runs.
type Predicate interface {
	Plugin
	Apply(ctx *Context, args *Arguments) (bool, error)
}

// BaseFormatter supplies the identity of a formatter and no-op hooks.
// Embed it and override Apply (and Validate when needed).
type BaseFormatter struct {
	ID       string
	Required bool
}

func (b BaseFormatter) Identifier() string             { return b.ID }
func (b BaseFormatter) RequiresArgs() bool             { return b.Required }
func (b BaseFormatter) Validate(args *Arguments) error { return nil }

// Apply returns the node unchanged.
func (b BaseFormatter) Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error) {
	return node, nil
}

// BasePredicate supplies the identity of a predicate and no-op hooks.
type BasePredicate struct {
	ID       string
	Required bool
}

func (b BasePredicate) Identifier() string             { return b.ID }
func (b BasePredicate) RequiresArgs() bool             { return b.Required }
func (b BasePredicate) Validate(args *Arguments) error { return nil }

// Apply is always false.
func (b BasePredicate) Apply(ctx *Context, args *Arguments) (bool, error) {
	return false, nil
}

// Registry maps identifiers to plugins of one kind. Registration happens at
// startup; lookups are safe from any number of goroutines.
type Registry[T Plugin] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]T
}

// NewRegistry creates an empty registry; kind names the plugin kind in errors.
func NewRegistry[T Plugin](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, entries: make(map[string]T)}
}

// Register adds plugins. A duplicate identifier is a configuration error
// and leaves the registry unchanged from that plugin on.
func (r *Registry[T]) Register(plugins ...T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range plugins {
		id := p.Identifier()
		if _, exists := r.entries[id]; exists {
			return serrors.New("CONFIG-0001", map[string]any{"Kind": r.kind, "Name": id})
		}
		r.entries[id] = p
	}
	return nil
}

// MustRegister is like Register but panics on duplicates.
func (r *Registry[T]) MustRegister(plugins ...T) {
	if err := r.Register(plugins...); err != nil {
		panic(err)
	}
}

// Lookup returns the plugin registered under id.
func (r *Registry[T]) Lookup(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[id]
	return p, ok
}

// Remove unregisters id, reporting whether it was present.
func (r *Registry[T]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Identifiers returns all registered identifiers, sorted.
func (r *Registry[T]) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent registry holding the same plugins.
func (r *Registry[T]) Clone() *Registry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry[T]{kind: r.kind, entries: make(map[string]T, len(r.entries))}
	for id, p := range r.entries {
		c.entries[id] = p
	}
	return c
}

// Len returns the number of registered plugins.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Library bundles the formatter and predicate registries a template is
// compiled against.
type Library struct {
	Formatters *Registry[Formatter]
	Predicates *Registry[Predicate]
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		Formatters: NewRegistry[Formatter]("formatter"),
		Predicates: NewRegistry[Predicate]("predicate"),
	}
}

// Clone returns a library with copies of both registries, so registering or
// disabling on the copy leaves l untouched.
func (l *Library) Clone() *Library {
	return &Library{Formatters: l.Formatters.Clone(), Predicates: l.Predicates.Clone()}
}

// Disable removes each identifier from whichever registry holds it.
func (l *Library) Disable(ids ...string) error {
	for _, id := range ids {
		if !l.Formatters.Remove(id) && !l.Predicates.Remove(id) {
			return serrors.New("CONFIG-0002", map[string]any{"Name": id})
		}
	}
	return nil
}

// FormatterCall is a validated formatter call site.
type FormatterCall struct {
	Formatter Formatter
	Args      *Arguments
}

// PredicateCall is a validated predicate call site.
type PredicateCall struct {
	Predicate Predicate
	Args      *Arguments
}

// BindFormatter looks up id and validates args for it. Any error aborts
// compiling the enclosing template.
func (l *Library) BindFormatter(id string, args *Arguments) (*FormatterCall, error) {
	f, ok := l.Formatters.Lookup(id)
	if !ok {
		return nil, serrors.NewUnknownPlugin("UNDEF-0001", id, l.Formatters.Identifiers())
	}
	args, err := bind(f, args)
	if err != nil {
		return nil, err
	}
	return &FormatterCall{Formatter: f, Args: args}, nil
}

// BindPredicate looks up id and validates args for it.
func (l *Library) BindPredicate(id string, args *Arguments) (*PredicateCall, error) {
	p, ok := l.Predicates.Lookup(id)
	if !ok {
		return nil, serrors.NewUnknownPlugin("UNDEF-0002", id, l.Predicates.Identifiers())
	}
	args, err := bind(p, args)
	if err != nil {
		return nil, err
	}
	return &PredicateCall{Predicate: p, Args: args}, nil
}

func bind(p Plugin, args *Arguments) (*Arguments, error) {
	if args == nil {
		args = NewArguments()
	}
	if args.frozen {
		panic("evaluator: arguments already bound to " + args.id)
	}
	args.id = p.Identifier()
	if p.RequiresArgs() && args.Count() == 0 {
		return nil, serrors.New("ARGS-0001", map[string]any{"Identifier": args.id}).WithSite(args.id, nil)
	}
	if err := p.Validate(args); err != nil {
		return nil, siteError(err, args, serrors.NewArgument)
	}
	args.freeze()
	return args, nil
}

// Apply runs the formatter. A panic inside the plugin is reported as an
// execution error.
func (fc *FormatterCall) Apply(ctx *Context, node value.Value) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = value.MISSING, panicError(r, fc.Args)
		}
	}()
	result, err = fc.Formatter.Apply(ctx, fc.Args, node)
	if err != nil {
		return value.MISSING, siteError(err, fc.Args, serrors.NewExecute)
	}
	if result == nil {
		result = value.MISSING
	}
	return result, nil
}

// Apply runs the predicate.
func (pc *PredicateCall) Apply(ctx *Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, panicError(r, pc.Args)
		}
	}()
	ok, err = pc.Predicate.Apply(ctx, pc.Args)
	if err != nil {
		return false, siteError(err, pc.Args, serrors.NewExecute)
	}
	return ok, nil
}

// siteError attaches the call site to err, converting plain errors with wrap.
func siteError(err error, args *Arguments, wrap func(id, reason string) *serrors.SageError) error {
	var se *serrors.SageError
	if !errors.As(err, &se) {
		se = wrap(args.id, err.Error())
	}
	if se.Identifier != "" && se.Args != nil {
		return se
	}
	return se.WithSite(args.id, args.Args())
}

func panicError(r any, args *Arguments) error {
	if err, ok := r.(error); ok {
		var se *serrors.SageError
		if errors.As(err, &se) {
			return se
		}
	}
	return serrors.New("EXEC-0002", map[string]any{
		"Identifier": args.id,
		"Reason":     fmt.Sprint(r),
	}).WithSite(args.id, args.Args())
}
