package evaluator

import (
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// Arguments holds the tokens passed to a plugin at one call site, plus a
// single slot where Validate may cache a pre-parsed form of them. Once the
// site is bound the slot is frozen and the Arguments are shared read-only by
// every render of the template.
type Arguments struct {
	id        string
	delimiter string
	args      []string
	opaque    any
	set       bool
	frozen    bool
}

// NewArguments creates Arguments from already split tokens.
func NewArguments(args ...string) *Arguments {
	return &Arguments{delimiter: " ", args: args}
}

// ParseArguments splits raw on its first character, which is the
// delimiter: " a b" and ":a:b" both yield [a b]. Empty tokens are dropped.
func ParseArguments(raw string) *Arguments {
	if raw == "" {
		return &Arguments{delimiter: " "}
	}
	delim := raw[:1]
	var args []string
	for _, tok := range strings.Split(raw[1:], delim) {
		if tok != "" {
			args = append(args, tok)
		}
	}
	return &Arguments{delimiter: delim, args: args}
}

// Identifier returns the plugin the arguments are bound to.
func (a *Arguments) Identifier() string { return a.id }

// Delimiter returns the token separator used at the call site.
func (a *Arguments) Delimiter() string { return a.delimiter }

// Count returns the number of tokens.
func (a *Arguments) Count() int { return len(a.args) }

// First returns the first token, or "".
func (a *Arguments) First() string { return a.Get(0) }

// Get returns the i-th token, or "" when out of range.
func (a *Arguments) Get(i int) string {
	if i < 0 || i >= len(a.args) {
		return ""
	}
	return a.args[i]
}

// Args returns a copy of all tokens.
func (a *Arguments) Args() []string {
	out := make([]string, len(a.args))
	copy(out, a.args)
	return out
}

// Join returns the tokens joined by the call-site delimiter.
func (a *Arguments) Join() string {
	return strings.Join(a.args, a.delimiter)
}

// AtLeast fails unless there are at least n tokens.
func (a *Arguments) AtLeast(n int) error {
	if len(a.args) < n {
		return serrors.New("ARGS-0002", map[string]any{"Identifier": a.id, "Min": n, "Got": len(a.args)})
	}
	return nil
}

// AtMost fails unless there are at most n tokens.
func (a *Arguments) AtMost(n int) error {
	if len(a.args) > n {
		return serrors.New("ARGS-0003", map[string]any{"Identifier": a.id, "Max": n, "Got": len(a.args)})
	}
	return nil
}

// Exactly fails unless there are exactly n tokens.
func (a *Arguments) Exactly(n int) error {
	if len(a.args) != n {
		return serrors.New("ARGS-0004", map[string]any{"Identifier": a.id, "Want": n, "Got": len(a.args)})
	}
	return nil
}

// Between fails unless the token count lies in [lo, hi].
func (a *Arguments) Between(lo, hi int) error {
	if err := a.AtLeast(lo); err != nil {
		return err
	}
	return a.AtMost(hi)
}

// SetOpaque stores the pre-parsed form of the arguments. It may be called
// once, from Validate; any later call panics.
func (a *Arguments) SetOpaque(v any) {
	if a.frozen {
		panic("evaluator: SetOpaque on bound arguments of " + a.id)
	}
	if a.set {
		panic("evaluator: SetOpaque called twice for " + a.id)
	}
	a.opaque = v
	a.set = true
}

// Opaque returns the cached value set during validation, or nil.
func (a *Arguments) Opaque() any { return a.opaque }

// HasOpaque reports whether Validate cached a value.
func (a *Arguments) HasOpaque() bool { return a.set }

// Frozen reports whether the arguments are bound to a site.
func (a *Arguments) Frozen() bool { return a.frozen }

func (a *Arguments) freeze() { a.frozen = true }

// OpaqueAs returns the cached value as a T. The second result is false if
// no value was cached or it has another type.
func OpaqueAs[T any](a *Arguments) (T, bool) {
	v, ok := a.opaque.(T)
	return v, ok
}
