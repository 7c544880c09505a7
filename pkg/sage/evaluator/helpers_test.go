package evaluator

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/value"
)

// mustParse decodes JSON test data.
func mustParse(t *testing.T, text string) value.Value {
	t.Helper()
	v, err := value.ParseJSON(text)
	if err != nil {
		t.Fatalf("bad test JSON %q: %v", text, err)
	}
	return v
}

func mustVar(t *testing.T, raw string, formatters ...*FormatterCall) *Variable {
	t.Helper()
	v, err := NewVariable(raw, formatters...)
	if err != nil {
		t.Fatalf("NewVariable(%q): %v", raw, err)
	}
	return v
}

// instFunc adapts a function to an Instruction.
type instFunc func(ctx *Context) error

func (f instFunc) Invoke(ctx *Context) error { return f(ctx) }

// upper renders the focus upper-cased.
type upperFormatter struct{ BaseFormatter }

func (upperFormatter) Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error) {
	return ctx.BuildValue(strings.ToUpper(value.Text(node))), nil
}

// executeErrorFormatter always fails.
type executeErrorFormatter struct{ BaseFormatter }

func (executeErrorFormatter) Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error) {
	return nil, fmt.Errorf("ABCXYZ")
}

// invalidArgsFormatter rejects every call site.
type invalidArgsFormatter struct{ BaseFormatter }

func (invalidArgsFormatter) Validate(args *Arguments) error {
	return fmt.Errorf("Invalid arguments")
}

// unstableFormatter panics at render time.
type unstableFormatter struct{ BaseFormatter }

func (unstableFormatter) Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error) {
	panic("unexpected error!")
}

// repeatFormatter caches its count in the opaque slot.
type repeatFormatter struct{ BaseFormatter }

func (repeatFormatter) Validate(args *Arguments) error {
	if err := args.Exactly(1); err != nil {
		return err
	}
	var n int
	if _, err := fmt.Sscan(args.First(), &n); err != nil {
		return err
	}
	args.SetOpaque(n)
	return nil
}

func (repeatFormatter) Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error) {
	n, _ := OpaqueAs[int](args)
	return ctx.BuildValue(strings.Repeat(value.Text(node), n)), nil
}

// wrapFormatter renders a fixed template privately against the node.
type wrapFormatter struct {
	BaseFormatter
	tmpl    Instruction
	private bool
}

func (w wrapFormatter) Apply(ctx *Context, args *Arguments, node value.Value) (value.Value, error) {
	return ctx.ExecuteTemplate(w.tmpl, node, w.private)
}

type equalPredicate struct{ BasePredicate }

func (equalPredicate) Validate(args *Arguments) error {
	if err := args.Exactly(2); err != nil {
		return err
	}
	a, err := path.Compile(args.Get(0))
	if err != nil {
		return err
	}
	b, err := path.Compile(args.Get(1))
	if err != nil {
		return err
	}
	args.SetOpaque([2]path.Path{a, b})
	return nil
}

func (equalPredicate) Apply(ctx *Context, args *Arguments) (bool, error) {
	p, _ := OpaqueAs[[2]path.Path](args)
	return value.Equal(ctx.Resolve(p[0]), ctx.Resolve(p[1])), nil
}

func testLibrary(t *testing.T) *Library {
	t.Helper()
	lib := NewLibrary()
	lib.Formatters.MustRegister(
		upperFormatter{BaseFormatter{ID: "upper"}},
		executeErrorFormatter{BaseFormatter{ID: "execute-error"}},
		invalidArgsFormatter{BaseFormatter{ID: "invalid-args"}},
		unstableFormatter{BaseFormatter{ID: "unstable"}},
		repeatFormatter{BaseFormatter{ID: "repeat", Required: true}},
		BaseFormatter{ID: "required-args", Required: true},
	)
	lib.Predicates.MustRegister(equalPredicate{BasePredicate{ID: "equal?", Required: true}})
	return lib
}

func render(t *testing.T, inst Instruction, data string) (string, error) {
	t.Helper()
	ctx := NewContext(mustParse(t, data))
	err := ctx.Execute(inst)
	return ctx.Buffer().String(), err
}
