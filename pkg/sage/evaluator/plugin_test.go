package evaluator

import (
	"strings"
	"testing"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/value"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		raw   string
		args  []string
		delim string
	}{
		{" a b", []string{"a", "b"}, " "},
		{":a:b:c", []string{"a", "b", "c"}, ":"},
		{"  a   b", []string{"a", "b"}, " "},
		{"", nil, " "},
		{",", nil, ","},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a := ParseArguments(tt.raw)
			if a.Count() != len(tt.args) {
				t.Fatalf("Count = %d, want %d", a.Count(), len(tt.args))
			}
			for i, want := range tt.args {
				if a.Get(i) != want {
					t.Errorf("Get(%d) = %q, want %q", i, a.Get(i), want)
				}
			}
			if a.Delimiter() != tt.delim {
				t.Errorf("Delimiter = %q, want %q", a.Delimiter(), tt.delim)
			}
		})
	}
}

func TestArgumentsAccessors(t *testing.T) {
	a := NewArguments("x", "y")
	if a.First() != "x" || a.Get(1) != "y" || a.Get(2) != "" || a.Get(-1) != "" {
		t.Error("unexpected token access")
	}
	all := a.Args()
	all[0] = "changed"
	if a.First() != "x" {
		t.Error("Args must return a copy")
	}
	if a.Join() != "x y" {
		t.Errorf("Join = %q", a.Join())
	}
}

func TestArgumentsCountValidators(t *testing.T) {
	a := NewArguments("1", "2")
	a.id = "fmt"

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"at least ok", a.AtLeast(2), ""},
		{"at least fail", a.AtLeast(3), "ARGS-0002"},
		{"at most ok", a.AtMost(2), ""},
		{"at most fail", a.AtMost(1), "ARGS-0003"},
		{"exactly ok", a.Exactly(2), ""},
		{"exactly fail", a.Exactly(1), "ARGS-0004"},
		{"between ok", a.Between(1, 3), ""},
		{"between fail", a.Between(3, 4), "ARGS-0002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				if tt.err != nil {
					t.Errorf("unexpected error: %v", tt.err)
				}
				return
			}
			if !serrors.HasCode(tt.err, tt.code) {
				t.Errorf("err = %v, want %s", tt.err, tt.code)
			}
			if !strings.Contains(tt.err.Error(), "`fmt`") {
				t.Errorf("error should name the plugin: %v", tt.err)
			}
		})
	}
}

func TestOpaqueSlot(t *testing.T) {
	a := NewArguments("3")
	if a.HasOpaque() {
		t.Error("fresh arguments have no opaque value")
	}
	a.SetOpaque(3)
	if n, ok := OpaqueAs[int](a); !ok || n != 3 {
		t.Errorf("OpaqueAs[int] = %v, %v", n, ok)
	}
	if _, ok := OpaqueAs[string](a); ok {
		t.Error("OpaqueAs with the wrong type should fail")
	}

	assertPanics(t, "second SetOpaque", func() { a.SetOpaque(4) })

	b := NewArguments()
	b.freeze()
	assertPanics(t, "SetOpaque after bind", func() { b.SetOpaque(1) })
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestRegistryDuplicates(t *testing.T) {
	r := NewRegistry[Formatter]("formatter")
	if err := r.Register(upperFormatter{BaseFormatter{ID: "upper"}}); err != nil {
		t.Fatal(err)
	}
	err := r.Register(upperFormatter{BaseFormatter{ID: "upper"}})
	if !serrors.HasCode(err, "CONFIG-0001") || !serrors.IsClass(err, serrors.ClassConfig) {
		t.Errorf("duplicate registration err = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	assertPanics(t, "MustRegister duplicate", func() {
		r.MustRegister(upperFormatter{BaseFormatter{ID: "upper"}})
	})
}

func TestLibraryDisable(t *testing.T) {
	lib := testLibrary(t)
	if err := lib.Disable("upper", "equal?"); err != nil {
		t.Fatal(err)
	}
	if _, ok := lib.Formatters.Lookup("upper"); ok {
		t.Error("upper should be disabled")
	}
	if _, ok := lib.Predicates.Lookup("equal?"); ok {
		t.Error("equal? should be disabled")
	}
	if err := lib.Disable("never-registered"); !serrors.HasCode(err, "CONFIG-0002") {
		t.Errorf("err = %v, want CONFIG-0002", err)
	}
}

func TestLibraryClone(t *testing.T) {
	lib := testLibrary(t)
	c := lib.Clone()
	if err := c.Disable("upper", "equal?"); err != nil {
		t.Fatal(err)
	}
	if _, ok := lib.Formatters.Lookup("upper"); !ok {
		t.Error("disabling on the clone removed upper from the original")
	}
	if _, ok := lib.Predicates.Lookup("equal?"); !ok {
		t.Error("disabling on the clone removed equal? from the original")
	}
	c.Formatters.MustRegister(BaseFormatter{ID: "extra"})
	if _, ok := lib.Formatters.Lookup("extra"); ok {
		t.Error("registering on the clone changed the original")
	}
	if got, want := c.Formatters.Len(), lib.Formatters.Len(); got != want {
		t.Errorf("clone has %d formatters, want %d", got, want)
	}
}

func TestBindFormatter(t *testing.T) {
	lib := testLibrary(t)

	tests := []struct {
		name string
		id   string
		args *Arguments
		code string
	}{
		{"plain", "upper", nil, ""},
		{"unknown", "uper", nil, "UNDEF-0001"},
		{"required args missing", "required-args", NewArguments(), "ARGS-0001"},
		{"required args present", "required-args", NewArguments("a"), ""},
		{"invalid args", "invalid-args", nil, "ARGS-0005"},
		{"validator count", "repeat", NewArguments("1", "2"), "ARGS-0004"},
		{"validator ok", "repeat", NewArguments("2"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := lib.BindFormatter(tt.id, tt.args)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !call.Args.Frozen() || call.Args.Identifier() != tt.id {
					t.Error("bound arguments should be frozen and carry the identifier")
				}
				return
			}
			if !serrors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			se := err.(*serrors.SageError)
			if !se.IsCompileError() {
				t.Errorf("bind errors must be compile errors, got class %q", se.Class)
			}
		})
	}
}

func TestBindUnknownSuggests(t *testing.T) {
	lib := testLibrary(t)
	_, err := lib.BindFormatter("uper", nil)
	se, ok := err.(*serrors.SageError)
	if !ok || len(se.Hints) == 0 || !strings.Contains(se.Hints[0], "upper") {
		t.Errorf("expected a did-you-mean hint, got %v", err)
	}
	if _, err := lib.BindPredicate("equals?", nil); !serrors.HasCode(err, "UNDEF-0002") {
		t.Errorf("err = %v, want UNDEF-0002", err)
	}
}

func TestBindTwicePanics(t *testing.T) {
	lib := testLibrary(t)
	call, err := lib.BindFormatter("upper", NewArguments())
	if err != nil {
		t.Fatal(err)
	}
	assertPanics(t, "rebinding", func() { lib.BindFormatter("upper", call.Args) })
}

func TestFormatterCallErrors(t *testing.T) {
	lib := testLibrary(t)

	tests := []struct {
		id   string
		code string
	}{
		{"execute-error", "EXEC-0001"},
		{"unstable", "EXEC-0002"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			call, err := lib.BindFormatter(tt.id, nil)
			if err != nil {
				t.Fatal(err)
			}
			ctx := NewContext(value.NULL)
			got, err := call.Apply(ctx, value.NewString("x"))
			if !serrors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if !value.IsMissing(got) {
				t.Errorf("failed apply returned %s", got.Inspect())
			}
			se := err.(*serrors.SageError)
			if se.Identifier != tt.id || !se.IsRenderError() {
				t.Errorf("error site = %q class %q", se.Identifier, se.Class)
			}
		})
	}
}

func TestOpaqueSharedAcrossRenders(t *testing.T) {
	lib := testLibrary(t)
	call, err := lib.BindFormatter("repeat", NewArguments("3"))
	if err != nil {
		t.Fatal(err)
	}
	inst := mustVar(t, "s", call)

	done := make(chan string, 8)
	for i := 0; i < cap(done); i++ {
		go func() {
			ctx := NewContext(value.NewObject(map[string]value.Value{"s": value.NewString("ab")}))
			if err := ctx.Execute(inst); err != nil {
				done <- err.Error()
				return
			}
			done <- ctx.Buffer().String()
		}()
	}
	for i := 0; i < cap(done); i++ {
		if got := <-done; got != "ababab" {
			t.Errorf("render %d = %q, want ababab", i, got)
		}
	}
}

func TestPredicateCall(t *testing.T) {
	lib := testLibrary(t)
	call, err := lib.BindPredicate("equal?", NewArguments("a", "b"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := NewContext(mustParse(t, `{"a": [1], "b": [1]}`))
	if ok, err := call.Apply(ctx); err != nil || !ok {
		t.Errorf("equal? = %v, %v", ok, err)
	}
	ctx = NewContext(mustParse(t, `{"a": [1], "b": [2]}`))
	if ok, _ := call.Apply(ctx); ok {
		t.Error("equal? should be false for different arrays")
	}
}
