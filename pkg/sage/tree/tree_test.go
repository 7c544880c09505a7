package tree_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/plugins"
	"github.com/sambeau/sage/pkg/sage/tree"
	"github.com/sambeau/sage/pkg/sage/value"
)

func library(t *testing.T) *evaluator.Library {
	t.Helper()
	lib, err := plugins.Default(plugins.Options{})
	if err != nil {
		t.Fatalf("plugins.Default() error: %v", err)
	}
	return lib
}

func render(t *testing.T, tmpl *tree.Template, data string) string {
	t.Helper()
	root, err := value.ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON(%q) error: %v", data, err)
	}
	ctx := evaluator.NewContext(root)
	ctx.Partials = tmpl.Partials
	if err := ctx.Execute(tmpl.Body); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if ctx.FrameCount() != 1 {
		t.Errorf("frames left after render: %d", ctx.FrameCount())
	}
	return ctx.Buffer().String()
}

func TestDecodeAndRender(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		data     string
		expected string
	}{
		{
			name:     "text and piped variable",
			src:      "- \"Hello, \"\n- var: name|capitalize\n- \"!\"\n",
			data:     `{"name": "ann"}`,
			expected: "Hello, ANN!",
		},
		{
			name:     "format list with delimiter",
			src:      "- var: price\n  format: [\"decimal,minFrac:2\"]\n",
			data:     `{"price": 3}`,
			expected: "3.00",
		},
		{
			name:     "format single string",
			src:      "- var: title\n  format: truncate 10\n",
			data:     `{"title": "hello world foo"}`,
			expected: "hello...",
		},
		{
			name: "repeat with index and separator",
			src: `
- repeat: items
  between: ", "
  body:
    - var: "@index"
    - ". "
    - var: name
  else: none
`,
			data:     `{"items": [{"name": "a"}, {"name": "b"}]}`,
			expected: "1. a, 2. b",
		},
		{
			name:     "repeat empty",
			src:      "- repeat: items\n  body: x\n  else: none\n",
			data:     `{"items": []}`,
			expected: "none",
		},
		{
			name:     "section",
			src:      "- section: author\n  body:\n    - var: displayName\n  else: anonymous\n",
			data:     `{"author": {"displayName": "Ann"}}`,
			expected: "Ann",
		},
		{
			name:     "section falsy",
			src:      "- section: author\n  body:\n    - var: displayName\n  else: anonymous\n",
			data:     `{}`,
			expected: "anonymous",
		},
		{
			name:     "predicate",
			src:      "- predicate: equal? a b\n  body: same\n  else: different\n",
			data:     `{"a": 1, "b": 1}`,
			expected: "same",
		},
		{
			name:     "if or",
			src:      "- if: [a, b]\n  op: or\n  body: \"yes\"\n  else: \"no\"\n",
			data:     `{"b": true}`,
			expected: "yes",
		},
		{
			name:     "if and",
			src:      "- if: [a, b]\n  body: \"yes\"\n  else: \"no\"\n",
			data:     `{"a": 1}`,
			expected: "no",
		},
		{
			name:     "json document",
			src:      `[{"text": "x"}, {"var": "a"}]`,
			data:     `{"a": 2}`,
			expected: "x2",
		},
		{
			name:     "empty document",
			src:      "",
			data:     `{}`,
			expected: "",
		},
	}

	lib := library(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := tree.Decode([]byte(tt.src), lib)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if got := render(t, tmpl, tt.data); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPartials(t *testing.T) {
	src := `
partials:
  byline:
    - "by "
    - var: displayName
    - var: site
body:
  - section: author
    body:
      - apply: byline
  - " / "
  - var: author|apply byline public
`
	tmpl, err := tree.Decode([]byte(src), library(t))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if _, ok := tmpl.Partials["byline"]; !ok {
		t.Fatal("partial byline not decoded")
	}
	got := render(t, tmpl, `{"site": " at Acme", "author": {"displayName": "Ann"}}`)
	if want := "by Ann / by Ann at Acme"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		code    string
		message string
	}{
		{"two kinds", "- {text: a, var: b}\n", "FORMAT-0002", "found text and var"},
		{"no kind", "- {op: or}\n", "FORMAT-0002", "no instruction given"},
		{"bad path", "- var: \"a]\"\n", "FORMAT-0001", "a]"},
		{"bad section path", "- section: \"[x\"\n", "FORMAT-0001", "[x"},
		{"unknown formatter", "- var: a|nope\n", "UNDEF-0001", "nope"},
		{"unknown predicate", "- predicate: nope?\n", "UNDEF-0002", "nope?"},
		{"missing args", "- var: a|truncate\n", "ARGS-0001", "truncate"},
		{"bad args", "- var: a|truncate many\n", "ARGS-0005", "truncate"},
		{"bad operator", "- if: a\n  op: xor\n", "FORMAT-0002", "xor"},
		{"malformed yaml", "- [unclosed\n", "FORMAT-0002", "document"},
		{"nested error", "- section: a\n  body:\n    - var: b|nope\n", "UNDEF-0001", "nope"},
		{"partial error", "partials:\n  p: {var: x|nope}\n", "UNDEF-0001", "nope"},
	}

	lib := library(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tree.Decode([]byte(tt.src), lib)
			if !serrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected %q in %q", tt.message, err.Error())
			}
		})
	}
}

func TestDecodeErrorLocation(t *testing.T) {
	_, err := tree.Decode([]byte("- \"ok\"\n- {text: a, var: b}\n"), library(t))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 in error, got %v", err)
	}
}

func TestDependencies(t *testing.T) {
	src := `
- var: a.b|json
- var: "@"
- section: s
  body:
    - var: x
- repeat: items
  body:
    - var: name
    - var: a.b
- if: [p, "q[0]"]
  body: ok
`
	tmpl, err := tree.Decode([]byte(src), library(t))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := []string{"a.b", "items", "name", "p", "q[0]", "s", "x"}
	if got := tree.Dependencies(tmpl.Body); !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %v, want %v", got, want)
	}
}

func TestTemplateDependencies(t *testing.T) {
	src := "partials:\n  p: {var: inner}\nbody:\n  - var: outer\n"
	tmpl, err := tree.Decode([]byte(src), library(t))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := []string{"inner", "outer"}
	if got := tmpl.Dependencies(); !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %v, want %v", got, want)
	}
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "page.yaml")
	if err := os.WriteFile(good, []byte("- var: name\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tmpl, err := tree.DecodeFile(good, library(t))
	if err != nil {
		t.Fatalf("DecodeFile error: %v", err)
	}
	if got := render(t, tmpl, `{"name": "x"}`); got != "x" {
		t.Errorf("got %q", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("- var: a|nope\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = tree.DecodeFile(bad, library(t))
	var se *serrors.SageError
	if !errors.As(err, &se) || se.File != bad {
		t.Errorf("expected error carrying the file name, got %v", err)
	}

	_, err = tree.DecodeFile(filepath.Join(dir, "missing.yaml"), library(t))
	if !serrors.HasCode(err, "RES-0001") {
		t.Errorf("expected RES-0001, got %v", err)
	}
}

func TestParseVariable(t *testing.T) {
	lib := library(t)
	root, _ := value.ParseJSON(`{"title": "hello world foo", "n": 4}`)

	tests := []struct {
		expr     string
		expected string
	}{
		{"title", "hello world foo"},
		{" title | truncate 10 ", "hello..."},
		{"title|capitalize|truncate 8", "HELLO..."},
		{"n|json", "4"},
		{"missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := tree.ParseVariable(tt.expr, lib)
			if err != nil {
				t.Fatalf("ParseVariable error: %v", err)
			}
			got, err := v.Eval(evaluator.NewContext(root))
			if err != nil {
				t.Fatalf("Eval error: %v", err)
			}
			if value.EatNull(got) != tt.expected {
				t.Errorf("got %q, want %q", value.EatNull(got), tt.expected)
			}
		})
	}

	if _, err := tree.ParseVariable("a]", lib); !serrors.HasCode(err, "FORMAT-0001") {
		t.Errorf("expected FORMAT-0001, got %v", err)
	}
	if _, err := tree.ParseVariable("a|nope", lib); !serrors.HasCode(err, "UNDEF-0001") {
		t.Errorf("expected UNDEF-0001, got %v", err)
	}
}

func TestParsePredicate(t *testing.T) {
	lib := library(t)
	root, _ := value.ParseJSON(`{"a": 1, "b": 1, "c": 2}`)
	ctx := evaluator.NewContext(root)

	tests := []struct {
		call string
		want bool
	}{
		{"equal? a b", true},
		{" equal? a c", false},
		{"even? c", true},
	}
	for _, tt := range tests {
		pc, err := tree.ParsePredicate(tt.call, lib)
		if err != nil {
			t.Fatalf("ParsePredicate(%q) error: %v", tt.call, err)
		}
		if got, err := pc.Apply(ctx); err != nil || got != tt.want {
			t.Errorf("%q = %v, %v; want %v", tt.call, got, err, tt.want)
		}
	}

	if _, err := tree.ParsePredicate("nope?", lib); !serrors.HasCode(err, "UNDEF-0002") {
		t.Errorf("expected UNDEF-0002, got %v", err)
	}
}
