package plugins

import (
	"testing"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/value"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		root     string
		args     []string
		expected bool
	}{
		{"units metric", "units-metric?", `{}`, nil, true},
		{"equal two paths", "equal?", `{"a": 1, "b": 1}`, []string{"a", "b"}, true},
		{"unequal two paths", "equal?", `{"a": 1, "b": "1"}`, []string{"a", "b"}, false},
		{"equal against focus", "equal?", `{"a": {"x": 1}}`, []string{"a"}, false},
		{"equal nested", "equal?", `{"a": [1, 2], "b": [1, 2]}`, []string{"a", "b"}, true},
		{"even focus", "even?", `4`, nil, true},
		{"even arg", "even?", `{"n": 3}`, []string{"n"}, false},
		{"odd negative", "odd?", `{"n": -3}`, []string{"n"}, true},
		{"odd non-number", "odd?", `"3"`, nil, false},
		{"odd fraction", "odd?", `1.5`, nil, false},
		{"plural number", "plural?", `{"n": 2}`, []string{"n"}, true},
		{"plural array", "plural?", `[1, 2]`, nil, true},
		{"plural one", "plural?", `1`, nil, false},
		{"singular one", "singular?", `{"n": 1}`, []string{"n"}, true},
		{"singular array", "singular?", `[1]`, nil, true},
		{"singular zero", "singular?", `0`, nil, false},
		{"main image object", "main-image?", `{"mainImage": {}}`, nil, true},
		{"main image id", "main-image?", `{"mainImageId": "abc"}`, nil, true},
		{"no main image", "main-image?", `{"mainImageId": ""}`, nil, false},
		{"debug on", "debug?", `{"debug": true}`, nil, true},
		{"debug off", "debug?", `{}`, nil, false},
	}

	lib := testLibrary(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := lib.BindPredicate(tt.id, evaluator.NewArguments(tt.args...))
			if err != nil {
				t.Fatalf("BindPredicate error: %v", err)
			}
			ctx := evaluator.NewContext(parseJSON(t, tt.root))
			got, err := pc.Apply(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEqualAgainstFocus(t *testing.T) {
	root := parseJSON(t, `{"selected": "b", "items": ["a", "b"]}`)
	pc, err := testLibrary(t).BindPredicate("equal?", evaluator.NewArguments("selected"))
	if err != nil {
		t.Fatalf("BindPredicate error: %v", err)
	}

	ctx := evaluator.NewContext(root)
	var matches []bool
	for i, item := range []value.Value{value.NewString("a"), value.NewString("b")} {
		ctx.PushIndexed(item, i+1)
		ok, err := pc.Apply(ctx)
		ctx.Pop()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		matches = append(matches, ok)
	}
	if matches[0] || !matches[1] {
		t.Errorf("matches = %v, want [false true]", matches)
	}
}

func TestPredicateValidation(t *testing.T) {
	lib := testLibrary(t)
	tests := []struct {
		id   string
		args []string
		code string
	}{
		{"equal?", nil, "ARGS-0001"},
		{"equal?", []string{"a", "b", "c"}, "ARGS-0003"},
		{"equal?", []string{"a[0"}, "ARGS-0005"},
		{"even?", []string{"a", "b"}, "ARGS-0003"},
		{"plural?", []string{"x]"}, "ARGS-0005"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := lib.BindPredicate(tt.id, evaluator.NewArguments(tt.args...))
			if !serrors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}
