package plugins

import (
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/value"
)

func predicates() []evaluator.Predicate {
	return []evaluator.Predicate{
		&unitsMetric{evaluator.BasePredicate{ID: "units-metric?"}},
		&equal{evaluator.BasePredicate{ID: "equal?", Required: true}},
		&parity{evaluator.BasePredicate{ID: "even?"}, 0},
		&parity{evaluator.BasePredicate{ID: "odd?"}, 1},
		&plurality{evaluator.BasePredicate{ID: "plural?"}, true},
		&plurality{evaluator.BasePredicate{ID: "singular?"}, false},
		&mainImage{evaluator.BasePredicate{ID: "main-image?"}},
		&debug{evaluator.BasePredicate{ID: "debug?"}},
	}
}

// compileArgs compiles every argument as a variable reference.
func compileArgs(args *evaluator.Arguments) ([]path.Path, error) {
	paths := make([]path.Path, args.Count())
	for i, raw := range args.Args() {
		p, err := path.Compile(raw)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

// operand resolves the i-th compiled argument, or the focus when absent.
func operand(ctx *evaluator.Context, args *evaluator.Arguments, i int) value.Value {
	paths, _ := evaluator.OpaqueAs[[]path.Path](args)
	if i < len(paths) {
		return ctx.Resolve(paths[i])
	}
	return ctx.Node()
}

// unitsMetric is kept for old templates; it always answers true.
type unitsMetric struct{ evaluator.BasePredicate }

func (p *unitsMetric) Apply(ctx *evaluator.Context, args *evaluator.Arguments) (bool, error) {
	return true, nil
}

// equal compares two references, or one reference against the focus.
type equal struct{ evaluator.BasePredicate }

func (p *equal) Validate(args *evaluator.Arguments) error {
	if err := args.Between(1, 2); err != nil {
		return err
	}
	paths, err := compileArgs(args)
	if err != nil {
		return err
	}
	args.SetOpaque(paths)
	return nil
}

func (p *equal) Apply(ctx *evaluator.Context, args *evaluator.Arguments) (bool, error) {
	a := operand(ctx, args, 0)
	b := ctx.Node()
	if args.Count() == 2 {
		b = operand(ctx, args, 1)
	}
	return value.Equal(a, b), nil
}

// parity tests a number (the argument or the focus) for evenness.
type parity struct {
	evaluator.BasePredicate
	remainder int64
}

func (p *parity) Validate(args *evaluator.Arguments) error {
	if err := args.AtMost(1); err != nil {
		return err
	}
	paths, err := compileArgs(args)
	if err != nil {
		return err
	}
	args.SetOpaque(paths)
	return nil
}

func (p *parity) Apply(ctx *evaluator.Context, args *evaluator.Arguments) (bool, error) {
	n, ok := operand(ctx, args, 0).(*value.Number)
	if !ok || !n.IsIntegral() {
		return false, nil
	}
	r := int64(n.Value) % 2
	if r < 0 {
		r = -r
	}
	return r == p.remainder, nil
}

// plurality tests whether the focus count is one (singular) or more.
type plurality struct {
	evaluator.BasePredicate
	plural bool
}

func (p *plurality) Validate(args *evaluator.Arguments) error {
	if err := args.AtMost(1); err != nil {
		return err
	}
	paths, err := compileArgs(args)
	if err != nil {
		return err
	}
	args.SetOpaque(paths)
	return nil
}

func (p *plurality) Apply(ctx *evaluator.Context, args *evaluator.Arguments) (bool, error) {
	node := operand(ctx, args, 0)
	count := value.Float(node)
	if _, ok := node.(*value.Array); ok {
		count = float64(value.Size(node))
	}
	if p.plural {
		return count > 1, nil
	}
	return count == 1, nil
}

// mainImage is true when the focus has a main image.
type mainImage struct{ evaluator.BasePredicate }

func (p *mainImage) Apply(ctx *evaluator.Context, args *evaluator.Arguments) (bool, error) {
	node := ctx.Node()
	if _, ok := value.Member(node, "mainImage").(*value.Object); ok {
		return true, nil
	}
	return value.Truthy(value.Member(node, "mainImageId")), nil
}

// debug is true when a truthy "debug" is in scope.
type debug struct{ evaluator.BasePredicate }

func (p *debug) Apply(ctx *evaluator.Context, args *evaluator.Arguments) (bool, error) {
	return value.Truthy(ctx.ResolveString("debug")), nil
}
