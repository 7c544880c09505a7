package evaluator

import (
	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/value"
)

// Block executes its instructions in order, stopping at the first error.
type Block []Instruction

func (b Block) Invoke(ctx *Context) error {
	for _, inst := range b {
		if err := ctx.Execute(inst); err != nil {
			return err
		}
	}
	return nil
}

// Text writes literal text.
type Text string

func (t Text) Invoke(ctx *Context) error {
	ctx.Write(string(t))
	return nil
}

// Variable resolves a path, pipes the node through its formatters and
// writes the result. Null and Missing write nothing.
type Variable struct {
	Raw        string
	Path       path.Path
	Formatters []*FormatterCall
}

// NewVariable compiles raw into a Variable instruction.
func NewVariable(raw string, formatters ...*FormatterCall) (*Variable, error) {
	p, err := path.Compile(raw)
	if err != nil {
		return nil, err
	}
	return &Variable{Raw: raw, Path: p, Formatters: formatters}, nil
}

func (v *Variable) Invoke(ctx *Context) error {
	node, err := v.Eval(ctx)
	if err != nil {
		return err
	}
	ctx.Write(value.EatNull(node))
	return nil
}

// Eval resolves the variable and applies its formatters without writing.
func (v *Variable) Eval(ctx *Context) (value.Value, error) {
	node := ctx.Resolve(v.Path)
	for _, f := range v.Formatters {
		var err error
		if node, err = f.Apply(ctx, node); err != nil {
			return value.MISSING, err
		}
	}
	return node, nil
}

// Section pushes the resolved node and runs Consequent when it is truthy,
// Alternative otherwise.
type Section struct {
	Raw         string
	Path        path.Path
	Consequent  Instruction
	Alternative Instruction
}

func (s *Section) Invoke(ctx *Context) error {
	node := ctx.Resolve(s.Path)
	ctx.Push(node)
	defer ctx.Pop()
	if value.Truthy(node) {
		return ctx.Execute(s.Consequent)
	}
	return ctx.Execute(s.Alternative)
}

// Repeated runs Body once per element of the resolved array, with Between
// written between iterations. Alternative runs when there is nothing to
// repeat.
type Repeated struct {
	Raw         string
	Path        path.Path
	Body        Instruction
	Between     Instruction
	Alternative Instruction
}

func (r *Repeated) Invoke(ctx *Context) error {
	node := ctx.Resolve(r.Path)
	arr, ok := node.(*value.Array)
	if !ok || len(arr.Elements) == 0 {
		return ctx.Execute(r.Alternative)
	}

	ctx.Push(arr)
	defer ctx.Pop()
	for i, elem := range arr.Elements {
		if i > 0 {
			if err := ctx.Execute(r.Between); err != nil {
				return err
			}
		}
		if err := r.iterate(ctx, elem, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repeated) iterate(ctx *Context, elem value.Value, index int) error {
	ctx.PushIndexed(elem, index)
	defer ctx.Pop()
	return ctx.Execute(r.Body)
}

// PredicateBlock branches on a predicate call.
type PredicateBlock struct {
	Call        *PredicateCall
	Consequent  Instruction
	Alternative Instruction
}

func (p *PredicateBlock) Invoke(ctx *Context) error {
	ok, err := p.Call.Apply(ctx)
	if err != nil {
		return err
	}
	if ok {
		return ctx.Execute(p.Consequent)
	}
	return ctx.Execute(p.Alternative)
}

// Operator joins the tests of an If.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
)

// If branches on the truthiness of one or more variables.
type If struct {
	Paths       []path.Path
	Op          Operator
	Consequent  Instruction
	Alternative Instruction
}

func (f *If) Invoke(ctx *Context) error {
	if f.test(ctx) {
		return ctx.Execute(f.Consequent)
	}
	return ctx.Execute(f.Alternative)
}

func (f *If) test(ctx *Context) bool {
	for _, p := range f.Paths {
		truthy := value.Truthy(ctx.Resolve(p))
		if f.Op == OpOr && truthy {
			return true
		}
		if f.Op == OpAnd && !truthy {
			return false
		}
	}
	return f.Op == OpAnd && len(f.Paths) > 0
}
