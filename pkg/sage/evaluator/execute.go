package evaluator

import (
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/value"
)

// Instruction is a compiled, immutable unit of a template. Invoke writes
// into the context's active buffer and may re-enter the context through
// plugins to any depth.
type Instruction interface {
	Invoke(ctx *Context) error
}

// Execute runs inst against the context.
func (c *Context) Execute(inst Instruction) error {
	if inst == nil {
		return nil
	}
	return inst.Invoke(c)
}

// ExecuteTemplate renders inst against node into a fresh buffer and returns
// the captured text as a string node. When private is set, lookups inside
// the sub-render cannot see past node. The caller's buffer and frame stack
// are restored on every exit path, including errors and panics, and a
// failing sub-render's partial output is discarded.
func (c *Context) ExecuteTemplate(inst Instruction, node value.Value, private bool) (value.Value, error) {
	limit := c.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	if c.depth >= limit {
		return value.MISSING, serrors.New("EXEC-0003", map[string]any{"Max": limit})
	}

	buf := &strings.Builder{}
	orig := c.SwapBuffer(buf)
	mark := len(c.frames)
	c.depth++
	defer func() {
		c.depth--
		c.SwapBuffer(orig)
		c.unwind(mark)
	}()

	c.Push(node)
	c.SetStopResolution(private)
	if err := c.Execute(inst); err != nil {
		return value.MISSING, err
	}
	return c.BuildValue(buf.String()), nil
}

// unwind pops frames until n remain.
func (c *Context) unwind(n int) {
	for len(c.frames) > n {
		c.Pop()
	}
}
