// Package evaluator executes compiled instruction trees against a data tree.
//
// A Context owns everything a single render mutates: the frame stack, the
// active output buffer and the private sub-render depth. Compiled artifacts
// (paths, instructions, bound plugin arguments) are immutable and may be
// shared by any number of concurrent renders, each with its own Context.
package evaluator

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/value"
)

// DefaultMaxDepth bounds private sub-render nesting when no limit is configured.
const DefaultMaxDepth = 64

// Logger interface for the log formatter and render tracing
type Logger interface {
	Log(values ...any)
	LogLine(values ...any)
}

// defaultStderrLogger writes to stderr so log output never mixes with rendered text
type defaultStderrLogger struct{}

func (l *defaultStderrLogger) Log(values ...any) {
	for i, v := range values {
		if i > 0 {
			fmt.Fprint(os.Stderr, " ")
		}
		fmt.Fprint(os.Stderr, v)
	}
}

func (l *defaultStderrLogger) LogLine(values ...any) {
	l.Log(values...)
	fmt.Fprintln(os.Stderr)
}

// DefaultLogger is the default stderr logger
var DefaultLogger Logger = &defaultStderrLogger{}

// Frame is one level of the context stack.
type Frame struct {
	Node value.Value
	// StopResolution caps outward search for a first path segment at this frame.
	StopResolution bool
	// Index is the 1-based position of Node in the repeated section that
	// pushed it, or 0.
	Index int
}

// IndexVariable resolves to the Index of the innermost repeated frame.
const IndexVariable = "@index"

// Context is the execution state of one render. It is never shared between
// goroutines.
type Context struct {
	frames []Frame
	buf    *strings.Builder
	depth  int

	MaxDepth int                    // Private sub-render limit (0 means DefaultMaxDepth)
	Logger   Logger                 // Output of the log formatter
	Locale   string                 // BCP 47 tag used by locale-aware formatters
	Location *time.Location         // Time zone used by date formatters (nil means UTC)
	Partials map[string]Instruction // Named sub-templates, read only
	Now      func() time.Time       // Clock used by relative-time formatters
}

// NewContext creates a Context whose root frame focuses on root.
func NewContext(root value.Value) *Context {
	if root == nil {
		root = value.MISSING
	}
	return &Context{
		frames:   []Frame{{Node: root}},
		buf:      &strings.Builder{},
		MaxDepth: DefaultMaxDepth,
		Logger:   DefaultLogger,
		Now:      time.Now,
	}
}

// Root returns the node of the root frame.
func (c *Context) Root() value.Value {
	return c.frames[0].Node
}

// Node returns the node in focus on the top frame.
func (c *Context) Node() value.Value {
	return c.frames[len(c.frames)-1].Node
}

// Frame returns the top frame.
func (c *Context) Frame() Frame {
	return c.frames[len(c.frames)-1]
}

// FrameCount returns the number of frames on the stack, root included.
func (c *Context) FrameCount() int {
	return len(c.frames)
}

// Frames returns a copy of the stack, root first.
func (c *Context) Frames() []Frame {
	frames := make([]Frame, len(c.frames))
	copy(frames, c.frames)
	return frames
}

// Push makes node the new focus.
func (c *Context) Push(node value.Value) {
	if node == nil {
		node = value.MISSING
	}
	c.frames = append(c.frames, Frame{Node: node})
}

// PushIndexed pushes node as the index-th (1-based) element of a repeated
// section.
func (c *Context) PushIndexed(node value.Value, index int) {
	c.Push(node)
	c.frames[len(c.frames)-1].Index = index
}

// Pop discards the top frame. Popping the root frame is a programming error
// and panics.
func (c *Context) Pop() {
	if len(c.frames) <= 1 {
		panic("evaluator: pop of root frame")
	}
	c.frames[len(c.frames)-1] = Frame{}
	c.frames = c.frames[:len(c.frames)-1]
}

// SetStopResolution sets the resolution boundary flag of the top frame.
func (c *Context) SetStopResolution(stop bool) {
	c.frames[len(c.frames)-1].StopResolution = stop
}

// Buffer returns the active output buffer.
func (c *Context) Buffer() *strings.Builder {
	return c.buf
}

// SwapBuffer installs buf as the active output buffer and returns the
// previous one.
func (c *Context) SwapBuffer(buf *strings.Builder) *strings.Builder {
	old := c.buf
	c.buf = buf
	return old
}

// Write appends text to the active buffer.
func (c *Context) Write(text string) {
	c.buf.WriteString(text)
}

// BuildValue wraps rendered text into a string node.
func (c *Context) BuildValue(text string) value.Value {
	return value.NewString(text)
}

// Depth returns the current private sub-render nesting.
func (c *Context) Depth() int {
	return c.depth
}

// Log writes a line to the context logger, if any.
func (c *Context) Log(values ...any) {
	if c.Logger != nil {
		c.Logger.LogLine(values...)
	}
}

// Time returns the context clock reading.
func (c *Context) Time() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Zone returns the render time zone.
func (c *Context) Zone() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Partial returns the named sub-template.
func (c *Context) Partial(name string) (Instruction, bool) {
	inst, ok := c.Partials[name]
	return inst, ok
}

// Resolve walks p from the node in focus. The first segment may fall
// through to enclosing frames up to (and including) the nearest frame with
// StopResolution set; later segments only descend from the first hit. A
// nil path resolves to the focus itself. Misses never fail: they yield
// Missing.
func (c *Context) Resolve(p path.Path) value.Value {
	if p == nil {
		return c.Node()
	}

	if p[0] == path.Name(IndexVariable) && len(p) == 1 {
		return c.loopIndex()
	}

	first, ok := c.key(p[0])
	if !ok {
		return value.MISSING
	}

	node := value.Value(value.MISSING)
	for i := len(c.frames) - 1; i >= 0; i-- {
		node = step(c.frames[i].Node, first)
		if !value.IsMissing(node) || c.frames[i].StopResolution {
			break
		}
	}

	for _, seg := range p[1:] {
		if value.IsMissing(node) {
			return value.MISSING
		}
		key, ok := c.key(seg)
		if !ok {
			return value.MISSING
		}
		node = step(node, key)
	}
	return node
}

func (c *Context) loopIndex() value.Value {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Index > 0 {
			return value.NewInt(int64(c.frames[i].Index))
		}
		if c.frames[i].StopResolution {
			break
		}
	}
	return value.MISSING
}

// ResolveString compiles raw through the shared path cache and resolves it.
// Malformed references resolve to Missing.
func (c *Context) ResolveString(raw string) value.Value {
	p, err := path.Shared.Compile(raw)
	if err != nil {
		return value.MISSING
	}
	return c.Resolve(p)
}

// key reduces a segment to a Name or Index, resolving bracketed sub-paths
// against the current context.
func (c *Context) key(seg path.Segment) (path.Segment, bool) {
	expr, ok := seg.(path.Expr)
	if !ok {
		return seg, true
	}
	switch k := c.Resolve(path.Path(expr)).(type) {
	case *value.Number:
		if k.IsIntegral() && k.Value >= 0 && k.Value <= math.MaxInt32 {
			return path.Index(int(k.Value)), true
		}
		return path.Name(k.Inspect()), true
	case *value.String:
		// "007" and "+1" stay names
		if n, ok := path.ParseIndex(k.Value); ok {
			return path.Index(n), true
		}
		return path.Name(k.Value), true
	}
	return nil, false
}

func step(node value.Value, seg path.Segment) value.Value {
	switch s := seg.(type) {
	case path.Name:
		return value.Member(node, string(s))
	case path.Index:
		return value.Element(node, int(s))
	}
	return value.MISSING
}
