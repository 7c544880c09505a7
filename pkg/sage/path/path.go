// Package path compiles variable references such as "item.images[0][key]"
// into the segment sequences the evaluator walks against a data tree.
//
// Grammar:
//
//	@              the current node (compiles to a nil Path)
//	a.b.c          named members, split on '.' outside brackets
//	a.0 / a[0]     canonical non-negative integers become array indices;
//	               "007" stays a member name
//	a[b.c]         non-numeric bracket contents compile to a nested path
//	               whose value becomes the key at resolution time
package path

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// CurrentNode is the reference to the node in focus.
const CurrentNode = "@"

var (
	// ErrEmpty is returned for references that contain no parts, such as "" or "..".
	ErrEmpty = errors.New("path: reference has no parts")
	// ErrUnbalanced is returned when '[' and ']' do not pair up.
	ErrUnbalanced = errors.New("path: unbalanced brackets")
)

// Segment is one step of a compiled Path: a Name, an Index or an Expr.
type Segment interface {
	segment()
	String() string
}

// Name selects an object member.
type Name string

// Index selects an array element, or an object member keyed by its decimal form.
type Index int

// Expr is a bracketed sub-path; its resolved value is used as the key.
type Expr Path

func (Name) segment()  {}
func (Index) segment() {}
func (Expr) segment()  {}

func (n Name) String() string  { return string(n) }
func (i Index) String() string { return strconv.Itoa(int(i)) }
func (e Expr) String() string  { return Path(e).String() }

// Path is an ordered sequence of segments. The nil Path refers to the
// current node and is only produced by compiling "@".
type Path []Segment

// String renders the path back into reference syntax.
func (p Path) String() string {
	if p == nil {
		return CurrentNode
	}
	var sb strings.Builder
	for i, seg := range p {
		switch s := seg.(type) {
		case Name:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(string(s))
		case Index:
			sb.WriteByte('[')
			sb.WriteString(s.String())
			sb.WriteByte(']')
		case Expr:
			sb.WriteByte('[')
			sb.WriteString(s.String())
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// Describe lists the segments of p as "kind value" lines, nested
// expressions indented below their bracket.
func Describe(p Path) []string {
	var lines []string
	var walk func(p Path, indent string)
	walk = func(p Path, indent string) {
		for _, seg := range p {
			switch s := seg.(type) {
			case Name:
				lines = append(lines, indent+"name  "+string(s))
			case Index:
				lines = append(lines, indent+"index "+s.String())
			case Expr:
				lines = append(lines, indent+"expr  ["+s.String()+"]")
				walk(Path(s), indent+"  ")
			}
		}
	}
	if p == nil {
		return []string{"current " + CurrentNode}
	}
	walk(p, "")
	return lines
}

// Compile splits a variable reference into its segments.
func Compile(raw string) (Path, error) {
	if raw == CurrentNode {
		return nil, nil
	}
	n, err := scan(raw, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmpty
	}

	p := make(Path, 0, n)
	var segErr error
	scan(raw, func(text string, bracketed bool) {
		if segErr != nil {
			return
		}
		if !bracketed {
			p = append(p, plainSegment(text))
			return
		}
		seg, err := bracketSegment(text)
		if err != nil {
			segErr = err
			return
		}
		p = append(p, seg)
	})
	if segErr != nil {
		return nil, segErr
	}
	return p, nil
}

// MustCompile is like Compile but panics on error. Used for references
// that are fixed at build time.
func MustCompile(raw string) Path {
	p, err := Compile(raw)
	if err != nil {
		panic(err.Error() + ": " + strconv.Quote(raw))
	}
	return p
}

// CountParts returns the number of parts in a reference. Dot separated
// words and bracketed expressions each count as one part, so
// "my.variable[with][brackets]" has four. It always agrees with
// len(Compile(raw)) for well-formed input.
func CountParts(raw string) int {
	if raw == CurrentNode {
		return 0
	}
	n, _ := scan(raw, nil)
	return n
}

// scan walks raw once, reporting each part to emit (when non-nil) and
// returning the number of parts.
func scan(raw string, emit func(text string, bracketed bool)) (int, error) {
	count, start, depth := 0, 0, 0
	part := func(end int, bracketed bool) {
		if start < end {
			count++
			if emit != nil {
				emit(raw[start:end], bracketed)
			}
		}
	}
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '.':
			if depth == 0 {
				part(i, false)
				start = i + 1
			}
		case '[':
			if depth == 0 {
				part(i, false)
				start = i + 1
			}
			depth++
		case ']':
			depth--
			if depth < 0 {
				return count, ErrUnbalanced
			}
			if depth == 0 {
				part(i, true)
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return count, ErrUnbalanced
	}
	part(len(raw), false)
	return count, nil
}

func plainSegment(text string) Segment {
	if n, ok := ParseIndex(text); ok {
		return Index(n)
	}
	return Name(text)
}

func bracketSegment(text string) (Segment, error) {
	if allDigits(text) {
		if n, ok := ParseIndex(text); ok {
			return Index(n), nil
		}
		return Name(text), nil
	}
	nested, err := Compile(text)
	if err != nil {
		return nil, err
	}
	return Expr(nested), nil
}

// ParseIndex reports whether s is the canonical decimal form of an index:
// digits only, no sign, no leading zero, and at most math.MaxInt32. Any
// other text names a member.
func ParseIndex(s string) (int, bool) {
	if s == "" || !allDigits(s) || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > math.MaxInt32 {
		return 0, false
	}
	return n, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
