// Package tree decodes instruction trees written in YAML (or JSON, which is
// a subset) into executable instructions.
//
// A document is either a list of nodes, or a mapping with a "body" list and
// an optional "partials" mapping of named node lists:
//
//	partials:
//	  byline:
//	    - "by "
//	    - var: author.displayName
//	body:
//	  - text: "<h1>"
//	  - var: title|capitalize
//	  - text: "</h1>"
//	  - repeat: items
//	    between: ", "
//	    body:
//	      - var: name
//	    else: "nothing yet"
//
// A bare string is a text node. Each mapping node holds exactly one of
// text, var, section, repeat, predicate, if or apply. Formatter calls are
// written "name args", where the first character after the name is the
// argument delimiter ("truncate 10", "decimal,minFrac:2"). They may be
// piped onto var ("title|truncate 10") or listed under format.
//
// Every formatter and predicate site is bound and validated while decoding,
// so argument errors surface before anything renders.
package tree

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/path"
)

// Template is a decoded document.
type Template struct {
	Body     evaluator.Instruction
	Partials map[string]evaluator.Instruction
}

// Node is one entry of an instruction list.
type Node struct {
	Text      *string    `yaml:"text"`
	Var       string     `yaml:"var"`
	Format    stringList `yaml:"format"`
	Section   string     `yaml:"section"`
	Repeat    string     `yaml:"repeat"`
	Predicate string     `yaml:"predicate"`
	If        stringList `yaml:"if"`
	Op        string     `yaml:"op"`
	Apply     string     `yaml:"apply"`
	Body      nodeList   `yaml:"body"`
	Between   nodeList   `yaml:"between"`
	Else      nodeList   `yaml:"else"`

	Line   int `yaml:"-"`
	Column int `yaml:"-"`
}

// UnmarshalYAML accepts a scalar as shorthand for a text node.
func (n *Node) UnmarshalYAML(node *yaml.Node) error {
	type plain Node
	var p plain
	if node.Kind == yaml.ScalarNode {
		text := node.Value
		p.Text = &text
	} else if err := node.Decode(&p); err != nil {
		return err
	}
	*n = Node(p)
	n.Line, n.Column = node.Line, node.Column
	return nil
}

// nodeList decodes a list, or a single node or string, as a list.
type nodeList []Node

func (l *nodeList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var nodes []Node
		if err := node.Decode(&nodes); err != nil {
			return err
		}
		*l = nodes
		return nil
	}
	var one Node
	if err := node.Decode(&one); err != nil {
		return err
	}
	*l = nodeList{one}
	return nil
}

// stringList accepts a single string or a list of strings.
type stringList []string

func (s *stringList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}
	var slice []string
	if err := unmarshal(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

type document struct {
	Partials map[string]nodeList `yaml:"partials"`
	Body     nodeList            `yaml:"body"`
}

// Decode parses src and binds it against lib.
func Decode(src []byte, lib *evaluator.Library) (*Template, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, serrors.New("FORMAT-0002", map[string]any{"Location": "document", "Reason": err.Error()})
	}

	var doc document
	if len(root.Content) > 0 {
		top := root.Content[0]
		var err error
		if top.Kind == yaml.MappingNode {
			err = top.Decode(&doc)
		} else {
			err = top.Decode(&doc.Body)
		}
		if err != nil {
			return nil, serrors.New("FORMAT-0002", map[string]any{"Location": "document", "Reason": err.Error()})
		}
	}

	b := &builder{lib: lib}
	tmpl := &Template{Partials: make(map[string]evaluator.Instruction, len(doc.Partials))}
	for name, nodes := range doc.Partials {
		inst, err := b.list(nodes)
		if err != nil {
			return nil, err
		}
		tmpl.Partials[name] = inst
	}
	body, err := b.list(doc.Body)
	if err != nil {
		return nil, err
	}
	tmpl.Body = body
	return tmpl, nil
}

// DecodeFile reads and decodes the template at filename.
func DecodeFile(filename string, lib *evaluator.Library) (*Template, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, serrors.New("RES-0001", map[string]any{"Path": filename, "Reason": err.Error()})
	}
	tmpl, err := Decode(src, lib)
	if err != nil {
		var se *serrors.SageError
		if errors.As(err, &se) {
			return nil, se.WithFile(filename)
		}
		return nil, err
	}
	return tmpl, nil
}

type builder struct {
	lib *evaluator.Library
}

func (b *builder) list(nodes []Node) (evaluator.Instruction, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	block := make(evaluator.Block, 0, len(nodes))
	for i := range nodes {
		inst, err := b.node(&nodes[i])
		if err != nil {
			return nil, err
		}
		block = append(block, inst)
	}
	if len(block) == 1 {
		return block[0], nil
	}
	return block, nil
}

// kinds lists the instruction keys set on n.
func (n *Node) kinds() []string {
	var kinds []string
	add := func(set bool, name string) {
		if set {
			kinds = append(kinds, name)
		}
	}
	add(n.Text != nil, "text")
	add(n.Var != "", "var")
	add(n.Section != "", "section")
	add(n.Repeat != "", "repeat")
	add(n.Predicate != "", "predicate")
	add(len(n.If) > 0, "if")
	add(n.Apply != "", "apply")
	return kinds
}

func (b *builder) node(n *Node) (evaluator.Instruction, error) {
	kinds := n.kinds()
	switch len(kinds) {
	case 0:
		return nil, b.invalid(n, "no instruction given")
	case 1:
	default:
		return nil, b.invalid(n, "found "+strings.Join(kinds, " and "))
	}

	switch kinds[0] {
	case "text":
		return evaluator.Text(*n.Text), nil
	case "var":
		return b.variable(n)
	case "apply":
		fc, err := b.formatter("apply " + n.Apply)
		if err != nil {
			return nil, err
		}
		return &evaluator.Variable{Raw: path.CurrentNode, Formatters: []*evaluator.FormatterCall{fc}}, nil
	case "section":
		p, err := b.path(n.Section)
		if err != nil {
			return nil, err
		}
		s := &evaluator.Section{Raw: n.Section, Path: p}
		s.Consequent, s.Alternative, err = b.branches(n)
		return s, err
	case "repeat":
		p, err := b.path(n.Repeat)
		if err != nil {
			return nil, err
		}
		r := &evaluator.Repeated{Raw: n.Repeat, Path: p}
		if r.Body, r.Alternative, err = b.branches(n); err != nil {
			return nil, err
		}
		r.Between, err = b.list(n.Between)
		return r, err
	case "predicate":
		id, rest := splitCall(n.Predicate)
		pc, err := b.lib.BindPredicate(id, evaluator.ParseArguments(rest))
		if err != nil {
			return nil, err
		}
		p := &evaluator.PredicateBlock{Call: pc}
		p.Consequent, p.Alternative, err = b.branches(n)
		return p, err
	case "if":
		return b.ifNode(n)
	}
	return nil, b.invalid(n, "unknown instruction "+kinds[0])
}

func (b *builder) branches(n *Node) (body, alt evaluator.Instruction, err error) {
	if body, err = b.list(n.Body); err != nil {
		return nil, nil, err
	}
	if alt, err = b.list(n.Else); err != nil {
		return nil, nil, err
	}
	return body, alt, nil
}

func (b *builder) variable(n *Node) (evaluator.Instruction, error) {
	parts := strings.Split(n.Var, "|")
	raw := strings.TrimSpace(parts[0])
	p, err := b.path(raw)
	if err != nil {
		return nil, err
	}
	v := &evaluator.Variable{Raw: raw, Path: p}
	for _, call := range append(parts[1:], n.Format...) {
		fc, err := b.formatter(call)
		if err != nil {
			return nil, err
		}
		v.Formatters = append(v.Formatters, fc)
	}
	return v, nil
}

func (b *builder) formatter(call string) (*evaluator.FormatterCall, error) {
	id, rest := splitCall(strings.TrimSpace(call))
	return b.lib.BindFormatter(id, evaluator.ParseArguments(rest))
}

func (b *builder) ifNode(n *Node) (evaluator.Instruction, error) {
	f := &evaluator.If{}
	switch strings.ToLower(n.Op) {
	case "", "and", "&&":
		f.Op = evaluator.OpAnd
	case "or", "||":
		f.Op = evaluator.OpOr
	default:
		return nil, b.invalid(n, fmt.Sprintf("unknown operator '%s'", n.Op))
	}
	for _, raw := range n.If {
		p, err := b.path(raw)
		if err != nil {
			return nil, err
		}
		f.Paths = append(f.Paths, p)
	}
	var err error
	f.Consequent, f.Alternative, err = b.branches(n)
	return f, err
}

func (b *builder) path(raw string) (path.Path, error) {
	p, err := path.Compile(raw)
	if err != nil {
		return nil, serrors.New("FORMAT-0001", map[string]any{"Path": raw, "Reason": err.Error()})
	}
	return p, nil
}

func (b *builder) invalid(n *Node, reason string) error {
	return serrors.New("FORMAT-0002", map[string]any{
		"Location": fmt.Sprintf("line %d, column %d", n.Line, n.Column),
		"Reason":   reason,
	})
}

// splitCall separates a plugin identifier from its argument string. The
// identifier is the leading run of letters, digits, '_', '-' and '?'.
func splitCall(call string) (id, rest string) {
	end := 0
	for end < len(call) && isIdentByte(call[end]) {
		end++
	}
	return call[:end], call[end:]
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '?'
}

// Dependencies lists every variable reference in inst, sorted and without
// duplicates. References made by plugins at render time are not included.
func Dependencies(inst evaluator.Instruction) []string {
	seen := map[string]bool{}
	walk(inst, func(raw string) { seen[raw] = true })
	deps := make([]string, 0, len(seen))
	for raw := range seen {
		deps = append(deps, raw)
	}
	sort.Strings(deps)
	return deps
}

// Dependencies lists the references of the body and every partial.
func (t *Template) Dependencies() []string {
	seen := map[string]bool{}
	add := func(raw string) { seen[raw] = true }
	walk(t.Body, add)
	for _, p := range t.Partials {
		walk(p, add)
	}
	deps := make([]string, 0, len(seen))
	for raw := range seen {
		deps = append(deps, raw)
	}
	sort.Strings(deps)
	return deps
}

func walk(inst evaluator.Instruction, visit func(raw string)) {
	ref := func(raw string) {
		if raw != "" && raw != path.CurrentNode {
			visit(raw)
		}
	}
	switch in := inst.(type) {
	case evaluator.Block:
		for _, child := range in {
			walk(child, visit)
		}
	case *evaluator.Variable:
		ref(in.Raw)
	case *evaluator.Section:
		ref(in.Raw)
		walk(in.Consequent, visit)
		walk(in.Alternative, visit)
	case *evaluator.Repeated:
		ref(in.Raw)
		walk(in.Body, visit)
		walk(in.Between, visit)
		walk(in.Alternative, visit)
	case *evaluator.PredicateBlock:
		walk(in.Consequent, visit)
		walk(in.Alternative, visit)
	case *evaluator.If:
		for _, p := range in.Paths {
			ref(p.String())
		}
		walk(in.Consequent, visit)
		walk(in.Alternative, visit)
	}
}

// ParseVariable compiles a pipe expression such as "title|truncate 20|html"
// into a Variable bound against lib.
func ParseVariable(expr string, lib *evaluator.Library) (*evaluator.Variable, error) {
	inst, err := (&builder{lib: lib}).variable(&Node{Var: expr})
	if err != nil {
		return nil, err
	}
	return inst.(*evaluator.Variable), nil
}

// ParsePredicate binds a predicate call such as "equal? a b" against lib.
func ParsePredicate(call string, lib *evaluator.Library) (*evaluator.PredicateCall, error) {
	id, rest := splitCall(strings.TrimSpace(call))
	return lib.BindPredicate(id, evaluator.ParseArguments(rest))
}
