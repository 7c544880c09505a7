// Package repl is an interactive explorer for a data tree: it keeps a live
// context stack that variable references, formatter pipes and predicate
// calls are evaluated against.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/sambeau/sage/pkg/sage/data"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/tree"
	"github.com/sambeau/sage/pkg/sage/value"
)

const PROMPT = ">> "
const PROMPT_RAW = ":> "

const LOGO = `
█▀ ▄▀█ █▀▀ █▀▀
▄█ █▀█ █▄█ ██▄ `

var commandWords = []string{
	":help", ":load", ":push", ":pop", ":stack", ":stop", ":reset",
	":paths", ":render", ":plugins", ":raw",
}

// Session holds the state of one exploration: the plugin library, the
// loaded data and the context stack built on it.
type Session struct {
	lib  *evaluator.Library
	ctx  *evaluator.Context
	out  io.Writer
	raw  bool
	root value.Value

	// Configure is applied to every new context, so the session renders
	// with the same settings as the engine.
	Configure func(ctx *evaluator.Context)
}

// NewSession starts a session on root.
func NewSession(lib *evaluator.Library, root value.Value, out io.Writer) *Session {
	s := &Session{lib: lib, out: out}
	s.reset(root)
	return s
}

func (s *Session) reset(root value.Value) {
	if root == nil {
		root = value.MISSING
	}
	s.root = root
	s.ctx = evaluator.NewContext(root)
	if s.Configure != nil {
		s.Configure(s.ctx)
	}
}

// Context returns the live context.
func (s *Session) Context() *evaluator.Context {
	return s.ctx
}

// Raw reports whether results print as rendered text rather than JSON.
func (s *Session) Raw() bool {
	return s.raw
}

// Handle evaluates one input line and reports whether the session should
// end.
func (s *Session) Handle(input string) bool {
	trimmed := strings.TrimSpace(input)
	switch {
	case trimmed == "":
		return false
	case trimmed == "exit" || trimmed == "quit":
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	case strings.HasPrefix(trimmed, ":"):
		s.command(trimmed)
	case isPredicateCall(trimmed):
		s.predicate(trimmed)
	default:
		s.expression(trimmed)
	}
	return false
}

func isPredicateCall(input string) bool {
	word, _, _ := strings.Cut(input, " ")
	return strings.HasSuffix(word, "?") && !strings.Contains(word, "|")
}

// expression evaluates a variable reference with optional formatter pipes.
func (s *Session) expression(input string) {
	v, err := tree.ParseVariable(input, s.lib)
	if err != nil {
		s.printError(err)
		return
	}
	result, err := v.Eval(s.ctx)
	if err != nil {
		s.printError(err)
		return
	}
	s.printValue(result)
}

func (s *Session) predicate(input string) {
	pc, err := tree.ParsePredicate(input, s.lib)
	if err != nil {
		s.printError(err)
		return
	}
	ok, err := pc.Apply(s.ctx)
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, ok)
}

// command handles REPL meta-commands that start with ':'
func (s *Session) command(input string) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ":help", ":h", ":?":
		s.help()

	case ":load":
		if arg == "" {
			fmt.Fprintln(s.out, "usage: :load <file>")
			return
		}
		root, err := data.Load(arg)
		if err != nil {
			s.printError(err)
			return
		}
		s.reset(root)
		fmt.Fprintf(s.out, "Loaded %s (%s)\n", arg, strings.ToLower(string(root.Type())))

	case ":push":
		s.push(arg)

	case ":pop":
		if s.ctx.FrameCount() <= 1 {
			fmt.Fprintln(s.out, "Already at the root frame")
			return
		}
		s.ctx.Pop()
		s.printStack()

	case ":stack":
		s.printStack()

	case ":stop":
		stop := !s.ctx.Frame().StopResolution
		s.ctx.SetStopResolution(stop)
		if stop {
			fmt.Fprintln(s.out, "Lookups stop at the top frame")
		} else {
			fmt.Fprintln(s.out, "Lookups search outward")
		}

	case ":reset":
		s.reset(s.root)
		fmt.Fprintln(s.out, "Stack cleared")

	case ":paths":
		s.paths(arg)

	case ":render":
		s.render(arg)

	case ":plugins":
		fmt.Fprintln(s.out, "Formatters:", strings.Join(s.lib.Formatters.Identifiers(), " "))
		fmt.Fprintln(s.out, "Predicates:", strings.Join(s.lib.Predicates.Identifiers(), " "))

	case ":raw":
		s.raw = !s.raw
		if s.raw {
			fmt.Fprintln(s.out, "Raw output mode ON (rendered text)")
		} else {
			fmt.Fprintln(s.out, "Raw output mode OFF (JSON)")
		}

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

func (s *Session) help() {
	fmt.Fprintln(s.out, "REPL Commands:")
	fmt.Fprintln(s.out, "  <path>[|fmt args...]  Resolve a reference and pipe it through formatters")
	fmt.Fprintln(s.out, "  <predicate?> args     Evaluate a predicate")
	fmt.Fprintln(s.out, "  :load <file>          Load data (.json, .yaml, .toml, .cbor)")
	fmt.Fprintln(s.out, "  :push <path> [n]      Push a node (or its n-th element) onto the stack")
	fmt.Fprintln(s.out, "  :pop                  Pop the top frame")
	fmt.Fprintln(s.out, "  :stack                Show the context stack")
	fmt.Fprintln(s.out, "  :stop                 Toggle the lookup boundary on the top frame")
	fmt.Fprintln(s.out, "  :reset                Clear the stack back to the root")
	fmt.Fprintln(s.out, "  :paths <path>         Show how a reference compiles")
	fmt.Fprintln(s.out, "  :render <file>        Render a template against the focus")
	fmt.Fprintln(s.out, "  :plugins              List formatters and predicates")
	fmt.Fprintln(s.out, "  :raw                  Toggle raw output mode")
	fmt.Fprintln(s.out, "  exit, quit            Exit the REPL")
}

func (s *Session) push(arg string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 || len(fields) > 2 {
		fmt.Fprintln(s.out, "usage: :push <path> [n]")
		return
	}
	p, err := path.Compile(fields[0])
	if err != nil {
		s.printError(serrors.New("FORMAT-0001", map[string]any{"Path": fields[0], "Reason": err.Error()}))
		return
	}
	node := s.ctx.Resolve(p)
	if len(fields) == 1 {
		s.ctx.Push(node)
		s.printStack()
		return
	}

	if _, ok := node.(*value.Array); !ok {
		fmt.Fprintf(s.out, "%s is not an array\n", fields[0])
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > value.Size(node) {
		fmt.Fprintf(s.out, "No element %s in %s (size %d)\n", fields[1], fields[0], value.Size(node))
		return
	}
	s.ctx.PushIndexed(value.Element(node, n-1), n)
	s.printStack()
}

func (s *Session) paths(arg string) {
	if arg == "" {
		fmt.Fprintln(s.out, "usage: :paths <path>")
		return
	}
	p, err := path.Compile(arg)
	if err != nil {
		s.printError(serrors.New("FORMAT-0001", map[string]any{"Path": arg, "Reason": err.Error()}))
		return
	}
	fmt.Fprintf(s.out, "%s (%d parts)\n", p.String(), path.CountParts(arg))
	for _, line := range path.Describe(p) {
		fmt.Fprintln(s.out, "  "+line)
	}
}

func (s *Session) render(arg string) {
	if arg == "" {
		fmt.Fprintln(s.out, "usage: :render <file>")
		return
	}
	tmpl, err := tree.DecodeFile(arg, s.lib)
	if err != nil {
		s.printError(err)
		return
	}
	saved := s.ctx.Partials
	s.ctx.Partials = tmpl.Partials
	defer func() { s.ctx.Partials = saved }()

	if tmpl.Body == nil {
		return
	}
	out, err := s.ctx.ExecuteTemplate(tmpl.Body, s.ctx.Node(), false)
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, value.Text(out))
}

// printStack lists the frames from the root up, marking the focus.
func (s *Session) printStack() {
	frames := s.ctx.Frames()
	for i, f := range frames {
		marker := "  "
		if i == len(frames)-1 {
			marker = "> "
		}
		var flags []string
		if f.Index > 0 {
			flags = append(flags, "@index="+strconv.Itoa(f.Index))
		}
		if f.StopResolution {
			flags = append(flags, "stop")
		}
		line := fmt.Sprintf("%s%d: %s %s", marker, i, strings.ToLower(string(f.Node.Type())), summary(f.Node))
		if len(flags) > 0 {
			line += " (" + strings.Join(flags, ", ") + ")"
		}
		fmt.Fprintln(s.out, strings.TrimRight(line, " "))
	}
}

// summary truncates long single-line values
func summary(v value.Value) string {
	text := value.JSON(v)
	if value.IsMissing(v) {
		return ""
	}
	if len(text) > 60 {
		text = text[:57] + "..."
	}
	return text
}

func (s *Session) printValue(v value.Value) {
	if s.raw {
		text := value.EatNull(v)
		if text != "" {
			io.WriteString(s.out, text)
			if !strings.HasSuffix(text, "\n") {
				io.WriteString(s.out, "\n")
			}
		}
		return
	}
	if value.IsMissing(v) {
		fmt.Fprintln(s.out, "(missing)")
		return
	}
	fmt.Fprintln(s.out, value.PrettyJSON(v))
}

func (s *Session) printError(err error) {
	var se *serrors.SageError
	if errors.As(err, &se) {
		io.WriteString(s.out, se.PrettyString())
		io.WriteString(s.out, "\n")
		return
	}
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

// Completions returns completion suggestions based on current input
func (s *Session) Completions(line string) []string {
	// Don't complete if line is empty or ends with whitespace
	if strings.TrimSpace(line) == "" || strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
		return nil
	}

	// Complete the last word (or pipe stage) being typed
	prefix := line
	if i := strings.LastIndexAny(line, " |"); i >= 0 {
		prefix = line[i+1:]
	}
	head := line[:len(line)-len(prefix)]

	var words []string
	switch {
	case strings.HasPrefix(prefix, ":"):
		words = commandWords
	case strings.HasSuffix(strings.TrimSpace(head), "|"):
		words = s.lib.Formatters.Identifiers()
	case head == "":
		words = append(s.focusKeys(), s.lib.Predicates.Identifiers()...)
	default:
		words = s.focusKeys()
	}

	var matches []string
	for _, word := range words {
		if strings.HasPrefix(word, prefix) {
			matches = append(matches, head+word)
		}
	}
	return matches
}

// focusKeys lists member names visible from the top frame.
func (s *Session) focusKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, f := range s.ctx.Frames() {
		if obj, ok := f.Node.(*value.Object); ok {
			for _, k := range obj.Keys() {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Run reads lines from in until EOF or exit, without line editing. It serves
// piped input and scripts.
func Run(in io.Reader, s *Session) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if s.Handle(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// Start starts the REPL with line editing, history, and tab completion
func Start(out io.Writer, version string, s *Session) {
	line := liner.NewLiner()
	defer line.Close()

	// Enable Ctrl+C to abort current line
	line.SetCtrlCAborts(true)
	line.SetCompleter(s.Completions)

	// Load command history from file
	historyFile := filepath.Join(os.TempDir(), ".sage_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	// Save history on exit
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "%s", LOGO)
	fmt.Fprintln(out, "v", version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "Use Tab for completion, ↑↓ for history")
	fmt.Fprintln(out, "Type ':help' for REPL commands")
	fmt.Fprintln(out, "")

	for {
		prompt := PROMPT
		if s.raw {
			prompt = PROMPT_RAW
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Fprintln(out, "^C")
				continue
			}
			if err == io.EOF {
				// Ctrl+D - exit
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if s.Handle(input) {
			return
		}
	}
}
