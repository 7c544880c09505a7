package plugins

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkParser "github.com/yuin/goldmark/parser"
	"golang.org/x/net/html"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/value"
)

func utilityFormatters() []evaluator.Formatter {
	return []evaluator.Formatter{
		&apply{required("apply")},
		&jsonFormatter{base("json")},
		&htmlFormatter{base("html")},
		newMarkdown(),
		&logFormatter{base("log")},
		&truncate{required("truncate")},
		&slug{base("slugify")},
		&urlEncode{base("url-encode")},
		&safe{base("safe")},
		&size{base("size")},
	}
}

// ---------------------------------------------------------------------------
// apply

// applyArgs is the validated form of "apply NAME [private|public]".
type applyArgs struct {
	name    string
	private bool
}

type apply struct{ evaluator.BaseFormatter }

func (f *apply) Validate(args *evaluator.Arguments) error {
	if err := args.Between(1, 2); err != nil {
		return err
	}
	a := applyArgs{name: args.First(), private: true}
	switch args.Get(1) {
	case "", "private":
	case "public":
		a.private = false
	default:
		return serrors.NewArgument(f.ID, "expected 'private' or 'public', found '"+args.Get(1)+"'")
	}
	args.SetOpaque(a)
	return nil
}

// Apply renders a named partial against the node.
func (f *apply) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	a, _ := evaluator.OpaqueAs[applyArgs](args)
	inst, ok := ctx.Partial(a.name)
	if !ok {
		return value.MISSING, serrors.New("UNDEF-0003", map[string]any{"Name": a.name})
	}
	return ctx.ExecuteTemplate(inst, node, a.private)
}

// ---------------------------------------------------------------------------
// json

type jsonFormatter struct{ evaluator.BaseFormatter }

func (f *jsonFormatter) Validate(args *evaluator.Arguments) error {
	if err := args.AtMost(1); err != nil {
		return err
	}
	if args.Count() == 1 && args.First() != "pretty" {
		return serrors.NewArgument(f.ID, "the only option is 'pretty'")
	}
	return nil
}

func (f *jsonFormatter) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	if args.First() == "pretty" {
		return ctx.BuildValue(value.PrettyJSON(node)), nil
	}
	return ctx.BuildValue(value.JSON(node)), nil
}

// ---------------------------------------------------------------------------
// html

type htmlFormatter struct{ evaluator.BaseFormatter }

// Apply escapes the text form of the node for HTML.
func (f *htmlFormatter) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	return ctx.BuildValue(html.EscapeString(value.EatNull(node))), nil
}

// ---------------------------------------------------------------------------
// markdown

type markdown struct {
	evaluator.BaseFormatter
	md goldmark.Markdown
}

func newMarkdown() *markdown {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(goldmarkParser.WithAutoHeadingID()),
	)
	return &markdown{BaseFormatter: base("markdown"), md: md}
}

func (f *markdown) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(value.EatNull(node)), &buf); err != nil {
		return value.MISSING, err
	}
	return ctx.BuildValue(buf.String()), nil
}

// ---------------------------------------------------------------------------
// log

type logFormatter struct{ evaluator.BaseFormatter }

// Apply writes the node to the render logger and passes it through.
func (f *logFormatter) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	label := args.Join()
	if label == "" {
		label = "log:"
	}
	ctx.Log(label, value.JSON(node))
	return node, nil
}

// ---------------------------------------------------------------------------
// truncate

type truncateArgs struct {
	limit    int
	ellipsis string
}

type truncate struct{ evaluator.BaseFormatter }

func (f *truncate) Validate(args *evaluator.Arguments) error {
	if err := args.Between(1, 2); err != nil {
		return err
	}
	n, err := strconv.Atoi(args.First())
	if err != nil || n < 0 {
		return serrors.NewArgument(f.ID, "expected a length, found '"+args.First()+"'")
	}
	ellipsis := "..."
	if args.Count() == 2 {
		ellipsis = args.Get(1)
	}
	args.SetOpaque(truncateArgs{limit: n, ellipsis: ellipsis})
	return nil
}

// Apply cuts the text to at most limit characters, breaking at a word
// boundary when one is available.
func (f *truncate) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	a, _ := evaluator.OpaqueAs[truncateArgs](args)
	text := value.EatNull(node)
	if utf8.RuneCountInString(text) <= a.limit {
		return ctx.BuildValue(text), nil
	}
	cut := string([]rune(text)[:a.limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return ctx.BuildValue(strings.TrimRight(cut, " ") + a.ellipsis), nil
}

// ---------------------------------------------------------------------------
// slugify, url-encode, safe, size

type slug struct{ evaluator.BaseFormatter }

func (f *slug) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	return ctx.BuildValue(slugify(value.EatNull(node))), nil
}

type urlEncode struct{ evaluator.BaseFormatter }

func (f *urlEncode) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	return ctx.BuildValue(url.QueryEscape(value.EatNull(node))), nil
}

// safe strips HTML tags.
type safe struct{ evaluator.BaseFormatter }

func (f *safe) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	return ctx.BuildValue(removeTags(value.EatNull(node))), nil
}

// size counts array elements, object members or characters.
type size struct{ evaluator.BaseFormatter }

func (f *size) Apply(ctx *evaluator.Context, args *evaluator.Arguments, node value.Value) (value.Value, error) {
	if s, ok := node.(*value.String); ok {
		return value.NewInt(int64(utf8.RuneCountInString(s.Value))), nil
	}
	return value.NewInt(int64(value.Size(node))), nil
}
