package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/sambeau/sage/config"
	"github.com/sambeau/sage/pkg/sage/data"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/path"
	"github.com/sambeau/sage/pkg/sage/repl"
	"github.com/sambeau/sage/pkg/sage/sage"
	"github.com/sambeau/sage/pkg/sage/tree"
	"github.com/sambeau/sage/pkg/sage/value"
)

// session holds what the evaluating commands share: the resolved config,
// an engine built from it and the loaded data.
type session struct {
	cfg    *config.Config
	engine *sage.Engine
	root   value.Value
	logger sage.Logger
	close  func() error
}

func openSession(ctx context.Context, opts *options, stdout, stderr io.Writer, getenv func(string) string) (*session, error) {
	cfg, _, err := opts.load(getenv)
	if err != nil {
		return nil, err
	}
	logger, closeFn, err := pluginLogger(cfg.Logging, stdout, stderr)
	if err != nil {
		return nil, err
	}
	engine, err := newEngine(cfg, logger)
	if err != nil {
		closeFn()
		return nil, err
	}
	root, err := loadData(ctx, cfg, opts.inlineJSON)
	if err != nil {
		closeFn()
		return nil, err
	}
	return &session{cfg: cfg, engine: engine, root: root, logger: logger, close: closeFn}, nil
}

func (s *session) Close() {
	s.close()
	data.Close()
}

// context returns a fresh evaluation context on the loaded data.
func (s *session) context() *evaluator.Context {
	ctx := evaluator.NewContext(s.root)
	configureContext(s.cfg, s.logger)(ctx)
	return ctx
}

// resolveCommand prints the JSON value of each reference.
func resolveCommand(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("resolve", flag.ContinueOnError)
	flags.SetOutput(stderr)
	opts := addCommonFlags(flags)
	pretty := flags.Bool("pretty", false, "Indent JSON output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("resolve: no references given")
	}

	s, err := openSession(ctx, opts, stdout, stderr, getenv)
	if err != nil {
		return err
	}
	defer s.Close()

	ec := s.context()
	for _, raw := range flags.Args() {
		p, err := compileRef(raw)
		if err != nil {
			return err
		}
		v := ec.Resolve(p)
		switch {
		case value.IsMissing(v):
			fmt.Fprintf(stdout, "%s: (missing)\n", raw)
		case *pretty:
			fmt.Fprintf(stdout, "%s: %s\n", raw, value.PrettyJSON(v))
		default:
			fmt.Fprintf(stdout, "%s: %s\n", raw, value.JSON(v))
		}
	}
	return nil
}

func compileRef(raw string) (path.Path, error) {
	p, err := path.Compile(raw)
	if err != nil {
		return nil, serrors.New("FORMAT-0001", map[string]any{"Path": raw, "Reason": err.Error()})
	}
	return p, nil
}

// pathsCommand shows how references compile. With -template it lists the
// references a template depends on instead.
func pathsCommand(args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("paths", flag.ContinueOnError)
	flags.SetOutput(stderr)
	tmplFile := flags.String("template", "", "List the references used by a template")
	if err := flags.Parse(args); err != nil {
		return err
	}

	refs := flags.Args()
	if *tmplFile != "" {
		engine, err := sage.New()
		if err != nil {
			return err
		}
		tmpl, err := engine.CompileFile(*tmplFile)
		if err != nil {
			return err
		}
		refs = append(tmpl.Dependencies(), refs...)
		if partials := tmpl.Partials(); len(partials) > 0 {
			fmt.Fprintf(stdout, "partials: %s\n", strings.Join(partials, ", "))
		}
	}
	if len(refs) == 0 {
		return errors.New("paths: no references given")
	}

	for _, raw := range refs {
		p, err := compileRef(raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s (%d parts)\n", raw, path.CountParts(raw))
		for _, line := range path.Describe(p) {
			fmt.Fprintf(stdout, "  %s\n", line)
		}
	}
	return nil
}

// formatCommand evaluates one pipe expression or predicate call against the
// data and prints the result as template text.
func formatCommand(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("format", flag.ContinueOnError)
	flags.SetOutput(stderr)
	opts := addCommonFlags(flags)
	at := flags.String("at", "", "Evaluate with this reference as the focus")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("format: no expression given")
	}
	expr := strings.Join(flags.Args(), " ")

	s, err := openSession(ctx, opts, stdout, stderr, getenv)
	if err != nil {
		return err
	}
	defer s.Close()

	ec := s.context()
	if *at != "" {
		p, err := compileRef(*at)
		if err != nil {
			return err
		}
		ec.Push(ec.Resolve(p))
	}

	lib := s.engine.Library()
	word, _, _ := strings.Cut(expr, " ")
	if strings.HasSuffix(word, "?") && !strings.Contains(word, "|") {
		pc, err := tree.ParsePredicate(expr, lib)
		if err != nil {
			return err
		}
		ok, err := pc.Apply(ec)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, ok)
		return nil
	}

	v, err := tree.ParseVariable(expr, lib)
	if err != nil {
		return err
	}
	result, err := v.Eval(ec)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, value.EatNull(result))
	return nil
}

// replCommand explores the data interactively. Piped input runs without
// line editing.
func replCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("repl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	opts := addCommonFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}

	s, err := openSession(ctx, opts, stdout, stderr, getenv)
	if err != nil {
		return err
	}
	defer s.Close()

	rs := repl.NewSession(s.engine.Library(), s.root, stdout)
	rs.Configure = configureContext(s.cfg, s.logger)
	rs.Configure(rs.Context())

	if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		repl.Start(stdout, Version, rs)
		return nil
	}
	return repl.Run(stdin, rs)
}
