package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/sambeau/sage/config"
	"github.com/sambeau/sage/pkg/sage/data"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/sage"
	"github.com/sambeau/sage/pkg/sage/value"
	"github.com/sambeau/sage/watch"
)

// renderer renders one template with the settings of one config.
type renderer struct {
	cfg        *config.Config
	configFile string
	inlineJSON string
	template   string
	engine     *sage.Engine
	log        *cliLogger
	stdout     io.Writer
}

func renderCommand(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("render", flag.ContinueOnError)
	flags.SetOutput(stderr)
	opts := addCommonFlags(flags)
	var (
		out      = flags.String("out", "", "Write output to a file")
		compress = flags.String("compress", "", "Output compression: none, gzip or zstd")
		watching = flags.Bool("watch", false, "Re-render on change")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, configFile, err := opts.load(getenv)
	if err != nil {
		return err
	}
	if *out != "" {
		cfg.Output.Path = *out
	}
	if *compress != "" {
		cfg.Output.Compression = *compress
	}
	if flags.NArg() > 0 {
		cfg.Template = flags.Arg(0)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if cfg.Template == "" {
		return errors.New("no template given (pass a file or set template in the config)")
	}

	log, closeLog, err := newCLILogger(cfg.Logging, stdout, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	for _, w := range config.Warnings(cfg) {
		log.Debug("config: %s", w)
	}

	plugLog, closePlug, err := pluginLogger(cfg.Logging, stdout, stderr)
	if err != nil {
		return err
	}
	defer closePlug()

	engine, err := newEngine(cfg, plugLog)
	if err != nil {
		return err
	}
	defer data.Close()

	r := &renderer{
		cfg:        cfg,
		configFile: configFile,
		inlineJSON: opts.inlineJSON,
		template:   cfg.Template,
		engine:     engine,
		log:        log,
		stdout:     stdout,
	}

	renderErr := r.render(ctx)
	if !*watching {
		return renderErr
	}
	if renderErr != nil {
		printError(stderr, renderErr)
	}
	return r.watch(ctx, stdout, stderr)
}

// newEngine builds an engine from the render and plugin settings of cfg.
func newEngine(cfg *config.Config, logger sage.Logger) (*sage.Engine, error) {
	opts := []sage.Option{
		sage.WithMaxDepth(cfg.Render.MaxDepth),
		sage.WithBaseURLKey(cfg.Render.BaseURLKey),
		sage.WithLocale(cfg.Render.Locale),
		sage.WithLocation(cfg.Location()),
	}
	if logger != nil {
		opts = append(opts, sage.WithLogger(logger))
	}
	if len(cfg.Plugins.Disabled) > 0 {
		opts = append(opts, sage.WithDisabled(cfg.Plugins.Disabled...))
	}
	return sage.New(opts...)
}

// configureContext applies the engine settings of cfg to a hand-built
// context, for commands that evaluate outside a template.
func configureContext(cfg *config.Config, logger sage.Logger) func(ctx *evaluator.Context) {
	return func(ctx *evaluator.Context) {
		ctx.MaxDepth = cfg.Render.MaxDepth
		ctx.Locale = cfg.Render.Locale
		ctx.Location = cfg.Location()
		if logger != nil {
			ctx.Logger = logger
		}
	}
}

// loadData builds the data tree from inline JSON, a file or a query. Query
// rows are placed under cfg.Data.Key. With no source the data is an empty
// object.
func loadData(ctx context.Context, cfg *config.Config, inline string) (value.Value, error) {
	switch {
	case inline != "":
		v, err := value.ParseJSON(inline)
		if err != nil {
			return value.MISSING, serrors.New("RES-0001", map[string]any{"Path": "--json", "Reason": err.Error()})
		}
		return v, nil
	case cfg.Data.File != "":
		return data.Load(cfg.Data.File)
	case cfg.Data.IsQuery():
		args := make([]any, len(cfg.Data.Args))
		for i, a := range cfg.Data.Args {
			args[i] = a
		}
		rows, err := data.Query(ctx, data.Source{
			Driver: cfg.Data.Driver,
			DSN:    cfg.Data.DSN,
			Query:  cfg.Data.Query,
			Args:   args,
		})
		if err != nil {
			return value.MISSING, err
		}
		key := cfg.Data.Key
		if key == "" {
			key = "rows"
		}
		return value.NewObject(map[string]value.Value{key: rows}), nil
	}
	return value.NewObject(nil), nil
}

// dataLabel names the data source in render logs.
func dataLabel(cfg *config.Config, inline string) string {
	switch {
	case inline != "":
		return "--json"
	case cfg.Data.File != "":
		return cfg.Data.File
	case cfg.Data.IsQuery():
		return cfg.Data.Driver + " query"
	}
	return ""
}

// render compiles the template afresh, renders it and writes the output.
// The template and data are re-read every time so watch mode sees edits.
func (r *renderer) render(ctx context.Context) error {
	start := time.Now()
	output := r.cfg.Output.Path
	if output == "" {
		output = "stdout"
	}
	label := dataLabel(r.cfg, r.inlineJSON)

	n, err := r.renderOnce(ctx)
	r.log.Render(start, r.template, label, output, n, err)
	return err
}

func (r *renderer) renderOnce(ctx context.Context) (int, error) {
	tmpl, err := r.engine.CompileFile(r.template)
	if err != nil {
		return 0, err
	}
	root, err := loadData(ctx, r.cfg, r.inlineJSON)
	if err != nil {
		return 0, err
	}
	text, err := tmpl.Render(root)
	if err != nil {
		return 0, err
	}
	return writeOutput(r.cfg.Output, []byte(text), r.stdout)
}

// watch re-renders whenever the template, data file or config changes, until
// ctx is done.
func (r *renderer) watch(ctx context.Context, stdout, stderr io.Writer) error {
	files := []string{r.template}
	if r.cfg.Data.File != "" {
		files = append(files, r.cfg.Data.File)
	}
	if r.cfg.Data.IsQuery() && strings.HasPrefix(r.cfg.Data.Driver, "sqlite") {
		files = append(files, r.cfg.Data.DSN)
	}
	if r.configFile != "" {
		files = append(files, r.configFile)
	}
	files = append(files, r.cfg.Watch.Extra...)

	configAbs := ""
	if r.configFile != "" {
		configAbs, _ = filepath.Abs(r.configFile)
	}
	w, err := watch.New(files, r.cfg.Watch.Debounce, func(changed []string) {
		for _, name := range changed {
			if configAbs != "" && name == configAbs {
				r.log.Warn("config changed: %s (restart for config changes to take effect)", name)
			}
		}
		if err := r.render(ctx); err != nil {
			printError(stderr, err)
		}
	}, stderr, stderr)
	if err != nil {
		return err
	}
	r.log.Info("watching %d files, press Ctrl+C to stop", len(w.Files()))
	return w.Run(ctx)
}

// compressionFor returns the configured compression, or the one implied by
// the output file extension.
func compressionFor(out config.OutputConfig) string {
	if out.Compression != "" {
		return out.Compression
	}
	switch strings.ToLower(filepath.Ext(out.Path)) {
	case ".gz":
		return "gzip"
	case ".zst", ".zstd":
		return "zstd"
	}
	return "none"
}

// encode compresses content according to kind and level.
func encode(content []byte, kind, level string) ([]byte, error) {
	var buf bytes.Buffer
	switch kind {
	case "gzip":
		gzLevel := gzip.DefaultCompression
		switch level {
		case "fastest":
			gzLevel = gzip.BestSpeed
		case "best":
			gzLevel = gzip.BestCompression
		}
		zw, err := gzip.NewWriterLevel(&buf, gzLevel)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(content); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		zLevel := zstd.SpeedDefault
		switch level {
		case "fastest":
			zLevel = zstd.SpeedFastest
		case "best":
			zLevel = zstd.SpeedBestCompression
		}
		zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zLevel))
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(content); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	default:
		return content, nil
	}
	return buf.Bytes(), nil
}

// writeOutput writes rendered content to the configured file, or to stdout.
// It returns the number of bytes written.
func writeOutput(out config.OutputConfig, content []byte, stdout io.Writer) (int, error) {
	limit, err := config.ParseSize(out.MaxSize)
	if err != nil {
		return 0, err
	}
	if limit > 0 && int64(len(content)) > limit {
		return 0, fmt.Errorf("output is %s, larger than output.max_size %s",
			humanize.Bytes(uint64(len(content))), humanize.Bytes(uint64(limit)))
	}

	encoded, err := encode(content, compressionFor(out), out.Level)
	if err != nil {
		return 0, fmt.Errorf("compressing output: %w", err)
	}

	if out.Path == "" {
		return stdout.Write(encoded)
	}
	if dir := filepath.Dir(out.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("creating output directory: %w", err)
		}
	}
	// Write to a temporary file first so readers never see a partial page
	tmp := out.Path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0644); err != nil {
		return 0, fmt.Errorf("writing output: %w", err)
	}
	if err := os.Rename(tmp, out.Path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("writing output: %w", err)
	}
	return len(encoded), nil
}
