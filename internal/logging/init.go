package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Encoding selects the wire format of log lines.
type Encoding int

const (
	// EncodingLogfmt writes key=value pairs (slog's built-in text handler).
	EncodingLogfmt Encoding = iota
	// EncodingJSON writes one JSON object per line.
	EncodingJSON
	// EncodingPlain writes "LEVEL msg key=value ..." for interactive use.
	EncodingPlain
)

type config struct {
	enableCaller bool
	output       io.Writer
	errOutput    io.Writer
	initialAttr  map[string]slog.Attr
}

// Option configures the logger constructed by New/Init.
type Option func(*config) error

// WithOutput sets the log output: for every level, or for levels below Error
// when WithErrorOutput is also given.
func WithOutput(w io.Writer) Option {
	return func(c *config) error {
		c.output = w
		return nil
	}
}

// WithErrorOutput sets a separate output for Error, Fatal and Panic levels.
func WithErrorOutput(w io.Writer) Option {
	return func(c *config) error {
		c.errOutput = w
		return nil
	}
}

const (
	devnullOutput = "devnull"
	stderrOutput  = "stderr"
	stdoutOutput  = "stdout"
)

// WithFileOutput sets the log output to a file path, or one of the special
// values "stdout", "stderr", "devnull" (case-insensitive).
func WithFileOutput(path string) Option {
	return func(c *config) error {
		if path == "" {
			return fmt.Errorf("empty filepath provided")
		}
		var w io.Writer
		switch strings.ToLower(path) {
		case stdoutOutput:
			w = os.Stdout
		case stderrOutput:
			w = os.Stderr
		case devnullOutput:
			w = io.Discard
		default:
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			w = f
		}
		return WithOutput(w)(c)
	}
}

// WithCaller enables source location reporting (computationally expensive).
func WithCaller(enabled bool) Option {
	return func(c *config) error {
		c.enableCaller = enabled
		return nil
	}
}

// WithName sets the application name as a field present in all messages.
func WithName(name string) Option {
	return func(c *config) error {
		c.initialAttr["name"] = slog.String("name", name)
		return nil
	}
}

// WithVersion sets the application version as a field present in all messages.
func WithVersion(version string) Option {
	return func(c *config) error {
		c.initialAttr["version"] = slog.String("version", version)
		return nil
	}
}

// EncodingFromString parses an encoding name (case-insensitive), defaulting
// to EncodingLogfmt for anything unrecognized.
func EncodingFromString(s string) Encoding {
	switch strings.ToLower(s) {
	case "json":
		return EncodingJSON
	case "plain":
		return EncodingPlain
	default:
		return EncodingLogfmt
	}
}

// Init installs a newly constructed logger as slog's process default.
func Init(level slog.Level, encoding Encoding, opts ...Option) error {
	l, err := New(level, encoding, opts...)
	if err != nil {
		return err
	}
	slog.SetDefault(l.Logger)
	return nil
}

// New constructs a logger without touching the process-wide default.
func New(level slog.Level, encoding Encoding, opts ...Option) (*L, error) {
	cfg := &config{
		output:      os.Stdout,
		initialAttr: make(map[string]slog.Attr),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			a.Key = "ts"
		case slog.LevelKey:
			lvl := a.Value.Any().(slog.Level)
			switch {
			case lvl < LevelInfo:
				a.Value = slog.StringValue(debugLevel)
			case lvl < LevelWarn:
				a.Value = slog.StringValue(infoLevel)
			case lvl < LevelError:
				a.Value = slog.StringValue(warnLevel)
			case lvl < LevelFatal:
				a.Value = slog.StringValue(errorLevel)
			case lvl < LevelPanic:
				a.Value = slog.StringValue(fatalLevel)
			default:
				a.Value = slog.StringValue(panicLevel)
			}
		case slog.SourceKey:
			a.Key = "caller"
			if src, ok := a.Value.Any().(*slog.Source); ok {
				dir, file := filepath.Split(src.File)
				src.File = filepath.Join(filepath.Base(dir), file)
			}
		}
		return a
	}

	hopts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.enableCaller,
		ReplaceAttr: replace,
	}

	handler, err := newHandler(cfg.output, encoding, hopts)
	if err != nil {
		return nil, err
	}

	if cfg.errOutput != nil {
		errHandler, err := newHandler(cfg.errOutput, encoding, hopts)
		if err != nil {
			return nil, err
		}
		handler = newLevelSplitHandler(handler, errHandler)
	}

	if len(cfg.initialAttr) > 0 {
		attrs := make([]slog.Attr, 0, len(cfg.initialAttr))
		for _, a := range cfg.initialAttr {
			attrs = append(attrs, a)
		}
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
		handler = handler.WithAttrs(attrs)
	}

	return newL(slog.New(handler)), nil
}

func newHandler(w io.Writer, encoding Encoding, hopts *slog.HandlerOptions) (slog.Handler, error) {
	switch encoding {
	case EncodingJSON:
		return slog.NewJSONHandler(w, hopts), nil
	case EncodingLogfmt:
		return slog.NewTextHandler(w, hopts), nil
	case EncodingPlain:
		return newPlainHandler(w, hopts.Level.Level()), nil
	default:
		return nil, fmt.Errorf("unknown log encoding %d", encoding)
	}
}

// Logger returns a low-allocation logger wrapping slog's current default.
func Logger() *L {
	return newL(slog.Default())
}
