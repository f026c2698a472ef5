package logging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

type ctxKey int

const fieldsKey ctxKey = iota

type fields struct {
	mu   *sync.RWMutex
	vals map[string]slog.Attr
}

func newFields() fields {
	return fields{mu: &sync.RWMutex{}, vals: make(map[string]slog.Attr)}
}

func fieldsFrom(ctx context.Context) (fields, bool) {
	f, ok := ctx.Value(fieldsKey).(fields)
	return f, ok
}

// WithFields returns a context carrying additional structured fields, to be
// picked up by FromContext. Fields set in a parent context remain visible
// unless overwritten by the same key.
func WithFields(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	next := newFields()
	if prev, ok := fieldsFrom(ctx); ok {
		prev.mu.RLock()
		for k, v := range prev.vals {
			next.vals[k] = v
		}
		prev.mu.RUnlock()
	}
	for _, a := range attrs {
		next.vals[a.Key] = a
	}
	return context.WithValue(ctx, fieldsKey, next)
}

// FromContext returns the global logger enriched with any fields previously
// attached to ctx via WithFields.
func FromContext(ctx context.Context) *L {
	return withContextFields(ctx, Logger())
}

// NewFromContext builds a new logger and enriches it with ctx's fields.
func NewFromContext(ctx context.Context, level slog.Level, encoding Encoding, opts ...Option) (*L, error) {
	l, err := New(level, encoding, opts...)
	if err != nil {
		return nil, err
	}
	return withContextFields(ctx, l), nil
}

func withContextFields(ctx context.Context, l *L) *L {
	if ctx == nil {
		return l
	}
	f, ok := fieldsFrom(ctx)
	if !ok {
		return l
	}

	f.mu.RLock()
	keys := make([]string, 0, len(f.vals))
	for k := range f.vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, f.vals[k])
	}
	f.mu.RUnlock()

	return &L{Logger: l.Logger.With(args...)}
}
