package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"unicode"
)

// plainHandler writes a bare, human-readable line per record: no
// timestamps or structured fields, just the message with its first letter
// capitalized. Intended for interactive foreground use.
type plainHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
}

func newPlainHandler(w io.Writer, level slog.Level) *plainHandler {
	return &plainHandler{w: w, level: level}
}

func (h *plainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *plainHandler) Handle(_ context.Context, r slog.Record) error {
	runes := []rune(r.Message)
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	runes = append(runes, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write([]byte(string(runes)))
	return err
}

func (h *plainHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *plainHandler) WithGroup(_ string) slog.Handler      { return h }
