package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"panic", LevelPanic},
		{"info", LevelInfo},
		{"kittens", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LevelFromString(tt.in), "input %q", tt.in)
	}
}

func TestEncodingFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Encoding
	}{
		{"json", EncodingJSON},
		{"JSON", EncodingJSON},
		{"plain", EncodingPlain},
		{"logfmt", EncodingLogfmt},
		{"windings", EncodingLogfmt},
		{"", EncodingLogfmt},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, EncodingFromString(tt.in), "input %q", tt.in)
	}
}

func TestNewWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(LevelInfo, EncodingJSON, WithOutput(buf), WithName("nfpcapd"))
	require.NoError(t, err)

	l.Info("started pipeline", "interface", "eth0")
	require.Contains(t, buf.String(), `"msg":"started pipeline"`)
	require.Contains(t, buf.String(), `"interface":"eth0"`)
	require.Contains(t, buf.String(), `"name":"nfpcapd"`)
}

func TestNewWritesLogfmt(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(LevelInfo, EncodingLogfmt, WithOutput(buf))
	require.NoError(t, err)

	l.Info("rotated flow file")
	require.Contains(t, buf.String(), `msg="rotated flow file"`)
	// level is remapped to the lowercase short form
	require.Contains(t, buf.String(), `level=info`)
}

func TestNewPlainEncodingCapitalizesMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(LevelInfo, EncodingPlain, WithOutput(buf))
	require.NoError(t, err)

	l.Info("started nfpcapd")
	require.Equal(t, "Started nfpcapd\n", buf.String())
}

func TestWithErrorOutputSplitsBySeverity(t *testing.T) {
	info, errs := &bytes.Buffer{}, &bytes.Buffer{}
	l, err := New(LevelInfo, EncodingLogfmt, WithOutput(info), WithErrorOutput(errs))
	require.NoError(t, err)

	l.Info("normal operation")
	l.Error("pipeline stage exited with error")

	require.Contains(t, info.String(), "normal operation")
	require.NotContains(t, info.String(), "pipeline stage exited")
	require.Contains(t, errs.String(), "pipeline stage exited")
}

func TestWithFileOutputRejectsEmptyPath(t *testing.T) {
	_, err := New(LevelInfo, EncodingLogfmt, WithFileOutput(""))
	require.Error(t, err)
}

func TestWithFieldsRoundTripsThroughContext(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, Init(LevelInfo, EncodingLogfmt, WithOutput(buf)))

	ctx := WithFields(context.Background(), slog.String("ident", "eth0"))
	FromContext(ctx).Info("processed packet")

	require.True(t, strings.Contains(buf.String(), `ident=eth0`))
}
