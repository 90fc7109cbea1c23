package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// plain strips color codes so assertions match the rendered text
// without caring where the escape boundaries fall.
func plain(buf *bytes.Buffer) string {
	return ansiSeq.ReplaceAllString(buf.String(), "")
}

func prettyLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(h), &buf
}

func TestNew_FormatSelection(t *testing.T) {
	cases := []struct {
		name     string
		cfg      Config
		wantJSON bool
	}{
		{"explicit json", Config{Format: "json"}, true},
		{"explicit pretty wins over environment", Config{Format: "pretty", Environment: "production"}, false},
		{"production defaults to json", Config{Environment: "production"}, true},
		{"development defaults to pretty", Config{Environment: "development"}, false},
		{"no environment defaults to pretty", Config{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := tc.cfg
			cfg.Writer = &buf
			New(cfg).Info("format probe")

			assert.Contains(t, buf.String(), "format probe")
			isJSON := strings.Contains(buf.String(), `"msg":"format probe"`)
			assert.Equal(t, tc.wantJSON, isJSON)
		})
	}
}

func TestNew_DefaultsToStdout(t *testing.T) {
	log := New(Config{})
	require.NotNil(t, log.Logger)
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: slog.LevelWarn})

	log.Info("ingested fine")
	log.Warn("slow scan")

	out := buf.String()
	assert.NotContains(t, out, "ingested fine")
	assert.Contains(t, out, "slow scan")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo, // unknown falls back to info
		"":        slog.LevelInfo,
	}

	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestPrettyHandler_RendersLine(t *testing.T) {
	log, buf := prettyLogger(slog.LevelInfo)

	log.Info("image stored", "image_id", "img-9xk2", "width", 832)

	line := plain(buf)
	assert.Contains(t, line, "INF image stored image_id=img-9xk2 width=832")
	assert.True(t, strings.HasSuffix(line, "\n"), "line should end with newline: %q", line)
}

func TestPrettyHandler_LevelTags(t *testing.T) {
	cases := []struct {
		level slog.Level
		tag   string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelDebug - 4, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelWarn + 2, "WRN"},
		{slog.LevelError, "ERR"},
		{slog.LevelError + 4, "ERR"},
	}

	for _, tc := range cases {
		log, buf := prettyLogger(slog.LevelDebug - 4)
		log.Log(context.Background(), tc.level, "tick")
		assert.Contains(t, plain(buf), tc.tag+" tick", "level %v", tc.level)
	}
}

func TestPrettyHandler_Threshold(t *testing.T) {
	log, buf := prettyLogger(slog.LevelWarn)

	log.Debug("quiet")
	log.Info("also quiet")
	log.Warn("loud")

	out := plain(buf)
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "WRN loud")
}

func TestNewPrettyHandler_NilOptions(t *testing.T) {
	h := NewPrettyHandler(io.Discard, nil)
	require.NotNil(t, h.opts)

	// Without options the threshold sits at info.
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestPrettyHandler_GroupsFlattenToDottedKeys(t *testing.T) {
	t.Run("single group", func(t *testing.T) {
		log, buf := prettyLogger(slog.LevelInfo)

		log.WithGroup("request").Info("handled", "method", "GET", "status", 200)

		line := plain(buf)
		assert.Contains(t, line, "request.method=GET")
		assert.Contains(t, line, "request.status=200")
	})

	t.Run("stacked groups qualify bound attrs", func(t *testing.T) {
		log, buf := prettyLogger(slog.LevelInfo)

		log.WithGroup("s3").
			With("bucket", "vault-originals").
			WithGroup("upload").
			Info("stored", "key", "ab/cd.png")

		line := plain(buf)
		assert.Contains(t, line, "s3.bucket=vault-originals")
		assert.Contains(t, line, "s3.upload.key=ab/cd.png")
	})

	t.Run("empty group is a no-op", func(t *testing.T) {
		h := NewPrettyHandler(io.Discard, nil)
		assert.Same(t, h, h.WithGroup(""))
	})
}

func TestPrettyHandler_ErrorKeyIsRed(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	slog.New(h).Error("ingest failed", "error", "short read")

	assert.Contains(t, buf.String(), ansiRed+"error=short read"+ansiReset)
}

func TestPrettyHandler_Source(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo, AddSource: true})

	slog.New(h).Info("locating")

	assert.Contains(t, plain(&buf), "logger_test.go:")
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-08-25T10:30:00Z", formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "1m30s", formatValue(slog.DurationValue(90*time.Second)))
	assert.Equal(t, "832", formatValue(slog.IntValue(832)))
	assert.Equal(t, "vault.db", formatValue(slog.StringValue("vault.db")))
	assert.Equal(t, "true", formatValue(slog.BoolValue(true)))
}

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json"})

	log.WithError(errors.New("bucket unreachable")).Warn("retrying upload")
	log.WithField("run_id", "run-7f3a").Info("reindex started")

	out := buf.String()
	assert.Contains(t, out, `"error":"bucket unreachable"`)
	assert.Contains(t, out, `"run_id":"run-7f3a"`)
}
