package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"searchtweets/pkg/config"
)

// debugLevel lifts the process-wide zerolog level for the test and puts it
// back afterwards, since New changes it.
func debugLevel(t *testing.T) {
	t.Helper()
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zlog := zerolog.New(buf)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &m), line)
	return m
}

func TestNew(t *testing.T) {
	debugLevel(t)

	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "console", cfg: config.LoggingConfig{Level: "info"}},
		{name: "json console", cfg: config.LoggingConfig{Level: "warn", Format: "json"}},
		{name: "mixed case level", cfg: config.LoggingConfig{Level: "DEBUG"}},
		{name: "unknown level", cfg: config.LoggingConfig{Level: "chatty"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(&tt.cfg)
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l.GetZerolog())
		})
	}
}

func TestNewWritesJSONToLogFile(t *testing.T) {
	debugLevel(t)
	path := filepath.Join(t.TempDir(), "logs", "searchtweets.log")

	l, err := New(&config.LoggingConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)
	l.WithField("stream_id", "s-1").Info("stream finished")
	l.Debug("below the configured level")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	entry := decodeLine(t, lines[0])
	assert.Equal(t, "stream finished", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "searchtweets", entry["app"])
	assert.Equal(t, Version, entry["version"])
	assert.Equal(t, "s-1", entry["stream_id"])
}

func TestConsoleWriterJSONFormatIsPassthrough(t *testing.T) {
	var buf bytes.Buffer
	assert.Same(t, &buf, consoleWriter(&buf, "json"))
	assert.Same(t, &buf, consoleWriter(&buf, "JSON"))
}

func TestConsoleWriterFormatsLevelsAndFields(t *testing.T) {
	debugLevel(t)

	tests := []struct {
		level zerolog.Level
		want  string
	}{
		{zerolog.DebugLevel, "\033[37mDEBG\033[0m"},
		{zerolog.InfoLevel, "\033[32mINFO\033[0m"},
		{zerolog.WarnLevel, "\033[33mWARN\033[0m"},
		{zerolog.ErrorLevel, "\033[31mERRO\033[0m"},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			zlog := zerolog.New(consoleWriter(&buf, "console"))
			zlog.WithLevel(tt.level).Int("requests_issued", 3).Msg("paging")

			out := buf.String()
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "| paging")
			assert.Contains(t, out, "\033[36mrequests_issued\033[0m:3")
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"Info", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"fatal", zerolog.FatalLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
		{"trace", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldEncoding(t *testing.T) {
	debugLevel(t)
	var buf bytes.Buffer

	bufferLogger(&buf).InfoWithFields("attempt", map[string]interface{}{
		"status_code": 429,
		"slept":       int64(30),
		"ratio":       0.5,
		"has_next":    true,
		"pause":       2 * time.Second,
		"fields":      []string{"author_id", "geo"},
		"body":        []byte(`{"title":"Too Many Requests"}`),
		"cause":       errors.New("connection reset"),
		"payload":     map[string]interface{}{"query": "snow"},
	})

	entry := decodeLine(t, buf.String())
	assert.EqualValues(t, 429, entry["status_code"])
	assert.EqualValues(t, 30, entry["slept"])
	assert.Equal(t, 0.5, entry["ratio"])
	assert.Equal(t, true, entry["has_next"])
	assert.EqualValues(t, 2000, entry["pause"])
	assert.Equal(t, []interface{}{"author_id", "geo"}, entry["fields"])
	assert.Equal(t, `{"title":"Too Many Requests"}`, entry["body"])
	assert.Equal(t, "connection reset", entry["cause"])
	assert.Equal(t, map[string]interface{}{"query": "snow"}, entry["payload"])
}

func TestDerivedLoggersDoNotLeakFields(t *testing.T) {
	debugLevel(t)
	var buf bytes.Buffer
	base := bufferLogger(&buf)

	child := base.WithField("stream_id", "s-1").
		WithFields(map[string]interface{}{"endpoint": "recent"}).
		WithError(errors.New("http error"))
	child.Warn("page failed")
	base.Info("unrelated")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	first := decodeLine(t, lines[0])
	assert.Equal(t, "s-1", first["stream_id"])
	assert.Equal(t, "recent", first["endpoint"])
	assert.Equal(t, "http error", first["error"])

	second := decodeLine(t, lines[1])
	assert.NotContains(t, second, "stream_id")
	assert.NotContains(t, second, "error")
}

func TestWithErrorNil(t *testing.T) {
	l := bufferLogger(&bytes.Buffer{})
	assert.Same(t, l, l.WithError(nil))
}

func TestHelpersLogAtExpectedLevels(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "https://api.twitter.com/2/tweets/search/recent", 200, 40*time.Millisecond)
	LogRequest(tl, "GET", "https://api.twitter.com/2/tweets/search/recent", 429, time.Second)
	LogRequest(tl, "GET", "https://api.twitter.com/2/tweets/search/recent", 503, time.Second)
	LogRateLimit(tl, "recent", 30*time.Second)
	LogStreamProgress(tl, 25, 3, true)

	msgs := tl.GetMessages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "DEBUG", msgs[0].Level)
	assert.EqualValues(t, 40, msgs[0].Fields["duration_ms"])
	assert.Equal(t, "WARN", msgs[1].Level)
	assert.Equal(t, "ERROR", msgs[2].Level)
	assert.Equal(t, 30, msgs[3].Fields["sleep_seconds"])
	assert.Equal(t, "paging", msgs[4].Message)
	assert.Equal(t, 25, msgs[4].Fields["total_emitted"])
	assert.Equal(t, true, msgs[4].Fields["has_next"])
}

func TestTestLoggerCapturesDerivedFields(t *testing.T) {
	tl := NewTestLogger()

	tl.WithField("stream_id", "abc").
		WithError(errors.New("fatal")).
		ErrorWithFields("stream terminated", map[string]interface{}{"requests": 3})
	tl.Info("plain")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "abc", msgs[0].Fields["stream_id"])
	assert.Equal(t, 3, msgs[0].Fields["requests"])
	assert.EqualError(t, msgs[0].Error, "fatal")
	assert.True(t, tl.HasError())
	assert.True(t, tl.HasMessage("plain"))
	assert.Len(t, tl.GetMessagesByLevel("INFO"), 1)
	assert.Contains(t, tl.String(), "[ERROR] stream terminated")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestGlobalLogger(t *testing.T) {
	prev := globalLogger
	t.Cleanup(func() { globalLogger = prev })
	debugLevel(t)

	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.Same(t, globalLogger, GetLogger())

	assert.Error(t, Initialize(&config.LoggingConfig{Level: "loud"}))

	nop := NewNopLogger()
	assert.Same(t, nop, OrGlobal(nop))
	assert.Same(t, GetLogger(), OrGlobal(nil))
}
