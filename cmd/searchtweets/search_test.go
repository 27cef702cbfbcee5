package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"searchtweets/pkg/auth"
	"searchtweets/pkg/config"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/stream"
)

func TestBuildPayload(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Endpoint = "https://api.twitter.com/2/tweets/search/recent"

	payload, endpoint, err := buildPayload(cfg, "snow   has:media")
	require.NoError(t, err)
	assert.Equal(t, cfg.API.Endpoint, endpoint)
	assert.Equal(t, "snow has:media", payload["query"])
	assert.Equal(t, 100, payload["max_results"])

	cfg.Query.Granularity = "day"
	payload, endpoint, err = buildPayload(cfg, "snow")
	require.NoError(t, err)
	assert.Equal(t, "https://api.twitter.com/2/tweets/counts/recent", endpoint)
	assert.Equal(t, "day", payload["granularity"])
	assert.NotContains(t, payload, "max_results")
}

func TestBuildPayloadLegacy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Endpoint = "https://api.twitter.com/1.1/tweets/search/30day/dev.json"
	cfg.Query.Granularity = "hour"

	payload, endpoint, err := buildPayload(cfg, "snow")
	require.NoError(t, err)
	assert.Equal(t, "https://api.twitter.com/1.1/tweets/search/30day/dev/counts.json", endpoint)
	assert.Equal(t, "hour", payload["bucket"])
}

func TestBuildPayloadEmptyQuery(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Endpoint = "https://api.twitter.com/2/tweets/search/recent"

	_, _, err := buildPayload(cfg, "  ")
	assert.True(t, errs.IsConfiguration(err))
}

func TestStreamConfigCarriesLimits(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Limits.MaxTweets = 42
	cfg.Limits.MaxPages = 3
	cfg.Output.Format = "m"
	account := &auth.Account{BearerToken: "t"}

	scfg, err := streamConfig(cfg, account, "https://api.twitter.com/2/tweets/search/recent", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, scfg.MaxItems)
	assert.Equal(t, 3, scfg.MaxRequests)
	assert.Equal(t, stream.MessageStream, scfg.Mode)
	assert.Equal(t, "t", scfg.Credential.BearerToken)
}

func TestEmit(t *testing.T) {
	seq := func(yield func(stream.Message, error) bool) {
		if !yield(stream.Message{Kind: stream.KindItem, Data: map[string]interface{}{"id": "1", "text": "<b>&"}}, nil) {
			return
		}
		yield(stream.Message{Kind: stream.KindMeta, Data: map[string]interface{}{"result_count": 1}}, nil)
	}

	var buf bytes.Buffer
	require.NoError(t, emit(seq, true, &buf))
	assert.Equal(t, "{\"id\":\"1\",\"text\":\"<b>&\"}\n{\"result_count\":1}\n", buf.String())

	buf.Reset()
	require.NoError(t, emit(seq, false, &buf))
	assert.Empty(t, buf.String())
}

func TestEmitStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(stream.Message, error) bool) {
		if !yield(stream.Message{Kind: stream.KindItem, Data: map[string]interface{}{"id": "1"}}, nil) {
			return
		}
		yield(stream.Message{}, boom)
	}

	var buf bytes.Buffer
	assert.ErrorIs(t, emit(seq, true, &buf), boom)
	assert.Equal(t, "{\"id\":\"1\"}\n", buf.String())
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("snow\n\n# comment\n  rain has:media \n"), 0644))

	queries, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"snow", "rain has:media"}, queries)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0644))
	_, err = readQueries(empty)
	assert.True(t, errs.IsConfiguration(err))
}

func TestChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().String("query", "", "")
	cmd.Flags().Int("max-tweets", 0, "")
	cmd.Flags().Bool("print-stream", true, "")
	cmd.Flags().String("extra-headers", "", "")
	cmd.Flags().String("endpoint", "", "")

	require.NoError(t, cmd.ParseFlags([]string{
		"--query", "snow",
		"--max-tweets", "5",
		"--print-stream=false",
		"--extra-headers", `{"User-Agent":"x"}`,
	}))

	flags, err := changedFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, "snow", flags["query"])
	assert.Equal(t, 5, flags["max-tweets"])
	assert.Equal(t, false, flags["print-stream"])
	assert.Equal(t, map[string]string{"User-Agent": "x"}, flags["extra-headers"])
	assert.NotContains(t, flags, "endpoint")
}

func TestChangedFlagsBadHeaders(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("extra-headers", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--extra-headers", "not json"}))

	_, err := changedFlags(cmd)
	assert.Error(t, err)
}

func TestConfigFieldsMasksHeaders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.ExtraHeaders = map[string]string{"Authorization": "Bearer secret-token"}

	fields := auth.FilterSensitive(configFields(cfg))
	headers := fields["api"].(map[string]interface{})["extra_headers"].(map[string]interface{})
	assert.NotEqual(t, "Bearer secret-token", headers["Authorization"])
}
