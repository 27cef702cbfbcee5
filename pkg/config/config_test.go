package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "a", cfg.Output.Format)
	assert.True(t, cfg.Output.PrintStream)
	assert.Equal(t, 500, cfg.Limits.MaxTweets)
	assert.Equal(t, 100, cfg.Query.ResultsPerCall)
	assert.Equal(t, "search_tweets_v2", cfg.Credentials.YAMLKey)
	assert.True(t, cfg.Credentials.EnvOverwrite)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEARCHTWEETS_ENDPOINT", "https://api.twitter.com/2/tweets/search/recent")
	t.Setenv("SEARCHTWEETS_MAX_TWEETS", "42")
	t.Setenv("SEARCHTWEETS_RESULTS_PER_FILE", "10")
	t.Setenv("SEARCHTWEETS_LOG_LEVEL", "debug")
	t.Setenv("SEARCHTWEETS_TELEMETRY", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://api.twitter.com/2/tweets/search/recent", cfg.API.Endpoint)
	assert.Equal(t, 42, cfg.Limits.MaxTweets)
	assert.Equal(t, 10, cfg.Output.ResultsPerFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("SEARCHTWEETS_MAX_PAGES", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCHTWEETS_MAX_PAGES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad output format", func(c *Config) { c.Output.Format = "x" }, "invalid output format"},
		{"negative max tweets", func(c *Config) { c.Limits.MaxTweets = -1 }, "max tweets"},
		{"bad granularity", func(c *Config) { c.Query.Granularity = "week" }, "granularity"},
		{"bad method", func(c *Config) { c.API.Method = "PUT" }, "request method"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"no workers", func(c *Config) { c.Runner.Workers = 0 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Format = "zz"
	cfg.Limits.MaxPages = -3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output format")
	assert.Contains(t, err.Error(), "max pages")
}

func TestRequireSearch(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.RequireSearch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
	assert.Contains(t, err.Error(), "endpoint")

	cfg.Query.Query = "snow has:media"
	cfg.API.Endpoint = "https://api.twitter.com/2/tweets/search/recent"
	assert.NoError(t, cfg.RequireSearch())
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.API.Endpoint = "https://api.twitter.com/2/tweets/search/all"
	cfg.Query.Query = "from:jack"
	cfg.Output.ResultsPerFile = 250
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.API.Endpoint, loaded.API.Endpoint)
	assert.Equal(t, "from:jack", loaded.Query.Query)
	assert.Equal(t, 250, loaded.Output.ResultsPerFile)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"query":         "cats",
		"max-tweets":    0,
		"max-pages":     3,
		"output-format": "m",
		"print-stream":  false,
		"extra-headers": map[string]string{"X-Trace": "1"},
		"debug":         true,
	})

	assert.Equal(t, "cats", cfg.Query.Query)
	assert.Equal(t, 0, cfg.Limits.MaxTweets)
	assert.Equal(t, 3, cfg.Limits.MaxPages)
	assert.Equal(t, "m", cfg.Output.Format)
	assert.False(t, cfg.Output.PrintStream)
	assert.Equal(t, "1", cfg.API.ExtraHeaders["X-Trace"])
	assert.Equal(t, "debug", cfg.Logging.Level)

	cfg.MergeCommandLineFlags(map[string]interface{}{"atomic": true})
	assert.Equal(t, "a", cfg.Output.Format)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("query:\n  query: from-file\nlimits:\n  max_tweets: 10\n"), 0600))

	t.Setenv("SEARCHTWEETS_MAX_TWEETS", "20")

	cfg, err := Load(path, map[string]interface{}{"query": "from-flag"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Query.Query)
	assert.Equal(t, 20, cfg.Limits.MaxTweets)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".twitter_keys.yaml"), ExpandHome("~/.twitter_keys.yaml"))
	assert.Equal(t, "/etc/keys.yaml", ExpandHome("/etc/keys.yaml"))
}
