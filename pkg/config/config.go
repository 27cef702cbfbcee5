package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SEARCHTWEETS_"

// Config holds all configuration options for a search run
type Config struct {
	API         APIConfig         `yaml:"api" json:"api"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Query       QueryConfig       `yaml:"query" json:"query"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
	Output      OutputConfig      `yaml:"output" json:"output"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint" json:"checkpoint"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry"`
	Runner      RunnerConfig      `yaml:"runner" json:"runner"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// APIConfig describes the endpoint and the request shape.
type APIConfig struct {
	Endpoint     string            `yaml:"endpoint" json:"endpoint"`
	Method       string            `yaml:"method" json:"method"`
	TokenKey     string            `yaml:"token_key" json:"token_key"`
	ExtraHeaders map[string]string `yaml:"extra_headers" json:"extra_headers"`
	Timeout      time.Duration     `yaml:"timeout" json:"timeout"`
}

// CredentialsConfig says where credentials are looked up. Secrets never live here.
type CredentialsConfig struct {
	File         string `yaml:"file" json:"file"`
	YAMLKey      string `yaml:"yaml_key" json:"yaml_key"`
	EnvOverwrite bool   `yaml:"env_overwrite" json:"env_overwrite"`
	Account      string `yaml:"account" json:"account"`
}

// QueryConfig holds the request-parameter inputs.
type QueryConfig struct {
	Query          string `yaml:"query" json:"query"`
	StartTime      string `yaml:"start_time" json:"start_time"`
	EndTime        string `yaml:"end_time" json:"end_time"`
	SinceID        string `yaml:"since_id" json:"since_id"`
	UntilID        string `yaml:"until_id" json:"until_id"`
	ResultsPerCall int    `yaml:"results_per_call" json:"results_per_call"`
	Granularity    string `yaml:"granularity" json:"granularity"`
	Expansions     string `yaml:"expansions" json:"expansions"`
	TweetFields    string `yaml:"tweet_fields" json:"tweet_fields"`
	UserFields     string `yaml:"user_fields" json:"user_fields"`
	MediaFields    string `yaml:"media_fields" json:"media_fields"`
	PlaceFields    string `yaml:"place_fields" json:"place_fields"`
	PollFields     string `yaml:"poll_fields" json:"poll_fields"`
}

// LimitsConfig caps a stream. Zero means unlimited.
type LimitsConfig struct {
	MaxTweets int `yaml:"max_tweets" json:"max_tweets"`
	MaxPages  int `yaml:"max_pages" json:"max_pages"`
}

// OutputConfig controls emission and persistence
type OutputConfig struct {
	// Format is "a" (atomic, includes merged), "r" (raw response pages) or "m" (messages).
	Format         string `yaml:"format" json:"format"`
	FilenamePrefix string `yaml:"filename_prefix" json:"filename_prefix"`
	ResultsPerFile int    `yaml:"results_per_file" json:"results_per_file"`
	PrintStream    bool   `yaml:"print_stream" json:"print_stream"`
}

// RateLimitConfig holds client-side request shaping. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

type CheckpointConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Resume  bool `yaml:"resume" json:"resume"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

type RunnerConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Timeout: 120 * time.Second,
		},
		Credentials: CredentialsConfig{
			File:         "~/.twitter_keys.yaml",
			YAMLKey:      "search_tweets_v2",
			EnvOverwrite: true,
		},
		Query: QueryConfig{
			ResultsPerCall: 100,
		},
		Limits: LimitsConfig{
			MaxTweets: 500,
		},
		Output: OutputConfig{
			Format:      "a",
			PrintStream: true,
		},
		RateLimit: RateLimitConfig{
			BurstSize: 1,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "searchtweets",
		},
		Runner: RunnerConfig{
			Workers: 2,
		},
		Logging: LoggingConfig{
			Level: "error",
		},
	}
}

// LoadFromEnv loads configuration from SEARCHTWEETS_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = n
	}

	setString("ENDPOINT", &c.API.Endpoint)
	setString("METHOD", &c.API.Method)
	setString("ACCOUNT", &c.Credentials.Account)
	setString("CREDENTIAL_FILE", &c.Credentials.File)
	setString("QUERY", &c.Query.Query)
	setInt("RESULTS_PER_CALL", &c.Query.ResultsPerCall)
	setInt("MAX_TWEETS", &c.Limits.MaxTweets)
	setInt("MAX_PAGES", &c.Limits.MaxPages)
	setString("OUTPUT_FORMAT", &c.Output.Format)
	setString("FILENAME_PREFIX", &c.Output.FilenamePrefix)
	setInt("RESULTS_PER_FILE", &c.Output.ResultsPerFile)
	setInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setInt("WORKERS", &c.Runner.Workers)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	if v := os.Getenv(envPrefix + "TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".searchtweets.yaml",
		".searchtweets.yml",
		filepath.Join(home, ".config", "searchtweets", "config.yaml"),
		filepath.Join(home, ".config", "searchtweets", "config.yml"),
		filepath.Join(home, ".searchtweets.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is consistent
func (c *Config) Validate() error {
	var errs []error

	switch c.Output.Format {
	case "a", "r", "m":
	default:
		errs = append(errs, fmt.Errorf("invalid output format %q (want a, r or m)", c.Output.Format))
	}
	if c.Limits.MaxTweets < 0 {
		errs = append(errs, errors.New("max tweets cannot be negative"))
	}
	if c.Limits.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	if c.Output.ResultsPerFile < 0 {
		errs = append(errs, errors.New("results per file cannot be negative"))
	}
	if c.Query.ResultsPerCall < 0 {
		errs = append(errs, errors.New("results per call cannot be negative"))
	}
	if g := c.Query.Granularity; g != "" && g != "day" && g != "hour" && g != "minute" {
		errs = append(errs, fmt.Errorf("invalid granularity %q", g))
	}
	if m := strings.ToUpper(c.API.Method); m != "" && m != "GET" && m != "POST" {
		errs = append(errs, fmt.Errorf("invalid request method %q", c.API.Method))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.Runner.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// RequireSearch checks the keys a search run cannot do without.
func (c *Config) RequireSearch() error {
	var missing []string
	if strings.TrimSpace(c.Query.Query) == "" {
		missing = append(missing, "query")
	}
	if c.API.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("not enough arguments to run a search, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys are flag names; only flags the user actually set should be present.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	str := func(key string, dst *string) {
		if v, ok := flags[key].(string); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := flags[key].(int); ok {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := flags[key].(bool); ok {
			*dst = v
		}
	}

	str("endpoint", &c.API.Endpoint)
	str("method", &c.API.Method)
	str("token-key", &c.API.TokenKey)
	if headers, ok := flags["extra-headers"].(map[string]string); ok {
		c.API.ExtraHeaders = headers
	}

	str("credential-file", &c.Credentials.File)
	str("credential-file-key", &c.Credentials.YAMLKey)
	flag("env-overwrite", &c.Credentials.EnvOverwrite)
	str("account", &c.Credentials.Account)

	str("query", &c.Query.Query)
	str("start-time", &c.Query.StartTime)
	str("end-time", &c.Query.EndTime)
	str("since-id", &c.Query.SinceID)
	str("until-id", &c.Query.UntilID)
	num("results-per-call", &c.Query.ResultsPerCall)
	str("granularity", &c.Query.Granularity)
	str("expansions", &c.Query.Expansions)
	str("tweet-fields", &c.Query.TweetFields)
	str("user-fields", &c.Query.UserFields)
	str("media-fields", &c.Query.MediaFields)
	str("place-fields", &c.Query.PlaceFields)
	str("poll-fields", &c.Query.PollFields)

	num("max-tweets", &c.Limits.MaxTweets)
	num("max-pages", &c.Limits.MaxPages)

	str("output-format", &c.Output.Format)
	if atomic, ok := flags["atomic"].(bool); ok && atomic {
		c.Output.Format = "a"
	}
	str("filename-prefix", &c.Output.FilenamePrefix)
	num("results-per-file", &c.Output.ResultsPerFile)
	flag("print-stream", &c.Output.PrintStream)

	num("requests-per-minute", &c.RateLimit.RequestsPerMinute)
	flag("checkpoint", &c.Checkpoint.Enabled)
	flag("resume", &c.Checkpoint.Resume)
	flag("trace", &c.Telemetry.Enabled)
	num("workers", &c.Runner.Workers)

	str("log-level", &c.Logging.Level)
	if debug, ok := flags["debug"].(bool); ok && debug {
		c.Logging.Level = "debug"
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".searchtweets.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
