package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"searchtweets/pkg/auth"
	"searchtweets/pkg/config"
	"searchtweets/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage searchtweets configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (SEARCHTWEETS_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.searchtweets.yaml' in the current directory unless
a different path is given with --config.`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged configuration with secrets masked",
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd, showCmd, validateCmd)
}

const exampleConfig = `# searchtweets configuration
#
# Every key can also be set with a SEARCHTWEETS_ environment variable,
# for example SEARCHTWEETS_QUERY or SEARCHTWEETS_MAX_TWEETS.
# Secrets do not belong here; see 'searchtweets auth guide'.

api:
  # Search or counts endpoint; taken from the credentials when empty.
  endpoint: "https://api.twitter.com/2/tweets/search/recent"
  # GET for v2 endpoints and POST otherwise when empty.
  method: ""
  extra_headers: {}

credentials:
  file: "~/.twitter_keys.yaml"
  yaml_key: "search_tweets_v2"
  env_overwrite: true
  # Name of an account stored with 'searchtweets auth login'.
  account: ""

query:
  query: ""
  start_time: ""
  end_time: ""
  results_per_call: 100
  # day, hour or minute switches to the counts endpoint.
  granularity: ""
  expansions: ""
  tweet_fields: ""
  user_fields: ""

limits:
  # 0 means no limit.
  max_tweets: 500
  max_pages: 0

output:
  # a: atomic tweets, r: raw response pages, m: messages.
  format: "a"
  filename_prefix: ""
  results_per_file: 0
  print_stream: true

rate_limit:
  # 0 disables client-side pacing.
  requests_per_minute: 0
  burst_size: 1

checkpoint:
  enabled: false
  resume: false

telemetry:
  enabled: false
  service_name: "searchtweets"

runner:
  workers: 2

logging:
  # debug, info, warn, error or disabled.
  level: "error"
  # text or json.
  format: "text"
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".searchtweets.yaml"
	}
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	ui.PrintInfo("Next", "run 'searchtweets config validate', then 'searchtweets search'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(auth.FilterSensitive(configFields(cfg)))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Query.Query == "" {
		warnings = append(warnings, "no query configured; pass --query to search")
	}
	if cfg.API.Endpoint == "" {
		warnings = append(warnings, "no endpoint configured; it must come from the credentials")
	}
	if _, err := auth.LoadCredentials(auth.LoadOptions{
		File:         cfg.Credentials.File,
		YAMLKey:      cfg.Credentials.YAMLKey,
		EnvOverwrite: cfg.Credentials.EnvOverwrite,
	}); err != nil && cfg.Credentials.Account == "" {
		warnings = append(warnings, "credentials: "+err.Error())
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}
	ui.PrintSuccess("Configuration is valid")
	return nil
}
