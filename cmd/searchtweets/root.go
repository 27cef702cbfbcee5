package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"searchtweets/pkg/auth"
	"searchtweets/pkg/config"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/ui"
)

var (
	// Version information
	version   = "0.4.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	debug      bool
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "searchtweets",
	Short: "Page through tweet search and counts endpoints",
	Long: `searchtweets pulls every page of a tweet search or counts query and
streams the results as line-delimited JSON.

Features:
  - v2 recent and full-archive search, premium and enterprise endpoints
  - Automatic next-token pagination with item and page caps
  - Retry with backoff on rate limits and server errors
  - Includes merged into each tweet (atomic output)
  - Chunked file output, resumable checkpoints
  - Credentials from a YAML file, the environment or the system keychain`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version
		ui.SetNoColor(noColor)
		ui.SetQuietMode(quiet)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.searchtweets.yaml or ~/.config/searchtweets/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print all info and warning messages")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress status output except errors")

	rootCmd.SetVersionTemplate(`searchtweets {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// changedFlags collects the flags the user set on the command line, keyed
// by flag name, in the shape config.MergeCommandLineFlags expects.
func changedFlags(cmd *cobra.Command) (map[string]interface{}, error) {
	flags := make(map[string]interface{})
	var errs []error

	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "int":
			v, err := cmd.Flags().GetInt(f.Name)
			if err != nil {
				errs = append(errs, err)
				return
			}
			flags[f.Name] = v
		case "bool":
			v, err := cmd.Flags().GetBool(f.Name)
			if err != nil {
				errs = append(errs, err)
				return
			}
			flags[f.Name] = v
		default:
			flags[f.Name] = f.Value.String()
		}
	})
	if len(errs) > 0 {
		return nil, errs[0]
	}

	if raw, ok := flags["extra-headers"].(string); ok {
		headers := make(map[string]string)
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return nil, fmt.Errorf("--extra-headers must be a JSON object of strings: %w", err)
		}
		flags["extra-headers"] = headers
	}
	return flags, nil
}

// loadConfig merges every configuration source and sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags, err := changedFlags(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithFields(auth.FilterSensitive(configFields(cfg))).Debug("configuration loaded")
	return cfg, nil
}

// configFields flattens cfg into a field map for logging.
func configFields(cfg *config.Config) map[string]interface{} {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}
