package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"searchtweets/pkg/config"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/logger"
)

// Defaults for the credential file.
const (
	DefaultCredentialFile = "~/.twitter_keys.yaml"
	DefaultYAMLKey        = "search_tweets_v2"
)

// credentialEnv maps SEARCHTWEETS_* variables onto credential file keys.
var credentialEnv = map[string]string{
	"SEARCHTWEETS_ENDPOINT":     "endpoint",
	"SEARCHTWEETS_ACCOUNT":      "account",
	"SEARCHTWEETS_USERNAME":     "username",
	"SEARCHTWEETS_PASSWORD":     "password",
	"SEARCHTWEETS_BEARER_TOKEN": "bearer_token",
	"SEARCHTWEETS_ACCOUNT_TYPE": "account_type",
}

// LoadOptions control where LoadCredentials looks.
type LoadOptions struct {
	// File is the YAML credential file; "~" is expanded.
	File string
	// YAMLKey selects the top-level entry in File.
	YAMLKey string
	// AccountType forces "premium" or "enterprise" instead of inferring it.
	AccountType string
	// EnvOverwrite lets SEARCHTWEETS_* variables win over the file.
	EnvOverwrite bool
	Logger       logger.Logger
}

// LoadCredentials reads an account from a YAML credential file of the form
//
//	search_tweets_v2:
//	  endpoint: https://api.twitter.com/2/tweets/search/recent
//	  bearer_token: <TOKEN>
//
// merged with SEARCHTWEETS_* environment variables. A missing file or key is
// not an error by itself; the environment may still supply everything.
func LoadCredentials(opts LoadOptions) (*Account, error) {
	if opts.File == "" {
		opts.File = DefaultCredentialFile
	}
	if opts.YAMLKey == "" {
		opts.YAMLKey = DefaultYAMLKey
	}
	log := logger.OrGlobal(opts.Logger).WithField("component", "auth")

	fileVars, err := loadYAMLCredentials(opts.File, opts.YAMLKey)
	if err != nil {
		log.WithError(err).Warn("error parsing YAML file; searching for valid environment variables")
		fileVars = map[string]string{}
	}
	envVars := loadEnvCredentials()

	merged := make(map[string]string, len(fileVars)+len(envVars))
	first, second := envVars, fileVars
	if opts.EnvOverwrite {
		first, second = fileVars, envVars
	}
	for k, v := range first {
		merged[k] = v
	}
	for k, v := range second {
		merged[k] = v
	}

	account, err := parseCredentials(merged, opts.AccountType)
	if err != nil {
		log.WithError(err).Error("credentials are not configured correctly")
		return nil, err
	}
	account.Name = opts.YAMLKey
	log.WithFields(map[string]interface{}{
		"account_type": account.AccountType,
		"endpoint":     account.Endpoint,
	}).Debug("credentials loaded")
	return account, nil
}

func loadYAMLCredentials(file, key string) (map[string]string, error) {
	data, err := os.ReadFile(config.ExpandHome(file))
	if err != nil {
		return nil, fmt.Errorf("cannot read file %s: %w", file, err)
	}

	var doc map[string]map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", file, err)
	}
	entry, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("%s is missing the provided key: %s", file, key)
	}
	return entry, nil
}

func loadEnvCredentials() map[string]string {
	out := make(map[string]string)
	for env, key := range credentialEnv {
		if v := os.Getenv(env); v != "" {
			out[key] = v
		}
	}
	return out
}

func parseCredentials(vars map[string]string, accountType string) (*Account, error) {
	if accountType == "" {
		accountType = vars["account_type"]
	}
	if accountType == "" {
		switch {
		case vars["bearer_token"] != "":
			accountType = AccountPremium
		case vars["password"] != "":
			accountType = AccountEnterprise
		}
	}
	accountType = strings.ToLower(accountType)

	account := &Account{Endpoint: vars["endpoint"], AccountType: accountType}
	var required []string
	switch accountType {
	case AccountPremium:
		account.BearerToken = vars["bearer_token"]
		required = []string{"bearer_token", "endpoint"}
	case AccountEnterprise:
		account.Username = vars["username"]
		account.Password = vars["password"]
		required = []string{"username", "password", "endpoint"}
	default:
		return nil, errs.NewConfigurationError("account type is not specified and cannot be inferred; it must be 'premium' or 'enterprise'")
	}

	var missing []string
	for _, key := range required {
		if vars[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errs.NewConfigurationError("credentials are missing required fields: " + strings.Join(missing, ", "))
	}
	return account, nil
}
