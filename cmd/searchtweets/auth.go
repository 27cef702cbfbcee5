package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"searchtweets/pkg/auth"
	"searchtweets/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage search API credentials",
	Long: `Manage stored search API credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - SEARCHTWEETS_* environment variables (read only)

A YAML credential file (~/.twitter_keys.yaml) works without any of these.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store credentials securely",
	Long: `Store a bearer token (premium and v2) or a username and password
(enterprise) in the system keychain or the encrypted file.`,
	Example: `  # Interactive login
  searchtweets auth login

  # Store an enterprise account under a name
  searchtweets auth login work --account-type enterprise`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <name>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"status"},
	Short:   "List stored accounts with secrets masked",
	RunE:    runList,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Show how to obtain and configure credentials",
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowCredentialGuide(cmd.OutOrStdout())
	},
}

var (
	loginAccountType string
	loginEndpoint    string
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, guideCmd)

	loginCmd.Flags().StringVar(&loginAccountType, "account-type", auth.AccountPremium, "premium (bearer token) or enterprise (username and password)")
	loginCmd.Flags().StringVar(&loginEndpoint, "endpoint", "", "endpoint to store with the account")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)

	name := auth.DefaultYAMLKey
	if len(args) > 0 {
		name = args[0]
	}
	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Fprintf(os.Stderr, "Account '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	endpoint := loginEndpoint
	if endpoint == "" {
		fmt.Fprint(os.Stderr, "Endpoint (Enter for v2 recent search): ")
		input, _ := reader.ReadString('\n')
		endpoint = strings.TrimSpace(input)
		if endpoint == "" {
			endpoint = "https://api.twitter.com/2/tweets/search/recent"
		}
	}

	account := &auth.Account{
		Name:        name,
		Endpoint:    endpoint,
		AccountType: strings.ToLower(loginAccountType),
	}
	switch account.AccountType {
	case auth.AccountPremium:
		fmt.Fprint(os.Stderr, "Bearer token (hidden): ")
		if account.BearerToken, err = readSecret(reader); err != nil {
			return fmt.Errorf("failed to read bearer token: %w", err)
		}
	case auth.AccountEnterprise:
		fmt.Fprint(os.Stderr, "Username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		account.Username = strings.TrimSpace(input)
		fmt.Fprint(os.Stderr, "Password (hidden): ")
		if account.Password, err = readSecret(reader); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	default:
		return fmt.Errorf("unknown account type %q", loginAccountType)
	}

	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", name))
	fmt.Fprintf(os.Stderr, "\nUse it with:\n  searchtweets search --account %s --query \"...\"\n", name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'searchtweets auth login' to add one")
		return nil
	}

	out := cmd.OutOrStdout()
	for i, account := range accounts {
		clean := auth.SanitizeAccount(account)
		fmt.Fprintf(out, "%d. %s (%s)\n", i+1, clean.Name, clean.AccountType)
		fmt.Fprintf(out, "   Endpoint: %s\n", clean.Endpoint)
		if clean.BearerToken != "" {
			fmt.Fprintf(out, "   Bearer token: %s\n", clean.BearerToken)
		}
		if clean.Username != "" {
			fmt.Fprintf(out, "   Username: %s\n   Password: %s\n", clean.Username, clean.Password)
		}
		fmt.Fprintf(out, "   Last modified: %s\n", clean.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
