package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCredentialGuide writes instructions for obtaining search API
// credentials and laying out the credential file.
func ShowCredentialGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "SEARCH API CREDENTIALS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Get a bearer token")
	fmt.Fprintln(w, "   - Sign in to the developer portal at https://developer.twitter.com")
	fmt.Fprintln(w, "   - Create a project and an app")
	fmt.Fprintln(w, "   - Under 'Keys and tokens', generate the app's Bearer Token")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Pick an endpoint")
	fmt.Fprintln(w, "   v2 recent search:   https://api.twitter.com/2/tweets/search/recent")
	fmt.Fprintln(w, "   v2 full archive:    https://api.twitter.com/2/tweets/search/all")
	fmt.Fprintln(w, "   premium 30 day:     https://api.twitter.com/1.1/tweets/search/30day/<env>.json")
	fmt.Fprintln(w, "   Append /counts to a v2 endpoint (or use counts.json) for counts.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Save the credentials")
	fmt.Fprintf(w, "   Either write %s:\n\n", DefaultCredentialFile)
	fmt.Fprintf(w, "   %s:\n", DefaultYAMLKey)
	fmt.Fprintln(w, "     endpoint: https://api.twitter.com/2/tweets/search/recent")
	fmt.Fprintln(w, "     bearer_token: <YOUR_TOKEN>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   or export the environment:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   export SEARCHTWEETS_ENDPOINT=https://api.twitter.com/2/tweets/search/recent")
	fmt.Fprintln(w, "   export SEARCHTWEETS_BEARER_TOKEN=<YOUR_TOKEN>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   or store them in the system keychain with 'searchtweets auth login'.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Enterprise accounts use username and password instead of a token:")
	fmt.Fprintln(w, "   SEARCHTWEETS_USERNAME, SEARCHTWEETS_PASSWORD, SEARCHTWEETS_ENDPOINT")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SECURITY: treat the bearer token like a password. Never commit it.")
	fmt.Fprintln(w, rule)
}
