package stream

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"searchtweets/pkg/api"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/session"
)

// Mode selects what a stream emits for each page.
type Mode int

const (
	// AtomicExpanded emits each item with its includes merged in.
	AtomicExpanded Mode = iota
	// RawPage emits each page's whole response object once.
	RawPage
	// MessageStream emits each item, then the page's includes and meta.
	MessageStream
)

func (m Mode) String() string {
	switch m {
	case AtomicExpanded:
		return "atomic"
	case RawPage:
		return "raw"
	case MessageStream:
		return "message"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the short CLI forms "a", "r" and "m" or the long names.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "a", "atomic":
		return AtomicExpanded, nil
	case "r", "raw":
		return RawPage, nil
	case "m", "message":
		return MessageStream, nil
	default:
		return 0, errs.NewConfigurationError(fmt.Sprintf("unknown output format %q (want a, r or m)", s))
	}
}

// Config is everything one stream needs. It is treated as immutable once
// handed to New.
type Config struct {
	Endpoint     string
	Payload      api.Params
	Credential   session.Credential
	ExtraHeaders map[string]string

	// Method defaults to GET for v2 endpoints and POST otherwise.
	Method string
	// TokenKey is the payload key the next-page token is sent under.
	TokenKey string

	// MaxItems and MaxRequests cap the stream; 0 means no cap.
	MaxItems    int
	MaxRequests int

	Mode Mode
}

func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = api.DefaultMethod(c.Endpoint)
	}
	c.Method = strings.ToUpper(c.Method)
	if c.TokenKey == "" {
		c.TokenKey = api.DefaultTokenKey(c.Endpoint)
	}
	if c.Payload == nil {
		c.Payload = api.Params{}
	}
	return c
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var problems []error
	if c.Endpoint == "" {
		problems = append(problems, errors.New("endpoint is required"))
	} else if u, err := url.Parse(c.Endpoint); err != nil || u.Host == "" {
		problems = append(problems, fmt.Errorf("endpoint %q is not an absolute URL", c.Endpoint))
	}
	if c.MaxItems < 0 {
		problems = append(problems, errors.New("max items cannot be negative"))
	}
	if c.MaxRequests < 0 {
		problems = append(problems, errors.New("max requests cannot be negative"))
	}
	if c.Method != "" && !strings.EqualFold(c.Method, http.MethodGet) && !strings.EqualFold(c.Method, http.MethodPost) {
		problems = append(problems, fmt.Errorf("method %q is not GET or POST", c.Method))
	}
	if c.Mode < AtomicExpanded || c.Mode > MessageStream {
		problems = append(problems, fmt.Errorf("unknown mode %d", int(c.Mode)))
	}
	if c.Endpoint != "" {
		if err := api.ValidateCountAPI(c.Payload, c.Endpoint); err != nil {
			problems = append(problems, err)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errs.NewConfigurationError(errors.Join(problems...).Error())
}
