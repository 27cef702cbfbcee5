package session

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/logger"
)

// RefreshInterval is how many requests a session serves before it is rebuilt.
const RefreshInterval = 20

// Version is reported in the User-Agent header.
var Version = "0.4.0"

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("session closed")

// reserved headers are owned by the session and cannot be overridden by extra headers.
var reserved = map[string]bool{
	"Authorization": true,
	"User-Agent":    true,
}

// Credential authenticates a session: a bearer token, or username and password.
type Credential struct {
	BearerToken string
	Username    string
	Password    string
}

// Validate fails with a configuration error when no usable credential is present.
func (c Credential) Validate() error {
	if c.BearerToken != "" {
		return nil
	}
	if c.Password == "" {
		return errs.NewConfigurationError("no authentication information provided: need a bearer token or username and password")
	}
	if c.Username == "" {
		return errs.NewConfigurationError("password given without a username")
	}
	return nil
}

// Kind is "bearer" or "basic".
func (c Credential) Kind() string {
	if c.BearerToken != "" {
		return "bearer"
	}
	return "basic"
}

// Session owns an HTTP client plus the headers and auth that go on every request.
// A session belongs to one stream; it is not shared.
type Session struct {
	mu        sync.Mutex
	cred      Credential
	headers   http.Header
	newClient func() *http.Client
	client    *http.Client
	timeout   time.Duration
	closed    bool
	refreshes int
	logger    logger.Logger
}

// Option configures a Session
type Option func(*Session)

// WithHTTPClientFactory replaces how the underlying client is built on open and refresh.
func WithHTTPClientFactory(f func() *http.Client) Option {
	return func(s *Session) { s.newClient = f }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Open validates the credential and builds a session. No network I/O happens here.
func Open(cred Credential, extraHeaders map[string]string, opts ...Option) (*Session, error) {
	s := &Session{
		cred:    cred,
		headers: make(http.Header),
		timeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(s.logger).WithField("component", "session")
	if s.newClient == nil {
		s.newClient = s.defaultClient
	}

	if err := cred.Validate(); err != nil {
		s.logger.WithError(err).Error("cannot open session")
		return nil, err
	}

	s.headers.Set("Accept-Encoding", "gzip")
	s.headers.Set("User-Agent", "searchtweets-go/"+Version)
	if cred.BearerToken != "" {
		s.logger.Info("using bearer token for authentication")
		s.headers.Set("Authorization", "Bearer "+cred.BearerToken)
	} else {
		s.logger.Info("using username and password for authentication")
	}

	for key, value := range extraHeaders {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if reserved[canonical] {
			s.logger.WarnWithFields("ignoring extra header that would override a session header", map[string]interface{}{
				"header": canonical,
			})
			continue
		}
		s.headers.Set(canonical, value)
	}

	s.client = s.newClient()
	return s, nil
}

func (s *Session) defaultClient() *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Timeout:   s.timeout,
		Transport: otelhttp.NewTransport(base),
	}
}

// Do sends req with the session headers and auth applied.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	client := s.client
	for key, values := range s.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	if s.cred.BearerToken == "" {
		req.SetBasicAuth(s.cred.Username, s.cred.Password)
	}
	s.mu.Unlock()

	return client.Do(req)
}

// Refresh drops the current client's connections and builds a new one.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.client.CloseIdleConnections()
	s.client = s.newClient()
	s.refreshes++
	s.logger.Info("refreshing session")
}

// Refreshes reports how many times Refresh rebuilt the client.
func (s *Session) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Headers returns a copy of the headers applied to every request.
func (s *Session) Headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers.Clone()
}

// Close releases the client's connections. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// NeedsRefresh reports whether a session that has served requestsIssued
// requests should be rebuilt before the next one.
func NeedsRefresh(requestsIssued int) bool {
	return requestsIssued > 1 && requestsIssued%RefreshInterval == 0
}
