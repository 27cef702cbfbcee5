package stream

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"searchtweets/pkg/api"
	"searchtweets/pkg/expand"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/ratelimit"
	"searchtweets/pkg/retry"
	"searchtweets/pkg/session"
)

// FullArchivePause is waited before every follow-up request to a
// full-archive endpoint, on top of any retry backoff.
const FullArchivePause = 2 * time.Second

// State is where a stream is in its life cycle.
type State int

const (
	StateCreated State = iota
	StateSessionOpen
	StateRequesting
	StateEmitting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSessionOpen:
		return "session_open"
	case StateRequesting:
		return "requesting"
	case StateEmitting:
		return "emitting"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats is a snapshot of a stream's counters.
type Stats struct {
	ID             string
	State          State
	RequestsIssued int
	TotalEmitted   int
	NextToken      string
}

// PageInfo describes a page that was just fetched and buffered.
type PageInfo struct {
	StreamID       string
	Endpoint       string
	Payload        api.Params
	NextToken      string
	Items          int
	RequestsIssued int
	TotalEmitted   int
}

// Option configures a Stream
type Option func(*Stream)

// WithExecutor replaces the default request executor.
func WithExecutor(e *api.Executor) Option {
	return func(s *Stream) { s.exec = e }
}

// WithLogger sets the stream logger
func WithLogger(l logger.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithRequestCounter adds every request this stream issues to counter.
// Several streams may share one counter.
func WithRequestCounter(counter *atomic.Int64) Option {
	return func(s *Stream) { s.counter = counter }
}

// WithLimiter makes each request wait on l first.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Stream) { s.limiter = l }
}

// WithSleep replaces how the stream (and its default executor) sleeps.
func WithSleep(f retry.SleepFunc) Option {
	return func(s *Stream) { s.sleep = f }
}

// WithPageHook registers a callback run after each page is buffered.
func WithPageHook(f func(PageInfo)) Option {
	return func(s *Stream) { s.pageHook = f }
}

// WithResumeToken starts the stream from a saved next-page token.
func WithResumeToken(token string) Option {
	return func(s *Stream) { s.nextToken = token }
}

// WithTracer sets the tracer used for page spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Stream) { s.tracer = t }
}

// WithSessionOptions passes options through to session.Open.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Stream) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

type pending struct {
	msg   Message
	items int
}

// Stream pages through a search endpoint and emits results one at a time.
// Network I/O only happens inside Next, and only once the current page's
// buffered messages are used up. A Stream is driven by one goroutine.
type Stream struct {
	cfg Config
	id  string

	exec        *api.Executor
	logger      logger.Logger
	counter     *atomic.Int64
	limiter     ratelimit.Limiter
	sleep       retry.SleepFunc
	pageHook    func(PageInfo)
	tracer      trace.Tracer
	sessionOpts []session.Option

	mu        sync.Mutex
	state     State
	sess      *session.Session
	payload   api.Params
	nextToken string
	buf       []pending
	requests  int
	emitted   int
	err       error
}

// New creates a stream. Nothing is validated or sent until the first Next.
func New(cfg Config, opts ...Option) *Stream {
	s := &Stream{
		cfg:   cfg.withDefaults(),
		id:    uuid.NewString(),
		sleep: retry.Wait,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(s.logger).WithFields(map[string]interface{}{
		"component": "stream",
		"stream_id": s.id,
	})
	if s.tracer == nil {
		s.tracer = otel.Tracer("searchtweets/stream")
	}
	if s.exec == nil {
		s.exec = api.NewExecutor(
			api.WithExecutorLogger(s.logger),
			api.WithSleep(s.sleep),
			api.WithTracer(s.tracer),
		)
	}
	s.payload = s.cfg.Payload.Clone()
	return s
}

// ID is the stream's log correlation id.
func (s *Stream) ID() string { return s.id }

// Stats returns the current counters.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ID:             s.id,
		State:          s.state,
		RequestsIssued: s.requests,
		TotalEmitted:   s.emitted,
		NextToken:      s.nextToken,
	}
}

// Next returns the next message. ok is false once the stream has ended;
// err is then the error that ended it, or nil for a normal finish.
func (s *Stream) Next(ctx context.Context) (msg Message, ok bool, err error) {
	for {
		if len(s.buf) > 0 {
			return s.pop(), true, nil
		}

		switch s.currentState() {
		case StateTerminated:
			return Message{}, false, s.err
		case StateCreated:
			if err := s.open(); err != nil {
				s.terminate(err)
				return Message{}, false, err
			}
		default:
			if !s.wantsPage() {
				s.terminate(nil)
				continue
			}
			if err := s.fetch(ctx); err != nil {
				s.terminate(err)
				return Message{}, false, err
			}
		}
	}
}

// All ranges over the stream's messages. Breaking out of the loop closes
// the stream. A terminating error is yielded once as the last pair.
func (s *Stream) All(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		defer s.Close()
		for {
			msg, ok, err := s.Next(ctx)
			if err != nil {
				yield(Message{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Close ends the stream and releases its session. It is safe to call more
// than once and after the stream finished on its own.
func (s *Stream) Close() error {
	if s.currentState() == StateTerminated {
		return nil
	}
	s.buf = nil
	s.terminate(nil)
	return nil
}

func (s *Stream) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Stream) open() error {
	if err := s.cfg.Validate(); err != nil {
		s.logger.WithError(err).Error("invalid stream configuration")
		return err
	}
	opts := append([]session.Option{session.WithLogger(s.logger)}, s.sessionOpts...)
	sess, err := session.Open(s.cfg.Credential, s.cfg.ExtraHeaders, opts...)
	if err != nil {
		return err
	}
	s.sess = sess
	s.setState(StateSessionOpen)
	s.logger.DebugWithFields("stream started", map[string]interface{}{
		"endpoint":     s.cfg.Endpoint,
		"method":       s.cfg.Method,
		"mode":         s.cfg.Mode.String(),
		"max_items":    s.cfg.MaxItems,
		"max_requests": s.cfg.MaxRequests,
	})
	return nil
}

// capsOpen reports whether neither cap has been reached.
func (s *Stream) capsOpen() bool {
	if s.cfg.MaxItems > 0 && s.emitted >= s.cfg.MaxItems {
		return false
	}
	if s.cfg.MaxRequests > 0 && s.requests >= s.cfg.MaxRequests {
		return false
	}
	return true
}

// wantsPage reports whether another request should be issued. The first
// request always goes out unless a cap is already met.
func (s *Stream) wantsPage() bool {
	if !s.capsOpen() {
		return false
	}
	return s.requests == 0 || s.nextToken != ""
}

func (s *Stream) fetch(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "searchtweets.page", trace.WithAttributes(
		attribute.String("searchtweets.stream_id", s.id),
		attribute.Int("searchtweets.page", s.requests+1),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.setState(StateRequesting)

	if s.requests > 0 && api.IsFullArchive(s.cfg.Endpoint) {
		if err := s.sleep(ctx, FullArchivePause); err != nil {
			return err
		}
	}
	if session.NeedsRefresh(s.requests) {
		s.sess.Refresh()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload := s.payload
	if s.nextToken != "" {
		payload = payload.With(s.cfg.TokenKey, s.nextToken)
	}

	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	if s.counter != nil {
		s.counter.Add(1)
	}

	resp, err := s.exec.Execute(ctx, s.sess, s.cfg.Method, s.cfg.Endpoint, payload)
	if err != nil {
		return err
	}
	page, err := api.ParsePage(resp.Body)
	if err != nil {
		s.logger.ErrorWithFields("malformed response, ending stream", map[string]interface{}{
			"error":        err.Error(),
			"body_preview": string(resp.Body[:min(len(resp.Body), 200)]),
		})
		return err
	}

	s.payload = payload
	s.mu.Lock()
	s.nextToken = page.NextToken
	s.mu.Unlock()

	items := s.buffer(page)
	s.setState(StateEmitting)
	span.SetAttributes(attribute.Int("searchtweets.items", items))

	logger.LogStreamProgress(s.logger, s.emitted, s.requests, page.NextToken != "")
	if s.pageHook != nil {
		s.pageHook(PageInfo{
			StreamID:       s.id,
			Endpoint:       s.cfg.Endpoint,
			Payload:        payload,
			NextToken:      page.NextToken,
			Items:          items,
			RequestsIssued: s.requests,
			TotalEmitted:   s.emitted + items,
		})
	}

	// Nothing further will be requested, so the session can go now rather
	// than after the caller drains the buffer.
	if !s.moreAfter(items) {
		s.closeSession()
	}
	return nil
}

// moreAfter reports whether a request would follow once items more have
// been emitted.
func (s *Stream) moreAfter(items int) bool {
	if s.nextToken == "" {
		return false
	}
	if s.cfg.MaxItems > 0 && s.emitted+items >= s.cfg.MaxItems {
		return false
	}
	if s.cfg.MaxRequests > 0 && s.requests >= s.cfg.MaxRequests {
		return false
	}
	return true
}

// buffer queues the page's messages, truncated to the remaining item
// allowance, and returns how many items were queued.
func (s *Stream) buffer(page *api.Page) int {
	data := page.Data
	if s.cfg.MaxItems > 0 {
		if left := s.cfg.MaxItems - s.emitted; len(data) > left {
			data = data[:left]
		}
	}

	switch s.cfg.Mode {
	case RawPage:
		raw := make(map[string]interface{}, len(page.Raw))
		for k, v := range page.Raw {
			raw[k] = v
		}
		if len(data) != len(page.Data) {
			list := make([]interface{}, len(data))
			for i, item := range data {
				list[i] = item
			}
			raw[page.ItemsKey()] = list
		}
		s.buf = append(s.buf, pending{msg: Message{Kind: KindPage, Data: raw}, items: len(data)})

	case MessageStream:
		for _, item := range data {
			s.buf = append(s.buf, pending{msg: Message{Kind: KindItem, Data: item}, items: 1})
		}
		if page.Includes != nil {
			s.buf = append(s.buf, pending{msg: Message{Kind: KindIncludes, Data: page.Includes}})
		}
		if page.Meta != nil {
			s.buf = append(s.buf, pending{msg: Message{Kind: KindMeta, Data: page.Meta}})
		}

	default:
		var tables *expand.Tables
		if page.Includes != nil && !api.IsCountsEndpoint(s.cfg.Endpoint) {
			tables = expand.NewTables(page.Includes)
		}
		for _, item := range data {
			if tables != nil {
				item = tables.Expand(item)
			}
			s.buf = append(s.buf, pending{msg: Message{Kind: KindItem, Data: item}, items: 1})
		}
	}
	return len(data)
}

func (s *Stream) pop() Message {
	next := s.buf[0]
	s.buf[0] = pending{}
	s.buf = s.buf[1:]
	s.mu.Lock()
	s.emitted += next.items
	s.mu.Unlock()
	return next.msg
}

func (s *Stream) closeSession() {
	if s.sess != nil {
		s.sess.Close()
	}
}

func (s *Stream) terminate(err error) {
	s.closeSession()
	s.mu.Lock()
	already := s.state == StateTerminated
	s.state = StateTerminated
	if !already {
		s.err = err
	}
	s.mu.Unlock()
	if already {
		return
	}

	fields := map[string]interface{}{
		"requests_issued": s.requests,
		"total_emitted":   s.emitted,
	}
	if err != nil {
		s.logger.WithError(err).ErrorWithFields("stream ended with error", fields)
		return
	}
	s.logger.InfoWithFields("stream finished", fields)
}
