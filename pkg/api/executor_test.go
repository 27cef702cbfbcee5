package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"searchtweets/internal/testutil"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/session"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func openSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.Open(session.Credential{BearerToken: "tok"}, nil, session.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func newTestExecutor(rec *sleepRecorder, l logger.Logger) *Executor {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return NewExecutor(WithSleep(rec.sleep), WithExecutorLogger(l))
}

// statusSequence serves the given statuses in order, then 200s.
func statusSequence(t *testing.T, statuses []int, okBody string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"title":"error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestExecuteRetriesRateLimitOnce(t *testing.T) {
	okBody := `{"data":[{"id":"1"}],"meta":{"result_count":1}}`
	server, calls := statusSequence(t, []int{http.StatusTooManyRequests}, okBody)

	rec := &sleepRecorder{}
	tl := logger.NewTestLogger()
	resp, err := newTestExecutor(rec, tl).Execute(context.Background(), openSession(t), http.MethodGet, server.URL, Params{"query": "x"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	require.Len(t, rec.delays, 1)
	assert.GreaterOrEqual(t, rec.delays[0], 30*time.Second)
	assert.Equal(t, okBody, string(resp.Body))
	assert.Equal(t, 2, resp.Attempts)

	errorsLogged := tl.GetMessagesByLevel("ERROR")
	require.NotEmpty(t, errorsLogged)
	assert.Equal(t, 429, errorsLogged[0].Fields["status_code"])
	assert.Equal(t, "{query: x}", errorsLogged[0].Fields["payload"])
}

func TestExecuteNotFoundIsFatal(t *testing.T) {
	server, calls := statusSequence(t, []int{http.StatusNotFound}, "{}")

	rec := &sleepRecorder{}
	_, err := newTestExecutor(rec, nil).Execute(context.Background(), openSession(t), http.MethodGet, server.URL, Params{})
	require.Error(t, err)

	assert.True(t, errs.IsHTTP(err))
	assert.Equal(t, 404, errs.StatusCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, rec.delays)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, `{"title":"error"}`, apiErr.Body)
}

func TestExecuteServerErrorsExhaustBudget(t *testing.T) {
	statuses := make([]int, 20)
	for i := range statuses {
		statuses[i] = http.StatusServiceUnavailable
	}
	server, calls := statusSequence(t, statuses, "{}")

	rec := &sleepRecorder{}
	_, err := newTestExecutor(rec, nil).Execute(context.Background(), openSession(t), http.MethodGet, server.URL, Params{})
	require.Error(t, err)

	assert.True(t, errs.IsHTTP(err))
	assert.Equal(t, 503, errs.StatusCode(err))
	assert.Equal(t, int32(MaxAttempts), atomic.LoadInt32(calls))
	require.Len(t, rec.delays, MaxAttempts-1)
	for _, d := range rec.delays {
		assert.Equal(t, 30*time.Second, d)
	}
}

func TestExecuteRateLimitBudget(t *testing.T) {
	statuses := make([]int, 20)
	for i := range statuses {
		statuses[i] = http.StatusTooManyRequests
	}
	server, _ := statusSequence(t, statuses, "{}")

	rec := &sleepRecorder{}
	_, err := newTestExecutor(rec, nil).Execute(context.Background(), openSession(t), http.MethodGet, server.URL, Params{})
	require.Error(t, err)

	var total time.Duration
	for _, d := range rec.delays {
		assert.GreaterOrEqual(t, d, 30*time.Second)
		total += d
	}
	assert.LessOrEqual(t, total, 900*time.Second)
}

func TestExecuteConnectionErrorIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	rec := &sleepRecorder{}
	_, err := newTestExecutor(rec, nil).Execute(context.Background(), openSession(t), http.MethodGet, url, Params{})
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
	assert.Empty(t, rec.delays)
}

func TestExecutePostSendsJSONBody(t *testing.T) {
	var got map[string]interface{}
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"results":[],"next":"abc"}`))
	}))
	defer server.Close()

	payload := Params{"query": "snow", "maxResults": 100, "next": "old"}
	_, err := newTestExecutor(&sleepRecorder{}, nil).Execute(context.Background(), openSession(t), http.MethodPost, server.URL, payload)
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "snow", got["query"])
	assert.Equal(t, float64(100), got["maxResults"])
	assert.Equal(t, "old", got["next"])
}

func TestExecuteGetEncodesQueryString(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
	}))
	defer server.Close()

	payload := Params{"query": "snow", "tweet.fields": []string{"created_at", "lang"}, "max_results": 10}
	_, err := newTestExecutor(&sleepRecorder{}, nil).Execute(context.Background(), openSession(t), http.MethodGet, server.URL, payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"snow"}, query["query"])
	assert.Equal(t, []string{"created_at,lang"}, query["tweet.fields"])
	assert.Equal(t, []string{"10"}, query["max_results"])
}

func TestExecuteDecodesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(`{"data":[{"id":"7"}]}`))
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	resp, err := newTestExecutor(&sleepRecorder{}, nil).Execute(context.Background(), openSession(t), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"data":[{"id":"7"}]}`, string(resp.Body))
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	server, calls := statusSequence(t, []int{http.StatusTooManyRequests, http.StatusTooManyRequests}, "{}")

	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := NewExecutor(WithSleep(sleep), WithExecutorLogger(logger.NewNopLogger())).
		Execute(ctx, openSession(t), http.MethodGet, server.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestExecuteReplaysCassette(t *testing.T) {
	r := testutil.NewVCRRecorder(t, "recent_search")

	sess, err := session.Open(session.Credential{BearerToken: "tok"}, nil,
		session.WithHTTPClientFactory(testutil.VCRClientFactory(r)),
		session.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	defer sess.Close()

	payload := Params{"query": "snow has:media", "max_results": 10, "expansions": []string{"author_id"}}
	resp, err := newTestExecutor(&sleepRecorder{}, nil).Execute(context.Background(), sess, http.MethodGet,
		"https://api.twitter.com/2/tweets/search/recent", payload)
	require.NoError(t, err)

	page, err := ParsePage(resp.Body)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, "b26v89c19zqg8o3fo7gesq314yb9l2l4ptqy", page.NextToken)
	assert.Contains(t, page.Includes, "users")
}
