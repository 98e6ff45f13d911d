package furaffinity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/config"
	errs "watchgraph/pkg/errors"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/retry"
	"watchgraph/pkg/watchlist"
)

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	UserAgent   string
	Body        map[string]json.RawMessage
}

// pageServer serves bodies[page-1] for every user and records requests
type pageServer struct {
	t      *testing.T
	mu     sync.Mutex
	reqs   []recordedRequest
	bodies []string
	status int
}

func (s *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]json.RawMessage
	_ = json.Unmarshal(raw, &body)

	s.mu.Lock()
	s.reqs = append(s.reqs, recordedRequest{
		Method:      r.Method,
		Path:        r.URL.EscapedPath(),
		ContentType: r.Header.Get("Content-Type"),
		UserAgent:   r.Header.Get("User-Agent"),
		Body:        body,
	})
	n := len(s.reqs)
	s.mu.Unlock()

	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}

	var page int
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 5 {
		page, _ = strconv.Atoi(parts[4])
	}
	if page < 1 || page > len(s.bodies) {
		s.t.Errorf("unexpected page request %d (request %d)", page, n)
		_, _ = w.Write([]byte(`{"results": []}`))
		return
	}
	_, _ = w.Write([]byte(s.bodies[page-1]))
}

func (s *pageServer) requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.reqs...)
}

func newTestClient(t *testing.T, baseURL string, opts ...func(*Options)) *Client {
	t.Helper()
	o := Options{
		BaseURL:   baseURL,
		UserAgent: "watchgraph-test",
		Timeout:   5 * time.Second,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
			Logger:      logger.NewNopLogger(),
		},
		Logger: logger.NewNopLogger(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return NewClient(o)
}

func TestWatchlistToURL(t *testing.T) {
	assert.Equal(t, "http://api.test/user/alice/watchlist/to/1/", WatchlistToURL("http://api.test/", "alice", 1))
	assert.Equal(t, "http://api.test/user/thundra~/watchlist/to/3/", WatchlistToURL("http://api.test", "thundra~", 3))
	assert.Equal(t, "http://api.test/user/a%2Fb/watchlist/to/2/", WatchlistToURL("http://api.test", "a/b", 2))
	assert.Equal(t, BaseURL+"/user/x/watchlist/to/1/", WatchlistToURL("", "x", 1))
}

func TestFetchWatchlistStopsOnEmptyResults(t *testing.T) {
	srv := &pageServer{t: t, bodies: []string{
		`{"results":[{"name":"x"}]}`,
		`{"results":[{"name":"y"}]}`,
		`{"results":[]}`,
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var pages []int
	client := newTestClient(t, ts.URL, func(o *Options) {
		o.OnPage = func(username string, p Page) { pages = append(pages, p.Number) }
	})

	list, lastPage, err := client.FetchWatchlist(context.Background(), "alice", auth.DefaultCookies(), 1)
	require.NoError(t, err)

	assert.Equal(t, watchlist.Watchlist{{Name: "x"}, {Name: "y"}}, list)
	assert.Equal(t, 3, lastPage)
	assert.Equal(t, []int{1, 2, 3}, pages)

	reqs := srv.requests()
	require.Len(t, reqs, 3, "no fourth request")
	assert.Equal(t, "/user/alice/watchlist/to/1/", reqs[0].Path)
	assert.Equal(t, "/user/alice/watchlist/to/3/", reqs[2].Path)
	for _, r := range reqs {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.ContentType)
		assert.Equal(t, "watchgraph-test", r.UserAgent)
	}
}

func TestFetchPageSendsCookiesVerbatim(t *testing.T) {
	srv := &pageServer{t: t, bodies: []string{`{"results":[]}`}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	cookies := auth.NewCookieSet()
	cookies.Set("b", "token-b")
	cookies.Set("a", "token-a")
	cookies.Set("sz", "")

	client := newTestClient(t, ts.URL)
	_, err := client.FetchPage(context.Background(), "bob", cookies, 1)
	require.NoError(t, err)

	reqs := srv.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, `[{"name":"b","value":"token-b"},{"name":"a","value":"token-a"},{"name":"sz","value":""}]`, string(reqs[0].Body["cookies"]))
	assert.Equal(t, "false", string(reqs[0].Body["bbcode"]))
}

func TestFetchPageDefaultCookiesWhenNil(t *testing.T) {
	srv := &pageServer{t: t, bodies: []string{`{"results":[]}`}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := newTestClient(t, ts.URL, func(o *Options) { o.BBCode = true })
	_, err := client.FetchPage(context.Background(), "bob", nil, 1)
	require.NoError(t, err)

	reqs := srv.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, `[{"name":"b","value":""},{"name":"a","value":""},{"name":"sz","value":""}]`, string(reqs[0].Body["cookies"]))
	assert.Equal(t, "true", string(reqs[0].Body["bbcode"]))
}

func TestFetchWatchlistStatusEndsWithoutError(t *testing.T) {
	srv := &pageServer{t: t, status: http.StatusInternalServerError}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tl := logger.NewTestLogger()
	client := newTestClient(t, ts.URL, func(o *Options) { o.Logger = tl })

	list, lastPage, err := client.FetchWatchlist(context.Background(), "carol", nil, 1)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.Equal(t, 1, lastPage)
	assert.Len(t, srv.requests(), 1, "status responses are not retried")
	assert.True(t, tl.HasMessage("unexpected status, ending pagination"))
}

type countingLimiter struct {
	throttled int32
}

func (l *countingLimiter) Allow() bool                    { return true }
func (l *countingLimiter) Wait(ctx context.Context) error { return ctx.Err() }
func (l *countingLimiter) Throttle()                      { atomic.AddInt32(&l.throttled, 1) }

func TestFetchPageClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		want      errs.ErrorType
		throttled int32
	}{
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit, 1},
		{http.StatusForbidden, errs.ErrorTypeAuth, 0},
		{http.StatusBadGateway, errs.ErrorTypeServerError, 0},
		{http.StatusNotFound, errs.ErrorTypeStatus, 0},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := &pageServer{t: t, status: tt.status}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			lim := &countingLimiter{}
			client := newTestClient(t, ts.URL, func(o *Options) { o.Limiter = lim })

			p, err := client.FetchPage(context.Background(), "frank", nil, 1)
			require.NoError(t, err)
			assert.True(t, p.End)
			require.NotNil(t, p.StatusErr)
			assert.Equal(t, tt.want, p.StatusErr.Type)
			assert.Equal(t, tt.status, p.StatusErr.Code)
			assert.Equal(t, tt.throttled, atomic.LoadInt32(&lim.throttled))
		})
	}
}

func TestFetchPageEndConditions(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"null body", `null`},
		{"empty object", `{}`},
		{"null results", `{"results": null}`},
		{"empty results", `{"results": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &pageServer{t: t, bodies: []string{tt.body}}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			p, err := newTestClient(t, ts.URL).FetchPage(context.Background(), "dave", nil, 1)
			require.NoError(t, err)
			assert.True(t, p.End)
			assert.Equal(t, http.StatusOK, p.Status)
			assert.Nil(t, p.StatusErr)
			assert.Empty(t, p.Entries)
		})
	}
}

func TestFetchPageMalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"results not a list", `{"results": "x"}`},
		{"entry without name", `{"results": [{"id": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &pageServer{t: t, bodies: []string{tt.body}}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			_, _, err := newTestClient(t, ts.URL).FetchWatchlist(context.Background(), "erin", nil, 1)
			require.Error(t, err)
			assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
			assert.Len(t, srv.requests(), 1, "parse errors are not retried")
		})
	}
}

func TestFetchPageIgnoresExtraFields(t *testing.T) {
	srv := &pageServer{t: t, bodies: []string{
		`{"results":[{"name":"x","profile":"https://example","status":"!"}],"page":1}`,
		`{"results":[]}`,
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	list, _, err := newTestClient(t, ts.URL).FetchWatchlist(context.Background(), "frank", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, watchlist.Watchlist{{Name: "x"}}, list)
}

// flakyTransport fails the first n round trips with a transport error
type flakyTransport struct {
	failures int32
	calls    int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.next.RoundTrip(r)
}

func TestFetchPageRetriesTransportErrors(t *testing.T) {
	srv := &pageServer{t: t, bodies: []string{`{"results":[{"name":"x"}]}`, `{"results":[]}`}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	transport := &flakyTransport{failures: 2, next: http.DefaultTransport}
	client := newTestClient(t, ts.URL, func(o *Options) {
		o.HTTPClient = &http.Client{Transport: transport}
	})

	list, _, err := client.FetchWatchlist(context.Background(), "gina", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, watchlist.Watchlist{{Name: "x"}}, list)
	assert.EqualValues(t, 4, atomic.LoadInt32(&transport.calls))
}

func TestFetchPageRetryExhaustion(t *testing.T) {
	transport := &flakyTransport{failures: 100, next: http.DefaultTransport}
	client := newTestClient(t, "http://unreachable.test", func(o *Options) {
		o.HTTPClient = &http.Client{Transport: transport}
	})

	_, err := client.FetchPage(context.Background(), "hank", nil, 1)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&transport.calls))
}

func TestFetchPageCancelledDuringBackoff(t *testing.T) {
	transport := &flakyTransport{failures: 100, next: http.DefaultTransport}
	client := newTestClient(t, "http://unreachable.test", func(o *Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		o.Retry = &retry.Config{
			MaxAttempts: 0,
			Backoff:     &retry.ConstantBackoff{Delay: time.Hour},
			Logger:      logger.NewNopLogger(),
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.FetchPage(ctx, "ivy", nil, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchWatchlistMaxPages(t *testing.T) {
	srv := &pageServer{t: t, bodies: []string{
		`{"results":[{"name":"a"}]}`,
		`{"results":[{"name":"b"}]}`,
		`{"results":[{"name":"c"}]}`,
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := newTestClient(t, ts.URL, func(o *Options) { o.MaxPages = 2 })
	list, lastPage, err := client.FetchWatchlist(context.Background(), "jay", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list.Names())
	assert.Equal(t, 3, lastPage)
	assert.Len(t, srv.requests(), 2)
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = "http://api.test"
	cfg.Collector.MaxPages = 7

	c := NewClientFromConfig(cfg, logger.NewNopLogger(), nil)
	assert.Equal(t, "http://api.test", c.baseURL)
	assert.Equal(t, 7, c.maxPages)
	assert.Equal(t, cfg.Retry.MaxAttempts, c.retry.MaxAttempts)
	assert.Equal(t, cfg.API.Timeout, c.httpClient.Timeout)
}
