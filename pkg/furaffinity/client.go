package furaffinity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"watchgraph/pkg/auth"
	"watchgraph/pkg/config"
	errs "watchgraph/pkg/errors"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/ratelimit"
	"watchgraph/pkg/retry"
	"watchgraph/pkg/watchlist"
)

// PageFunc is called after every page request
type PageFunc func(username string, page Page)

// Options configures a Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	BBCode    bool
	// MaxPages caps pages fetched per user; 0 means unlimited
	MaxPages int

	HTTPClient *http.Client
	Limiter    ratelimit.Limiter
	Retry      *retry.Config
	Logger     logger.Logger
	OnPage     PageFunc
}

// Client fetches watchlist pages from the API
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	bbcode     bool
	maxPages   int
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
	onPage     PageFunc
}

// NewClient creates a watchlist API client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
		retryCfg.Logger = log
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  opts.UserAgent,
		bbcode:     opts.BBCode,
		maxPages:   opts.MaxPages,
		limiter:    limiter,
		retry:      retryCfg,
		logger:     log,
		onPage:     opts.OnPage,
	}
}

// NewClientFromConfig creates a client from the loaded configuration
func NewClientFromConfig(cfg *config.Config, log logger.Logger, onPage PageFunc) *Client {
	return NewClient(Options{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
		BBCode:    cfg.API.BBCode,
		MaxPages:  cfg.Collector.MaxPages,
		Limiter:   ratelimit.New(cfg.RateLimit),
		Retry:     retry.FromConfig(cfg.Retry, log),
		Logger:    log,
		OnPage:    onPage,
	})
}

type rawResponse struct {
	status int
	body   []byte
}

// send performs one POST, retrying transport failures
func (c *Client) send(ctx context.Context, url string, payload []byte) (*rawResponse, error) {
	return retry.DoWithResult(func() (*rawResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, errs.New(errs.ErrorTypeUnknown, "failed to create request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
				"url":      url,
				"error":    err.Error(),
				"duration": time.Since(start),
			})
			return nil, errs.New(errs.ErrorTypeNetwork, "request failed", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errs.New(errs.ErrorTypeNetwork, "failed to read response body", err)
		}

		logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, time.Since(start))
		return &rawResponse{status: resp.StatusCode, body: body}, nil
	}, c.retry.WithContext(ctx))
}

// FetchPage requests one page of the user's watchlist.
// Transport failures are retried; any non-200 status ends pagination
// without an error; a malformed 200 body is a parsing error.
func (c *Client) FetchPage(ctx context.Context, username string, cookies *auth.CookieSet, page int) (Page, error) {
	if cookies == nil {
		cookies = auth.DefaultCookies()
	}

	payload, err := json.Marshal(watchlistRequest{Cookies: cookies, BBCode: c.bbcode})
	if err != nil {
		return Page{Number: page}, errs.New(errs.ErrorTypeUnknown, "failed to encode request", err)
	}

	url := WatchlistToURL(c.baseURL, username, page)
	c.logger.DebugWithFields("fetching watchlist page", map[string]interface{}{
		"username": username,
		"page":     page,
		"url":      url,
	})

	raw, err := c.send(ctx, url, payload)
	if err != nil {
		return Page{Number: page}, err
	}

	result := Page{Number: page, Status: raw.status}
	if raw.status != http.StatusOK {
		result.StatusErr = errs.FromStatus(raw.status, "watchlist page not served")
		c.logger.WarnWithFields("unexpected status, ending pagination", map[string]interface{}{
			"username":   username,
			"page":       page,
			"status":     raw.status,
			"error_type": result.StatusErr.Type,
		})
		if errs.IsType(result.StatusErr, errs.ErrorTypeRateLimit) {
			if t, ok := c.limiter.(ratelimit.Throttler); ok {
				t.Throttle()
			}
		}
		result.End = true
		c.notify(username, result)
		return result, nil
	}

	entries, err := parsePage(raw.body)
	if err != nil {
		c.logger.ErrorWithFields("failed to parse watchlist page", map[string]interface{}{
			"username":     username,
			"page":         page,
			"error":        err.Error(),
			"body_preview": preview(raw.body),
		})
		return result, err
	}

	result.Entries = entries
	result.End = len(entries) == 0
	c.notify(username, result)
	return result, nil
}

// FetchWatchlist walks pages from startPage until the API signals the end
// and returns the concatenated entries and the page number pagination
// stopped on
func (c *Client) FetchWatchlist(ctx context.Context, username string, cookies *auth.CookieSet, startPage int) (watchlist.Watchlist, int, error) {
	if startPage < FirstPage {
		startPage = FirstPage
	}

	list := watchlist.Watchlist{}
	page := startPage
	for fetched := 0; ; fetched++ {
		if c.maxPages > 0 && fetched >= c.maxPages {
			c.logger.InfoWithFields("page limit reached", map[string]interface{}{
				"username":  username,
				"max_pages": c.maxPages,
			})
			break
		}

		p, err := c.FetchPage(ctx, username, cookies, page)
		if err != nil {
			return list, page, fmt.Errorf("failed to fetch page %d for %s: %w", page, username, err)
		}
		if p.End {
			break
		}

		list = append(list, p.Entries...)
		page++
	}

	return list, page, nil
}

func (c *Client) notify(username string, p Page) {
	if c.onPage != nil {
		c.onPage(username, p)
	}
}

// parsePage extracts entries from a 200 body. An empty body, null, a missing
// results field, a null results field and an empty list all yield no entries.
func parsePage(body []byte) (watchlist.Watchlist, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var resp pageResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, "failed to parse JSON", err)
	}

	rawResults := bytes.TrimSpace(resp.Results)
	if len(rawResults) == 0 || bytes.Equal(rawResults, []byte("null")) {
		return nil, nil
	}

	var results []pageEntry
	if err := json.Unmarshal(rawResults, &results); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, "results is not a list of entries", err)
	}

	entries := make(watchlist.Watchlist, 0, len(results))
	for i, r := range results {
		if r.Name == nil {
			return nil, errs.New(errs.ErrorTypeParsing, fmt.Sprintf("result %d has no name", i), nil)
		}
		entries = append(entries, watchlist.Entry{Name: *r.Name})
	}
	return entries, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
