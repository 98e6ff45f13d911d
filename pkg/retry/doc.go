// Package retry provides bounded retry with exponential backoff for
// transient failures talking to the watchlist API.
//
// Basic usage:
//
//	cfg := retry.FromConfig(appConfig.Retry, log).WithContext(ctx)
//	page, err := retry.DoWithResult(func() (*http.Response, error) {
//		return send(req)
//	}, cfg)
//
// DefaultRetryIf only retries errors typed as network failures by
// pkg/errors. A response with any status code is never retried here;
// the caller decides what a status means. Every wait between attempts
// aborts as soon as the configured context is cancelled.
package retry
