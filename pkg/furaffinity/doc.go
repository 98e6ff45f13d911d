// Package furaffinity implements the page fetcher for the FurAffinity JSON
// API wrapper.
//
// Each page is requested with
//
//	POST {base}/user/{username}/watchlist/to/{page}/
//	{"cookies": [{"name": "b", "value": "..."}, ...], "bbcode": false}
//
// and pagination stops at the first page whose results are absent or empty,
// or at the first response that is not a 200. Transport failures are retried
// with bounded exponential backoff through pkg/retry; a status response is
// never retried.
//
// Usage:
//
//	client := furaffinity.NewClientFromConfig(cfg, log, nil)
//	entries, lastPage, err := client.FetchWatchlist(ctx, "alice", cookies, 1)
package furaffinity
