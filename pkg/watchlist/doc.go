// Package watchlist holds the data model shared by the fetcher, the collector
// and the aggregator: watchlist entries and the ordered username to
// watchlist result map persisted as watchlist_to_results.json.
package watchlist
