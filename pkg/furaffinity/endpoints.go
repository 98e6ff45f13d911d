package furaffinity

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the public FurAffinity JSON API wrapper
	BaseURL = "https://furaffinity-api.herokuapp.com"

	// WatchlistToEndpoint lists the accounts a user watches, one page at a time
	WatchlistToEndpoint = "/user/%s/watchlist/to/%d/"

	// FirstPage is the first page number the API serves
	FirstPage = 1
)

// WatchlistToURL constructs the URL for one page of a user's outgoing watchlist
func WatchlistToURL(baseURL, username string, page int) string {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return strings.TrimRight(baseURL, "/") + fmt.Sprintf(WatchlistToEndpoint, url.PathEscape(username), page)
}
