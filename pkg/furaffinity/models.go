package furaffinity

import (
	"encoding/json"

	"watchgraph/pkg/auth"
	errs "watchgraph/pkg/errors"
	"watchgraph/pkg/watchlist"
)

// watchlistRequest is the POST body for a watchlist page
type watchlistRequest struct {
	Cookies *auth.CookieSet `json:"cookies"`
	BBCode  bool            `json:"bbcode"`
}

// pageResponse is the part of a page the client reads. Results stays raw so
// that absent, null and [] can all be told apart from malformed values.
type pageResponse struct {
	Results json.RawMessage `json:"results"`
}

type pageEntry struct {
	Name *string `json:"name"`
}

// Page is the outcome of one page request
type Page struct {
	// Number is the page that was requested
	Number int
	// Entries found on the page, in order
	Entries watchlist.Watchlist
	// Status is the HTTP status code of the response
	Status int
	// End reports that no further page should be requested
	End bool
	// StatusErr classifies a non-200 response; nil on 200
	StatusErr *errs.Error
}
