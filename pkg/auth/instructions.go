package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide prints how to copy the session cookies from a browser
func ShowCookieExtractionGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"FURAFFINITY COOKIE GUIDE",
		rule,
		"",
		"The watchlist API forwards your FurAffinity session cookies.",
		"Watchlists of public accounts load without them, but hidden",
		"or mature profiles need a logged-in session.",
		"",
		"1. Log in at https://www.furaffinity.net in your browser.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on Mac).",
		"3. Open Application (Chrome) or Storage (Firefox), then Cookies.",
		"4. Select https://www.furaffinity.net and copy the values of:",
		"",
		"     a    session identifier",
		"     b    session token",
		"     sz   screen size hint, optional",
		"",
		"Copy only the value, without quotes or semicolons.",
		"These cookies grant full access to your account. Never share them.",
		rule,
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// ShowQuickExtractGuide prints the one-line version
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintf(w, "Cookies: F12 -> Application -> Cookies -> furaffinity.net -> copy %s\n",
		strings.Join(DefaultCookieNames, ", "))
}
