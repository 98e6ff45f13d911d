package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// Progress reports per-page and per-user collection progress
type Progress struct {
	mu        sync.Mutex
	term      *Terminal
	total     int
	completed int
	failed    int
	pages     int
	entries   int
	verbose   bool
	startTime time.Time
}

// NewProgress creates a tracker for total users. Verbose prints a line for
// every page as well as every user.
func NewProgress(term *Terminal, total int, verbose bool) *Progress {
	if term == nil {
		term = Default()
	}
	return &Progress{
		term:      term,
		total:     total,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

// PageFetched records one fetched page
func (p *Progress) PageFetched(username string, page, entries int) {
	p.mu.Lock()
	p.pages++
	p.mu.Unlock()

	if p.verbose {
		p.term.println(false, fmt.Sprintf("%s %s page %d: %d entries",
			Dim("[PAGE]"), username, page, entries))
	}
}

// UserCompleted records a finished user. A non-nil err counts as a failure.
func (p *Progress) UserCompleted(username string, entries int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
		p.term.println(true, fmt.Sprintf("%s %s %s: %v",
			Red("[FAILED]"), p.bar(), username, err))
		return
	}

	p.completed++
	p.entries += entries
	p.term.println(false, fmt.Sprintf("%s %s %s: %d watched",
		Green("[DONE]"), p.bar(), username, entries))
}

// bar renders completed and failed users against the total
func (p *Progress) bar() string {
	done := p.completed + p.failed
	filled := 0
	if p.total > 0 {
		filled = done * barWidth / p.total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(ProgressBar, filled),
		strings.Repeat(ProgressEmpty, barWidth-filled),
		done, p.total)
}

// Counts returns completed users, failed users and fetched pages
func (p *Progress) Counts() (completed, failed, pages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.failed, p.pages
}

// Elapsed returns the time since the tracker was created
func (p *Progress) Elapsed() time.Duration {
	return time.Since(p.startTime)
}

// PrintSummary prints the totals for the run
func (p *Progress) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.term.println(false, fmt.Sprintf("%s %d/%d users, %d failed, %d pages, %d entries in %s",
		Magenta("[SUMMARY]"), p.completed, p.total, p.failed, p.pages, p.entries,
		time.Since(p.startTime).Round(time.Millisecond)))
}
