package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"searchtweets/pkg/stream"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// StatusTracker follows a stream's pages and renders a one-line summary.
// Its PageHook method plugs into stream.WithPageHook.
type StatusTracker struct {
	mu        sync.Mutex
	MaxItems  int
	Pages     int
	Emitted   int
	HasNext   bool
	StartTime time.Time
	now       func() time.Time
}

// NewStatusTracker creates a tracker. maxItems of 0 means no known total.
func NewStatusTracker(maxItems int) *StatusTracker {
	return &StatusTracker{MaxItems: maxItems, StartTime: time.Now(), now: time.Now}
}

// PageHook records a page and repaints the progress line.
func (st *StatusTracker) PageHook(info stream.PageInfo) {
	st.mu.Lock()
	st.Pages = info.RequestsIssued
	st.Emitted = info.TotalEmitted
	st.HasNext = info.NextToken != ""
	line := st.line()
	st.mu.Unlock()

	printf(false, "\r%s", line)
}

// Finish ends the progress line.
func (st *StatusTracker) Finish() {
	st.mu.Lock()
	line := st.line()
	st.mu.Unlock()
	printf(false, "\r%s\n", line)
}

// Rate is items per minute since the tracker started.
func (st *StatusTracker) Rate() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rate()
}

func (st *StatusTracker) rate() float64 {
	elapsed := st.now().Sub(st.StartTime).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(st.Emitted) / elapsed
}

// Bar renders progress toward MaxItems; without a cap it is empty.
func (st *StatusTracker) Bar() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bar()
}

func (st *StatusTracker) bar() string {
	if st.MaxItems <= 0 {
		return fmt.Sprintf("%d", st.Emitted)
	}
	filled := st.Emitted * barWidth / st.MaxItems
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(ProgressBar, filled),
		strings.Repeat(ProgressEmpty, barWidth-filled),
		st.Emitted, st.MaxItems)
}

func (st *StatusTracker) line() string {
	state := "done"
	if st.HasNext {
		state = "more"
	}
	return fmt.Sprintf("%s %s | pages: %d | %.1f/min | %s",
		Green("[SEARCH]"), st.bar(), st.Pages, st.rate(), Dim(state))
}
