// Package slot computes the recurring trading windows the bot operates in.
// A window starts on a wall-clock boundary (UTC) and lasts a fixed number of
// minutes; each window maps to exactly one market slug.
package slot

import (
	"context"
	"fmt"
	"time"
)

// DefaultSlugPrefix is the slug family of the 15 minute BTC up/down markets.
const DefaultSlugPrefix = "btc-updown-15m"

// Slot is one trading window.
type Slot struct {
	Start    time.Time
	Duration time.Duration
}

// End is the first instant that no longer belongs to the window.
func (s Slot) End() time.Time { return s.Start.Add(s.Duration) }

// Active reports whether now falls inside [Start, End).
func (s Slot) Active(now time.Time) bool {
	return !now.Before(s.Start) && now.Before(s.End())
}

// Prev returns the window immediately before s.
func (s Slot) Prev() Slot { return Slot{Start: s.Start.Add(-s.Duration), Duration: s.Duration} }

// Next returns the window immediately after s.
func (s Slot) Next() Slot { return Slot{Start: s.Start.Add(s.Duration), Duration: s.Duration} }

func (s Slot) String() string {
	return fmt.Sprintf("%s/%s", s.Start.Format(time.RFC3339), s.Duration)
}

// Scheduler maps wall time onto windows and slugs.
type Scheduler struct {
	Duration   time.Duration
	SlugPrefix string
	Clock      Clock
}

// NewScheduler returns a scheduler for windows of the given length. The
// length must divide an hour so that windows align with the clock face.
func NewScheduler(minutes int, prefix string, clock Clock) (*Scheduler, error) {
	if minutes <= 0 || 60%minutes != 0 {
		return nil, fmt.Errorf("slot: window length %d minutes does not divide an hour", minutes)
	}
	if prefix == "" {
		prefix = DefaultSlugPrefix
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		Duration:   time.Duration(minutes) * time.Minute,
		SlugPrefix: prefix,
		Clock:      clock,
	}, nil
}

// Now returns the scheduler's notion of the current instant.
func (s *Scheduler) Now() time.Time { return s.Clock.Now().UTC() }

// Current returns the window containing now. Seconds and sub-seconds are
// dropped and the minute is floored to a multiple of the window length.
func (s *Scheduler) Current(now time.Time) Slot {
	return Slot{Start: now.UTC().Truncate(s.Duration), Duration: s.Duration}
}

// Active reports whether slot is still running at now.
func (s *Scheduler) Active(slot Slot, now time.Time) bool {
	return now.Before(slot.End())
}

// Slug renders the market slug for slot, e.g. "btc-updown-15m-1735689600".
func (s *Scheduler) Slug(slot Slot) string {
	return fmt.Sprintf("%s-%d", s.SlugPrefix, slot.Start.Unix())
}

// Prev returns the window before slot.
func (s *Scheduler) Prev(slot Slot) Slot { return slot.Prev() }

// Next returns the window after slot.
func (s *Scheduler) Next(slot Slot) Slot { return slot.Next() }

// WaitUntilNext blocks until slot has ended. It returns immediately when the
// window is already over and returns ctx.Err() if ctx is cancelled first.
func (s *Scheduler) WaitUntilNext(ctx context.Context, slot Slot) error {
	wait := slot.End().Sub(s.Now())
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
