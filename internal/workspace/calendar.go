package workspace

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

const (
	maxSuggestions = 3
	suggestDays    = 7
	slotStep       = 30 * time.Minute
)

type interval struct{ start, end time.Time }

// Availability returns busy periods and free working-hour gaps for every
// day from start to end inclusive.
func (w *Workspace) Availability(ctx context.Context, userID string, start, end time.Time) (contract.CalendarAvailability, error) {
	if err := w.check(ctx, BackendCalendar); err != nil {
		return contract.CalendarAvailability{}, err
	}
	if _, ok := w.users[userID]; !ok {
		return contract.CalendarAvailability{}, schema.NewErrorf(schema.ErrCodeNotFound, "user %s not found", userID)
	}

	from := day(start)
	to := day(end).AddDate(0, 0, 1)
	busy := w.busy([]string{userID}, from, to)

	out := contract.CalendarAvailability{UserID: userID}
	for _, b := range busy {
		out.Busy = append(out.Busy, slot(b))
	}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		for _, f := range subtract(w.workingWindow(d), busy) {
			out.Free = append(out.Free, slot(f))
		}
	}
	return out, nil
}

// SuggestSlots proposes up to three slots in the coming week, on weekdays,
// where every participant is free. Preferred "HH:MM-HH:MM" ranges replace
// working hours when given.
func (w *Workspace) SuggestSlots(ctx context.Context, participants []string, duration time.Duration, preferred []string) ([]contract.TimeSlot, error) {
	if err := w.check(ctx, BackendCalendar); err != nil {
		return nil, err
	}
	for _, p := range participants {
		if _, ok := w.users[p]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "user %s not found", p)
		}
	}

	var ranges [][2]int
	for _, r := range preferred {
		s, e, err := parseRange(r)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, [2]int{s, e})
	}
	if len(ranges) == 0 {
		ranges = [][2]int{{w.workStart, w.workEnd}}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })

	now := w.now().UTC()
	first := day(now).AddDate(0, 0, 1)
	last := first.AddDate(0, 0, suggestDays)
	busy := w.busy(participants, first, last)

	var out []contract.TimeSlot
	for d := first; d.Before(last) && len(out) < maxSuggestions; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		for _, r := range ranges {
			winEnd := d.Add(time.Duration(r[1]) * time.Minute)
			for s := d.Add(time.Duration(r[0]) * time.Minute); !s.Add(duration).After(winEnd); s = s.Add(slotStep) {
				candidate := interval{s, s.Add(duration)}
				if overlapsAny(candidate, busy) {
					continue
				}
				out = append(out, slot(candidate))
				break
			}
			if len(out) == maxSuggestions {
				break
			}
		}
	}
	return out, nil
}

// busy merges the events of users that overlap [from, to), clipped to it.
func (w *Workspace) busy(users []string, from, to time.Time) []interval {
	var all []interval
	for _, u := range users {
		for _, e := range w.events[u] {
			if e.End.After(from) && e.Start.Before(to) {
				all = append(all, interval{maxTime(e.Start, from), minTime(e.End, to)})
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].start.Before(all[j].start) })

	var merged []interval
	for _, iv := range all {
		if n := len(merged); n > 0 && !iv.start.After(merged[n-1].end) {
			merged[n-1].end = maxTime(merged[n-1].end, iv.end)
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func (w *Workspace) workingWindow(d time.Time) interval {
	return interval{
		d.Add(time.Duration(w.workStart) * time.Minute),
		d.Add(time.Duration(w.workEnd) * time.Minute),
	}
}

// subtract returns the parts of win not covered by busy. busy is sorted and
// merged.
func subtract(win interval, busy []interval) []interval {
	var out []interval
	cur := win.start
	for _, b := range busy {
		if !b.end.After(cur) || !b.start.Before(win.end) {
			continue
		}
		if b.start.After(cur) {
			out = append(out, interval{cur, b.start})
		}
		cur = maxTime(cur, b.end)
		if !cur.Before(win.end) {
			return out
		}
	}
	if cur.Before(win.end) {
		out = append(out, interval{cur, win.end})
	}
	return out
}

func overlapsAny(iv interval, busy []interval) bool {
	for _, b := range busy {
		if iv.start.Before(b.end) && b.start.Before(iv.end) {
			return true
		}
	}
	return false
}

// parseRange parses "HH:MM-HH:MM" into minutes after midnight.
func parseRange(s string) (int, int, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("time range %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(to)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("time range %q: start must be before end", s)
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	return h*60 + m, nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func slot(iv interval) contract.TimeSlot {
	return contract.TimeSlot{Start: iv.start.Format(time.RFC3339), End: iv.end.Format(time.RFC3339)}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
