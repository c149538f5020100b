// Package beacon implements the stdout progress-beacon protocol shared by
// the worker runner (C3) and the per-batch driver (C6): a line may carry a
// `{"item_done": N}` JSON fragment, or fall back to counting ✔ characters.
// Both signals feed one monotonic "done" counter; whichever is higher wins
// (spec.md §4.3, P3-P5).
package beacon

import (
	"encoding/json"
	"strings"
)

// beaconPayload is intentionally permissive: unknown keys are ignored, and
// a non-integer item_done is treated as "no beacon" rather than an error.
type beaconPayload struct {
	ItemDone *int `json:"item_done"`
}

// Parse extracts the first balanced {...} substring from line and attempts
// to decode it as a beacon. ok is false when no JSON object is present, it
// doesn't parse, or item_done is absent/non-integer — callers fall back to
// checkmark counting in that case.
func Parse(line string) (done int, ok bool) {
	obj, found := firstBalancedObject(line)
	if !found {
		return 0, false
	}

	var payload beaconPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return 0, false
	}
	if payload.ItemDone == nil {
		return 0, false
	}
	return *payload.ItemDone, true
}

// firstBalancedObject scans line for the first brace-balanced {...}
// substring, tolerating nested objects and braces inside string literals.
func firstBalancedObject(line string) (string, bool) {
	start := strings.IndexByte(line, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(line); i++ {
		c := line[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return line[start : i+1], true
			}
		}
	}
	return "", false
}

// CountCheckmarks counts ✔ occurrences in line, the fallback progress
// signal when no beacon parses.
func CountCheckmarks(line string) int {
	return strings.Count(line, "✔")
}

// Tracker accumulates the cumulative "done" count across a stream of
// lines, merging beacon and checkmark signals, and converts increases
// into clamped progress_delta values per spec.md §4.3.
type Tracker struct {
	totalItems       int
	done             int
	checkmarkTotal   int
	progressReported int
}

// NewTracker creates a tracker for a job with totalItems work items.
func NewTracker(totalItems int) *Tracker {
	return &Tracker{totalItems: totalItems}
}

// Feed processes one stdout line and returns the progress_delta to apply
// to the job store, if any (0 means no change). It never returns a delta
// that would push cumulative reported progress past 100.
func (t *Tracker) Feed(line string) int {
	newDone := t.done

	if beaconDone, ok := Parse(line); ok && beaconDone > t.done {
		newDone = beaconDone
	}

	if n := CountCheckmarks(line); n > 0 {
		t.checkmarkTotal += n
		if t.checkmarkTotal > newDone {
			newDone = t.checkmarkTotal
		}
	}

	if newDone <= t.done {
		return 0
	}
	t.done = newDone

	return t.deltaFor(t.done)
}

// deltaFor computes the progress_delta needed to bring cumulative reported
// progress up to the percentage implied by done items out of totalItems,
// clamping so the running total never exceeds 100.
func (t *Tracker) deltaFor(done int) int {
	if t.totalItems <= 0 {
		return 0
	}
	target := (100 * done) / t.totalItems
	if target > 100 {
		target = 100
	}
	delta := target - t.progressReported
	if delta <= 0 {
		return 0
	}
	t.progressReported = target
	return delta
}

// Done returns the cumulative count of items the tracker has observed as
// complete so far, for callers that need to map progress onto specific
// item indices rather than just a percentage.
func (t *Tracker) Done() int {
	return t.done
}

// FinalDelta returns the progress_delta needed to reach exactly 100,
// applied once the subprocess exits 0 (spec.md §4.3 step 7).
func (t *Tracker) FinalDelta() int {
	delta := 100 - t.progressReported
	if delta < 0 {
		return 0
	}
	t.progressReported = 100
	return delta
}
