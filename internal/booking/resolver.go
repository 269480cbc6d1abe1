package booking

import (
	"sort"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

// workWindow is one effective [start, end) working block for a date, taken
// either from a weekly rule or from an override.
type workWindow struct {
	start timeutil.ClockTime
	end   timeutil.ClockTime
}

// buildCandidates computes the ordered candidate windows for one provider
// date. It is a pure function: rules are the active weekly rules matching the
// date's day of week, override is the date-specific override (nil when none
// exists), and booked holds the active appointments for the provider on that
// date. Slot length is in minutes and must be positive.
//
// An unavailable override blacks out the whole date regardless of rules. An
// available override with both times set replaces the rule windows. Windows
// from different rules are resolved independently and never merged, so two
// overlapping rules may yield overlapping candidates; the resolver reflects
// configured hours faithfully rather than second-guessing them.
func buildCandidates(rules []*types.ScheduleRule, override *types.ScheduleOverride, booked []*types.Appointment, slotMinutes int) []*types.CandidateWindow {
	windows := effectiveWindows(rules, override)
	if len(windows) == 0 {
		return []*types.CandidateWindow{}
	}

	candidates := make([]*types.CandidateWindow, 0)
	for _, w := range windows {
		candidates = append(candidates, expandWindow(w.start, w.end, slotMinutes)...)
	}

	for _, c := range candidates {
		if blocking := findBlocking(booked, c.Start, c.End); blocking != nil {
			c.Available = false
			c.BlockedBy = blocking.ID
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	return candidates
}

// effectiveWindows determines the working blocks for the date. Override
// blackouts win over everything; an available override with explicit times
// replaces the weekly rules for that date only.
func effectiveWindows(rules []*types.ScheduleRule, override *types.ScheduleOverride) []workWindow {
	if override != nil {
		if !override.IsAvailable {
			return nil
		}
		if override.StartTime != nil && override.EndTime != nil {
			return []workWindow{{start: *override.StartTime, end: *override.EndTime}}
		}
		// Available override without explicit times falls through to the
		// weekly rules.
	}

	windows := make([]workWindow, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		windows = append(windows, workWindow{start: rule.StartTime, end: rule.EndTime})
	}
	return windows
}

// expandWindow walks forward from start in slotMinutes increments. A step
// whose end would pass the window end produces no candidate: trailing partial
// slots are dropped, never truncated and offered.
func expandWindow(start, end timeutil.ClockTime, slotMinutes int) []*types.CandidateWindow {
	if slotMinutes <= 0 || !start.Before(end) {
		return nil
	}

	var out []*types.CandidateWindow
	for cur := start; !cur.Add(slotMinutes).After(end); cur = cur.Add(slotMinutes) {
		out = append(out, &types.CandidateWindow{
			Start:     cur,
			End:       cur.Add(slotMinutes),
			Available: true,
		})
	}
	return out
}

// findBlocking returns the first active appointment whose [start, end) window
// strictly overlaps the candidate's. Half-open semantics: a candidate ending
// exactly when an appointment starts does not overlap it.
func findBlocking(booked []*types.Appointment, start, end timeutil.ClockTime) *types.Appointment {
	for _, apt := range booked {
		if !apt.Status.IsActive() {
			continue
		}
		if timeutil.Overlaps(start, end, apt.StartTime, apt.EndTime) {
			return apt
		}
	}
	return nil
}
