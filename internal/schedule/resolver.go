package schedule

import (
	"log/slog"
	"sort"
	"time"
)

// triggerExpiry is how long a fired trigger keeps its entry eligible,
// counted from the trigger event.
const triggerExpiry = 24 * time.Hour

// ActivityChecker reports whether a room currently shows recent motion or
// contact activity from an online sensor.
type ActivityChecker interface {
	Active(room string) bool
}

// Resolver finds the schedule entry in effect at a point in time.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve returns the entry in effect at now, or nil when no entry applies.
//
// It binary-searches the sorted entries for the last change at or before
// now, then walks backward, wrapping around the week, skipping trigger
// entries whose trigger has not fired. Trigger timestamps older than the
// expiry are cleared; a room named by a pending trigger showing activity
// fires it now. Entries may be marked triggered in place.
func (r *Resolver) Resolve(entries []Entry, now time.Time, activity ActivityChecker) *Entry {
	if len(entries) == 0 {
		return nil
	}

	weekMinute := WeekMinute(now)
	start := sort.Search(len(entries), func(i int) bool { return entries[i].WeekMinute > weekMinute })
	pos := (len(entries) + start - 1) % len(entries)

	for range entries {
		e := &entries[pos]
		if len(e.Trigger) == 0 {
			r.logger.Debug("resolved", slog.Int("weekMinute", e.WeekMinute))
			return e
		}
		if e.Triggered != nil && now.Sub(*e.Triggered) > triggerExpiry {
			e.Triggered = nil
		}
		if e.Triggered == nil && activity != nil {
			for _, room := range e.Trigger {
				if activity.Active(room) {
					t := now
					e.Triggered = &t
					r.logger.Debug("trigger fired", slog.Int("weekMinute", e.WeekMinute), slog.String("room", room))
					break
				}
			}
		}
		if e.Triggered != nil {
			r.logger.Debug("resolved", slog.Int("weekMinute", e.WeekMinute), slog.Time("triggered", *e.Triggered))
			return e
		}
		pos = (len(entries) + pos - 1) % len(entries)
	}

	r.logger.Debug("no entry in effect")
	return nil
}
