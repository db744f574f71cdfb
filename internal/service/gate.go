package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"notifyhub/internal/model"
)

// SkipReason says why the preference gate blocked a channel.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipDisabled   SkipReason = "disabled"
	SkipFrequency  SkipReason = "frequency"
	SkipDND        SkipReason = "dnd"
	SkipQuietHours SkipReason = "quiet_hours"
)

// IsAllowed decides whether a delivery over the given channel kind may happen
// at `at`. Pure function of the preference row and the clock: no side
// effects, no store access. Delivery is blocked when the channel is disabled,
// its frequency is never, do-not-disturb is on, or `at` falls inside the
// quiet-hours window (evaluated in the user's timezone; the window may wrap
// midnight).
func IsAllowed(p *model.Preference, kind model.ChannelKind, at time.Time) bool {
	_, allowed := Evaluate(p, kind, at)
	return allowed
}

// Evaluate is IsAllowed plus the reason for a block, for logs and metrics.
func Evaluate(p *model.Preference, kind model.ChannelKind, at time.Time) (SkipReason, bool) {
	if !p.ChannelEnabled(kind) {
		return SkipDisabled, false
	}
	if p.ChannelFrequency(kind) == model.FrequencyNever {
		return SkipFrequency, false
	}
	if p.DoNotDisturb {
		return SkipDND, false
	}
	if inQuietHours(p, at) {
		return SkipQuietHours, false
	}
	return SkipNone, true
}

func inQuietHours(p *model.Preference, at time.Time) bool {
	if p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}

	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if start <= end {
		// Same-day window, e.g. 13:00-15:00.
		return cur >= start && cur < end
	}
	// Window wraps midnight, e.g. 22:00-08:00.
	return cur >= start || cur < end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
