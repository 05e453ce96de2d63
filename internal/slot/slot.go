package slot

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"table-booking-backend/config"
	"table-booking-backend/internal/apperr"
)

const dateLayout = "2006-01-02"

var clockRe = regexp.MustCompile(`^\s*([01]?\d|2[0-4]):([0-5]\d)(?::([0-5]\d))?\s*$`)

// Slot is the half-open window [Start, End) a reservation holds a table for.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two slots intersect.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && s.End.After(o.Start)
}

// UTC returns the slot with both bounds in UTC, the form it is stored in.
func (s Slot) UTC() Slot {
	return Slot{Start: s.Start.UTC(), End: s.End.UTC()}
}

// Policy holds the restaurant's booking hours and slot length.
type Policy struct {
	Location   *time.Location
	Opening    int // minutes after midnight
	Closing    int // minutes after midnight, up to 24:00
	Duration   time.Duration
	Imminent   time.Duration
	MaxAdvance time.Duration // zero disables the horizon check
}

// NewPolicy builds a Policy from the booking configuration.
func NewPolicy(cfg *config.BookingConfig) (*Policy, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	opening, err := parseMinutes(cfg.OpeningTime)
	if err != nil {
		return nil, fmt.Errorf("opening_time: %w", err)
	}
	closing, err := parseMinutes(cfg.ClosingTime)
	if err != nil {
		return nil, fmt.Errorf("closing_time: %w", err)
	}
	if closing <= opening {
		return nil, fmt.Errorf("closing_time %s must be after opening_time %s", cfg.ClosingTime, cfg.OpeningTime)
	}
	return &Policy{
		Location:   loc,
		Opening:    opening,
		Closing:    closing,
		Duration:   time.Duration(cfg.SlotMinutes) * time.Minute,
		Imminent:   time.Duration(cfg.ImminentMinutes) * time.Minute,
		MaxAdvance: time.Duration(cfg.MaxAdvanceDays) * 24 * time.Hour,
	}, nil
}

// Parse turns a booking date and time into a slot. Times must fall on the hour.
func (p *Policy) Parse(date, clock string) (Slot, error) {
	day, err := time.ParseInLocation(dateLayout, date, p.Location)
	if err != nil {
		return Slot{}, apperr.Validationf("date %q must be formatted YYYY-MM-DD", date)
	}

	m := clockRe.FindStringSubmatch(clock)
	if m == nil {
		return Slot{}, apperr.Validationf("time %q must be formatted HH:MM", clock)
	}
	hour, _ := strconv.Atoi(m[1])
	if hour == 24 || m[2] != "00" || (m[3] != "" && m[3] != "00") {
		return Slot{}, fmt.Errorf("time %q: reservations start on the hour: %w", clock, apperr.ErrInvalidTimeRange)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, p.Location)
	return Slot{Start: start, End: start.Add(p.Duration)}, nil
}

// Validate checks that the slot lies inside opening hours, has not passed
// and is not too far ahead.
func (p *Policy) Validate(s Slot, now time.Time) error {
	start := s.Start.In(p.Location)
	y, mo, d := start.Date()
	opening := time.Date(y, mo, d, 0, p.Opening, 0, 0, p.Location)
	closing := time.Date(y, mo, d, 0, p.Closing, 0, 0, p.Location)

	if start.Before(opening) || s.End.After(closing) {
		return fmt.Errorf("slot %s-%s is outside opening hours: %w",
			start.Format("15:04"), s.End.In(p.Location).Format("15:04"), apperr.ErrInvalidTimeRange)
	}
	if s.Start.Before(p.CurrentHour(now)) {
		return fmt.Errorf("slot %s has already started: %w", start.Format(time.RFC3339), apperr.ErrInvalidTimeRange)
	}
	if p.MaxAdvance > 0 && s.Start.After(now.Add(p.MaxAdvance)) {
		return fmt.Errorf("slot %s is too far ahead: %w", start.Format(dateLayout), apperr.ErrInvalidTimeRange)
	}
	return nil
}

// Resolve parses and validates a requested slot.
func (p *Policy) Resolve(date, clock string, now time.Time) (Slot, error) {
	s, err := p.Parse(date, clock)
	if err != nil {
		return Slot{}, err
	}
	if err := p.Validate(s, now); err != nil {
		return Slot{}, err
	}
	return s, nil
}

// CurrentHour returns the start of the hour containing now, in the
// restaurant's timezone.
func (p *Policy) CurrentHour(now time.Time) time.Time {
	local := now.In(p.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, p.Location)
}

// IsCurrent reports whether the slot is the one being served right now.
func (p *Policy) IsCurrent(s Slot, now time.Time) bool {
	return s.Start.Equal(p.CurrentHour(now))
}

// IsImminent reports whether the slot starts within the imminent window or
// is running.
func (p *Policy) IsImminent(s Slot, now time.Time) bool {
	return s.Start.Before(now.Add(p.Imminent)) && s.End.After(now)
}

// Date formats the slot's local date.
func (p *Policy) Date(t time.Time) string {
	return t.In(p.Location).Format(dateLayout)
}

// Clock formats the slot's local start time.
func (p *Policy) Clock(t time.Time) string {
	return t.In(p.Location).Format("15:04")
}

func parseMinutes(clock string) (int, error) {
	m := clockRe.FindStringSubmatch(clock)
	if m == nil {
		return 0, fmt.Errorf("invalid time of day %q", clock)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour == 24 && minute != 0 {
		return 0, fmt.Errorf("invalid time of day %q", clock)
	}
	return hour*60 + minute, nil
}
