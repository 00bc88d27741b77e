package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidClock    = errors.New("clock must be HH:MM in 24-hour format")
	ErrInvalidWindow   = errors.New("window start must be before end")
	ErrInvalidTemplate = errors.New("invalid working hours template")
)

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// ParseClock parses "15:04" style values. "24:00" is accepted as end of day.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(h*60 + m), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// On anchors the clock on the calendar day of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

// Window is a time-of-day range [Start, End).
type Window struct {
	Start Clock `json:"start" yaml:"start"`
	End   Clock `json:"end" yaml:"end"`
}

// DaySchedule holds the work windows of a weekday and the breaks carved out of them.
type DaySchedule struct {
	Windows []Window `json:"windows" yaml:"windows"`
	Breaks  []Window `json:"breaks,omitempty" yaml:"breaks,omitempty"`
}

// Template is the clinic's weekly working-hours template. A nil day is inactive.
type Template struct {
	Timezone       string `json:"timezone" yaml:"timezone"`
	SessionMinutes int    `json:"session_minutes" yaml:"session_minutes"`
	GapMinutes     int    `json:"gap_minutes" yaml:"gap_minutes"`

	Monday    *DaySchedule `json:"monday,omitempty" yaml:"monday,omitempty"`
	Tuesday   *DaySchedule `json:"tuesday,omitempty" yaml:"tuesday,omitempty"`
	Wednesday *DaySchedule `json:"wednesday,omitempty" yaml:"wednesday,omitempty"`
	Thursday  *DaySchedule `json:"thursday,omitempty" yaml:"thursday,omitempty"`
	Friday    *DaySchedule `json:"friday,omitempty" yaml:"friday,omitempty"`
	Saturday  *DaySchedule `json:"saturday,omitempty" yaml:"saturday,omitempty"`
	Sunday    *DaySchedule `json:"sunday,omitempty" yaml:"sunday,omitempty"`
}

// DefaultTemplate is Mon-Fri 08:00-18:00 with a 12:00-13:00 lunch break,
// 50 minute sessions and a 10 minute gap.
func DefaultTemplate() Template {
	day := func() *DaySchedule {
		return &DaySchedule{
			Windows: []Window{{Start: MustClock("08:00"), End: MustClock("18:00")}},
			Breaks:  []Window{{Start: MustClock("12:00"), End: MustClock("13:00")}},
		}
	}
	return Template{
		Timezone:       "UTC",
		SessionMinutes: 50,
		GapMinutes:     10,
		Monday:         day(),
		Tuesday:        day(),
		Wednesday:      day(),
		Thursday:       day(),
		Friday:         day(),
	}
}

// Day returns the schedule for weekday, or nil if the clinic is closed.
func (t Template) Day(weekday time.Weekday) *DaySchedule {
	var d *DaySchedule
	switch weekday {
	case time.Sunday:
		d = t.Sunday
	case time.Monday:
		d = t.Monday
	case time.Tuesday:
		d = t.Tuesday
	case time.Wednesday:
		d = t.Wednesday
	case time.Thursday:
		d = t.Thursday
	case time.Friday:
		d = t.Friday
	case time.Saturday:
		d = t.Saturday
	}
	if d == nil || len(d.Windows) == 0 {
		return nil
	}
	return d
}

// IsActive reports whether bookings may happen on weekday at all.
func (t Template) IsActive(weekday time.Weekday) bool {
	return t.Day(weekday) != nil
}

// ActiveDays lists active weekdays, Sunday first.
func (t Template) ActiveDays() []time.Weekday {
	var days []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if t.IsActive(wd) {
			days = append(days, wd)
		}
	}
	return days
}

// Location resolves the template timezone, falling back to UTC.
func (t Template) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (t Template) Session() time.Duration {
	return time.Duration(t.SessionMinutes) * time.Minute
}

func (t Template) Gap() time.Duration {
	return time.Duration(t.GapMinutes) * time.Minute
}

// Validate checks that the template is usable by the slot engine.
func (t Template) Validate() error {
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidTemplate, t.Timezone, err)
		}
	}
	if t.SessionMinutes <= 0 {
		return fmt.Errorf("%w: session_minutes must be positive", ErrInvalidTemplate)
	}
	if t.GapMinutes < 0 {
		return fmt.Errorf("%w: gap_minutes must not be negative", ErrInvalidTemplate)
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		d := t.Day(wd)
		if d == nil {
			continue
		}
		for _, w := range append(append([]Window{}, d.Windows...), d.Breaks...) {
			if w.Start >= w.End {
				return fmt.Errorf("%w: %s %s-%s: %v", ErrInvalidTemplate, wd, w.Start, w.End, ErrInvalidWindow)
			}
		}
	}
	return nil
}
