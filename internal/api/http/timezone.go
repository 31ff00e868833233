package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const timezoneHeader = "X-Timezone"

// TimezoneResolver picks the display zone of a request: the X-Timezone header,
// then the tz query parameter, then the configured default.
type TimezoneResolver struct {
	def *time.Location
}

func NewTimezoneResolver(name string) (*TimezoneResolver, error) {
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("default timezone %q: %w", name, err)
	}
	return &TimezoneResolver{def: loc}, nil
}

// Location returns the caller's zone. An unknown zone name is a validation error.
func (tz *TimezoneResolver) Location(r *http.Request) (*time.Location, error) {
	name := strings.TrimSpace(r.Header.Get(timezoneHeader))
	if name == "" {
		name = strings.TrimSpace(r.URL.Query().Get("tz"))
	}
	if name == "" {
		return tz.def, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", exam.ErrValidation, name)
	}
	return loc, nil
}

// parseBound reads a report range bound. A bare date is midnight in loc, or the
// last instant of that day when endOfDay is set; RFC 3339 keeps its own offset.
func parseBound(s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", exam.ErrValidation, s)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	d = d.UTC()
	return &d, nil
}
