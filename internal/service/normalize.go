package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/sumire/calwidget/internal/domain"
)

const (
	// DisplayLayout formats timed events in the display timezone.
	DisplayLayout = "2006-01-02 15:04:05"
	// DateLayout formats all-day events.
	DateLayout = "2006-01-02"
)

// Normalize converts a provider event into an EventRecord for cal, with times
// expressed in loc. A value that cannot be parsed is kept verbatim and
// reported in ParseError; Normalize itself never fails.
func Normalize(event *calendar.Event, cal domain.CalendarRef, loc *time.Location) domain.EventRecord {
	if loc == nil {
		loc = time.UTC
	}
	if event == nil {
		return domain.EventRecord{
			CalendarID:      cal.ID,
			CalendarSummary: cal.Summary,
			Summary:         domain.NoTitle,
			ParseError:      "missing event",
		}
	}

	rec := domain.EventRecord{
		CalendarID:      cal.ID,
		CalendarSummary: cal.Summary,
		EventID:         event.Id,
		Summary:         event.Summary,
	}
	if strings.TrimSpace(rec.Summary) == "" {
		rec.Summary = domain.NoTitle
	}

	var problems []string

	start, err := localize(event.Start, loc)
	if err != nil {
		problems = append(problems, "start: "+err.Error())
	}
	end, err := localize(event.End, loc)
	if err != nil {
		problems = append(problems, "end: "+err.Error())
	}

	rec.Start, rec.StartInstant = start.display, start.instant
	rec.End, rec.EndInstant = end.display, end.instant
	rec.AllDay = start.allDay
	rec.ParseError = strings.Join(problems, "; ")
	return rec
}

type localTime struct {
	display string
	instant string
	allDay  bool
}

// localize prefers dateTime over date. On failure display holds the raw value.
func localize(edt *calendar.EventDateTime, loc *time.Location) (localTime, error) {
	if edt == nil {
		return localTime{}, errors.New("missing")
	}

	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return localTime{display: edt.DateTime}, fmt.Errorf("malformed dateTime %q", edt.DateTime)
		}
		t = t.In(loc)
		return localTime{display: t.Format(DisplayLayout), instant: t.Format(time.RFC3339)}, nil
	}

	if edt.Date != "" {
		if _, err := time.Parse(DateLayout, edt.Date); err != nil {
			return localTime{display: edt.Date, allDay: true}, fmt.Errorf("malformed date %q", edt.Date)
		}
		return localTime{display: edt.Date, allDay: true}, nil
	}

	return localTime{}, errors.New("neither dateTime nor date set")
}

// StartTime returns the instant rec starts at, in loc.
func StartTime(rec domain.EventRecord, loc *time.Location) (time.Time, error) {
	return resolve(rec.Start, rec.StartInstant, loc)
}

// EndTime returns the instant rec ends at, in loc.
func EndTime(rec domain.EventRecord, loc *time.Location) (time.Time, error) {
	return resolve(rec.End, rec.EndInstant, loc)
}

// resolve prefers the offset-bearing instant; the wall-clock value is
// ambiguous during a DST fall-back hour.
func resolve(value, instant string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if instant != "" {
		t, err := time.Parse(time.RFC3339, instant)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse instant %q: %w", instant, err)
		}
		return t.In(loc), nil
	}
	return ParseLocal(value, loc)
}

// ParseLocal parses a normalized Start or End value back into an instant in
// loc. All-day values resolve to local midnight. A wall-clock time in the
// repeated hour of a DST fall-back resolves to its first occurrence; use
// StartTime or EndTime when the record is at hand.
func ParseLocal(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(DisplayLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse local time %q: %w", value, err)
	}
	return t, nil
}
