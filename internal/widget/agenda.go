package widget

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sumire/calwidget/internal/domain"
	"github.com/sumire/calwidget/internal/service"
)

// Day is one date's worth of events in received order.
type Day struct {
	Date   string
	Events []domain.EventRecord
}

// GroupByDate buckets records by their local start date. Dates appear in
// first-seen order and events keep the order they were received in. Records
// whose start cannot be read fall back to the leading date of the raw value,
// or are dropped when there is none.
func GroupByDate(records []domain.EventRecord, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}

	var days []Day
	index := make(map[string]int)
	for _, rec := range records {
		date, ok := startDate(rec, loc)
		if !ok {
			continue
		}
		i, seen := index[date]
		if !seen {
			i = len(days)
			index[date] = i
			days = append(days, Day{Date: date})
		}
		days[i].Events = append(days[i].Events, rec)
	}
	return days
}

func startDate(rec domain.EventRecord, loc *time.Location) (string, bool) {
	if t, err := service.StartTime(rec, loc); err == nil {
		return t.Format(service.DateLayout), true
	}
	if len(rec.Start) >= len(service.DateLayout) {
		prefix := rec.Start[:len(service.DateLayout)]
		if _, err := time.Parse(service.DateLayout, prefix); err == nil {
			return prefix, true
		}
	}
	return "", false
}

// RenderAgenda writes a plain-text agenda grouped by date.
func RenderAgenda(w io.Writer, records []domain.EventRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	days := GroupByDate(records, loc)
	if len(days) == 0 {
		_, err := fmt.Fprintln(w, "No upcoming events.")
		return err
	}

	var b strings.Builder
	for i, day := range days {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(dayHeading(day.Date, loc))
		b.WriteByte('\n')
		for _, rec := range day.Events {
			fmt.Fprintf(&b, "  %-13s %s", timeRange(rec, loc), rec.Summary)
			if rec.CalendarSummary != "" {
				fmt.Fprintf(&b, " (%s)", rec.CalendarSummary)
			}
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func dayHeading(date string, loc *time.Location) string {
	t, err := time.ParseInLocation(service.DateLayout, date, loc)
	if err != nil {
		return date
	}
	return t.Format("Mon, 02 Jan 2006")
}

func timeRange(rec domain.EventRecord, loc *time.Location) string {
	if rec.AllDay {
		return "all day"
	}
	start, err := service.StartTime(rec, loc)
	if err != nil {
		return "??:??"
	}
	end, err := service.EndTime(rec, loc)
	if err != nil {
		return start.Format("15:04")
	}
	return start.Format("15:04") + " - " + end.Format("15:04")
}
