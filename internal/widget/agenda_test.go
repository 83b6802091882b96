package widget

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sumire/calwidget/internal/domain"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestGroupByDate(t *testing.T) {
	records := []domain.EventRecord{
		{EventID: "1", Summary: "Late", Start: "2024-01-02 18:00:00", End: "2024-01-02 19:00:00"},
		{EventID: "2", Summary: "Holiday", Start: "2024-01-01", End: "2024-01-02", AllDay: true},
		{EventID: "3", Summary: "Early", Start: "2024-01-02 08:00:00", End: "2024-01-02 09:00:00"},
		{EventID: "4", Summary: "Raw", Start: "2024-01-01T10:00:00+05:30", ParseError: "start: bad"},
		{EventID: "5", Summary: "Garbage", Start: "soon", ParseError: "start: bad"},
	}

	days := GroupByDate(records, kolkata(t))

	if len(days) != 2 {
		t.Fatalf("days = %d, want 2: %+v", len(days), days)
	}
	if days[0].Date != "2024-01-02" || days[1].Date != "2024-01-01" {
		t.Errorf("dates = %s, %s; want first-seen order", days[0].Date, days[1].Date)
	}

	var ids []string
	for _, ev := range days[0].Events {
		ids = append(ids, ev.EventID)
	}
	if strings.Join(ids, ",") != "1,3" {
		t.Errorf("2024-01-02 events = %v, want received order 1,3", ids)
	}
	if len(days[1].Events) != 2 || days[1].Events[1].EventID != "4" {
		t.Errorf("2024-01-01 events = %+v", days[1].Events)
	}
}

func TestRenderAgenda(t *testing.T) {
	records := []domain.EventRecord{
		{Summary: "Holiday", CalendarSummary: "Holidays in India", Start: "2024-01-26", End: "2024-01-27", AllDay: true},
		{Summary: "Standup", CalendarSummary: "Work", Start: "2024-01-26 09:00:00", End: "2024-01-26 09:15:00"},
	}

	var buf bytes.Buffer
	if err := RenderAgenda(&buf, records, kolkata(t)); err != nil {
		t.Fatalf("RenderAgenda: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Fri, 26 Jan 2024",
		"all day",
		"Holiday (Holidays in India)",
		"09:00 - 09:15",
		"Standup (Work)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("agenda missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAgenda_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderAgenda(&buf, nil, nil); err != nil {
		t.Fatalf("RenderAgenda: %v", err)
	}
	if !strings.Contains(buf.String(), "No upcoming events") {
		t.Errorf("output = %q", buf.String())
	}
}
