package domain

// PrimaryCalendarID addresses the user's default calendar.
const PrimaryCalendarID = "primary"

// NoTitle replaces a missing event summary.
const NoTitle = "No Title"

// CalendarRef identifies a calendar visible to the credential.
type CalendarRef struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	TimeZone string `json:"timeZone"`
}

// EventRecord is the display-ready form of a provider event. Start and End are
// wall-clock values in the display timezone unless ParseError is set, in which
// case they hold the raw provider value. For timed events StartInstant and
// EndInstant carry the same moments as RFC 3339 with the display offset, which
// keeps the repeated hour of a DST fall-back unambiguous.
type EventRecord struct {
	CalendarID      string `json:"calendarId"`
	CalendarSummary string `json:"calendarSummary"`
	EventID         string `json:"eventId"`
	Summary         string `json:"summary"`
	Start           string `json:"start"`
	End             string `json:"end"`
	StartInstant    string `json:"startInstant,omitempty"`
	EndInstant      string `json:"endInstant,omitempty"`
	AllDay          bool   `json:"allDay"`
	ParseError      string `json:"parseError,omitempty"`
}

// EventInput is the body of a create or update request. Start and End are
// wall-clock times in TimeZone and are forwarded to the provider as given.
type EventInput struct {
	Summary  string `json:"summary" validate:"required"`
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
	TimeZone string `json:"timeZone" validate:"required,timezone"`
}
