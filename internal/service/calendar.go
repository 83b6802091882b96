package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/sumire/calwidget/internal/domain"
	"github.com/sumire/calwidget/internal/gcal"
)

// CredentialValidator is the part of AuthService the facade depends on.
type CredentialValidator interface {
	EnsureValid(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}

// CalendarAPI is the provider surface used by CalendarService.
type CalendarAPI interface {
	ListCalendars(ctx context.Context) ([]*calendar.CalendarListEntry, error)
	GetCalendar(ctx context.Context, calendarID string) (*calendar.CalendarListEntry, error)
	ListEvents(ctx context.Context, calendarID string, timeMin time.Time) ([]*calendar.Event, error)
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// OpenFunc returns a CalendarAPI authorized with a valid credential.
type OpenFunc func(ctx context.Context, cred domain.Credential) (CalendarAPI, error)

// GoogleOpener adapts a gcal.Opener to OpenFunc.
func GoogleOpener(o gcal.Opener) OpenFunc {
	return func(ctx context.Context, cred domain.Credential) (CalendarAPI, error) {
		c, err := o.Open(ctx, cred)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// CalendarConfig holds CalendarService settings.
type CalendarConfig struct {
	Location *time.Location
	// Timeout bounds each provider call.
	Timeout time.Duration
}

// CalendarService is the facade between the HTTP surface and the provider.
// Every operation validates the credential first and talks to the provider
// sequentially.
type CalendarService struct {
	auth    CredentialValidator
	open    OpenFunc
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time
}

// NewCalendarService creates a new CalendarService.
func NewCalendarService(auth CredentialValidator, open OpenFunc, cfg CalendarConfig) *CalendarService {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{
		auth:    auth,
		open:    open,
		loc:     loc,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
}

// ListUpcomingEvents returns the upcoming events of every calendar. Records
// are grouped by calendar in calendar-list order and sorted by start time
// within each calendar only. Any provider failure fails the whole listing.
func (s *CalendarService) ListUpcomingEvents(ctx context.Context, cred domain.Credential) ([]domain.EventRecord, error) {
	api, err := s.session(ctx, cred)
	if err != nil {
		return nil, err
	}

	var entries []*calendar.CalendarListEntry
	err = s.call(ctx, func(ctx context.Context) error {
		entries, err = api.ListCalendars(ctx)
		return err
	})
	if err != nil {
		return nil, providerError(err)
	}

	now := s.now()
	records := make([]domain.EventRecord, 0)
	for _, entry := range entries {
		ref := calendarRef(entry)

		var events []*calendar.Event
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			events, err = api.ListEvents(ctx, ref.ID, now)
			return err
		})
		if err != nil {
			return nil, providerError(err)
		}

		for _, event := range events {
			rec := Normalize(event, ref, s.loc)
			if rec.ParseError != "" {
				slog.Warn("event time not parseable",
					"calendar_id", rec.CalendarID,
					"event_id", rec.EventID,
					"problem", rec.ParseError,
				)
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

// CreateEvent inserts an event into the primary calendar and returns its id.
// The timezone is forwarded to the provider as given.
func (s *CalendarService) CreateEvent(ctx context.Context, cred domain.Credential, in domain.EventInput) (string, error) {
	if err := validateInput(in); err != nil {
		return "", err
	}

	api, err := s.session(ctx, cred)
	if err != nil {
		return "", err
	}

	var created *calendar.Event
	err = s.call(ctx, func(ctx context.Context) error {
		created, err = api.InsertEvent(ctx, domain.PrimaryCalendarID, providerEvent(in))
		return err
	})
	if err != nil {
		return "", providerError(err)
	}
	if created == nil || created.Id == "" {
		return "", fmt.Errorf("%w: provider returned no event id", domain.ErrProviderUnavailable)
	}

	slog.Info("event created", "event_id", created.Id)
	return created.Id, nil
}

// UpdateEvent replaces summary, start and end of eventID in the primary
// calendar.
func (s *CalendarService) UpdateEvent(ctx context.Context, cred domain.Credential, eventID string, in domain.EventInput) (domain.EventRecord, error) {
	if strings.TrimSpace(eventID) == "" {
		return domain.EventRecord{}, fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}
	if err := validateInput(in); err != nil {
		return domain.EventRecord{}, err
	}

	api, err := s.session(ctx, cred)
	if err != nil {
		return domain.EventRecord{}, err
	}

	var updated *calendar.Event
	err = s.call(ctx, func(ctx context.Context) error {
		updated, err = api.UpdateEvent(ctx, domain.PrimaryCalendarID, eventID, providerEvent(in))
		return err
	})
	if err != nil {
		if gcal.IsNotFound(err) {
			return domain.EventRecord{}, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
		}
		return domain.EventRecord{}, providerError(err)
	}

	slog.Info("event updated", "event_id", eventID)
	return Normalize(updated, s.primaryCalendar(ctx, api), s.loc), nil
}

// primaryCalendar resolves the "primary" alias to the id and summary a listing
// reports. If the lookup fails the record keeps the alias.
func (s *CalendarService) primaryCalendar(ctx context.Context, api CalendarAPI) domain.CalendarRef {
	var entry *calendar.CalendarListEntry
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		entry, err = api.GetCalendar(ctx, domain.PrimaryCalendarID)
		return err
	})
	if err != nil || entry == nil {
		slog.Warn("resolve primary calendar", "error", err)
		return domain.CalendarRef{ID: domain.PrimaryCalendarID}
	}
	return calendarRef(entry)
}

// DeleteEvent removes eventID from the primary calendar. Deleting an event
// the provider no longer knows is reported as success.
func (s *CalendarService) DeleteEvent(ctx context.Context, cred domain.Credential, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}

	api, err := s.session(ctx, cred)
	if err != nil {
		return err
	}

	err = s.call(ctx, func(ctx context.Context) error {
		return api.DeleteEvent(ctx, domain.PrimaryCalendarID, eventID)
	})
	if err != nil {
		if gcal.IsNotFound(err) {
			slog.Info("event already deleted", "event_id", eventID)
			return nil
		}
		return providerError(err)
	}

	slog.Info("event deleted", "event_id", eventID)
	return nil
}

// ListCalendars returns the calendars visible to the credential.
func (s *CalendarService) ListCalendars(ctx context.Context, cred domain.Credential) ([]domain.CalendarRef, error) {
	api, err := s.session(ctx, cred)
	if err != nil {
		return nil, err
	}

	var entries []*calendar.CalendarListEntry
	err = s.call(ctx, func(ctx context.Context) error {
		entries, err = api.ListCalendars(ctx)
		return err
	})
	if err != nil {
		return nil, providerError(err)
	}

	refs := make([]domain.CalendarRef, 0, len(entries))
	for _, entry := range entries {
		refs = append(refs, calendarRef(entry))
	}
	return refs, nil
}

// session validates cred and opens the provider with the result.
func (s *CalendarService) session(ctx context.Context, cred domain.Credential) (CalendarAPI, error) {
	valid, err := s.auth.EnsureValid(ctx, cred)
	if err != nil {
		return nil, err
	}
	api, err := s.open(ctx, valid)
	if err != nil {
		return nil, providerError(err)
	}
	return api, nil
}

func (s *CalendarService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func providerError(err error) error {
	if gcal.IsUnauthorized(err) {
		return fmt.Errorf("%w: provider rejected access token", domain.ErrNeedsReauth)
	}
	if errors.Is(err, domain.ErrNeedsReauth) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

func validateInput(in domain.EventInput) error {
	switch {
	case strings.TrimSpace(in.Summary) == "":
		return fmt.Errorf("%w: summary is required", domain.ErrInvalidInput)
	case strings.TrimSpace(in.Start) == "":
		return fmt.Errorf("%w: start is required", domain.ErrInvalidInput)
	case strings.TrimSpace(in.End) == "":
		return fmt.Errorf("%w: end is required", domain.ErrInvalidInput)
	case strings.TrimSpace(in.TimeZone) == "":
		return fmt.Errorf("%w: timeZone is required", domain.ErrInvalidInput)
	}
	return nil
}

func providerEvent(in domain.EventInput) *calendar.Event {
	return &calendar.Event{
		Summary: in.Summary,
		Start:   &calendar.EventDateTime{DateTime: in.Start, TimeZone: in.TimeZone},
		End:     &calendar.EventDateTime{DateTime: in.End, TimeZone: in.TimeZone},
	}
}

func calendarRef(entry *calendar.CalendarListEntry) domain.CalendarRef {
	return domain.CalendarRef{
		ID:       entry.Id,
		Summary:  entry.Summary,
		TimeZone: entry.TimeZone,
	}
}
