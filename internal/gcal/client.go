// Package gcal is a thin wrapper over the Google Calendar v3 API used by the
// calendar facade.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sumire/calwidget/internal/domain"
)

// pageSize is the largest page the events endpoint accepts.
const pageSize = 2500

// Client issues calendar calls on behalf of one credential.
type Client struct {
	service *calendar.Service
}

// NewClient creates a Client on an already authorized HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Client{service: service}, nil
}

// Opener builds Clients for credentials. The token is used as-is: refreshing
// is the caller's job, so the transport never refreshes behind its back.
type Opener struct {
	Timeout time.Duration
	Options []option.ClientOption
}

// Open returns a Client authorized with cred.
func (o Opener) Open(ctx context.Context, cred domain.Credential) (*Client, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   cred.TokenType,
		Expiry:      cred.Expiry,
	})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = o.Timeout
	return NewClient(ctx, httpClient, o.Options...)
}

// ListCalendars returns every calendar in the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context) ([]*calendar.CalendarListEntry, error) {
	var items []*calendar.CalendarListEntry
	err := c.service.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	return items, nil
}

// GetCalendar returns the calendar list entry for calendarID. The alias
// "primary" resolves to the user's own calendar.
func (c *Client) GetCalendar(ctx context.Context, calendarID string) (*calendar.CalendarListEntry, error) {
	entry, err := c.service.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get calendar %s: %w", calendarID, err)
	}
	return entry, nil
}

// ListEvents returns the single occurrences of calendarID starting at or after
// timeMin, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin time.Time) ([]*calendar.Event, error) {
	var items []*calendar.Event
	err := c.service.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(pageSize).
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", calendarID, err)
	}
	return items, nil
}

// InsertEvent creates event in calendarID.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	created, err := c.service.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return created, nil
}

// UpdateEvent replaces eventID in calendarID with event.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	updated, err := c.service.Events.Update(calendarID, eventID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", eventID, err)
	}
	return updated, nil
}

// DeleteEvent removes eventID from calendarID.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

// IsNotFound reports whether err is the provider saying the resource does not
// exist. Deleted events answer 410 Gone.
func IsNotFound(err error) bool {
	var ae *googleapi.Error
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Code == http.StatusNotFound || ae.Code == http.StatusGone
}

// IsUnauthorized reports whether the provider rejected the access token.
func IsUnauthorized(err error) bool {
	var ae *googleapi.Error
	return errors.As(err, &ae) && ae.Code == http.StatusUnauthorized
}
