package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/calwidget/internal/domain"
)

// Calendar is the facade consumed by CalendarHandler.
type Calendar interface {
	ListUpcomingEvents(ctx context.Context, cred domain.Credential) ([]domain.EventRecord, error)
	CreateEvent(ctx context.Context, cred domain.Credential, in domain.EventInput) (string, error)
	UpdateEvent(ctx context.Context, cred domain.Credential, eventID string, in domain.EventInput) (domain.EventRecord, error)
	DeleteEvent(ctx context.Context, cred domain.Credential, eventID string) error
	ListCalendars(ctx context.Context, cred domain.Credential) ([]domain.CalendarRef, error)
}

// CalendarHandler serves the event and calendar endpoints.
type CalendarHandler struct {
	calendar Calendar
}

// NewCalendarHandler creates a new CalendarHandler.
func NewCalendarHandler(calendar Calendar) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// ListEvents returns upcoming events across all calendars.
func (h *CalendarHandler) ListEvents(c echo.Context) error {
	cred, ok := GetCredential(c)
	if !ok {
		return domain.ErrNeedsReauth
	}

	records, err := h.calendar.ListUpcomingEvents(c.Request().Context(), cred)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

// AddEvent creates an event in the primary calendar.
func (h *CalendarHandler) AddEvent(c echo.Context) error {
	cred, ok := GetCredential(c)
	if !ok {
		return domain.ErrNeedsReauth
	}

	in, err := bindEventInput(c)
	if err != nil {
		return err
	}

	id, err := h.calendar.CreateEvent(c.Request().Context(), cred, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"message": "Event created",
		"eventId": id,
	})
}

// UpdateEvent replaces an event in the primary calendar.
func (h *CalendarHandler) UpdateEvent(c echo.Context) error {
	cred, ok := GetCredential(c)
	if !ok {
		return domain.ErrNeedsReauth
	}

	in, err := bindEventInput(c)
	if err != nil {
		return err
	}

	rec, err := h.calendar.UpdateEvent(c.Request().Context(), cred, c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// DeleteEvent removes an event from the primary calendar.
func (h *CalendarHandler) DeleteEvent(c echo.Context) error {
	cred, ok := GetCredential(c)
	if !ok {
		return domain.ErrNeedsReauth
	}

	if err := h.calendar.DeleteEvent(c.Request().Context(), cred, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "Event deleted"})
}

// ListCalendars returns the calendars visible to the user.
func (h *CalendarHandler) ListCalendars(c echo.Context) error {
	cred, ok := GetCredential(c)
	if !ok {
		return domain.ErrNeedsReauth
	}

	refs, err := h.calendar.ListCalendars(c.Request().Context(), cred)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refs)
}

func bindEventInput(c echo.Context) (domain.EventInput, error) {
	var in domain.EventInput
	if err := (&echo.DefaultBinder{}).BindBody(c, &in); err != nil {
		return domain.EventInput{}, fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&in); err != nil {
		return domain.EventInput{}, err
	}
	return in, nil
}
