package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/calwidget/internal/domain"
	"github.com/sumire/calwidget/internal/service"
)

type fakeAuth struct {
	cred        *domain.Credential
	currentErr  error
	gotExpected string
	gotParams   service.CallbackParams
	completeErr error
}

func (f *fakeAuth) Current(context.Context) (domain.Credential, error) {
	if f.currentErr != nil {
		return domain.Credential{}, f.currentErr
	}
	if f.cred == nil {
		return domain.Credential{}, domain.ErrNeedsReauth
	}
	return *f.cred, nil
}

func (f *fakeAuth) BeginAuthorization() (service.AuthRequest, error) {
	return service.AuthRequest{
		URL:   "https://accounts.example.com/o/oauth2/auth?state=s-123",
		State: "s-123",
	}, nil
}

func (f *fakeAuth) CompleteAuthorization(_ context.Context, expected string, params service.CallbackParams) (domain.Credential, error) {
	f.gotExpected = expected
	f.gotParams = params
	if f.completeErr != nil {
		return domain.Credential{}, f.completeErr
	}
	if expected == "" || expected != params.State {
		return domain.Credential{}, domain.ErrStateMismatch
	}
	return domain.Credential{AccessToken: "a"}, nil
}

type fakeCalendar struct {
	records  []domain.EventRecord
	refs     []domain.CalendarRef
	err      error
	gotInput domain.EventInput
	gotID    string
}

func (f *fakeCalendar) ListUpcomingEvents(context.Context, domain.Credential) ([]domain.EventRecord, error) {
	return f.records, f.err
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ domain.Credential, in domain.EventInput) (string, error) {
	f.gotInput = in
	if f.err != nil {
		return "", f.err
	}
	return "new-id", nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, _ domain.Credential, id string, in domain.EventInput) (domain.EventRecord, error) {
	f.gotID = id
	f.gotInput = in
	if f.err != nil {
		return domain.EventRecord{}, f.err
	}
	return domain.EventRecord{EventID: id, Summary: in.Summary}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, _ domain.Credential, id string) error {
	f.gotID = id
	return f.err
}

func (f *fakeCalendar) ListCalendars(context.Context, domain.Credential) ([]domain.CalendarRef, error) {
	return f.refs, f.err
}

const testSecret = "test-session-secret"

func newTestRouter(auth *fakeAuth, cal *fakeCalendar) *echo.Echo {
	return NewRouter(auth, cal, NewSessionManager(testSecret, false), RouterConfig{})
}

func authed() *fakeAuth {
	return &fakeAuth{cred: &domain.Credential{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}}
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestEvents_UnauthenticatedRedirects(t *testing.T) {
	e := newTestRouter(&fakeAuth{}, &fakeCalendar{})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/events", nil),
		httptest.NewRequest(http.MethodGet, "/calendars", nil),
		jsonRequest(http.MethodPost, "/add_event", `{}`),
		httptest.NewRequest(http.MethodDelete, "/events/x", nil),
	} {
		rec := serve(e, req)
		if rec.Code != http.StatusFound {
			t.Errorf("%s %s: status = %d, want 302", req.Method, req.URL.Path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != AuthorizePath {
			t.Errorf("%s %s: Location = %q, want %q", req.Method, req.URL.Path, loc, AuthorizePath)
		}
	}
}

func TestEvents_ReauthFromFacadeRedirects(t *testing.T) {
	e := newTestRouter(authed(), &fakeCalendar{err: domain.ErrNeedsReauth})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != AuthorizePath {
		t.Fatalf("status = %d Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestEvents_ReturnsArray(t *testing.T) {
	cal := &fakeCalendar{records: []domain.EventRecord{
		{CalendarID: "primary", EventID: "1", Summary: "Standup", Start: "2024-01-01 09:00:00", End: "2024-01-01 09:30:00"},
		{CalendarID: "team", EventID: "2", Summary: domain.NoTitle, Start: "2024-01-02", End: "2024-01-03", AllDay: true},
	}}
	e := newTestRouter(authed(), cal)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0]["calendarId"] != "primary" || got[0]["eventId"] != "1" || got[0]["summary"] != "Standup" {
		t.Errorf("first record = %v", got[0])
	}
	if _, ok := got[0]["parseError"]; ok {
		t.Errorf("parseError present on a clean record")
	}
}

func TestEvents_ProviderFailure(t *testing.T) {
	cal := &fakeCalendar{err: errors.Join(domain.ErrProviderUnavailable, errors.New("backend error"))}
	e := newTestRouter(authed(), cal)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "provider_unavailable" || !strings.Contains(body.Error, "backend error") {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthorize_SetsSessionAndRedirects(t *testing.T) {
	e := newTestRouter(&fakeAuth{}, &fakeCalendar{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/authorize", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "state=s-123") {
		t.Errorf("Location = %q", loc)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %v", cookies)
	}
	if strings.Count(cookies[0].Value, ".") != 2 {
		t.Errorf("session cookie is not a signed token: %q", cookies[0].Value)
	}
}

func TestCallback(t *testing.T) {
	e := newTestRouter(&fakeAuth{}, &fakeCalendar{})
	authorize := serve(e, httptest.NewRequest(http.MethodGet, "/authorize", nil))
	session := authorize.Result().Cookies()[0]

	tests := []struct {
		name     string
		query    string
		cookie   *http.Cookie
		wantLoc  string
		wantSeen string
	}{
		{
			name:     "matching state",
			query:    "?state=s-123&code=abc",
			cookie:   session,
			wantLoc:  EventsPath,
			wantSeen: "s-123",
		},
		{
			name:     "state mismatch",
			query:    "?state=other&code=abc",
			cookie:   session,
			wantLoc:  AuthorizePath,
			wantSeen: "s-123",
		},
		{
			name:    "no session",
			query:   "?state=s-123&code=abc",
			wantLoc: AuthorizePath,
		},
		{
			name:    "tampered session",
			query:   "?state=s-123&code=abc",
			cookie:  &http.Cookie{Name: sessionCookieName, Value: session.Value + "x"},
			wantLoc: AuthorizePath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{}
			e := newTestRouter(auth, &fakeCalendar{})

			req := httptest.NewRequest(http.MethodGet, "/oauth2callback"+tt.query, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := serve(e, req)

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
			if auth.gotExpected != tt.wantSeen {
				t.Errorf("expected state = %q, want %q", auth.gotExpected, tt.wantSeen)
			}
		})
	}
}

func TestCallback_ExchangeFailureRedirects(t *testing.T) {
	auth := &fakeAuth{completeErr: domain.ErrExchangeFailed}
	e := newTestRouter(auth, &fakeCalendar{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/oauth2callback?state=a&error=access_denied", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != AuthorizePath {
		t.Fatalf("status = %d Location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if auth.gotParams.Error != "access_denied" {
		t.Errorf("error param = %q", auth.gotParams.Error)
	}
}

func TestAddEvent(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{
			name:       "created",
			body:       `{"summary":"Standup","start":"2024-01-01T09:00:00","end":"2024-01-01T09:30:00","timeZone":"Asia/Kolkata"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing summary",
			body:       `{"start":"2024-01-01T09:00:00","end":"2024-01-01T09:30:00","timeZone":"Asia/Kolkata"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "summary",
		},
		{
			name:       "unknown zone",
			body:       `{"summary":"x","start":"2024-01-01T09:00:00","end":"2024-01-01T09:30:00","timeZone":"Mars/Olympus"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "timeZone",
		},
		{
			name:       "broken json",
			body:       `{"summary":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := &fakeCalendar{}
			e := newTestRouter(authed(), cal)

			rec := serve(e, jsonRequest(http.MethodPost, "/add_event", tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body)
			}

			if tt.wantStatus == http.StatusCreated {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["eventId"] != "new-id" || body["message"] != "Event created" {
					t.Errorf("body = %v", body)
				}
				if cal.gotInput.TimeZone != "Asia/Kolkata" || cal.gotInput.Start != "2024-01-01T09:00:00" {
					t.Errorf("input = %+v", cal.gotInput)
				}
				return
			}

			if tt.wantField != "" {
				var body ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(body.Details) != 1 || body.Details[0].Field != tt.wantField {
					t.Errorf("details = %+v, want field %s", body.Details, tt.wantField)
				}
			}
		})
	}
}

func TestUpdateEvent(t *testing.T) {
	body := `{"summary":"Retro","start":"2024-01-02T16:00:00","end":"2024-01-02T17:00:00","timeZone":"Asia/Kolkata"}`

	t.Run("ok", func(t *testing.T) {
		cal := &fakeCalendar{}
		e := newTestRouter(authed(), cal)

		rec := serve(e, jsonRequest(http.MethodPut, "/events/evt-9", body))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		if cal.gotID != "evt-9" {
			t.Errorf("event id = %q, want evt-9", cal.gotID)
		}
		var got domain.EventRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Summary != "Retro" {
			t.Errorf("record = %+v", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		e := newTestRouter(authed(), &fakeCalendar{err: domain.ErrNotFound})

		rec := serve(e, jsonRequest(http.MethodPut, "/events/missing", body))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		e := newTestRouter(authed(), &fakeCalendar{err: domain.ErrProviderUnavailable})

		rec := serve(e, jsonRequest(http.MethodPut, "/events/x", body))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
	})
}

func TestDeleteEvent(t *testing.T) {
	cal := &fakeCalendar{}
	e := newTestRouter(authed(), cal)

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/events/evt-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "Event deleted" || cal.gotID != "evt-1" {
		t.Errorf("body = %v id = %q", body, cal.gotID)
	}
}

func TestCalendars(t *testing.T) {
	cal := &fakeCalendar{refs: []domain.CalendarRef{{ID: "primary", Summary: "Me", TimeZone: "Asia/Kolkata"}}}
	e := newTestRouter(authed(), cal)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/calendars", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "primary" || got[0]["summary"] != "Me" || got[0]["timeZone"] != "Asia/Kolkata" {
		t.Errorf("calendars = %v", got)
	}
}

func TestStoreFailureIsInternalError(t *testing.T) {
	e := newTestRouter(&fakeAuth{currentErr: errors.New("disk on fire")}, &fakeCalendar{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Errorf("internal error detail leaked: %s", rec.Body)
	}
}

func TestHealth(t *testing.T) {
	e := newTestRouter(&fakeAuth{}, &fakeCalendar{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
