package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sumire/calwidget/internal/domain"
)

// DefaultTimeout bounds every request the widget makes to the backend.
const DefaultTimeout = 10 * time.Second

// Client talks to the calendar backend over its REST surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the backend at baseURL. Redirects are not
// followed so that a bounce to /authorize can be reported to the caller.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// AuthorizeURL is where the user must go to grant calendar access.
func (c *Client) AuthorizeURL() string {
	return c.baseURL + "/authorize"
}

// FetchEvents returns the upcoming events across all calendars.
func (c *Client) FetchEvents(ctx context.Context) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	if err := c.do(ctx, http.MethodGet, "/events", nil, &records); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	return records, nil
}

type addEventResponse struct {
	Message string `json:"message"`
	EventID string `json:"eventId"`
}

// AddEvent creates an event on the primary calendar and returns its id.
func (c *Client) AddEvent(ctx context.Context, input domain.EventInput) (string, error) {
	var resp addEventResponse
	if err := c.do(ctx, http.MethodPost, "/add_event", input, &resp); err != nil {
		return "", fmt.Errorf("add event: %w", err)
	}
	return resp.EventID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if isAuthRedirect(resp) {
		return domain.ErrNeedsReauth
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isAuthRedirect(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
	default:
		return false
	}
	return strings.Contains(resp.Header.Get("Location"), "/authorize")
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// IsNeedsReauth reports whether err asks the user to authorize again.
func IsNeedsReauth(err error) bool {
	return errors.Is(err, domain.ErrNeedsReauth)
}
