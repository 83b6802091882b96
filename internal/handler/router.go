package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// EventsPath lists upcoming events; a completed authorization lands here.
const EventsPath = "/events"

// RouterConfig holds HTTP surface settings.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter wires every route of the facade.
func NewRouter(auth Authenticator, calendar Calendar, sessions *SessionManager, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAccept, echo.HeaderContentType},
		ExposeHeaders: []string{echo.HeaderXRequestID},
		MaxAge:        300,
	}))

	authHandler := NewAuthHandler(auth, sessions)
	calendarHandler := NewCalendarHandler(calendar)

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Google Calendar Widget Backend")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET(AuthorizePath, authHandler.Authorize)
	e.GET("/oauth2callback", authHandler.Callback)

	requireCredential := RequireCredential(auth)
	e.GET(EventsPath, calendarHandler.ListEvents, requireCredential)
	e.POST("/add_event", calendarHandler.AddEvent, requireCredential)
	e.PUT(EventsPath+"/:id", calendarHandler.UpdateEvent, requireCredential)
	e.DELETE(EventsPath+"/:id", calendarHandler.DeleteEvent, requireCredential)
	e.GET("/calendars", calendarHandler.ListCalendars, requireCredential)

	return e
}
