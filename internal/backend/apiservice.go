package backend

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jo-hoe/refshelf/internal/backend/database"

	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// EntryFilter narrows entries down to those matching a search text.
type EntryFilter func(entries []*database.Entry, search string) []*database.Entry

// APIService exposes a read only JSON view of a user's entries for scripts.
// Requests authenticate with "Authorization: Bearer <session token>".
type APIService struct {
	client *Client
	filter EntryFilter
}

func NewAPIService(client *Client, filter EntryFilter) *APIService {
	return &APIService{client: client, filter: filter}
}

func (s *APIService) SetRoutes(g *echo.Group) {
	g.Use(s.requireBearer)
	g.GET("/entries", s.handleListEntries)
	g.GET("/entries/:id", s.handleGetEntry)
}

func (s *APIService) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		user, err := s.client.Auth.CurrentUser(c.Request().Context(), strings.TrimSpace(token))
		if err != nil {
			slog.Error("api: failed to resolve session", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve session")
		}
		if user == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "session is not signed in")
		}

		c.Set(userContextKey, user)
		return next(c)
	}
}

func (s *APIService) handleListEntries(c echo.Context) error {
	user := c.Get(userContextKey).(*database.User)

	entries, err := s.client.Documents.GetEntries(c.Request().Context(), user.ID)
	if err != nil {
		slog.Error("api: failed to list entries", "user_id", user.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list entries")
	}
	if s.filter != nil {
		entries = s.filter(entries, c.QueryParam("search"))
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *APIService) handleGetEntry(c echo.Context) error {
	user := c.Get(userContextKey).(*database.User)

	entry, err := s.client.Documents.GetEntryByID(c.Request().Context(), user.ID, c.Param("id"))
	if err != nil {
		slog.Error("api: failed to get entry", "user_id", user.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get entry")
	}
	if entry == nil {
		return echo.NewHTTPError(http.StatusNotFound, "entry not found")
	}
	return c.JSON(http.StatusOK, entry)
}
