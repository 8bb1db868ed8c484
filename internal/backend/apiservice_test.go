package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

func titleFilter(entries []*database.Entry, search string) []*database.Entry {
	out := make([]*database.Entry, 0, len(entries))
	for _, entry := range entries {
		if search == "" || strings.Contains(entry.Title, search) {
			out = append(out, entry)
		}
	}
	return out
}

func newTestAPI(t *testing.T) (*echo.Echo, *Client, string, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	documents, err := database.NewSQLiteDatabase(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase error: %v", err)
	}
	if err := documents.CreateDatabase(context.Background()); err != nil {
		t.Fatalf("CreateDatabase error: %v", err)
	}

	authService := auth.NewService(documents, auth.NewSessionStore(redisClient, time.Hour))
	client := NewClient(authService, documents, nil)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if _, err := authService.SignUp(ctx, "a@b.c", "secret-password"); err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	token, user, err := authService.SignIn(ctx, "a@b.c", "secret-password")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}

	e := echo.New()
	NewAPIService(client, titleFilter).SetRoutes(e.Group("/api"))
	return e, client, token, user.ID
}

func apiGet(e *echo.Echo, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIService_RequiresBearer(t *testing.T) {
	e, _, _, _ := newTestAPI(t)

	if rec := apiGet(e, "/api/entries", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", rec.Code)
	}
	if rec := apiGet(e, "/api/entries", "unknown"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for unknown token, got %d", rec.Code)
	}
}

func TestAPIService_ListAndGet(t *testing.T) {
	e, client, token, userID := newTestAPI(t)
	ctx := context.Background()

	first, err := client.Documents.CreateEntry(ctx, database.NewEntry{OwnerID: userID, Title: "Hands", ImageURL: "http://x/1.png", Tags: []string{"anatomy"}})
	if err != nil {
		t.Fatalf("CreateEntry error: %v", err)
	}
	if _, err := client.Documents.CreateEntry(ctx, database.NewEntry{OwnerID: userID, Title: "Trees", ImageURL: "http://x/2.png"}); err != nil {
		t.Fatalf("CreateEntry error: %v", err)
	}
	other, err := client.Documents.CreateEntry(ctx, database.NewEntry{OwnerID: "someone-else", Title: "Hidden", ImageURL: "http://x/3.png"})
	if err != nil {
		t.Fatalf("CreateEntry error: %v", err)
	}

	rec := apiGet(e, "/api/entries", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var entries []database.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("failed to decode entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 own entries, got %d", len(entries))
	}

	rec = apiGet(e, "/api/entries?search=Hand", token)
	entries = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("failed to decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != first.ID {
		t.Fatalf("Expected only the matching entry, got %+v", entries)
	}

	rec = apiGet(e, "/api/entries/"+first.ID, token)
	var got database.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.Title != "Hands" {
		t.Fatalf("Expected entry Hands, got %+v (%v)", got, err)
	}

	if rec := apiGet(e, "/api/entries/"+other.ID, token); rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for another owner's entry, got %d", rec.Code)
	}
}
