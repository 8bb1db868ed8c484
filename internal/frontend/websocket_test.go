package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebsocket_PushesGridAndClosesOnSignOut(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "a@b.c")

	server := httptest.NewServer(s.echo)
	defer server.Close()

	header := http.Header{}
	header.Add("Cookie", sessionCookieName+"="+token)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/entries"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	s.do(t, htmxRequest(http.MethodPost, "/htmx/modal/add"), token)
	if rec := submitEntry(t, s, token, "Pushed entry", testPNG(t, 8, 8)); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Expected a grid push with the new entry: %v", err)
		}
		if strings.Contains(string(message), "Pushed entry") {
			if !strings.Contains(string(message), `hx-swap-oob="true"`) {
				t.Fatalf("Expected an out of band swap, got %s", message)
			}
			break
		}
	}

	s.do(t, httptest.NewRequest(http.MethodPost, "/signout", nil), token)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("Expected a normal close after sign out, got %v", err)
			}
			return
		}
	}
}
