package frontend

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jo-hoe/refshelf/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// websocketHandler pushes the re-rendered grid as an out of band swap after
// every change of the dashboard. The connection closes when the session ends.
func (service *FrontendService) websocketHandler(ctx echo.Context) error {
	dashboard := dashboardOf(ctx)

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		slog.Warn("websocketHandler: upgrade failed", "error", err)
		return nil
	}
	defer func() {
		_ = conn.Close()
	}()

	changes, unsubscribe := dashboard.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-dashboard.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "dashboard closed"))
			return nil
		case <-changes:
			message, err := service.renderGridMessage(dashboard)
			if err != nil {
				slog.Error("websocketHandler: failed to render grid", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// readPump discards client messages and reports when the connection is gone.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket: connection closed", "error", err)
			}
			return
		}
	}
}

func (service *FrontendService) renderGridMessage(dashboard *core.Dashboard) ([]byte, error) {
	grid := newGridView(dashboard)
	grid.OOB = true
	var buf bytes.Buffer
	if err := service.template.templates.ExecuteTemplate(&buf, "grid", grid); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
