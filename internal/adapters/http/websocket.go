package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/progress"
)

const (
	scanWSWriteWait = 10 * time.Second
	scanWSPongWait  = 60 * time.Second
	scanWSPingEvery = (scanWSPongWait * 9) / 10
)

var scanWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// watchScan streams progress events for one scan until it finishes or the
// client goes away.
func (s *Server) watchScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "id")
	if _, err := s.discovery.ScanStatus(r.Context(), scanID); err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := scanWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(scanWSPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(scanWSPongWait))
	})
	// Only control frames are expected from the client; a read error means
	// the peer closed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events, unsubscribe := s.hub.Subscribe(ctx, scanID)
	defer unsubscribe()

	// The scan may have finished between the lookup and the subscription.
	scan, err := s.discovery.ScanStatus(ctx, scanID)
	if err != nil {
		return
	}
	if scan.Status.Terminal() {
		_ = writeEvent(conn, eventFromScan(scan))
		closeWS(conn)
		return
	}

	ticker := time.NewTicker(scanWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				closeWS(conn)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				s.log.WithError(err).WithField("scan_id", scanID).Debug("scan ws write failed")
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(scanWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func eventFromScan(scan domain.Scan) progress.Event {
	ev := progress.Event{ScanID: scan.ID, Status: scan.Status, Progress: scan.Progress, Message: scan.Error}
	if scan.FinishedAt != nil {
		ev.At = *scan.FinishedAt
	}
	return ev
}

func writeEvent(conn *websocket.Conn, ev progress.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(scanWSWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

func closeWS(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished"),
		time.Now().Add(scanWSWriteWait),
	)
}
