package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ruteri/obscura-mint/interfaces"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamBacklog    = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleEventStream upgrades to a websocket and pushes events as JSON
// messages. With ?from=N, events from sequence N are replayed first. The
// connection is closed when the client falls too far behind; it can
// reconnect with from set past the last event it received.
func (h *Handler) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", h.ledger.EventCount())
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// subscribe before reading the backlog so nothing falls in between
	sub := h.ledger.Subscribe(0)
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	next := from
	send := func(ev interfaces.Event) bool {
		if ev.Seq < next {
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			return false
		}
		next = ev.Seq + 1
		return true
	}

	for {
		backlog := h.ledger.Events(next, streamBacklog)
		if len(backlog) == 0 {
			break
		}
		for _, ev := range backlog {
			if !send(ev) {
				return
			}
		}
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber fell behind"),
					time.Now().Add(streamWriteWait))
				return
			}
			if !send(ev) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
