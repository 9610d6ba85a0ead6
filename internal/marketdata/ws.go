package marketdata

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WSHandler streams quote events to UI clients. Read side is drained only
// to detect close; this is a broadcast-only socket.
type WSHandler struct {
	bus      *Bus
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *Bus, origin string) *WSHandler {
	return &WSHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case tick, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(tick); err != nil {
				log.Printf("[market-ws] write: %v", err)
				return
			}
		}
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	got := r.Header.Get("Origin")
	if got == "" {
		return true
	}
	for _, allowed := range strings.Split(origin, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), got) {
			return true
		}
	}
	return false
}
