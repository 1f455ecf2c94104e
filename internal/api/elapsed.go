package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	elapsedBuffer = 16
	writeWait     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

type elapsedMessage struct {
	ElapsedMillis int64 `json:"elapsed_ms"`
}

// elapsedHub fans elapsed reports out to websocket subscribers. Slow
// subscribers miss reports rather than block the recording tick.
type elapsedHub struct {
	mu   sync.Mutex
	subs map[chan int64]struct{}
}

func newElapsedHub() *elapsedHub {
	return &elapsedHub{subs: make(map[chan int64]struct{})}
}

func (h *elapsedHub) subscribe() chan int64 {
	ch := make(chan int64, elapsedBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *elapsedHub) unsubscribe(ch chan int64) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *elapsedHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *elapsedHub) broadcast(d time.Duration) {
	ms := d.Milliseconds()
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ms:
		default:
		}
	}
}

func (s *Server) handleElapsed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ms := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(elapsedMessage{ElapsedMillis: ms}); err != nil {
				slog.Debug("elapsed stream closed", "error", err)
				return
			}
		}
	}
}
