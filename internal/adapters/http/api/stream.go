package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

const streamWriteTimeout = 5 * time.Second

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// StreamDependencies publishes render passes.
type StreamDependencies interface {
	Timeline(ctx context.Context) render.Model
	Subscribe(fn func(render.Model)) (cancel func())
}

// StreamHandler pushes every render pass to websocket clients.
type StreamHandler struct {
	deps    StreamDependencies
	clients atomic.Int64
	logger  logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies) *StreamHandler {
	return &StreamHandler{deps: deps, logger: logger.Get().Named("stream")}
}

// Clients returns the number of connected clients.
func (h *StreamHandler) Clients() int { return int(h.clients.Load()) }

// HandleStream handles GET /ws/timeline. The current model is sent on
// connect, then each new one; a slow client only sees the latest.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	metrics.UpdateStreamClients(int(h.clients.Add(1)))
	defer func() {
		metrics.UpdateStreamClients(int(h.clients.Add(-1)))
		_ = conn.Close()
	}()

	updates := make(chan render.Model, 1)
	cancel := h.deps.Subscribe(func(m render.Model) {
		// single producer: render passes are serialized
		select {
		case updates <- m:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- m
		}
	})
	defer cancel()

	if err := writeStreamPayload(conn, h.deps.Timeline(r.Context())); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m := <-updates:
			if err := writeStreamPayload(conn, m); err != nil {
				h.logger.Debug(r.Context(), "stream client dropped", logger.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

func writeStreamPayload(conn *websocket.Conn, m render.Model) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(m)
}
