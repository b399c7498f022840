package websocket

import (
	"collab-realtime/contract"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Handler upgrades HTTP requests and runs one Client per socket.
type Handler struct {
	log      *slog.Logger
	hub      contract.IHub
	upgrader websocket.Upgrader
	opts     Options
}

// NewHandler accepts every origin when allowedOrigins is empty or holds "*".
func NewHandler(log *slog.Logger, hub contract.IHub, allowedOrigins []string, opts Options) *Handler {
	return &Handler{
		log: log,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		opts: opts,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(h.log, conn, h.hub, h.opts)
	client.id = h.hub.Connect(client)
	h.log.Debug("Socket opened", "connection_id", client.id, "remote_addr", r.RemoteAddr)

	go client.writePump()
	client.readPump()

	h.hub.Disconnect(client.id)
	client.Close()
}
