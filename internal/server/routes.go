package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/protocol"
	"github.com/Revaiowo/streamRTC/internal/relay"
)

// Routes builds the HTTP surface of the relay.
func Routes(hub *relay.Hub, cfg config.Relay, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(Logger(logger))

	r.Get("/health", healthCheckHandler)
	r.Get("/ws", ServeWs(hub, cfg, logger))
	r.Get("/rooms", roomsHandler(hub))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func roomsHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.Rooms())
	}
}

// NewUpgrader returns a websocket upgrader that only accepts the configured
// origins. Requests without an Origin header come from native clients and
// are always accepted.
func NewUpgrader(cfg config.Relay) *websocket.Upgrader {
	anyOrigin := cfg.AllowsAnyOrigin()
	allowed := slices.Clone(cfg.AllowedOrigins)

	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || anyOrigin {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency. The codec is picked with ?codec=.
func ServeWs(hub *relay.Hub, cfg config.Relay, logger *slog.Logger) http.HandlerFunc {
	upgrader := NewUpgrader(cfg)
	connCfg := relay.ConnConfig{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Upgrade the HTTP connection to a WebSocket
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		conn := relay.NewConn(hub, ws, codec, connCfg, logger.With("remote", r.RemoteAddr, "codec", codec.Name()))
		go conn.Serve()
	}
}

// Logger logs every request once it has been served.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("request", "uri", r.RequestURI, "method", r.Method, "status", ww.Status(), "from", r.RemoteAddr)
		})
	}
}
