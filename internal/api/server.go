package api

import (
	"context"
	_ "embed"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-zeromq/zmq4"
	"tailscale.com/tsweb"

	"github.com/armlink-data/teleop.rig/internal/db"
	"github.com/armlink-data/teleop.rig/internal/httputil"
	"github.com/armlink-data/teleop.rig/internal/zmqio"
)

// DefaultFeedEndpoint is the daemon's debug feed.
const DefaultFeedEndpoint = "tcp://127.0.0.1:5560"

// DefaultListen is where the debug server answers HTTP.
const DefaultListen = ":8000"

// ANSI escape codes for the request log.
const (
	colorCyan      = "\033[36m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
	colorReset     = "\033[0m"
)

//go:embed index.html
var indexHTML []byte

// Server is the rig's debug web server: live status page, JSON API,
// WebSocket stream, and chart endpoints.
type Server struct {
	manager *DataManager
	hub     *Hub
	store   *db.DB // optional session database
	started time.Time
}

// NewServer wires a server over manager. store may be nil; when set, the
// session admin routes are mounted. The manager's OnEnhanced callback is
// claimed for the WebSocket broadcast.
func NewServer(manager *DataManager, store *db.DB) *Server {
	s := &Server{
		manager: manager,
		hub:     NewHub(manager),
		store:   store,
		started: time.Now(),
	}
	manager.OnEnhanced = s.hub.Broadcast
	return s
}

// ConsumeFeed subscribes to the daemon's debug feed and feeds the manager
// until ctx is cancelled.
func (s *Server) ConsumeFeed(ctx context.Context, endpoint string) error {
	return zmqio.Drain(ctx, func(ctx context.Context) (zmq4.Socket, error) {
		return zmqio.NewSub(ctx, endpoint, false)
	}, s.manager.Offer)
}

// ServeMux returns the route table, including the tsweb debugger and, when
// a database is attached, the session admin routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.index)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/api/health", s.health)
	mux.HandleFunc("/api/stats", s.stats)
	mux.HandleFunc("/api/latest", s.latest)
	mux.HandleFunc("/api/trajectory", s.trajectory)
	mux.HandleFunc("/api/trajectory.png", s.trajectoryPNG)
	mux.HandleFunc("/debug/charts", s.charts)

	tsweb.Debugger(mux)
	if s.store != nil {
		s.store.AttachAdminRoutes(mux)
	}
	return mux
}

// Handler returns the full handler with request logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.ServeMux())
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	server, _, err := s.manager.Stats(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"status":         "ok",
		"feed_messages":  server.TotalMessages,
		"feed_rate":      server.CurrentRate,
		"clients":        s.hub.ClientCount(),
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	server, noise, err := s.manager.Stats(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"server_stats": server,
		"noise":        noise,
		"clients":      s.hub.ClientCount(),
	})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	enhanced, ok, err := s.manager.Latest(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if !ok {
		httputil.NotFound(w, "no feed message received yet")
		return
	}
	httputil.WriteJSONOK(w, enhanced)
}

func (s *Server) trajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	n := DefaultTrajectoryTail
	if raw := r.FormValue("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "n must be a positive integer")
			return
		}
		n = parsed
	}
	points, err := s.manager.Trajectory(r.Context(), n)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"trajectory": points})
}
