package internal

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/session"
)

// Coordinator is the chat state the server fronts. *session.Coordinator
// satisfies it.
type Coordinator interface {
	EventHandler
	Snapshot() session.Snapshot
	RoomExists(room string) bool
}

// ServerOptions wires a Server.
type ServerOptions struct {
	Coordinator Coordinator
	Hub         *Hub
	Metrics     *Metrics
	APILimiter  *RateLimiter
	// ConnLimiter throttles websocket upgrades per client IP.
	ConnLimiter *RateLimiter
	Logger      zerolog.Logger
	// Persistence names the configured sink for /health ("none" when unset).
	Persistence string
	Now         func() time.Time
}

// Server exposes the coordinator over websocket and a small JSON API.
type Server struct {
	coordinator Coordinator
	hub         *Hub
	metrics     *Metrics
	apiLimiter  *RateLimiter
	connLimiter *RateLimiter
	log         zerolog.Logger
	persistence string
	now         func() time.Time
	startedAt   time.Time
}

func NewServer(opts ServerOptions) *Server {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Metrics, opts.Logger)
	}
	if opts.Persistence == "" {
		opts.Persistence = "none"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		coordinator: opts.Coordinator,
		hub:         opts.Hub,
		metrics:     opts.Metrics,
		apiLimiter:  opts.APILimiter,
		connLimiter: opts.ConnLimiter,
		log:         opts.Logger,
		persistence: opts.Persistence,
		now:         opts.Now,
		startedAt:   opts.Now(),
	}
}

// MetricsHandler serves the Prometheus exposition for this server.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

// Routes registers every endpoint on a new mux with the websocket endpoint
// at joinPath.
func (s *Server) Routes(joinPath string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(joinPath, s.ServeWS)
	mux.Handle("/api/messages", s.limitAPI(s.HandleMessages))
	mux.Handle("/api/users", s.limitAPI(s.HandleUsers))
	mux.Handle("/api/rooms", s.limitAPI(s.HandleRooms))
	mux.HandleFunc("/exists", s.HandleRoomExists)
	mux.HandleFunc("/health", s.HandleHealth)
	mux.Handle("/metrics", s.MetricsHandler())
	mux.HandleFunc("/", s.HandleIndex)
	return mux
}

func (s *Server) limitAPI(handler http.HandlerFunc) http.Handler {
	if s.apiLimiter == nil {
		return handler
	}
	return s.apiLimiter.Middleware(handler)
}
