// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/events"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/metrics"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/monitor"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/store"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Controller is the detector side of the control surface.
type Controller interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Enabled() bool
	ResetStats(ctx context.Context) (stats.Counters, error)
	Continue(ctx context.Context, handle string) error
	Get(handle string) (monitor.Info, error)
	List() []monitor.Info
}

// StatsService reads the counters.
type StatsService interface {
	Snapshot(ctx context.Context) (stats.Counters, error)
	Degraded() bool
}

// Dispatcher handles {action, ...} control messages.
type Dispatcher interface {
	Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// FlashHistory reads the flash journal.
type FlashHistory interface {
	RecentFlashes(ctx context.Context, videoID string, limit int) ([]store.FlashRecord, error)
}

// Deps wires the server to the rest of the daemon. Metrics and History
// may be nil.
type Deps struct {
	Control Controller
	Stats   StatsService
	Hub     *events.Hub
	Router  Dispatcher
	Metrics *metrics.Metrics
	History FlashHistory
}

// observer is one WebSocket connection.
type observer struct {
	conn    *websocket.Conn
	out     chan any
	limiter *rateLimiter
	ip      string
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	deps Deps
	now  func() time.Time

	mu        sync.RWMutex
	observers map[*observer]struct{}
	ipLimits  *ipLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new server and starts the event broadcaster.
func New(deps Deps) *Server {
	s := &Server{
		deps:      deps,
		now:       time.Now,
		observers: make(map[*observer]struct{}),
		ipLimits:  newIPLimiter(),
		stopCh:    make(chan struct{}),
	}

	s.wg.Add(2)
	go s.broadcastEvents()
	go s.cleanupLoop()

	return s
}

// Close stops the broadcaster. Open connections close when their requests
// end.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/stats/reset", s.handleResetStats)
	mux.HandleFunc("POST /api/enable", s.handleEnable)
	mux.HandleFunc("POST /api/disable", s.handleDisable)
	mux.HandleFunc("GET /api/detectors", s.handleDetectors)
	mux.HandleFunc("GET /api/detectors/{handle}", s.handleDetector)
	mux.HandleFunc("POST /api/detectors/{handle}/continue", s.handleContinue)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/videos/{id}/flashes", s.handleFlashes)

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(IPRateLimitCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.ipLimits.cleanup(s.now(), IPRateLimitEntryTTL); n > 0 {
				trace.Logger(context.Background()).Debug("purged idle rate limit entries", "count", n)
			}
		}
	}
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error struct {
		Code     string            `json:"code"`
		Message  string            `json:"message"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var body errorBody
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.Internal, err.Error())
	}
	body.Error.Code = appErr.Code.String()
	body.Error.Message = appErr.Message
	body.Error.Metadata = appErr.Metadata

	status := httpStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		trace.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func httpStatus(c apperrors.Code) int {
	switch c {
	case apperrors.InvalidArgument, apperrors.StatUnknown, apperrors.ActionUnknown, apperrors.ConfigInvalid:
		return http.StatusBadRequest
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.Unavailable, apperrors.StoreReadFailed, apperrors.StoreWriteFailed:
		return http.StatusServiceUnavailable
	case apperrors.Timeout:
		return http.StatusGatewayTimeout
	case apperrors.CaptureDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
