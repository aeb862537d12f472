// Package api serves the recording status over HTTP: JSON endpoints, a
// websocket stats feed and an MJPEG preview of the displayed frames.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/config"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/output"
	"github.com/bryanchriswhite/simplerecord/internal/record"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Version is reported by /api/health
const Version = "0.1.0"

// Status is the recording state the server reports, implemented by
// *record.Session
type Status interface {
	Stats() *record.Stats
	Info() record.Info
}

// Options tune the server
type Options struct {
	// PushInterval is the period of /api/stats/ws messages
	PushInterval time.Duration
	// PreviewInterval is the minimum gap between preview frames
	PreviewInterval time.Duration
	// PreviewQuality is the JPEG quality of preview frames
	PreviewQuality int
}

// DefaultOptions returns the options used for zero fields
func DefaultOptions() Options {
	return Options{
		PushInterval:    time.Second,
		PreviewInterval: 100 * time.Millisecond,
		PreviewQuality:  75,
	}
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	status    Status
	configMgr *config.Manager
	preview   *output.Broadcaster
	upgrader  websocket.Upgrader
	opts      Options

	mu          sync.Mutex
	httpServer  *http.Server
	lastPreview time.Time

	log *zerolog.Logger
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(status Status, configMgr *config.Manager, opts Options) *Server {
	def := DefaultOptions()
	if opts.PushInterval <= 0 {
		opts.PushInterval = def.PushInterval
	}
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = def.PreviewInterval
	}
	if opts.PreviewQuality <= 0 {
		opts.PreviewQuality = def.PreviewQuality
	}

	s := &Server{
		router:    mux.NewRouter(),
		status:    status,
		configMgr: configMgr,
		preview:   output.NewBroadcaster("preview"),
		upgrader: websocket.Upgrader{
			// The API only exposes read-only status
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts: opts,
		log:  logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/ws", s.handleStatsStream)
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	s.router.Handle("/preview", s.preview).Methods("GET")
	s.router.HandleFunc("/preview/view", output.ViewerHandler("/preview", "SimpleRecord preview")).Methods("GET")
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start listens on addr and serves in the background. It returns the bound
// address, useful with port 0.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Server error")
		}
	}()

	bound := listener.Addr().String()
	s.log.Info().Str("addr", bound).Msg("Status API listening")
	return bound, nil
}

// Close stops the preview stream and shuts the server down
func (s *Server) Close() error {
	s.preview.Close()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// PreviewTap returns a loop frame tap feeding /preview. Frames are only
// encoded while someone watches, at most once per PreviewInterval.
func (s *Server) PreviewTap() record.FrameFunc {
	return func(buf []byte, desc video.StreamDescriptor) {
		if s.preview.Clients() == 0 {
			return
		}
		now := time.Now()
		s.mu.Lock()
		if now.Sub(s.lastPreview) < s.opts.PreviewInterval {
			s.mu.Unlock()
			return
		}
		s.lastPreview = now
		s.mu.Unlock()

		data, err := output.EncodeJPEG(buf, desc, s.opts.PreviewQuality)
		if err != nil {
			s.log.Debug().Err(err).Msg("Failed to encode preview frame")
			return
		}
		s.preview.Publish(data)
	}
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.Stats().Snapshot())
}

// sessionResponse replaces the raw descriptor of record.Info with its
// summary
type sessionResponse struct {
	record.Info
	Stream map[string]interface{} `json:"stream,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	info := s.status.Info()
	if info.ID == "" {
		http.Error(w, "No session started", http.StatusNotFound)
		return
	}
	resp := sessionResponse{Info: info}
	if info.Stream.Width > 0 {
		resp.Stream = info.Stream.Summary()
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "No configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

// handleStatsStream pushes a stats snapshot every PushInterval until the
// client goes away
func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Reads are only needed to notice the close frame
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.status.Stats().Snapshot()); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>SimpleRecord</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-top: 0; }
        a { color: #1976d2; text-decoration: none; }
        pre { background: #f5f5f5; padding: 10px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>SimpleRecord</h1>
        <pre id="stats">waiting for stats...</pre>
        <ul>
            <li><a href="/api/health">/api/health</a> - Server health check</li>
            <li><a href="/api/stats">/api/stats</a> - Capture loop counters</li>
            <li><a href="/api/session">/api/session</a> - Current session</li>
            <li><a href="/api/config">/api/config</a> - Configuration</li>
            <li><a href="/preview/view">/preview/view</a> - Live preview</li>
        </ul>
    </div>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/stats/ws');
        ws.onmessage = (e) => {
            document.getElementById('stats').textContent = JSON.stringify(JSON.parse(e.data), null, 2);
        };
    </script>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}
