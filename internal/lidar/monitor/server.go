// Package monitor serves the HTTP status API and tsweb debug pages for a
// running capture.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rangescan/internal/httputil"
	"github.com/banshee-data/rangescan/internal/lidar/capture"
	"github.com/banshee-data/rangescan/internal/lidar/lidardb"
	"github.com/banshee-data/rangescan/internal/lidar/publish"
	"github.com/banshee-data/rangescan/internal/lidar/scanbus"
	"github.com/banshee-data/rangescan/internal/monitoring"
	"github.com/banshee-data/rangescan/internal/timeutil"
	"github.com/banshee-data/rangescan/internal/version"
)

// DriverView is the part of the capture driver the monitor reports on.
type DriverView interface {
	State() capture.State
	IsReady() bool
	RPM() float64
	Err() error
	Stats() capture.Stats
	LatestRates() *capture.RateSnapshot
}

// Config contains configuration options for the monitor server.
type Config struct {
	Address   string
	Driver    DriverView
	Source    string // port or file the driver reads from
	SessionID string
	DB        *lidardb.DB // optional; enables /api/scans and tailsql

	// Optional stats providers included in /api/status.
	PublisherStats func() publish.PublisherStats
	BusStats       func() scanbus.BusStats
	RecorderStats  func() lidardb.RecorderStats

	Clock timeutil.Clock
}

// Server handles the HTTP interface. It also implements publish.Sink so the
// latest scan can be served and streamed.
type Server struct {
	cfg     Config
	clock   timeutil.Clock
	started time.Time
	mux     *http.ServeMux
	server  *http.Server

	latest atomic.Pointer[publish.LaserScan]

	subscriberMu sync.Mutex
	subscribers  map[int]chan *publish.LaserScan
	nextID       int
}

var _ publish.Sink = (*Server)(nil)

// NewServer creates a monitor server with its routes registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Driver == nil {
		return nil, errors.New("monitor: driver is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	s := &Server{
		cfg:         cfg,
		clock:       cfg.Clock,
		started:     cfg.Clock.Now(),
		mux:         http.NewServeMux(),
		subscribers: make(map[int]chan *publish.LaserScan),
	}
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[monitor] starting HTTP server on %s", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("monitor: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	monitoring.Logf("[monitor] shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("[monitor] HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) setupRoutes() error {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/scans", s.handleScans)
	s.attachDebugRoutes()
	if s.cfg.DB != nil {
		if err := s.cfg.DB.AttachAdminRoutes(s.mux); err != nil {
			return err
		}
	}
	return nil
}

// PublishScan implements publish.Sink.
func (s *Server) PublishScan(scan *publish.LaserScan) error {
	s.latest.Store(scan)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- scan:
		default:
		}
	}
	return nil
}

// Latest returns the last published scan, or nil.
func (s *Server) Latest() *publish.LaserScan {
	return s.latest.Load()
}

func (s *Server) subscribe() (int, <-chan *publish.LaserScan) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan *publish.LaserScan, 4)
	s.subscribers[id] = ch
	return id, ch
}

func (s *Server) unsubscribe(id int) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	delete(s.subscribers, id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "rangescan",
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	})
}

// Status is the /api/status response.
type Status struct {
	State     string                   `json:"state"`
	Ready     bool                     `json:"ready"`
	RPM       float64                  `json:"rpm"`
	Source    string                   `json:"source,omitempty"`
	SessionID string                   `json:"session_id,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Uptime    string                   `json:"uptime"`
	Capture   capture.Stats            `json:"capture"`
	Rates     *capture.RateSnapshot    `json:"rates,omitempty"`
	Publisher *publish.PublisherStats  `json:"publisher,omitempty"`
	Bus       *scanbus.BusStats        `json:"bus,omitempty"`
	Recorder  *lidardb.RecorderStats   `json:"recorder,omitempty"`
	Version   version.Info             `json:"version"`
}

// Status collects the current status.
func (s *Server) Status() Status {
	d := s.cfg.Driver
	st := Status{
		State:     d.State().String(),
		Ready:     d.IsReady(),
		RPM:       d.RPM(),
		Source:    s.cfg.Source,
		SessionID: s.cfg.SessionID,
		Uptime:    s.clock.Since(s.started).Truncate(time.Second).String(),
		Capture:   d.Stats(),
		Rates:     d.LatestRates(),
		Version:   version.Get(),
	}
	if err := d.Err(); err != nil {
		st.Error = err.Error()
	}
	if s.cfg.PublisherStats != nil {
		ps := s.cfg.PublisherStats()
		st.Publisher = &ps
	}
	if s.cfg.BusStats != nil {
		bs := s.cfg.BusStats()
		st.Bus = &bs
	}
	if s.cfg.RecorderStats != nil {
		rs := s.cfg.RecorderStats()
		st.Recorder = &rs
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.Status())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	scan := s.latest.Load()
	if scan == nil {
		httputil.NotFound(w, "no scan available yet")
		return
	}
	httputil.WriteJSONOK(w, scan)
}

// handleScans returns stored scans, newest first.
// Query params:
//
//	limit (optional, default 10, max 100)
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.DB == nil {
		httputil.NotFound(w, "no database configured")
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 100 {
			httputil.BadRequest(w, "limit must be between 1 and 100")
			return
		}
		limit = v
	}
	recs, err := s.cfg.DB.RecentScans(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("recent scans: %v", err))
		return
	}
	if recs == nil {
		recs = []lidardb.ScanRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}
