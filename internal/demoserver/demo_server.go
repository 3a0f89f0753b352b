// Package demoserver is a stand-in scanning service for demos and
// end-to-end exercising of the orchestration layer: it implements every
// remote endpoint the client consumes and fabricates deterministic
// scan results that advance over time.
package demoserver

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// Server is the HTTP + WebSocket surface of the demo scanning service.
type Server struct {
	cfg      Config
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu    sync.Mutex
	scans map[string]*demoScan

	subsMu sync.Mutex
	subs   map[*websocket.Conn]struct{}
}

// demoScan is one simulated scan in flight.
type demoScan struct {
	id       string
	target   string
	scanType string

	progress int
	paused   bool
	stopped  bool

	seed uint32
}

// NewServer builds the demo service.
func NewServer(cfg Config, logger logging.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("demoserver")
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "demoserver"}),
		scans:  make(map[string]*demoScan),
		subs:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan/start", s.handleStart)
		r.Get("/scan/{id}/status", s.handleStatus)
		r.Post("/scan/stop/{id}", s.handleStop)
		r.Post("/scan/pause/{id}", s.handlePause)
		r.Post("/scan/resume/{id}", s.handleResume)
		r.Delete("/scan/{id}", s.handleDelete)
		r.Post("/scan/validate-target", s.handleValidate)
		r.Post("/scan/{id}/report", s.handleReport)
	})
	r.Get("/ws/updates", s.handleUpdatesWS)

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("http_request",
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path})
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// RunEngine advances simulated scans and broadcasts push events until
// ctx ends.
func (s *Server) RunEngine(ctx context.Context) error {
	step := int(s.cfg.TickInterval * 100 / s.cfg.ScanDuration)
	if step < 1 {
		step = 1
	}
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(step)
		}
	}
}

func (s *Server) tick(step int) {
	s.mu.Lock()
	var events []model.PushEvent
	for _, sc := range s.scans {
		if sc.paused || sc.stopped || sc.progress >= 100 {
			continue
		}
		sc.progress += step
		if sc.progress > 100 {
			sc.progress = 100
		}
		events = append(events, model.PushEvent{
			ScanID:             sc.id,
			ScanStatusResponse: sc.statusLocked(),
		})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.broadcast(ev)
	}
}

// statusLocked fabricates the wire status for the scan's current
// progress. Caller holds s.mu.
func (sc *demoScan) statusLocked() model.ScanStatusResponse {
	status := "running"
	phase := "host_discovery"
	switch {
	case sc.stopped:
		status = "cancelled"
		phase = "stopped"
	case sc.progress >= 100:
		status = "completed"
		phase = "done"
	case sc.paused:
		status = "paused"
		phase = "paused"
	case sc.progress > 60:
		phase = "vuln_scan"
	case sc.progress > 20:
		phase = "port_scan"
	}

	resp := model.ScanStatusResponse{
		Progress:     sc.progress,
		Status:       status,
		Phase:        phase,
		PhaseMessage: fmt.Sprintf("%s at %d%%", phase, sc.progress),
	}

	// Results appear in deterministic waves derived from the target.
	if sc.progress > 20 {
		resp.Results = &model.ScanResults{
			Hosts: []model.Host{{Address: sc.fakeAddr(1), State: "up"}},
		}
	}
	if sc.progress > 40 {
		resp.Results.OpenPorts = []model.Port{
			{Number: 22, Protocol: "tcp", State: "open", Service: "ssh"},
			{Number: int(sc.seed%1000) + 1024, Protocol: "tcp", State: "open", Service: "unknown"},
		}
		resp.Results.Services = []model.Service{
			{Name: "ssh", Product: "OpenSSH", Version: "9.6", Port: 22},
		}
	}
	if sc.progress > 70 {
		resp.Results.Vulnerabilities = []model.Vulnerability{
			{
				ID:       fmt.Sprintf("CVE-2024-%04d", sc.seed%10000),
				Title:    "Weak SSH cipher configuration",
				Severity: model.SeverityMedium,
				Port:     22,
			},
		}
		resp.Results.RiskScore = float64(sc.seed%60)/10 + 2
	}
	if sc.progress > 90 && sc.seed%3 == 0 {
		resp.Results.Vulnerabilities = append(resp.Results.Vulnerabilities, model.Vulnerability{
			ID:       fmt.Sprintf("CVE-2023-%04d", sc.seed%9999),
			Title:    "Outdated service banner",
			Severity: model.SeverityHigh,
			Port:     int(sc.seed%1000) + 1024,
		})
	}
	return resp
}

func (sc *demoScan) fakeAddr(host int) string {
	return fmt.Sprintf("10.%d.%d.%d", sc.seed%200, (sc.seed/200)%200, host)
}

// --- handlers ---

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req model.StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	id := req.ScanID
	if id == "" {
		id = uuid.New().String()
	}
	h := fnv.New32a()
	h.Write([]byte(req.Target))

	s.mu.Lock()
	s.scans[id] = &demoScan{
		id:       id,
		target:   req.Target,
		scanType: req.Type,
		seed:     h.Sum32(),
	}
	s.mu.Unlock()

	s.logger.Info("started demo scan",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "target", Value: req.Target})
	writeJSON(w, http.StatusOK, model.StartScanResponse{
		ScanID:            id,
		EstimatedDuration: int(s.cfg.ScanDuration / time.Second),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sc, ok := s.scans[id]
	var resp model.ScanStatusResponse
	if ok {
		resp = sc.statusLocked()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, func(sc *demoScan) { sc.stopped = true })
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, func(sc *demoScan) { sc.paused = true })
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, func(sc *demoScan) { sc.paused = false })
}

func (s *Server) setFlag(w http.ResponseWriter, r *http.Request, apply func(*demoScan)) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sc, ok := s.scans[id]
	if ok {
		apply(sc)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.scans[id]
	delete(s.scans, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target := strings.TrimSpace(req.Target)
	if target == "" || strings.ContainsAny(target, " \t") {
		writeJSON(w, http.StatusOK, model.ValidateTargetResponse{
			Valid:      false,
			Status:     "invalid",
			Message:    "target is not a valid host, address or CIDR range",
			Confidence: 0,
		})
		return
	}
	h := fnv.New32a()
	h.Write([]byte(target))
	writeJSON(w, http.StatusOK, model.ValidateTargetResponse{
		Valid:        true,
		Status:       "reachable",
		Message:      "target resolved",
		ResponseTime: float64(h.Sum32()%80) + 5,
		ResolvedIP:   fmt.Sprintf("10.%d.%d.1", h.Sum32()%200, (h.Sum32()/200)%200),
		Confidence:   0.9,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.scans[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, model.ReportResponse{
		ReportID: uuid.New().String(),
		File:     fmt.Sprintf("report-%s.pdf", id[:8]),
	})
}

func (s *Server) handleUpdatesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}

	s.subsMu.Lock()
	s.subs[conn] = struct{}{}
	s.subsMu.Unlock()
	s.logger.Info("push subscriber connected", logging.Field{Key: "remote", Value: conn.RemoteAddr().String()})

	// Drain (and ignore) incoming frames so pings work and closes are
	// noticed.
	go func() {
		defer s.dropSubscriber(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropSubscriber(conn *websocket.Conn) {
	s.subsMu.Lock()
	delete(s.subs, conn)
	s.subsMu.Unlock()
	conn.Close()
}

func (s *Server) broadcast(ev model.PushEvent) {
	s.subsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.subs))
	for c := range s.subs {
		conns = append(conns, c)
	}
	s.subsMu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(ev); err != nil {
			s.dropSubscriber(c)
		}
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
