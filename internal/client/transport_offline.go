package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// OfflineTransport short-circuits networking entirely and serves
// deterministic synthetic payloads after a simulated delay, routed by
// endpoint path. It lets the orchestration layer and CLI run without a
// live backend and is selected purely by configuration.
type OfflineTransport struct {
	delay  time.Duration
	logger logging.Logger

	mu    sync.Mutex
	scans map[string]time.Time // scan id -> start time
}

// offlineScanDuration is how long a simulated scan takes to reach 100%.
const offlineScanDuration = 20 * time.Second

func NewOfflineTransport(delay time.Duration, logger logging.Logger) *OfflineTransport {
	return &OfflineTransport{
		delay:  delay,
		logger: logger.With(logging.Field{Key: "component", Value: "offline"}),
		scans:  make(map[string]time.Time),
	}
}

// Do routes the request by path and fabricates the matching payload.
func (t *OfflineTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	path := u.Path

	status, payload := t.route(strings.ToUpper(req.Method), path, req.Body)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode offline payload: %w", err)
	}

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	return &Response{
		Request:    req,
		Headers:    headers,
		Body:       body,
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (t *OfflineTransport) route(method, path string, body []byte) (int, any) {
	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/scan/start"):
		id := uuid.New().String()
		t.mu.Lock()
		t.scans[id] = time.Now()
		t.mu.Unlock()
		return http.StatusOK, model.StartScanResponse{
			ScanID:            id,
			EstimatedDuration: int(offlineScanDuration / time.Second),
		}

	case method == http.MethodGet && strings.Contains(path, "/scan/") && strings.HasSuffix(path, "/status"):
		id := pathSegment(path, "/scan/", "/status")
		return t.statusPayload(id)

	case method == http.MethodPost && strings.Contains(path, "/scan/stop/"),
		method == http.MethodPost && strings.Contains(path, "/scan/pause/"),
		method == http.MethodPost && strings.Contains(path, "/scan/resume/"):
		return http.StatusOK, map[string]string{"status": "ok"}

	case method == http.MethodDelete && strings.Contains(path, "/scan/"):
		id := strings.TrimPrefix(path[strings.Index(path, "/scan/"):], "/scan/")
		t.mu.Lock()
		delete(t.scans, id)
		t.mu.Unlock()
		return http.StatusOK, map[string]string{"status": "deleted"}

	case method == http.MethodPost && strings.HasSuffix(path, "/scan/validate-target"):
		return t.validatePayload(body)

	case method == http.MethodPost && strings.HasSuffix(path, "/report"):
		return http.StatusOK, model.ReportResponse{
			ReportID: uuid.New().String(),
			File:     "report-" + time.Now().UTC().Format("20060102-150405") + ".pdf",
		}
	}
	return http.StatusNotFound, map[string]string{"error": "unknown endpoint: " + path}
}

// statusPayload advances a simulated scan linearly from start to 100%.
func (t *OfflineTransport) statusPayload(id string) (int, any) {
	t.mu.Lock()
	started, ok := t.scans[id]
	t.mu.Unlock()
	if !ok {
		return http.StatusNotFound, map[string]string{"error": "scan not found"}
	}

	elapsed := time.Since(started)
	progress := int(elapsed * 100 / offlineScanDuration)
	status := "running"
	phase := "port_scan"
	if progress >= 100 {
		progress = 100
		status = "completed"
		phase = "done"
	} else if progress > 60 {
		phase = "vuln_scan"
	}

	resp := model.ScanStatusResponse{
		Progress:     progress,
		Status:       status,
		Phase:        phase,
		PhaseMessage: fmt.Sprintf("simulated %s at %d%%", phase, progress),
	}
	if progress > 30 {
		resp.Results = &model.ScanResults{
			Hosts:     []model.Host{{Address: "10.0.0.1", State: "up"}},
			OpenPorts: []model.Port{{Number: 22, Protocol: "tcp", State: "open", Service: "ssh"}},
			Services:  []model.Service{{Name: "ssh", Product: "OpenSSH", Version: "9.6", Port: 22}},
		}
	}
	if progress > 70 {
		resp.Results.Vulnerabilities = []model.Vulnerability{
			{ID: "CVE-2024-0001", Title: "Simulated weak cipher", Severity: model.SeverityMedium, Port: 22},
		}
		resp.Results.RiskScore = 4.2
	}
	return http.StatusOK, resp
}

func (t *OfflineTransport) validatePayload(body []byte) (int, any) {
	var req model.ValidateTargetRequest
	_ = json.Unmarshal(body, &req)
	target := strings.TrimSpace(req.Target)
	if target == "" || strings.ContainsAny(target, " \t") {
		return http.StatusOK, model.ValidateTargetResponse{
			Valid:      false,
			Status:     "invalid",
			Message:    "target is not a valid host, address or CIDR range",
			Confidence: 0,
		}
	}
	return http.StatusOK, model.ValidateTargetResponse{
		Valid:        true,
		Status:       "reachable",
		Message:      "target resolved",
		ResponseTime: 12.5,
		ResolvedIP:   "10.0.0.1",
		Confidence:   0.9,
	}
}

func (t *OfflineTransport) Close() error {
	t.logger.Info("closing offline transport")
	return nil
}

// pathSegment extracts the segment between prefix and suffix markers,
// e.g. "/api/scan/<id>/status" -> "<id>".
func pathSegment(path, prefix, suffix string) string {
	i := strings.Index(path, prefix)
	if i < 0 {
		return ""
	}
	s := path[i+len(prefix):]
	return strings.TrimSuffix(s, suffix)
}
