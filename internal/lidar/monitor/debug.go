package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rangescan/internal/version"
)

func (s *Server) attachDebugRoutes() {
	debug := tsweb.Debugger(s.mux)

	debug.KV("version", version.String())
	debug.KVFunc("state", func() any { return s.cfg.Driver.State().String() })
	debug.KVFunc("rpm", func() any { return fmt.Sprintf("%.1f", s.cfg.Driver.RPM()) })
	debug.KVFunc("packets", func() any { return s.cfg.Driver.Stats().Packets })
	debug.KVFunc("resyncs", func() any {
		st := s.cfg.Driver.Stats()
		return st.FramingFaults + st.DroppedPackets
	})

	debug.HandleFunc("scan-polar", "Latest scan as an interactive polar plot", s.handleScanPolar)
	debug.HandleFunc("scan.png", "Latest scan as a PNG (?size=px)", s.handleScanPNG)
	debug.HandleFunc("scan-tail", "Server-sent events for each published scan", s.handleScanTail)
}

func (s *Server) handleScanPolar(w http.ResponseWriter, r *http.Request) {
	scan := s.latest.Load()
	if scan == nil {
		http.Error(w, "no scan available yet", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := RenderPolarHTML(&buf, scan); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleScanPNG(w http.ResponseWriter, r *http.Request) {
	scan := s.latest.Load()
	if scan == nil {
		http.Error(w, "no scan available yet", http.StatusNotFound)
		return
	}
	size := 800
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 100 && n <= 4000 {
			size = n
		}
	}
	var buf bytes.Buffer
	// vg lengths are in points; the png backend renders at 96 dpi.
	if err := RenderPolarPNG(&buf, scan, vg.Length(size)*vg.Inch/96); err != nil {
		http.Error(w, fmt.Sprintf("failed to render plot: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// scanSummary is the payload of one scan-tail event.
type scanSummary struct {
	Seq      uint64  `json:"seq"`
	Stamp    string  `json:"stamp"`
	Samples  int     `json:"samples"`
	Valid    int     `json:"valid"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	ScanTime float64 `json:"scan_time"`
}

func (s *Server) handleScanTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.subscribe()
	defer s.unsubscribe(id)

	// Send initial ping to establish connection
	_, _ = w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case scan := <-c:
			sum := scanSummary{
				Seq:      scan.Seq,
				Stamp:    scan.Stamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				Samples:  len(scan.Ranges),
				ScanTime: scan.ScanTime,
			}
			if scan.Stats != nil {
				sum.Valid, sum.Mean, sum.Min, sum.Max = scan.Stats.Valid, scan.Stats.Mean, scan.Stats.Min, scan.Stats.Max
			}
			payload, err := json.Marshal(sum)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
