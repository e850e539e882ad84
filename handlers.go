package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kwv/tudoloc/mcl"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(state *mcl.StateTracker, config *mcl.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s := state.Snapshot()
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			HasMap      bool      `json:"hasMap"`
			FilterState string    `json:"filterState"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			HasMap:      s.Ready,
			FilterState: s.FilterState,
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			mcl.Snapshot
			Field *mcl.FieldStats `json:"field,omitempty"`
		}{Snapshot: state.Snapshot()}
		if df := state.Field(); df != nil {
			stats := df.Stats()
			resp.Field = &stats
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/pose", func(w http.ResponseWriter, r *http.Request) {
		s := state.Snapshot()
		if !s.Estimate.Valid {
			http.Error(w, "No pose estimate yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, mcl.PosePayload{EstimatedPose: s.Estimate, Frame: config.Frames.Map, Stamp: s.UpdatedAt})
	})

	mux.HandleFunc("/correction", func(w http.ResponseWriter, r *http.Request) {
		s := state.Snapshot()
		if !s.HasCorrection {
			http.Error(w, "No frame correction yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, s.Correction)
	})

	// Particle cloud, map outline and estimate as GeoJSON
	mux.HandleFunc("/particles", func(w http.ResponseWriter, r *http.Request) {
		df := state.Field()
		if df == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		s := state.Snapshot()
		fc := mcl.LocalizationFeatureCollection(df.Map(), s.Particles, s.Estimate)
		payload, err := fc.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(payload)
	})

	// Distance field raster with particles, scan and estimate
	mux.HandleFunc("/field.png", func(w http.ResponseWriter, r *http.Request) {
		df := state.Field()
		if df == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		overlay := mcl.OverlayFromSnapshot(state.Snapshot(), config)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mcl.NewFieldRenderer(df).WritePNG(w, overlay); err != nil {
			log.Printf("Error encoding field PNG: %v", err)
		}
	})

	mux.HandleFunc("/live.svg", func(w http.ResponseWriter, r *http.Request) {
		df := state.Field()
		if df == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		overlay := mcl.OverlayFromSnapshot(state.Snapshot(), config)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mcl.NewVectorRenderer(df.Map()).RenderToSVG(w, overlay); err != nil {
			log.Printf("Error encoding live SVG: %v", err)
		}
	})

	mux.HandleFunc("/live.png", func(w http.ResponseWriter, r *http.Request) {
		df := state.Field()
		if df == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		overlay := mcl.OverlayFromSnapshot(state.Snapshot(), config)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mcl.NewVectorRenderer(df.Map()).RenderToPNG(w, overlay); err != nil {
			log.Printf("Error encoding live PNG: %v", err)
		}
	})

	mux.HandleFunc("/plot.png", func(w http.ResponseWriter, r *http.Request) {
		df := state.Field()
		if df == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		overlay := mcl.OverlayFromSnapshot(state.Snapshot(), config)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mcl.WriteParticlePlot(w, df.Map(), overlay, "png"); err != nil {
			log.Printf("Error encoding particle plot: %v", err)
		}
	})

	// Default route serves HTML page embedding the live SVG
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>tudoloc</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/live.svg" alt="Live localization">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// writeJSON sends v as a JSON response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
