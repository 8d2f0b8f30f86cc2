package server

import (
	"context"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// registerOpsRoutes adds the /metrics and /healthz routes to m
func registerOpsRoutes(m transport.IHTTPMounter, st store.IStore) {
	m.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
	}))
	m.Handle("GET /healthz", healthHandler(st))
}

// healthHandler reports 200 if the store answers a ping, 503 otherwise
func healthHandler(st store.IStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pinger, ok := st.(store.IPinger)
		if !ok {
			_, _ = w.Write([]byte("ok\n"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			Logger.Warningf("health check failed: %v", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
}
