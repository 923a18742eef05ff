package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openebs/moac/internal/metrics"
	"github.com/openebs/moac/internal/registry"
)

// ClusterStatus is the subset of internal/cluster.Cluster the health
// server needs, kept as an interface so a single-node deployment without
// raft can satisfy it trivially.
type ClusterStatus interface {
	IsLeader() bool
}

// HealthServer provides HTTP liveness/readiness/metrics endpoints,
// grounded on the teacher's pkg/api/health.go.
type HealthServer struct {
	reg     *registry.Registry
	cluster ClusterStatus
	mux     *http.ServeMux
}

func NewHealthServer(reg *registry.Registry, cluster ClusterStatus) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{reg: reg, cluster: cluster, mux: mux}
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())
	return hs
}

func (hs *HealthServer) Serve(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now()})
}

type readyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if hs.cluster != nil {
		if hs.cluster.IsLeader() {
			checks["raft"] = "leader"
		} else {
			checks["raft"] = "follower"
		}
	} else {
		checks["raft"] = "disabled"
	}

	nodes := hs.reg.Nodes()
	checks["nodes"] = "ok"
	if len(nodes) == 0 {
		checks["nodes"] = "no nodes registered"
		ready = false
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(readyResponse{Status: status, Timestamp: time.Now(), Checks: checks})
}
