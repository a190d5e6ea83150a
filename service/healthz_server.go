package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/cors"
)

// Progress is what /healthz reports about the amplification
type Progress struct {
	Jobs         int   `json:"jobs"`
	RunsFinished int64 `json:"runs_finished"`
}

// ProgressFunc reads the current progress; it is called once per request
type ProgressFunc func() Progress

type healthzResponse struct {
	Status string `json:"status"`
	Progress
}

type HealthzServer struct {
	progress ProgressFunc

	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
}

// Handler serves /healthz to any origin, so dashboards can poll it
func (h *HealthzServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Handle)
	return cors.New(cors.Options{AllowedOrigins: []string{"*"}}).Handler(mux)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{Handler: h.Handler(), Addr: addr}
	h.mu.Lock()
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()
	return server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(context.WithoutCancel(h.ctx))
}

func (h *HealthzServer) Handle(w http.ResponseWriter, _ *http.Request) {
	resp := healthzResponse{Status: "ok"}
	if h.progress != nil {
		resp.Progress = h.progress()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
