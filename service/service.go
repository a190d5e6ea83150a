package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/paraita/dspot/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = 7300
)

// Config holds the listen addresses of the servers
type Config struct {
	HealthzAddr    string
	MetricsAddr    string
	MetricsEnabled bool
}

// DefaultConfig serves both endpoints on their default ports
func DefaultConfig() Config {
	return Config{
		HealthzAddr:    net.JoinHostPort(HealthzHost, HealthzPort),
		MetricsAddr:    net.JoinHostPort(MetricsHost, strconv.Itoa(MetricsPort)),
		MetricsEnabled: true,
	}
}

// Service exposes the progress of an amplification and its Prometheus
// metrics while the jobs run. Both servers live only as long as the process.
type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
}

// New wires the servers. progress may be nil, in which case /healthz only
// says the process is alive.
func New(cfg Config, logger log.Logger, progress ProgressFunc) *Service {
	if logger == nil {
		logger = log.Root()
	}
	return &Service{
		cfg:     cfg,
		log:     logger.New("component", "service"),
		Healthz: &HealthzServer{progress: progress},
		Metrics: &MetricsServer{},
	}
}

// Start launches the servers in the background. A server that fails to bind
// is logged and counted, the amplification keeps going without it.
func (s *Service) Start(ctx context.Context) {
	s.serve(ctx, "healthz", s.cfg.HealthzAddr, s.Healthz.Start)
	if s.cfg.MetricsEnabled {
		s.serve(ctx, "metrics", s.cfg.MetricsAddr, s.Metrics.Start)
	}
}

func (s *Service) serve(ctx context.Context, name, addr string, start func(context.Context, string) error) {
	go func() {
		s.log.Info("Serving "+name, "addr", addr)
		if err := start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Endpoint unavailable", "server", name, "addr", addr, "err", err)
			metrics.RecordErrorDetails(name+" server failed", err)
		}
	}()
}

// Shutdown stops both servers. It is safe to call when Start never ran.
func (s *Service) Shutdown() {
	if err := s.Healthz.Shutdown(); err != nil {
		s.log.Warn("Failed to stop healthz server", "err", err)
	}
	if err := s.Metrics.Shutdown(); err != nil {
		s.log.Warn("Failed to stop metrics server", "err", err)
	}
	s.log.Debug("Endpoints closed")
}
