// Package grpcapi exposes the standard gRPC health service, driven by the same readiness
// probe as /readyz.
package grpcapi

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"jwtpizza.org/internal/obs"
)

// Checker reports readiness; nil means ready.
type Checker interface {
	Check(ctx context.Context) error
}

// Health keeps the health service status in line with a Checker.
type Health struct {
	srv      *health.Server
	check    Checker
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewHealth(check Checker, interval time.Duration, logger zerolog.Logger) *Health {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &Health{
		srv:      health.NewServer(),
		check:    check,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Probe runs the checker once and publishes the result. It reports whether the service
// is serving.
func (h *Health) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if h.check != nil {
		if err := h.check.Check(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("readiness check failed")
			h.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return false
		}
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run probes every interval until ctx ends, then marks the service as shutting down.
func (h *Health) Run(ctx context.Context) {
	h.Probe(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(obs.ServiceName, st)
}

// NewServer builds a gRPC server that logs every unary call.
func NewServer(logger zerolog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(logUnary(logger)))
	return grpc.NewServer(opts...)
}

func logUnary(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("grpc_call")
		return resp, err
	}
}
