// Package grpc exposes the service health over gRPC for orchestrators.
package grpc

import (
	"backoffice-svc/circuitbreaker"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PrimaryService is the health entry that follows the primary store breaker.
const PrimaryService = "backoffice.primary"

// NewHealthServer reports the process as serving and tracks the breaker in
// PrimaryService. Half-open counts as serving.
func NewHealthServer(cb *circuitbreaker.CircuitBreaker, logger *zap.Logger) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(PrimaryService, statusFor(cb.GetState()))

	cb.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warn("Primary store breaker changed state",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		// Callbacks may run out of order; publish the breaker's current state.
		hs.SetServingStatus(PrimaryService, statusFor(cb.GetState()))
	})
	return hs
}

// NewServer builds the gRPC server with tracing and the health service registered.
func NewServer(hs *health.Server) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func statusFor(s circuitbreaker.State) healthpb.HealthCheckResponse_ServingStatus {
	if s == circuitbreaker.StateOpen {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
