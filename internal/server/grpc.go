// Package server hosts the gateway's secondary introspection listener: a
// gRPC server exposing the standard health-checking service plus reflection,
// so operators can probe readiness with grpcurl the same way they would the
// teacher's primary gRPC API.
//
// Grounded on the teacher's internal/server/grpc.go (NewGRPCServer): same
// grpc.NewServer + reflection.Register shape. This repo has no protobuf
// service of its own to register — generating one would mean running
// protoc, which this exercise cannot do — so the only service mounted is
// grpc_health_v1's standard health check, fed by the same storage-available
// && source-started condition that drives GET /ready (spec.md §6).
package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer creates a gRPC server exposing only the standard health
// service and reflection. The returned health.Server starts NOT_SERVING;
// call RefreshServingStatus on an interval to keep it in sync with /ready.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)

	return srv, healthSrv
}

// RefreshServingStatus recomputes the health service's overall status from
// ready, the same storage-available && source-started condition GET /ready
// uses (internal/health.Handler.Ready). Call this on a short interval so
// the gRPC health check tracks /ready without a request arriving to
// trigger it.
func RefreshServingStatus(healthSrv *health.Server, ready bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ready {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	healthSrv.SetServingStatus("", status)
}
