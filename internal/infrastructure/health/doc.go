// Package health runs dependency probes and publishes the results through the
// standard grpc.health.v1 service, so supervisors can watch the agent with
// grpc_health_probe. The same report backs the HTTP /health endpoint.
package health
