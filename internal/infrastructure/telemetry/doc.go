// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// helpers for Librarium Core.
package telemetry
