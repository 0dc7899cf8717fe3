// Package observability provides structured logging and Prometheus metrics
// for the academic records API.
//
// Logging is zap-based; request-scoped loggers carry the chi request ID.
// Metrics cover sign-ins, live sessions, HTTP traffic and dropped audit events.
package observability
