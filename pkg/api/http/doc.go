// Package http provides the REST API server.
//
// Endpoints follow the /api/v1 prefix convention. Metrics are exposed
// on /metrics and the health probe on /health.
package http
