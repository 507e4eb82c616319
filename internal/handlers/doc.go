// Package handlers provides the HTTP handlers of the thumbnail service.
//
// It includes handlers for:
//   - Thumbnail existence checks, image retrieval and cache invalidation
//   - Health, liveness and readiness probes
//   - Version information and the Prometheus metrics endpoint
package handlers
