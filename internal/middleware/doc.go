// Package middleware provides HTTP middleware for the thumbnail service.
//
// It includes:
//   - A structured access log (one zap entry per request, warn on 5xx)
//   - Prometheus request metrics labelled by route template
//
// Metrics must be installed with mux.Router.Use so the matched route is
// available. The access log wraps the whole router so unmatched requests are
// logged too.
package middleware
