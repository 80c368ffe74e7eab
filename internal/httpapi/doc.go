// Package httpapi exposes the validation engine over REST.
//
// The facade is read-only: sessions are driven through the orchestrator by
// the embedding process, and this package only reports on them. Routes
// return pkg/api/v1 wire types so external clients and the CLI share one
// schema, with every non-2xx response wrapped in the v1 error envelope.
//
// Each server carries its own Prometheus registry serving GET /metrics,
// with a request counter and latency histogram labeled by method, route
// pattern, and status.
package httpapi
