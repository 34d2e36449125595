// Package http provides the inbound HTTP transport for the Debian
// archive mirror proxy.
//
// # Usage
//
// Create and start a transport:
//
//	transport := http.NewTransport(pipeline,
//	    http.WithAddr(":8080"),
//	    http.WithTLS("cert.pem", "key.pem"),
//	    http.WithLogger(logger),
//	    http.WithHealthChecker(checker),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	GET/HEAD /debian/*  - Serve archive content through the request pipeline
//	GET /health         - Component health as JSON
//	GET /metrics        - Prometheus exposition format
//
// # Middleware Chain
//
// Requests pass through middleware in this order (outermost first):
//
//  1. MetricsMiddleware - records request duration and status
//  2. RequestIDMiddleware - extracts or generates a request ID, enriches the logger
//  3. archiveHandler - runs the request through service.Pipeline
package http
