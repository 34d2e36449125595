// Package fetch contains the domain port for the upstream archive
// fetcher.
package fetch

import (
	"context"
	"net/http"
)

// Result is the outcome of an upstream GET.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Fetcher issues GET requests against the configured upstream archive
// origin.
type Fetcher interface {
	// Fetch issues GET upstreamBase+path with the fetcher's configured
	// timeout and user-agent. Non-2xx status and transport errors are
	// both reported as errors; the caller is responsible for turning
	// those into the appropriate audit event and HTTP response.
	Fetch(ctx context.Context, path string) (Result, error)
}
