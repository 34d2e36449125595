package http

import (
	"net/http"

	"github.com/Apt-Gate/Aptgate/internal/service"
)

// archiveHandler adapts service.Pipeline to net/http. It is the only
// entry point into the request-disposition pipeline: every /debian/*
// request is translated into a service.Request and the resulting
// service.Response is written back verbatim.
func archiveHandler(pipeline *service.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !service.Handles(r.URL.Path) {
			http.NotFound(w, r)
			return
		}

		resp := pipeline.Handle(r.Context(), service.Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header,
		})

		header := w.Header()
		for key, values := range resp.Header {
			for _, v := range values {
				header.Add(key, v)
			}
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = w.Write(resp.Body)
		}
	})
}
