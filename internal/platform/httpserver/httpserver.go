package httpserver

import (
	"net/http"
	"time"
)

// New builds the gateway's HTTP server. Login calls block on the auth backend,
// so the write timeout leaves room for the outbound client timeout plus
// handler overhead.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
