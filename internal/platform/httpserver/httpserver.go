package httpserver

import (
	"net/http"
	"time"
)

// New builds the API listener. The header deadline is fixed and short to
// shed stalled connections; write and idle deadlines come from config and
// must sit above the per-request middleware timeout.
func New(addr string, handler http.Handler, writeTimeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
