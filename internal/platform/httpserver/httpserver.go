package httpserver

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	writeTimeoutMargin       = 5 * time.Second
)

// Option tunes the server built by New.
type Option func(*http.Server)

// WithRequestTimeout bounds response writes a little beyond the handler
// deadline so the timeout middleware, not the connection, ends slow requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.WriteTimeout = d + writeTimeoutMargin
		}
	}
}

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Serve accepts connections on ln until srv is shut down. A graceful
// shutdown is not an error.
func Serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ListenAndServe binds srv.Addr and serves until shutdown.
func ListenAndServe(srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return Serve(srv, ln)
}
