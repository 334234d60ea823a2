package metrics

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satoshiware/genesis/pkg/errors"
	"github.com/satoshiware/genesis/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Server serves /metrics for one gatherer.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *log.Logger
}

// Listen binds addr and prepares the /metrics handler. Serve must be called
// to start accepting connections.
func Listen(addr string, gatherer prometheus.Gatherer, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, "metrics_listen", "failed to bind metrics address").
			WithContext("addr", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger.WithComponent("metrics"),
	}, nil
}

// Addr returns the bound address, useful when addr had port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()
	s.logger.Info("serving metrics", "addr", s.Addr())

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, errors.ErrorTypeNetwork, "metrics_serve", "metrics server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "metrics_shutdown", "metrics server shutdown failed")
	}
	return nil
}
