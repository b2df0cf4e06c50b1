package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pik-ry/laskutin/pkg/logger"
)

// apiServer runs the REST API as a lifecycle-managed service. The
// listener is bound during Start so bind failures roll the manager
// back.
type apiServer struct {
	server *http.Server
	log    *logger.Logger
}

func newAPIServer(addr string, handler http.Handler, log *logger.Logger) *apiServer {
	return &apiServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Name implements the system service interface.
func (s *apiServer) Name() string { return "httpserver" }

// Start binds the listener and serves in the background.
func (s *apiServer) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *apiServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
