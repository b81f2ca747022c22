package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"CoopLedgerSaas/internal/logger"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// GatewayService serves the HTTP API.
type GatewayService struct {
	config  map[string]interface{}
	server  *http.Server
	errCh   chan error
	addr    string
	handler http.Handler
}

// NewGatewayService reads port, read_timeout and write_timeout from cfg.
// Timeouts accept Go duration strings or seconds.
func NewGatewayService(cfg map[string]interface{}, handler http.Handler) *GatewayService {
	port := 8080
	if v, ok := cfg["port"]; ok {
		if p := toInt(v); p > 0 {
			port = p
		}
	}
	return &GatewayService{
		config:  cfg,
		handler: handler,
		addr:    fmt.Sprintf(":%d", port),
		errCh:   make(chan error, 1),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadTimeout:       toDuration(cfg["read_timeout"], 60*time.Second),
			WriteTimeout:      toDuration(cfg["write_timeout"], 10*time.Minute),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *GatewayService) Name() string {
	return "gateway"
}

// Start binds the listener synchronously so a taken port fails startup, then
// serves in the background.
func (s *GatewayService) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr().String()
	logger.Audit("gateway listening", zap.String("addr", s.addr))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("gateway stopped", zap.Error(err))
			s.errCh <- err
		}
	}()
	return nil
}

func (s *GatewayService) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// Addr is the bound address once started.
func (s *GatewayService) Addr() string { return s.addr }

// Err delivers a fatal serve error.
func (s *GatewayService) Err() <-chan error { return s.errCh }

func toInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(t, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

func toDuration(v interface{}, def time.Duration) time.Duration {
	switch t := v.(type) {
	case time.Duration:
		if t > 0 {
			return t
		}
	case string:
		if d, err := time.ParseDuration(t); err == nil && d > 0 {
			return d
		}
		if n := toInt(t); n > 0 {
			return time.Duration(n) * time.Second
		}
	case int, int64, float64:
		if n := toInt(t); n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
