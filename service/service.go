package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-runtest/metrics"
)

const shutdownTimeout = 5 * time.Second

// Config selects which servers run. An empty address disables a server.
type Config struct {
	HealthzAddr string
	MetricsAddr string
}

// Service runs the optional healthz and metrics servers next to a test run.
type Service struct {
	log     log.Logger
	cfg     Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config, logger log.Logger) *Service {
	s := &Service{
		log: logger,
		cfg: cfg,
	}
	if cfg.HealthzAddr != "" {
		s.Healthz = NewHealthzServer(logger.New("server", "healthz"))
	}
	if cfg.MetricsAddr != "" {
		s.Metrics = NewMetricsServer(nil)
	}
	return s
}

type server interface {
	Listen(addr string) error
	Serve() error
	Addr() net.Addr
}

// Start binds every enabled server and serves them in the background.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	if s.Healthz != nil {
		if err := s.start("healthz", s.Healthz, s.cfg.HealthzAddr); err != nil {
			return err
		}
	}
	if s.Metrics != nil {
		if err := s.start("metrics", s.Metrics, s.cfg.MetricsAddr); err != nil {
			_ = s.Shutdown(ctx)
			return err
		}
	}

	s.log.Info("service started")
	return nil
}

func (s *Service) start(name string, srv server, addr string) error {
	if err := srv.Listen(addr); err != nil {
		metrics.RecordErrorDetails("error starting "+name+" server", err)
		return fmt.Errorf("starting %s server: %w", name, err)
	}
	s.log.Info("starting server", "server", name, "addr", srv.Addr().String())
	go func() {
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped unexpectedly", "server", name, "err", err)
			metrics.RecordErrorDetails("error serving "+name, err)
		}
	}()
	return nil
}

// Shutdown stops the servers, waiting at most a few seconds for each.
func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if s.Healthz != nil {
		if err := s.Healthz.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("healthz: %w", err))
		}
		s.log.Info("healthz stopped")
	}
	if s.Metrics != nil {
		if err := s.Metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
		s.log.Info("metrics stopped")
	}

	s.log.Info("service stopped")
	return errors.Join(errs...)
}
