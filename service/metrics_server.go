package service

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes a Prometheus registry on /metrics.
type MetricsServer struct {
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer serves gatherer, or the default registry when nil.
func NewMetricsServer(gatherer prometheus.Gatherer) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &MetricsServer{gatherer: gatherer}
}

func (m *MetricsServer) Listen(addr string) error {
	hdlr := mux.NewRouter()
	hdlr.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	m.server = newServer(hdlr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.listener = ln
	return nil
}

func (m *MetricsServer) Serve() error {
	return m.server.Serve(m.listener)
}

func (m *MetricsServer) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
