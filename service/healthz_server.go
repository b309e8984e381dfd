package service

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// HealthzServer answers /healthz with OK while the run is alive.
type HealthzServer struct {
	log      log.Logger
	server   *http.Server
	listener net.Listener
	requests atomic.Int64
}

// NewHealthzServer creates a server that is not yet listening.
func NewHealthzServer(logger log.Logger) *HealthzServer {
	return &HealthzServer{log: logger}
}

// Listen binds addr. Serve must be called afterwards.
func (h *HealthzServer) Listen(addr string) error {
	hdlr := mux.NewRouter()
	hdlr.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet, http.MethodHead)
	h.server = newServer(hdlr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.listener = ln
	return nil
}

// Serve blocks until the server is shut down.
func (h *HealthzServer) Serve() error {
	return h.server.Serve(h.listener)
}

// Addr returns the bound address, or nil before Listen.
func (h *HealthzServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func newServer(hdlr http.Handler) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return &http.Server{
		Handler: c.Handler(hdlr),
	}
}
