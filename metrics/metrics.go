package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/status-im/status-go-rpc/logutils"
	"github.com/status-im/status-go-rpc/rpc/rpcstats"
)

// Server runs and controls a HTTP metrics interface.
type Server struct {
	server *http.Server
}

// NewMetricsServer exposes the rpc counters and the Go runtime collectors
// of reg on addr.
func NewMetricsServer(addr string, reg *prom.Registry) (*Server, error) {
	if err := rpcstats.Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler())
	mux.Handle("/metrics", Handler(reg))
	return &Server{
		server: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		},
	}, nil
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("OK"))
		if err != nil {
			logutils.ZapLogger().Error("health handler error", zap.Error(err))
		}
	})
}

func Handler(reg prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Listen starts the HTTP server in the background.
func (p *Server) Listen() {
	go func() {
		err := p.server.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logutils.ZapLogger().Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func (p *Server) Stop(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
