package exporter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/metric"
)

// PrometheusExporter serves the live table over HTTP(S).
type PrometheusExporter struct {
	addr    string
	path    string
	handler http.Handler
	server  *http.Server
}

// PrometheusOptions holds the optional parts of the exporter.
type PrometheusOptions struct {
	// Internal enables promhttp handler metrics and the given gauges.
	Internal bool
	Gauges   []InternalGauge
	Version  string
}

// NewPrometheusExporter creates a new Prometheus HTTP exporter.
func NewPrometheusExporter(cfg config.HTTPConfig, live *metric.Live, opts PrometheusOptions) (*PrometheusExporter, error) {
	var gauges []InternalGauge
	if opts.Internal {
		gauges = opts.Gauges
	}

	promRegistry := createPrometheusRegistry(live, gauges)
	handler := createHandler(cfg.Path, promRegistry, opts.Internal, opts.Version)

	e := &PrometheusExporter{
		addr:    cfg.Listen,
		path:    cfg.Path,
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.TLS != nil {
		tlsConfig, err := loadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		e.server.TLSConfig = tlsConfig
	}

	return e, nil
}

// Handler returns the exporter's HTTP handler.
func (e *PrometheusExporter) Handler() http.Handler {
	return e.handler
}

// Start serves HTTP requests until ctx is cancelled or the server fails.
func (e *PrometheusExporter) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		tlsEnabled := e.server.TLSConfig != nil
		slog.Info("starting prometheus exporter", "addr", e.addr, "path", e.path, "tls", tlsEnabled)

		var err error
		if tlsEnabled {
			err = e.server.ListenAndServeTLS("", "")
		} else {
			err = e.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		return e.Stop()
	}
}

// Stop gracefully stops the exporter.
func (e *PrometheusExporter) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down prometheus exporter")
	return e.server.Shutdown(ctx)
}

// loadTLSConfig loads the server key pair and, when configured, the CA
// client certificates must chain to.
func loadTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.ClientCA != "" {
		pem, err := os.ReadFile(cfg.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in client CA %s", cfg.ClientCA)
		}

		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}
