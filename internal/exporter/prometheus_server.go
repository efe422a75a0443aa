package exporter

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// createHandler routes the metrics path and the index page.
func createHandler(
	path string,
	promRegistry *prometheus.Registry,
	internalMetricsEnabled bool,
	version string,
) http.Handler {
	mux := http.NewServeMux()

	baseHandler := promhttp.HandlerFor(
		promRegistry,
		promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
			ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		},
	)

	// Conditionally wrap with instrumentation
	var handler http.Handler
	if internalMetricsEnabled {
		handler = promhttp.InstrumentMetricHandler(promRegistry, baseHandler)
		slog.Info("enabled prometheus internal metrics",
			"metrics", []string{
				"promhttp_metric_handler_requests_total",
				"promhttp_metric_handler_requests_in_flight",
			})
	} else {
		handler = baseHandler
	}

	mux.Handle(path, loggingMiddleware(handler))
	mux.Handle("/{$}", indexHandler(path, version))

	return mux
}

// indexHandler serves a small page linking to the metrics path.
func indexHandler(path, version string) http.Handler {
	body := fmt.Sprintf("<pre>dprom-export %s\n\n<a href=\"%s\">%s</a>\n</pre>\n",
		html.EscapeString(version), html.EscapeString(path), html.EscapeString(path))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	})
}

// loggingMiddleware logs scrape requests when debug logging is enabled
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("prometheus scrape", "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
