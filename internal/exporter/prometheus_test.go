package exporter

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/metric"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func liveWith(samples map[string]metric.Value) *metric.Live {
	live := metric.NewLive()
	var token uint64
	for name, v := range samples {
		token++
		live.Apply(metric.Record{Name: name, Token: token, Value: &v})
	}
	return live
}

func TestCollector(t *testing.T) {
	live := liveWith(map[string]metric.Value{
		"cpu_temp": metric.Gauge(41.5),
		"requests": metric.Counter(7),
	})

	reg := createPrometheusRegistry(live, nil)

	expected := `
# HELP cpu_temp Value exported over D-Bus by a dprom producer.
# TYPE cpu_temp gauge
cpu_temp 41.5
# HELP requests Value exported over D-Bus by a dprom producer.
# TYPE requests counter
requests 7
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestCollectorFollowsLiveTable(t *testing.T) {
	live := liveWith(map[string]metric.Value{"x": metric.Gauge(1)})
	reg := createPrometheusRegistry(live, nil)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	live.Apply(metric.Record{Name: "x", Token: 1})

	count, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCollectorDigitLeadingNames(t *testing.T) {
	live := liveWith(map[string]metric.Value{
		"9lives":  metric.Gauge(3),
		"8lives":  metric.Gauge(4),
		"_9lives": metric.Gauge(5),
		"ok":      metric.Gauge(1),
	})

	reg := createPrometheusRegistry(live, nil)

	expected := `
# HELP _8lives Value exported over D-Bus by a dprom producer.
# TYPE _8lives gauge
_8lives 4
# HELP _9lives Value exported over D-Bus by a dprom producer.
# TYPE _9lives gauge
_9lives 3
# HELP ok Value exported over D-Bus by a dprom producer.
# TYPE ok gauge
ok 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))

	e, err := NewPrometheusExporter(config.HTTPConfig{Listen: "127.0.0.1:0", Path: "/metrics"}, live,
		PrometheusOptions{})
	require.NoError(t, err)

	body := get(t, e.Handler(), "/metrics").Body.String()
	require.Equal(t, 1, strings.Count(body, "# TYPE _9lives gauge\n"))
	require.Contains(t, body, "_8lives 4\n")
	require.Contains(t, body, "ok 1\n")
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler(t *testing.T) {
	live := liveWith(map[string]metric.Value{"cpu_temp": metric.Gauge(41.5)})

	e, err := NewPrometheusExporter(config.HTTPConfig{Listen: "127.0.0.1:0", Path: "/metrics"}, live,
		PrometheusOptions{Version: "1.2.3"})
	require.NoError(t, err)

	rec := get(t, e.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# TYPE cpu_temp gauge\ncpu_temp 41.5\n")
	require.NotContains(t, rec.Body.String(), "promhttp_metric_handler_requests_total")

	rec = get(t, e.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<pre>dprom-export 1.2.3\n\n<a href=\"/metrics\">/metrics</a>\n</pre>\n", rec.Body.String())

	rec = get(t, e.Handler(), "/elsewhere")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerInternalMetrics(t *testing.T) {
	live := liveWith(nil)

	e, err := NewPrometheusExporter(config.HTTPConfig{Listen: "127.0.0.1:0", Path: "/prom"}, live,
		PrometheusOptions{
			Internal: true,
			Gauges: []InternalGauge{
				{Name: "dprom_watchers", Help: "Running metric watchers.", Value: func() float64 { return 3 }},
			},
		})
	require.NoError(t, err)

	body := get(t, e.Handler(), "/prom").Body.String()
	require.Contains(t, body, "dprom_watchers 3\n")
	require.Contains(t, body, "promhttp_metric_handler_requests_in_flight 1\n")
}

func TestStartStop(t *testing.T) {
	e, err := NewPrometheusExporter(config.HTTPConfig{Listen: "127.0.0.1:0", Path: "/metrics"}, liveWith(nil), PrometheusOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("exporter did not stop")
	}
}

func TestStartFailsOnBadAddress(t *testing.T) {
	e, err := NewPrometheusExporter(config.HTTPConfig{Listen: "no-port", Path: "/metrics"}, liveWith(nil), PrometheusOptions{})
	require.NoError(t, err)

	err = e.Start(context.Background())
	require.ErrorContains(t, err, "http server")
}

// writeCert writes a self-signed certificate and its key as PEM files.
func writeCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "dprom test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestLoadTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCert(t, dir)

	tlsConfig, err := loadTLSConfig(&config.TLSConfig{Cert: certPath, Key: keyPath})
	require.NoError(t, err)
	require.Len(t, tlsConfig.Certificates, 1)
	require.Equal(t, tls.NoClientCert, tlsConfig.ClientAuth)

	tlsConfig, err = loadTLSConfig(&config.TLSConfig{Cert: certPath, Key: keyPath, ClientCA: certPath})
	require.NoError(t, err)
	require.Equal(t, tls.RequireAndVerifyClientCert, tlsConfig.ClientAuth)
	require.NotNil(t, tlsConfig.ClientCAs)
}

func TestLoadTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCert(t, dir)

	_, err := loadTLSConfig(&config.TLSConfig{Cert: filepath.Join(dir, "missing.pem"), Key: keyPath})
	require.ErrorContains(t, err, "key pair")

	_, err = loadTLSConfig(&config.TLSConfig{Cert: certPath, Key: keyPath, ClientCA: filepath.Join(dir, "missing.pem")})
	require.ErrorContains(t, err, "client CA")

	junk := filepath.Join(dir, "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o600))
	_, err = loadTLSConfig(&config.TLSConfig{Cert: certPath, Key: keyPath, ClientCA: junk})
	require.ErrorContains(t, err, "no certificates found")
}

func TestServeTLSRequiresClientCert(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCert(t, dir)

	tlsConfig, err := loadTLSConfig(&config.TLSConfig{Cert: certPath, Key: keyPath, ClientCA: certPath})
	require.NoError(t, err)

	live := liveWith(map[string]metric.Value{"x": metric.Gauge(1)})
	e, err := NewPrometheusExporter(config.HTTPConfig{Listen: "127.0.0.1:0", Path: "/metrics"}, live, PrometheusOptions{})
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(e.Handler())
	srv.TLS = tlsConfig
	srv.StartTLS()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	anonymous := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	_, err = anonymous.Get(srv.URL + "/metrics")
	require.Error(t, err)

	clientCert, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)
	authed := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{clientCert},
	}}}
	resp, err := authed.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "x 1\n")
}
