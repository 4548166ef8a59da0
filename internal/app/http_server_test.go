package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/sales/internal/health"
	"github.com/vladislavdragonenkov/sales/internal/version"
)

func TestOpsMux_Routes(t *testing.T) {
	healthy := healthcheck.NewHandler(version.GetVersion())
	broken := healthcheck.NewHandler(version.GetVersion())
	broken.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))

	tests := []struct {
		name     string
		handler  *healthcheck.Handler
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "metrics", handler: healthy, method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
		{name: "healthz", handler: healthy, method: http.MethodGet, path: "/healthz", wantCode: http.StatusOK, wantBody: `"status":"healthy"`},
		{name: "livez", handler: healthy, method: http.MethodGet, path: "/livez", wantCode: http.StatusOK, wantBody: "ok"},
		{name: "readyz", handler: healthy, method: http.MethodGet, path: "/readyz", wantCode: http.StatusOK, wantBody: "ready"},
		{name: "version", handler: healthy, method: http.MethodGet, path: "/version", wantCode: http.StatusOK, wantBody: version.GetVersion()},
		{name: "healthz with failed postgres", handler: broken, method: http.MethodGet, path: "/healthz", wantCode: http.StatusServiceUnavailable, wantBody: "connection refused"},
		{name: "readyz with failed postgres", handler: broken, method: http.MethodGet, path: "/readyz", wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
		{name: "post is rejected", handler: healthy, method: http.MethodPost, path: "/livez", wantCode: http.StatusMethodNotAllowed},
		{name: "unknown path", handler: healthy, method: http.MethodGet, path: "/sales", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			opsMux(tt.handler).ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestStartMetricsServer_ServesUntilCancelled(t *testing.T) {
	logger := log.WithField("test", "ops-http")
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthcheck.NewHandler("dev"))
	require.NotNil(t, srv)

	url := fmt.Sprintf("http://127.0.0.1:%d/livez", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "ok"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return true
		}
		resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond, "server must stop after context cancellation")
}

func TestStartMetricsServer_EmptyAddr(t *testing.T) {
	srv := startMetricsServer(context.Background(), "", log.WithField("test", "ops-http"), healthcheck.NewHandler("dev"))
	assert.Nil(t, srv, "empty address must disable metrics server")
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	// nil сервер допустим
	shutdownHTTP(nil, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	shutdownHTTP(srv, logger)

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
