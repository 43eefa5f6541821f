package server

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/engine"
	"github.com/celerix-dev/schemes/internal/vault"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           5000,
			BasePath:       "/api",
			AllowedOrigins: []string{"*"},
			TLS:            config.TLSOff,
		},
		Store: config.StoreConfig{Backend: config.BackendMemory},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := engine.NewMemStore(nil, nil)
	require.NoError(t, err)
	return NewRouter(cfg, store)
}

func TestRouter_Endpoints(t *testing.T) {
	r := newTestRouter(t, testConfig())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/health/ready", http.StatusOK},
		{http.MethodGet, "/api/schemes", http.StatusOK},
		{http.MethodGet, "/api/schemes/abc", http.StatusBadRequest},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/log/level", http.StatusOK},
		{http.MethodGet, "/schemes", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_CustomBasePath(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BasePath = "/v2"
	r := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/schemes", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schemes", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/schemes", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBuildCORSConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowCredentials = true
	got := buildCORSConfig(cfg)
	assert.True(t, got.AllowAllOrigins)
	assert.False(t, got.AllowCredentials, "credentials must not be combined with a wildcard")
	assert.Empty(t, got.AllowOrigins)

	cfg.Server.AllowedOrigins = []string{"https://example.com"}
	got = buildCORSConfig(cfg)
	assert.False(t, got.AllowAllOrigins)
	assert.True(t, got.AllowCredentials)
	assert.Equal(t, []string{"https://example.com"}, got.AllowOrigins)

	cfg.Server.AllowedOrigins = nil
	got = buildCORSConfig(cfg)
	assert.True(t, got.AllowAllOrigins)
}

func TestServer_ListenTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0
	srv := New(cfg.Server, newTestRouter(t, cfg))
	srv.httpServer.Addr = "127.0.0.1:0"

	cert, err := vault.GenerateSelfSignedCert()
	require.NoError(t, err)
	srv.SetCertificate(cert)

	done := make(chan error, 1)
	go func() { done <- srv.Listen() }()

	var addr string
	for i := 0; i < 40 && addr == ""; i++ {
		time.Sleep(25 * time.Millisecond)
		addr = srv.Addr()
	}
	require.NotEmpty(t, addr, "server did not start in time")

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get("https://" + addr + "/api/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "API is healthy"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-done)
}
