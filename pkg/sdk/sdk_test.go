package sdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/engine"
	"github.com/celerix-dev/schemes/internal/server"
	pkgengine "github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
	"github.com/celerix-dev/schemes/pkg/sdk"
)

func strp(s string) *string { return &s }

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := engine.NewMemStore(nil, nil)
	require.NoError(t, err)

	cfg := &config.Config{Server: config.ServerConfig{BasePath: "/api", AllowedOrigins: []string{"*"}}}
	ts := httptest.NewServer(server.NewRouter(cfg, store))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Integration(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	client, err := sdk.Connect(ctx, ts.URL)
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/api", client.BaseURL())

	created, err := client.Create(ctx, schema.SchemeInput{
		Name:        strp("Student Aid"),
		Description: strp("Scholarship for students"),
		Category:    strp("Education"),
		Eligibility: strp("Age 18-25"),
		Benefits:    &[]string{"Tuition"},
		StartDate:   strp("2024-01-01"),
	})
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.Equal(t, schema.StatusActive, created.Status)

	got, err := client.FindByID(ctx, created.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	assert.Equal(t, []string{"Tuition"}, got.Benefits)

	updated, err := client.UpdateByID(ctx, created.ID.Hex(), schema.SchemeInput{Status: strp("Draft")})
	require.NoError(t, err)
	assert.Equal(t, schema.StatusDraft, updated.Status)

	list, err := client.FindMany(ctx, schema.Filter{Status: "Draft", Search: "scholar"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	list, err = client.FindMany(ctx, schema.Filter{Category: "Housing"})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, client.DeleteByID(ctx, created.ID.Hex()))
	_, err = client.FindByID(ctx, created.ID.Hex())
	assert.ErrorIs(t, err, pkgengine.ErrNotFound)
}

func TestClient_ErrorMapping(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	client, err := sdk.NewClient(ts.URL + "/api")
	require.NoError(t, err)

	_, err = client.FindByID(ctx, "abc")
	assert.ErrorIs(t, err, pkgengine.ErrInvalidID)

	err = client.DeleteByID(ctx, schema.NewID().Hex())
	assert.ErrorIs(t, err, pkgengine.ErrNotFound)

	_, err = client.Create(ctx, schema.SchemeInput{Category: strp("Bogus"), StartDate: strp("2024-01-01")})
	verr, ok := pkgengine.IsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, []string{
		"Scheme name is required",
		"Description is required",
		"`Bogus` is not a valid enum value for path `category`.",
		"Eligibility criteria is required",
	}, verr.Messages())
}

func TestClient_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"connection refused"}`))
	}))
	defer ts.Close()

	client, err := sdk.NewClient(ts.URL)
	require.NoError(t, err)

	_, err = client.FindMany(context.Background(), schema.Filter{})
	var apiErr *sdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "connection refused", apiErr.Message)

	assert.Error(t, client.Ping(context.Background()))
}

func TestClient_RetryLogic(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	addr := ts.URL
	// Nothing listens here any more, so every attempt fails in transport.
	ts.Close()

	client, err := sdk.NewClient(addr)
	require.NoError(t, err)

	_, err = client.FindMany(context.Background(), schema.Filter{})
	assert.Error(t, err)

	_, err = client.Create(context.Background(), schema.SchemeInput{})
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestNewClient_Address(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{"localhost:5000", "http://localhost:5000/api", false},
		{"https://schemes.example.com", "https://schemes.example.com/api", false},
		{"http://10.0.0.5:8080/v2/", "http://10.0.0.5:8080/v2", false},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			c, err := sdk.NewClient(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.BaseURL())
		})
	}
}

func TestNew_EmbeddedFallback(t *testing.T) {
	t.Setenv(sdk.EnvAPIAddr, "")
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sdk.New(dir)
	require.NoError(t, err)
	ms, ok := store.(*engine.MemStore)
	require.True(t, ok, "expected embedded store, got %T", store)

	_, err = ms.Create(ctx, schema.SchemeInput{
		Name:        strp("Rent Help"),
		Description: strp("Housing support"),
		Category:    strp("Housing"),
		Eligibility: strp("Tenants"),
		StartDate:   strp("2024-03-01"),
	})
	require.NoError(t, err)
	ms.Wait()

	reopened, err := sdk.New(dir)
	require.NoError(t, err)
	list, err := reopened.FindMany(ctx, schema.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNew_Remote(t *testing.T) {
	ts := startServer(t)
	t.Setenv(sdk.EnvAPIAddr, ts.URL)

	store, err := sdk.New(t.TempDir())
	require.NoError(t, err)
	_, ok := store.(*sdk.Client)
	assert.True(t, ok, "expected remote client, got %T", store)
}
