package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/core"
)

type exportedConstraint struct{}

func (exportedConstraint) Allowed(int, []int) []int { return nil }
func (exportedConstraint) Sequences() [][]int       { return [][]int{{10, 11}, {20, 21}} }
func (exportedConstraint) Marker() []int            { return []int{7} }

type localConstraint struct{}

func (localConstraint) Allowed(int, []int) []int { return nil }

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerationClientGenerate(t *testing.T) {
	var got generateRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predictions/lcrec/generate", r.URL.Path)
		assert.Equal(t, "v2", r.URL.Query().Get("version"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{
			Sequences: [][]int{{1, 10, 11}, {1, 20, 21}},
			Scores:    []float64{-0.1, -0.5},
		})
	})

	c := NewGenerationClient(srv.URL, "lcrec",
		WithVersion("v2"),
		WithAuth(&AuthConfig{Type: "bearer", Token: "secret"}))
	resp, err := c.Generate(context.Background(), &core.GenerateRequest{
		InputIDs:           [][]int{{0, 1, 7}},
		AttentionMask:      [][]int{{0, 1, 1}},
		MaxNewTokens:       10,
		NumBeams:           2,
		NumReturnSequences: 2,
		Constraint:         exportedConstraint{},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 10, 11}, {1, 20, 21}}, resp.Sequences)
	assert.Equal(t, []float64{-0.1, -0.5}, resp.Scores)

	assert.Equal(t, [][]int{{0, 1, 7}}, got.InputIDs)
	assert.Equal(t, 2, got.NumBeams)
	assert.Equal(t, 2, got.NumReturnSequences)
	assert.Equal(t, 10, got.MaxNewTokens)
	assert.Equal(t, [][]int{{10, 11}, {20, 21}}, got.AllowedSequences)
	assert.Equal(t, []int{7}, got.ResponseMarker)
}

func TestGenerationClientCountMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Sequences: [][]int{{1}}, Scores: []float64{0}})
	})
	c := NewGenerationClient(srv.URL, "lcrec")
	_, err := c.Generate(context.Background(), &core.GenerateRequest{
		InputIDs:           [][]int{{1}},
		AttentionMask:      [][]int{{1}},
		NumBeams:           3,
		NumReturnSequences: 3,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 sequences")
}

func TestGenerationClientErrors(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})
	c := NewGenerationClient(srv.URL, "lcrec")
	req := &core.GenerateRequest{InputIDs: [][]int{{1}}, AttentionMask: [][]int{{1}}, NumBeams: 1}

	_, err := c.Generate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
	assert.Contains(t, err.Error(), "status=503")
	assert.Contains(t, err.Error(), "model not loaded")

	req.Constraint = localConstraint{}
	_, err = c.Generate(context.Background(), req)
	assert.True(t, core.IsNotSupported(err))

	_, err = c.Generate(context.Background(), &core.GenerateRequest{})
	assert.True(t, core.IsInvalidInput(err))

	_, err = c.Generate(context.Background(), &core.GenerateRequest{InputIDs: [][]int{{1}}})
	assert.True(t, core.IsInvalidInput(err))
}

func TestGenerationClientLoad(t *testing.T) {
	var got core.LoadOptions
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/lcrec/load", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"vocab_size": 32100, "device": "cuda:1"}`))
	})

	c := NewGenerationClient(srv.URL, "lcrec", WithAuth(&AuthConfig{Type: "basic", Username: "u", Password: "p"}))
	info, err := c.Load(context.Background(), core.LoadOptions{
		CheckpointPath:   "/ckpt",
		BaseModel:        "/llama",
		Adapter:          true,
		ResizeEmbeddings: 32100,
		Device:           1,
	})
	require.NoError(t, err)
	assert.Equal(t, 32100, info.VocabSize)
	assert.Equal(t, "cuda:1", info.Device)
	assert.Equal(t, "/ckpt", got.CheckpointPath)
	assert.True(t, got.Adapter)
	assert.Equal(t, 1, got.Device)

	_, err = c.Load(context.Background(), core.LoadOptions{})
	assert.True(t, core.IsInvalidConfig(err))
	_, err = c.Load(context.Background(), core.LoadOptions{CheckpointPath: "/ckpt", Adapter: true})
	assert.True(t, core.IsInvalidConfig(err))
}

func TestGenerationClientRPCRoutesAndHealth(t *testing.T) {
	var paths []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		if r.URL.Path == "/lcrec/ping" {
			_, _ = w.Write([]byte(`{"status":"Healthy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"vocab_size": 10}`))
	})

	c := NewGenerationClient(srv.URL+"/lcrec", "", WithRPCRoutes(),
		WithAuth(&AuthConfig{Type: "api_key", APIKey: "k"}), WithTimeout(time.Second))
	require.NoError(t, c.Health(context.Background()))
	_, err := c.Load(context.Background(), core.LoadOptions{CheckpointPath: "/ckpt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/lcrec/ping", "/lcrec/load"}, paths)
	require.NoError(t, c.Close())
}

func TestGenerationClientHealthDown(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := NewGenerationClient(srv.URL, "lcrec")
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ServiceConfig
		wantErr bool
	}{
		{name: "nil", cfg: nil, wantErr: true},
		{name: "torchserve", cfg: &ServiceConfig{Type: ServiceTypeTorchServe, Endpoint: "http://localhost:8080/", ModelName: "m"}},
		{name: "rpc without model", cfg: &ServiceConfig{Type: ServiceTypeRPC, Endpoint: "https://gen.internal"}},
		{name: "torchserve without model", cfg: &ServiceConfig{Type: ServiceTypeTorchServe, Endpoint: "http://localhost"}, wantErr: true},
		{name: "unknown type", cfg: &ServiceConfig{Type: "tf_serving", Endpoint: "http://localhost", ModelName: "m"}, wantErr: true},
		{name: "missing endpoint", cfg: &ServiceConfig{Type: ServiceTypeRPC}, wantErr: true},
		{name: "grpc endpoint", cfg: &ServiceConfig{Type: ServiceTypeRPC, Endpoint: "localhost:8500"}, wantErr: true},
		{name: "bad auth", cfg: &ServiceConfig{Type: ServiceTypeRPC, Endpoint: "http://x", Auth: &AuthConfig{Type: "oauth"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsInvalidConfig(err))
				return
			}
			require.NoError(t, err)
			c, ok := g.(*GenerationClient)
			require.True(t, ok)
			assert.Equal(t, 300*time.Second, c.Timeout)
			assert.NotContains(t, c.Endpoint[len(c.Endpoint)-1:], "/")
		})
	}
}
