package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvianLUO/bertopic-analysis-tool/pkg/config"
)

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

func TestLSA_GroupsSimilarDocuments(t *testing.T) {
	docs := []string{"cat dog", "cat dog", "stock market", "stock market"}
	vecs, err := NewLSA(50).EmbedBatch(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, vecs, len(docs))

	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[1]), 1e-6)
	assert.InDelta(t, 1.0, cosine(vecs[2], vecs[3]), 1e-6)
	assert.Less(t, math.Abs(cosine(vecs[0], vecs[2])), 0.1)
}

func TestLSA_ToleratesEmptyDocuments(t *testing.T) {
	vecs, err := NewLSA(10).EmbedBatch(context.Background(), []string{"alpha beta", "", "beta gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, x := range vecs[1] {
		assert.Zero(t, x)
	}
}

func TestLSA_EmptyVocabularyYieldsZeroVectors(t *testing.T) {
	vecs, err := NewLSA(10).EmbedBatch(context.Background(), []string{"", " ", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		require.Len(t, v, 10)
		for _, x := range v {
			assert.Zero(t, x)
		}
	}
}

func writeVec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.vec")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWordVectors_MeanOfKnownTokens(t *testing.T) {
	path := writeVec(t, "3 2\ncat 1 0\ndog 0 1\nstock -1 0\n")
	wv, err := LoadWordVectors(path)
	require.NoError(t, err)
	assert.Equal(t, 2, wv.Dimension())
	assert.Equal(t, "local:"+path, wv.Name())

	vecs, err := wv.EmbedBatch(context.Background(), []string{"cat dog unknown", "nothing known", ""})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.5), vecs[0][0], 1e-9)
	assert.InDelta(t, math.Sqrt(0.5), vecs[0][1], 1e-9)
	assert.Equal(t, []float64{0, 0}, vecs[1])
	assert.Equal(t, []float64{0, 0}, vecs[2])
}

func TestWordVectors_RejectsRaggedRows(t *testing.T) {
	_, err := LoadWordVectors(writeVec(t, "cat 1 0\ndog 1\n"))
	assert.Error(t, err)
}

type fakeProvider struct {
	name    string
	pingErr error
	calls   atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Ping(context.Context) error { return f.pingErr }

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	f.calls.Add(1)
	out := make([][]float64, len(texts))
	for i, s := range texts {
		out[i] = []float64{float64(len(s)), 1}
	}
	return out, nil
}

func newTestResolver(cfg config.EmbeddingConfig, remote func(string) (Provider, error)) *Resolver {
	r := NewResolver(cfg, nil, nil)
	r.newRemote = remote
	return r
}

func unavailable(string) (Provider, error) { return nil, errors.New("offline") }

func TestResolver_AutoSelectsDefault(t *testing.T) {
	r := newTestResolver(config.EmbeddingConfig{}, unavailable)
	p, err := r.Resolve(context.Background(), "auto")
	require.NoError(t, err)
	assert.Equal(t, ModelLSA, p.Name())
}

func TestResolver_PinnedLocalModelWins(t *testing.T) {
	path := writeVec(t, "cat 1 0\n")
	r := newTestResolver(config.EmbeddingConfig{LocalModelPath: path}, unavailable)

	p, err := r.Resolve(context.Background(), "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, "local:"+path, p.Name())
}

func TestResolver_MissingLocalModelFallsThrough(t *testing.T) {
	remote := &fakeProvider{name: "remote-model"}
	r := newTestResolver(
		config.EmbeddingConfig{LocalModelPath: filepath.Join(t.TempDir(), "absent.vec")},
		func(string) (Provider, error) { return remote, nil },
	)

	p, err := r.Resolve(context.Background(), "remote-model")
	require.NoError(t, err)
	assert.Equal(t, "remote-model", p.Name())
}

func TestResolver_NamedModelFailureFallsBackToDefault(t *testing.T) {
	r := newTestResolver(config.EmbeddingConfig{}, func(string) (Provider, error) {
		return &fakeProvider{name: "x", pingErr: errors.New("404 model not found")}, nil
	})
	p, err := r.Resolve(context.Background(), "missing-model")
	require.NoError(t, err)
	assert.Equal(t, ModelLSA, p.Name())
}

func TestResolver_ExhaustionIsModelResolutionError(t *testing.T) {
	r := newTestResolver(config.EmbeddingConfig{DefaultModel: "remote-default"}, unavailable)
	_, err := r.Resolve(context.Background(), "remote-other")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelResolution)
	assert.Contains(t, err.Error(), "remote-other")
	assert.Contains(t, err.Error(), "remote-default")
}

func TestResolver_WrapsRemoteInCache(t *testing.T) {
	cache := newMemCache()
	r := NewResolver(config.EmbeddingConfig{}, cache, nil)
	r.newRemote = func(name string) (Provider, error) { return &fakeProvider{name: name}, nil }

	p, err := r.Resolve(context.Background(), "remote")
	require.NoError(t, err)
	_, ok := p.(*Cached)
	assert.True(t, ok)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]float64
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]float64)} }

func (m *memCache) GetEmbeddings(_ context.Context, keys []string) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]float64, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memCache) SetEmbeddings(_ context.Context, keys []string, vectors [][]float64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range keys {
		m.data[k] = vectors[i]
	}
	return nil
}

func TestCached_OnlyMissesReachProvider(t *testing.T) {
	inner := &fakeProvider{name: "remote"}
	c := NewCached(inner, newMemCache(), time.Hour, nil)

	first, err := c.EmbedBatch(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	second, err := c.EmbedBatch(context.Background(), []string{"bb", "a"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])

	third, err := c.EmbedBatch(context.Background(), []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, []float64{3, 1}, third[1])
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

func TestRemote_EmbedsInBatchesAndRestoresOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		// reversed on purpose; the client must place rows by index
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	}))
	defer srv.Close()

	r := NewRemote("batch-test-model", RemoteConfig{BaseURL: srv.URL, APIKey: "k", BatchSize: 2}, nil)
	vecs, err := r.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, v[0], 1e-6)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemote_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	r := NewRemote("client-error-model", RemoteConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	err := r.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
