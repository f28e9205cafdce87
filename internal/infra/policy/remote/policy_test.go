package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
)

type fakeWorker struct {
	mu       sync.Mutex
	loads    []loadRequest
	predicts []predictRequest
	calls    map[string]int
	actions  [][]float64
	status   int
}

func newWorker(t *testing.T) (*fakeWorker, *httptest.Server) {
	t.Helper()
	w := &fakeWorker{calls: map[string]int{}, actions: [][]float64{{1, 2, 3, 4, 5, 6}, {6, 5, 4, 3, 2, 1}}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/policies/load", func(rw http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.loads = append(w.loads, req)
		w.mu.Unlock()
		_ = json.NewEncoder(rw).Encode(loadResponse{PolicyID: "p-" + req.SessionID})
	})
	mux.HandleFunc("POST /v1/policies/{id}/{op}", func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.calls[r.PathValue("id")+"/"+r.PathValue("op")]++
		if w.status != 0 {
			rw.WriteHeader(w.status)
			_, _ = rw.Write([]byte(`{"error":"worker says no"}`))
			return
		}
		if r.PathValue("op") != "predict" {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.predicts = append(w.predicts, req)
		_ = json.NewEncoder(rw).Encode(predictResponse{Actions: w.actions})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv
}

func (w *fakeWorker) set(fn func(w *fakeWorker)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w)
}

func newCapability(t *testing.T, srv *httptest.Server, kind model.PolicyKind) ports.InferenceCapability {
	t.Helper()
	f, err := NewFactory(Config{Endpoint: srv.URL, HTTPClient: srv.Client(), FailureThreshold: 2, ResetTimeout: time.Hour})
	require.NoError(t, err)
	c, err := f.New(kind, ports.CapabilityConfig{
		SessionID:           "s1",
		PolicyPath:          "./checkpoints/smolvla",
		CameraNames:         []string{"front"},
		LanguageInstruction: "stack the blocks",
		NActionSteps:        10,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("redis://localhost", nil, 0)
	assert.Error(t, err)
	c, err := NewClient("http://worker:9000/", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://worker:9000", c.Endpoint())
}

func TestCapability_LoadPredictReleaseRoundTrip(t *testing.T) {
	w, srv := newWorker(t)
	ctx := context.Background()
	c := newCapability(t, srv, model.PolicySmolVLA)

	_, err := c.Predict(ctx, model.Observation{})
	assert.ErrorIs(t, err, errNotLoaded)

	require.NoError(t, c.Load(ctx))
	require.Len(t, w.loads, 1)
	assert.Equal(t, loadRequest{
		SessionID:           "s1",
		PolicyType:          "smolvla",
		PolicyPath:          "./checkpoints/smolvla",
		CameraNames:         []string{"front"},
		LanguageInstruction: "stack the blocks",
		NActionSteps:        10,
	}, w.loads[0])

	obs := model.Observation{
		Images: map[string]model.Frame{"front": {Data: []byte{9, 9, 9}, Width: 1, Height: 1, Format: model.FormatRGB24}},
		Joints: model.JointVector{1, 1, 1, 1, 1, 1},
		Task:   "stack the blocks",
	}
	chunk, err := c.Predict(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, model.ActionChunk{{1, 2, 3, 4, 5, 6}, {6, 5, 4, 3, 2, 1}}, chunk)

	w.set(func(w *fakeWorker) {
		require.Len(t, w.predicts, 1)
		assert.Equal(t, []byte{9, 9, 9}, w.predicts[0].Images["front"].Data)
		assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, w.predicts[0].Joints)
		assert.Equal(t, "stack the blocks", w.predicts[0].Task)
	})

	c.Reset()
	info := c.Info()
	assert.Equal(t, "smolvla", info["policy_type"])
	assert.Equal(t, int64(1), info["predict_count"])
	assert.Equal(t, srv.URL, info["endpoint"])

	require.NoError(t, c.Release(ctx))
	require.NoError(t, c.Release(ctx), "second release is a no-op")
	w.set(func(w *fakeWorker) {
		assert.Equal(t, 1, w.calls["p-s1/reset"])
		assert.Equal(t, 1, w.calls["p-s1/release"])
	})
}

func TestCapability_RejectsMalformedActions(t *testing.T) {
	w, srv := newWorker(t)
	ctx := context.Background()
	c := newCapability(t, srv, model.PolicyACT)
	require.NoError(t, c.Load(ctx))

	w.set(func(w *fakeWorker) { w.actions = [][]float64{{1, 2, 3}} })
	_, err := c.Predict(ctx, model.Observation{})
	assert.ErrorContains(t, err, "has 3 values")

	w.set(func(w *fakeWorker) { w.actions = [][]float64{} })
	chunk, err := c.Predict(ctx, model.Observation{})
	require.NoError(t, err)
	assert.Empty(t, chunk)
}

func TestCapability_BreakerOpensOnServerErrors(t *testing.T) {
	w, srv := newWorker(t)
	ctx := context.Background()
	c := newCapability(t, srv, model.PolicyACT)
	require.NoError(t, c.Load(ctx))

	w.set(func(w *fakeWorker) { w.status = http.StatusBadRequest })
	for i := 0; i < 3; i++ {
		_, err := c.Predict(ctx, model.Observation{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "worker says no", apiErr.Message)
	}
	assert.Equal(t, "closed", c.Info()["circuit"], "client errors do not trip the breaker")

	w.set(func(w *fakeWorker) { w.status = http.StatusInternalServerError })
	for i := 0; i < 2; i++ {
		_, err := c.Predict(ctx, model.Observation{})
		require.Error(t, err)
	}
	_, err := c.Predict(ctx, model.Observation{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	w.set(func(w *fakeWorker) { assert.Equal(t, 5, w.calls["p-s1/predict"]) })
}

func TestFactory_UnknownKind(t *testing.T) {
	f, err := NewFactory(Config{Endpoint: "http://worker"})
	require.NoError(t, err)
	_, err = f.New("resnet", ports.CapabilityConfig{})
	assert.ErrorIs(t, err, ports.ErrUnsupportedPolicy)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker("test", 1, time.Minute)
	cb.now = func() time.Time { return now }

	fail := func() error { return assert.AnError }
	ok := func() error { return nil }

	assert.Equal(t, assert.AnError, cb.Execute(fail, nil))
	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ok, nil), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(ok, nil))
	assert.Equal(t, BreakerClosed, cb.State())

	require.Error(t, cb.Execute(fail, nil))
	now = now.Add(2 * time.Minute)
	require.Error(t, cb.Execute(fail, nil), "half-open trial call fails")
	assert.Equal(t, BreakerOpen, cb.State())
}
