package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/infra/transport/loopback"
)

type mockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*mockTicker
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Unix(1_700_000_000, 0)}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *mockClock) NewTicker(d time.Duration) ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTicker{d: d, c: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

// Fire delivers one tick to every live ticker with period d.
func (m *mockClock) Fire(d time.Duration) int {
	m.mu.Lock()
	now := m.now
	targets := make([]*mockTicker, 0, len(m.tickers))
	for _, t := range m.tickers {
		if t.d == d {
			targets = append(targets, t)
		}
	}
	m.mu.Unlock()

	n := 0
	for _, t := range targets {
		if t.tick(now) {
			n++
		}
	}
	return n
}

func (m *mockClock) tickerCount(d time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickers {
		if t.d == d && !t.isStopped() {
			n++
		}
	}
	return n
}

type mockTicker struct {
	d       time.Duration
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *mockTicker) C() <-chan time.Time { return m.c }

func (m *mockTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *mockTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *mockTicker) tick(now time.Time) bool {
	if m.isStopped() {
		return false
	}
	select {
	case m.c <- now:
		return true
	default:
		return false
	}
}

type fakeCapability struct {
	mu         sync.Mutex
	loadErr    error
	predictErr error
	chunk      model.ActionChunk
	gate       chan struct{}
	calls      int
	lastObs    model.Observation
	resets     int
	released   int

	// hold, when set, blocks Predict without regard to ctx.
	hold             chan struct{}
	onPredict        func()
	inFlight         int
	releasedInFlight bool
}

func newFakeCapability(steps int, v model.JointVector) *fakeCapability {
	chunk := make(model.ActionChunk, steps)
	for i := range chunk {
		chunk[i] = v
	}
	return &fakeCapability{chunk: chunk}
}

func (f *fakeCapability) Load(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

func (f *fakeCapability) Predict(ctx context.Context, obs model.Observation) (model.ActionChunk, error) {
	f.mu.Lock()
	f.calls++
	f.lastObs = obs
	gate := f.gate
	hold := f.hold
	hook := f.onPredict
	err := f.predictErr
	chunk := append(model.ActionChunk(nil), f.chunk...)
	f.inFlight++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if hook != nil {
		hook()
	}
	if hold != nil {
		<-hold
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (f *fakeCapability) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeCapability) Release(context.Context) error {
	f.mu.Lock()
	f.released++
	if f.inFlight > 0 {
		f.releasedInFlight = true
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeCapability) Info() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"predict_calls": f.calls}
}

func (f *fakeCapability) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCapability) LastObservation() model.Observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastObs
}

func (f *fakeCapability) set(fn func(f *fakeCapability)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeFactory struct {
	mu     sync.Mutex
	newErr error
	build  func() *fakeCapability
	built  map[string]*fakeCapability
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		build: func() *fakeCapability { return newFakeCapability(10, model.JointVector{1, 2, 3, 4, 5, 6}) },
		built: map[string]*fakeCapability{},
	}
}

func (f *fakeFactory) Supported() []model.PolicyKind { return model.KnownPolicyKinds }

func (f *fakeFactory) New(kind model.PolicyKind, cfg ports.CapabilityConfig) (ports.InferenceCapability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	c := f.build()
	f.built[cfg.SessionID] = c
	return c, nil
}

func (f *fakeFactory) get(id string) *fakeCapability {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[id]
}

// refusingTransport wraps a hub and refuses the joint output join.
type refusingTransport struct {
	*loopback.Hub
}

func (r refusingTransport) NewJointProducer() ports.JointProducer {
	return refusingProducer{r.Hub.NewJointProducer()}
}

type refusingProducer struct {
	ports.JointProducer
}

func (refusingProducer) Connect(context.Context, string, string, string) (bool, error) {
	return false, nil
}

var errBoom = errors.New("boom")

func testConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Pacing = PacingSleep
	return cfg
}

type harness struct {
	t     *testing.T
	hub   *loopback.Hub
	cap   *fakeCapability
	clock *mockClock
	sess  *Session
	rooms model.RoomIDs
}

func newHarness(t *testing.T, kind model.PolicyKind, cameras []string, cfg SessionConfig, capability *fakeCapability) *harness {
	t.Helper()
	ctx := context.Background()
	hub := loopback.NewHub()
	clk := newMockClock()

	rooms, err := allocateRooms(ctx, hub, CreateParams{SessionID: "s1", CameraNames: cameras})
	require.NoError(t, err)

	pacer, err := NewPacer(cfg.Pacing)
	require.NoError(t, err)

	sess := newSession(sessionSpec{
		ID:          "s1",
		PolicyPath:  "./checkpoints/test",
		Kind:        kind,
		Cameras:     cameras,
		Instruction: "pick up the cube",
		Rooms:       rooms,
	}, cfg, sessionDeps{capability: capability, transport: hub, pacer: pacer, clock: clk})
	require.NoError(t, sess.Initialize(ctx))
	t.Cleanup(func() { _ = sess.Cleanup(context.Background()) })

	return &harness{t: t, hub: hub, cap: capability, clock: clk, sess: sess, rooms: rooms}
}

func (h *harness) frame(camera string) {
	h.hub.PublishFrame(h.rooms.WorkspaceID, h.rooms.CameraRoomIDs[camera], model.Frame{
		Data: make([]byte, 2*2*3), Width: 2, Height: 2, Format: model.FormatRGB24,
	})
}

func (h *harness) joints(values map[string]float64) {
	h.hub.PublishJoints(h.rooms.WorkspaceID, h.rooms.JointInputRoomID, values)
}

func (h *harness) sent() []model.JointCommands {
	return h.hub.Sent(h.rooms.WorkspaceID, h.rooms.JointOutputRoomID)
}
