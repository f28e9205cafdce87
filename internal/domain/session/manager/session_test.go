package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/infra/transport/loopback"
)

func TestSession_InitializeConnectsEveryHandle(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front", "wrist"}, testConfig(), newFakeCapability(1, model.JointVector{}))
	ws := h.rooms.WorkspaceID

	assert.Equal(t, model.StateReady, h.sess.State())
	assert.Equal(t, []string{"s1-front-consumer"}, h.hub.Participants(ws, "s1-front"))
	assert.Equal(t, []string{"s1-wrist-consumer"}, h.hub.Participants(ws, "s1-wrist"))
	assert.Equal(t, []string{"s1-joint-input-consumer"}, h.hub.Participants(ws, "s1-joint-input"))
	assert.Equal(t, []string{"s1-joint-output-producer"}, h.hub.Participants(ws, "s1-joint-output"))

	require.NoError(t, h.sess.Cleanup(context.Background()))
	require.NoError(t, h.sess.Cleanup(context.Background()), "cleanup is idempotent")
	assert.Empty(t, h.hub.Participants(ws, "s1-front"))
	assert.Empty(t, h.hub.Participants(ws, "s1-joint-output"))
	assert.Equal(t, 1, h.cap.released)
}

func TestSession_InitializeFailureClosesHandles(t *testing.T) {
	ctx := context.Background()
	hub := loopback.NewHub()
	rooms, err := allocateRooms(ctx, hub, CreateParams{SessionID: "s1", CameraNames: []string{"front"}})
	require.NoError(t, err)

	capability := newFakeCapability(1, model.JointVector{})
	cfg := testConfig()
	sess := newSession(sessionSpec{ID: "s1", PolicyPath: "p", Kind: model.PolicyACT, Cameras: []string{"front"}, Rooms: rooms},
		cfg, sessionDeps{capability: capability, transport: refusingTransport{hub}, pacer: sleepPacer{}, clock: newMockClock()})

	err = sess.Initialize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnectRefused)
	assert.Empty(t, hub.Participants(rooms.WorkspaceID, "s1-front"))
	assert.Empty(t, hub.Participants(rooms.WorkspaceID, "s1-joint-input"))
	assert.Equal(t, 1, capability.released)
	assert.ErrorIs(t, sess.Start(ctx), ports.ErrInvalidState)
}

func TestSession_LoadFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	hub := loopback.NewHub()
	rooms, _ := allocateRooms(ctx, hub, CreateParams{SessionID: "s1", CameraNames: []string{"front"}})
	capability := newFakeCapability(1, model.JointVector{})
	capability.loadErr = errBoom

	sess := newSession(sessionSpec{ID: "s1", PolicyPath: "p", Kind: model.PolicyACT, Cameras: []string{"front"}, Rooms: rooms},
		testConfig(), sessionDeps{capability: capability, transport: hub, pacer: sleepPacer{}})
	err := sess.Initialize(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, hub.Participants(rooms.WorkspaceID, "s1-front"))
}

// Scenario A: inference waits for every camera and the first joint message.
func TestSession_ReadinessGate(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front", "wrist"}, testConfig(), newFakeCapability(10, model.JointVector{}))
	ctx := context.Background()

	h.frame("front")
	h.joints(map[string]float64{"Rotation": 1})
	for tick := uint64(0); tick < 50; tick++ {
		h.sess.step(ctx, tick)
	}
	assert.Equal(t, 0, h.cap.Calls())
	assert.Empty(t, h.sent())

	h.frame("wrist")
	h.joints(map[string]float64{"Rotation": 2})
	h.sess.step(ctx, 51)
	assert.Equal(t, 1, h.cap.Calls())
	assert.Len(t, h.sent(), 1)
}

// Scenario B: a 15-step batch with n_action_steps=10 enqueues exactly 10.
func TestSession_ChunkTruncatedToActionSteps(t *testing.T) {
	cfg := testConfig()
	cfg.NActionSteps = 10
	h := newHarness(t, model.PolicyACT, []string{"front"}, cfg, newFakeCapability(15, model.JointVector{5}))
	h.frame("front")
	h.joints(map[string]float64{"Pitch": 3})

	h.sess.infer(context.Background())
	assert.Equal(t, 10, h.sess.queue.Len())
	st := h.sess.Status()
	assert.Equal(t, int64(1), st.Stats.InferenceCount)
	assert.Equal(t, 10, st.Stats.ActionsInQueue)

	qi := h.sess.QueueInfo()
	assert.False(t, qi.FreshJoints, "inference consumes freshness")
	assert.False(t, qi.FreshImages["front"])
	assert.True(t, qi.ReadyToInfer)
}

func TestSession_Cadence(t *testing.T) {
	cfg := testConfig()
	require.Equal(t, 10, cfg.InferenceInterval())
	h := newHarness(t, model.PolicyACT, []string{"front"}, cfg, newFakeCapability(10, model.JointVector{}))
	h.frame("front")
	h.joints(map[string]float64{})

	for tick := uint64(0); tick < 30; tick++ {
		h.sess.step(context.Background(), tick)
	}
	// An empty queue forces inference at ticks 0, 10 and 20; the refill
	// window never coincides with a scheduled tick in between.
	assert.Equal(t, 3, h.cap.Calls())
	assert.Len(t, h.sent(), 30)
}

func TestShouldInfer(t *testing.T) {
	tests := []struct {
		queueLen int
		tick     uint64
		want     bool
	}{
		{0, 3, true},
		{2, 10, true},
		{2, 11, false},
		{3, 10, false},
		{50, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldInfer(tt.queueLen, tt.tick, 10), "len=%d tick=%d", tt.queueLen, tt.tick)
	}
}

func TestSession_InferenceIntervalFloor(t *testing.T) {
	cfg := testConfig()
	cfg.ControlHz, cfg.InferenceHz = 5, 20
	assert.Equal(t, 1, cfg.InferenceInterval())
	cfg.ControlHz, cfg.InferenceHz = 30, 7
	assert.Equal(t, 4, cfg.InferenceInterval())
}

func TestSession_PredictErrorsAreAbsorbed(t *testing.T) {
	capability := newFakeCapability(10, model.JointVector{})
	capability.predictErr = errBoom
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), capability)
	h.frame("front")
	h.joints(map[string]float64{})

	h.sess.step(context.Background(), 0)
	st := h.sess.Status()
	assert.Equal(t, int64(1), st.Stats.Errors)
	assert.Equal(t, int64(0), st.Stats.InferenceCount)
	assert.Equal(t, 0, h.sess.queue.Len())

	capability.set(func(f *fakeCapability) { f.predictErr = nil; f.chunk = nil })
	h.sess.step(context.Background(), 1)
	assert.Equal(t, int64(2), h.sess.Status().Stats.Errors, "empty batch is a prediction error")
}

func TestSession_SendErrorsAreAbsorbed(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), newFakeCapability(5, model.JointVector{}))
	h.frame("front")
	h.joints(map[string]float64{})
	h.hub.SetSendError(h.rooms.WorkspaceID, h.rooms.JointOutputRoomID, errBoom)

	h.sess.step(context.Background(), 0)
	st := h.sess.Status()
	assert.Equal(t, int64(1), st.Stats.Errors)
	assert.Equal(t, int64(0), st.Stats.CommandsSent)
	assert.Equal(t, 4, h.sess.queue.Len(), "failed step is consumed")
	assert.Nil(t, st.JointState.LastCommand)
}

func TestSession_CommandsAreClampedAndRecorded(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), newFakeCapability(2, model.JointVector{150, -150, 0, 0, 0, 180}))
	h.frame("front")
	h.joints(map[string]float64{})

	h.sess.step(context.Background(), 0)
	sent := h.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, model.JointVector{100, -100, 0, 0, 0, 100}, sent[0].Values())
	assert.Equal(t, "Rotation", sent[0][0].Name)

	st := h.sess.Status()
	assert.Equal(t, int64(1), st.Stats.CommandsSent)
	require.NotNil(t, st.JointState.LastCommand)
	assert.Equal(t, model.JointVector{100, -100, 0, 0, 0, 100}, *st.JointState.LastCommand)
}

func TestSession_LanguageInstruction(t *testing.T) {
	for _, tc := range []struct {
		kind model.PolicyKind
		want string
	}{
		{model.PolicySmolVLA, "pick up the cube"},
		{model.PolicyACT, ""},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			h := newHarness(t, tc.kind, []string{"front"}, testConfig(), newFakeCapability(1, model.JointVector{}))
			h.frame("front")
			h.joints(map[string]float64{"Jaw": 40})
			h.sess.step(context.Background(), 0)

			obs := h.cap.LastObservation()
			assert.Equal(t, tc.want, obs.Task)
			assert.Equal(t, 40.0, obs.Joints[5])
			assert.Contains(t, obs.Images, "front")
		})
	}
}

func TestSession_IngestionErrorsAndTransportErrors(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), newFakeCapability(1, model.JointVector{}))
	ws := h.rooms.WorkspaceID

	h.hub.PublishFrame(ws, "s1-front", model.Frame{Data: []byte{1, 2}, Width: 2, Height: 2, Format: model.FormatRGB24})
	h.hub.PublishFrame(ws, "s1-front", model.Frame{Data: []byte{1, 2}, Width: 2, Height: 2, Format: "jpeg"})
	h.hub.PublishError(ws, "s1-joint-input", errors.New("joint link lost"))

	st := h.sess.Status()
	assert.Equal(t, int64(2), st.Stats.Errors, "size mismatch and transport error")
	assert.Equal(t, "joint link lost", st.ErrorMessage)
	assert.Equal(t, int64(0), st.Stats.ImagesReceived["front"])
	assert.Equal(t, map[string]any{"predict_calls": 0}, st.InferenceStats)
}

func TestSession_StartRequiresStartableState(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), newFakeCapability(1, model.JointVector{}))
	ctx := context.Background()

	require.NoError(t, h.sess.Start(ctx))
	assert.Equal(t, model.StateRunning, h.sess.State())
	assert.ErrorIs(t, h.sess.Start(ctx), ports.ErrInvalidState)

	require.NoError(t, h.sess.Stop(ctx))
	require.NoError(t, h.sess.Stop(ctx), "stop is idempotent")
	assert.Equal(t, model.StateStopped, h.sess.State())
	require.NoError(t, h.sess.Start(ctx))
	require.NoError(t, h.sess.Stop(ctx))
}

// Scenario D: stop keeps the queue; restart clears it and zeroes joints.
func TestSession_StopAndRestart(t *testing.T) {
	cfg := testConfig()
	cfg.ControlHz, cfg.InferenceHz, cfg.NActionSteps = 100, 10, 50
	capability := newFakeCapability(60, model.JointVector{10, 10, 10, 10, 10, 10})
	h := newHarness(t, model.PolicyACT, []string{"front"}, cfg, capability)
	ctx := context.Background()

	h.frame("front")
	h.joints(map[string]float64{"Rotation": 30})
	require.NoError(t, h.sess.Start(ctx))
	require.Eventually(t, func() bool { return len(h.sent()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.sess.Stop(ctx))
	st := h.sess.Status()
	assert.Equal(t, model.StateStopped, st.State)
	queued := h.sess.queue.Len()
	sent := len(h.sent())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, queued, h.sess.queue.Len(), "stopped loop must not drain the queue")
	assert.Equal(t, sent, len(h.sent()))
	assert.Equal(t, 30.0, h.sess.Status().JointState.Current[0])

	gate := make(chan struct{})
	capability.set(func(f *fakeCapability) { f.gate = gate })
	require.NoError(t, h.sess.Restart(ctx))
	assert.Equal(t, model.StateRunning, h.sess.State())
	assert.Equal(t, 0, h.sess.queue.Len())
	assert.Equal(t, model.JointVector{}, h.sess.Status().JointState.Current)
	capability.set(func(f *fakeCapability) { assert.Equal(t, 1, f.resets) })

	close(gate)
	require.Eventually(t, func() bool { return len(h.sent()) > sent }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.JointVector{}, capability.LastObservation().Joints)
	require.NoError(t, h.sess.Stop(ctx))
}

func TestSession_StopCancelsBlockedPredict(t *testing.T) {
	capability := newFakeCapability(1, model.JointVector{})
	capability.gate = make(chan struct{})
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), capability)
	ctx := context.Background()

	h.frame("front")
	h.joints(map[string]float64{})
	require.NoError(t, h.sess.Start(ctx))
	require.Eventually(t, func() bool { return capability.Calls() == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.sess.Stop(stopCtx))
	assert.Equal(t, int64(0), h.sess.Status().Stats.Errors, "cancelled predict is not an error")
}

func TestSession_WatchdogMarksTimeout(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, model.PolicyACT, []string{"front"}, cfg, newFakeCapability(1, model.JointVector{}))
	ctx := context.Background()
	require.NoError(t, h.sess.Start(ctx))

	require.Eventually(t, func() bool { return h.clock.tickerCount(cfg.WatchdogInterval) == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(cfg.InactivityTimeout + time.Second)
	require.Equal(t, 1, h.clock.Fire(cfg.WatchdogInterval))

	require.Eventually(t, func() bool { return h.sess.State() == model.StateTimeout }, time.Second, time.Millisecond)
	require.NoError(t, h.sess.Stop(ctx))
	assert.Equal(t, model.StateTimeout, h.sess.State(), "stop keeps timeout")
	assert.ErrorIs(t, h.sess.Start(ctx), ports.ErrInvalidState)
}

func TestSession_ResetKeepsState(t *testing.T) {
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), newFakeCapability(10, model.JointVector{}))
	h.frame("front")
	h.joints(map[string]float64{"Elbow": 12})
	h.sess.infer(context.Background())
	require.Equal(t, 10, h.sess.queue.Len())

	h.sess.Reset()
	assert.Equal(t, model.StateReady, h.sess.State())
	assert.Equal(t, 0, h.sess.queue.Len())
	assert.Equal(t, model.JointVector{}, h.sess.Status().JointState.Current)
	assert.Equal(t, 1, h.cap.resets)
}

func TestSession_CleanupWaitsForPredictDespiteCancelledContext(t *testing.T) {
	capability := newFakeCapability(1, model.JointVector{})
	hold := make(chan struct{})
	capability.hold = hold
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), capability)

	h.frame("front")
	h.joints(map[string]float64{})
	require.NoError(t, h.sess.Start(context.Background()))
	require.Eventually(t, func() bool {
		var n int
		capability.set(func(f *fakeCapability) { n = f.inFlight })
		return n == 1
	}, time.Second, time.Millisecond)

	go func() {
		time.Sleep(200 * time.Millisecond)
		close(hold)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.NoError(t, h.sess.Cleanup(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "cleanup returned before predict finished")

	capability.set(func(f *fakeCapability) {
		assert.Equal(t, 0, f.inFlight)
		assert.Equal(t, 1, f.released)
		assert.False(t, f.releasedInFlight, "capability released while predict was running")
	})
}

func TestSession_CleanupKeepsResourcesWhenLoopWontExit(t *testing.T) {
	prev := joinTimeout
	joinTimeout = 50 * time.Millisecond
	t.Cleanup(func() { joinTimeout = prev })

	capability := newFakeCapability(1, model.JointVector{})
	hold := make(chan struct{})
	capability.hold = hold
	h := newHarness(t, model.PolicyACT, []string{"front"}, testConfig(), capability)

	h.frame("front")
	h.joints(map[string]float64{})
	require.NoError(t, h.sess.Start(context.Background()))
	require.Eventually(t, func() bool { return capability.Calls() == 1 }, time.Second, time.Millisecond)

	err := h.sess.Cleanup(context.Background())
	require.ErrorIs(t, err, errJoinTimeout)
	capability.set(func(f *fakeCapability) { assert.Equal(t, 0, f.released) })

	close(hold)
	require.NoError(t, h.sess.Cleanup(context.Background()))
	capability.set(func(f *fakeCapability) {
		assert.Equal(t, 1, f.released)
		assert.False(t, f.releasedInFlight)
	})
}
