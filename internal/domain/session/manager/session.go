// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/robohub-inference/internal/domain/session/buffer"
	"github.com/ManuGH/robohub-inference/internal/domain/session/lifecycle"
	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/log"
	"github.com/ManuGH/robohub-inference/internal/metrics"
	"github.com/ManuGH/robohub-inference/internal/telemetry"
)

const tracerName = "github.com/ManuGH/robohub-inference/internal/domain/session/manager"

var errConnectRefused = errors.New("transport refused connection")

// sessionSpec is the validated subset of CreateParams a session is built from.
type sessionSpec struct {
	ID          string
	PolicyPath  string
	Kind        model.PolicyKind
	Cameras     []string
	Instruction string
	Rooms       model.RoomIDs
}

type sessionDeps struct {
	capability ports.InferenceCapability
	transport  ports.TransportClient
	pacer      Pacer
	clock      clock
}

// Session couples one robot with one prediction capability through a
// fixed-rate control loop.
type Session struct {
	spec      sessionSpec
	cfg       SessionConfig
	createdAt time.Time

	capability ports.InferenceCapability
	transport  ports.TransportClient
	pacer      Pacer
	clock      clock
	logger     zerolog.Logger
	tracer     trace.Tracer

	ingest *buffer.Ingest
	queue  *buffer.ActionQueue

	// Set during Initialize, read-only until teardown.
	video    map[string]ports.VideoConsumer
	jointIn  ports.JointConsumer
	jointOut ports.JointProducer

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// ctl serializes lifecycle operations. The loop never takes it.
	ctl sync.Mutex

	mu             sync.Mutex
	state          model.State
	errMsg         string
	errCount       int64
	inferenceCount int64
	commandsSent   int64
	lastCommand    *model.JointVector
	loop           *task
	monitor        *task
	torndown       bool

	slowLog  rate.Sometimes
	errLog   rate.Sometimes
	frameLog rate.Sometimes
}

func newSession(spec sessionSpec, cfg SessionConfig, deps sessionDeps) *Session {
	if deps.clock == nil {
		deps.clock = realClock{}
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	baseCtx = log.ContextWithSessionID(baseCtx, spec.ID)
	now := deps.clock.Now()

	s := &Session{
		spec:       spec,
		cfg:        cfg,
		createdAt:  now,
		capability: deps.capability,
		transport:  deps.transport,
		pacer:      deps.pacer,
		clock:      deps.clock,
		tracer:     telemetry.Tracer(tracerName),
		ingest:     buffer.NewIngest(spec.Cameras, deps.clock.Now),
		queue:      buffer.NewActionQueue(cfg.QueueCapacity, now),
		video:      make(map[string]ports.VideoConsumer, len(spec.Cameras)),
		baseCtx:    baseCtx,
		baseCancel: cancel,
		state:      model.StateInitializing,
		slowLog:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
		errLog:     rate.Sometimes{First: 3, Interval: 5 * time.Second},
		frameLog:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	s.logger = log.Derive(func(c *zerolog.Context) {
		c.Str(log.FieldComponent, "session").
			Str(log.FieldSessionID, spec.ID).
			Str(log.FieldPolicyKind, string(spec.Kind))
	})
	metrics.RecordStateChange("", string(model.StateInitializing))
	return s
}

func (s *Session) ID() string { return s.spec.ID }

func (s *Session) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity is the time of the last accepted frame or joint message.
func (s *Session) LastActivity() time.Time { return s.ingest.LastActivity() }

// Initialize loads the capability, connects every transport handle and
// starts the inactivity monitor. Any failure tears down what was opened.
func (s *Session) Initialize(ctx context.Context) (err error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if st := s.State(); st != model.StateInitializing {
		return fmt.Errorf("%w: initialize from %s", ports.ErrInvalidState, st)
	}

	defer func() {
		if err == nil {
			return
		}
		s.logger.Error().Err(err).Msg("session initialization failed")
		if terr := s.teardownLocked(context.WithoutCancel(ctx)); terr != nil {
			s.logger.Warn().Err(terr).Msg("cleanup after failed initialization incomplete")
		}
	}()

	if err := s.capability.Load(ctx); err != nil {
		return fmt.Errorf("load policy %q: %w", s.spec.PolicyPath, err)
	}

	ws := s.spec.Rooms.WorkspaceID
	for _, cam := range s.spec.Cameras {
		vc := s.transport.NewVideoConsumer()
		vc.OnFrame(func(f model.Frame) {
			f.Camera = cam
			s.handleFrame(f)
		})
		vc.OnError(s.handleTransportError)
		if err := connect(ctx, vc, ws, s.spec.Rooms.CameraRoomIDs[cam], s.spec.ID+"-"+cam+"-consumer"); err != nil {
			return fmt.Errorf("connect camera %q: %w", cam, err)
		}
		s.video[cam] = vc
		if err := vc.StartReceiving(ctx); err != nil {
			return fmt.Errorf("start receiving camera %q: %w", cam, err)
		}
	}

	jc := s.transport.NewJointConsumer()
	jc.OnJoints(s.handleJoints)
	jc.OnError(s.handleTransportError)
	if err := connect(ctx, jc, ws, s.spec.Rooms.JointInputRoomID, s.spec.ID+"-joint-input-consumer"); err != nil {
		return fmt.Errorf("connect joint input: %w", err)
	}
	s.jointIn = jc

	jp := s.transport.NewJointProducer()
	if err := connect(ctx, jp, ws, s.spec.Rooms.JointOutputRoomID, s.spec.ID+"-joint-output-producer"); err != nil {
		return fmt.Errorf("connect joint output: %w", err)
	}
	s.jointOut = jp

	mon := &TimeoutMonitor{
		Timeout:      s.cfg.InactivityTimeout,
		Interval:     s.cfg.WatchdogInterval,
		LastActivity: s.ingest.LastActivity,
		OnTimeout:    s.markTimedOut,
		clock:        s.clock,
		logger:       s.logger.With().Str(log.FieldComponent, "timeout_monitor").Logger(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor = spawn(s.baseCtx, mon.Run)
	if err := s.transitionLocked(lifecycle.EvInitialized); err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldWorkspaceID, ws).
		Strs("cameras", s.spec.Cameras).
		Msg("session initialized")
	return nil
}

func connect(ctx context.Context, c ports.Connector, ws, room, identity string) error {
	ok, err := c.Connect(ctx, ws, room, identity)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: room %s as %s", errConnectRefused, room, identity)
	}
	return nil
}

// Start spawns the control loop. Only ready and stopped sessions can start.
func (s *Session) Start(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torndown || s.loop != nil {
		return fmt.Errorf("%w: cannot start from %s", ports.ErrInvalidState, s.state)
	}
	if err := s.transitionLocked(lifecycle.EvStartRequested); err != nil {
		return fmt.Errorf("%w: cannot start from %s", ports.ErrInvalidState, s.state)
	}
	s.loop = spawn(s.baseCtx, s.run)
	return nil
}

// Stop cancels the control loop and waits for it to exit. A timed-out
// session keeps its timeout state.
func (s *Session) Stop(_ context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	s.mu.Lock()
	t := s.loop
	s.loop = nil
	s.mu.Unlock()

	if t != nil {
		if err := t.stop(); err != nil {
			s.mu.Lock()
			s.loop = t
			s.mu.Unlock()
			return fmt.Errorf("stop control loop: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case model.StateTimeout, model.StateStopped:
		return nil
	}
	if err := s.transitionLocked(lifecycle.EvStopRequested); err != nil {
		return fmt.Errorf("%w: cannot stop from %s", ports.ErrInvalidState, s.state)
	}
	return nil
}

// Restart stops the loop, resets buffered state and starts again.
func (s *Session) Restart(_ context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if err := s.stopLocked(); err != nil {
		return err
	}
	s.resetBuffers()
	return s.startLocked()
}

// Reset clears the action queue, the input freshness flags and the joint
// vector, and resets the capability. The lifecycle state is unchanged.
func (s *Session) Reset() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.resetBuffers()
}

func (s *Session) resetBuffers() {
	s.queue.Clear()
	s.ingest.Reset()
	s.capability.Reset()
	s.logger.Info().Msg("session buffers reset")
}

// Cleanup stops every goroutine, closes transport handles and releases the
// capability. It is idempotent.
func (s *Session) Cleanup(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.teardownLocked(ctx)
}

func (s *Session) teardownLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.torndown {
		s.mu.Unlock()
		return nil
	}
	s.torndown = true
	mon := s.monitor
	s.monitor = nil
	s.mu.Unlock()

	// Handles and the capability are released only once every session
	// goroutine has exited, whatever the state of the caller's ctx.
	ctx = context.WithoutCancel(ctx)
	s.baseCancel()

	var joinErrs []error
	if mon != nil {
		if err := mon.stop(); err != nil {
			s.mu.Lock()
			s.monitor = mon
			s.mu.Unlock()
			joinErrs = append(joinErrs, fmt.Errorf("stop timeout monitor: %w", err))
		}
	}
	if err := s.stopLocked(); err != nil && !errors.Is(err, ports.ErrInvalidState) {
		joinErrs = append(joinErrs, err)
	}
	if len(joinErrs) > 0 {
		s.mu.Lock()
		s.torndown = false
		s.mu.Unlock()
		s.logger.Error().Err(errors.Join(joinErrs...)).Msg("session goroutines still running, resources kept")
		return errors.Join(joinErrs...)
	}

	var errs []error
	for cam, vc := range s.video {
		if err := vc.StopReceiving(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop receiving camera %q: %w", cam, err))
		}
		if err := vc.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect camera %q: %w", cam, err))
		}
	}
	if s.jointIn != nil {
		if err := s.jointIn.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect joint input: %w", err))
		}
	}
	if s.jointOut != nil {
		if err := s.jointOut.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect joint output: %w", err))
		}
	}
	if err := s.capability.Release(ctx); err != nil {
		errs = append(errs, fmt.Errorf("release policy: %w", err))
	}

	s.mu.Lock()
	metrics.RecordStateChange(string(s.state), "")
	s.mu.Unlock()

	s.logger.Info().Msg("session cleaned up")
	return errors.Join(errs...)
}

func (s *Session) markTimedOut(inactive time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(lifecycle.EvInactivityTimeout); err != nil {
		s.logger.Debug().Err(err).Msg("timeout ignored")
	}
}

func (s *Session) transitionLocked(ev lifecycle.EventKind) error {
	next, err := lifecycle.Apply(s.state, ev)
	if err != nil {
		return err
	}
	if next != s.state {
		metrics.RecordStateChange(string(s.state), string(next))
		s.logger.Info().
			Str(log.FieldOldState, string(s.state)).
			Str(log.FieldNewState, string(next)).
			Str(log.FieldEvent, ev.String()).
			Msg("session state changed")
	}
	s.state = next
	return nil
}

func (s *Session) handleFrame(f model.Frame) {
	err := s.ingest.OnFrame(f)
	switch {
	case err == nil:
		metrics.RecordFrame("accepted")
	case errors.Is(err, buffer.ErrFrameSkipped):
		metrics.RecordFrame("skipped")
		s.logger.Debug().Str(log.FieldCamera, f.Camera).Err(err).Msg("frame skipped")
	default:
		metrics.RecordFrame("rejected")
		s.frameLog.Do(func() {
			s.logger.Warn().Str(log.FieldCamera, f.Camera).Err(err).Msg("frame rejected")
		})
	}
}

func (s *Session) handleJoints(values map[string]float64) {
	s.ingest.OnJoints(values)
	metrics.JointMessagesTotal.Inc()
}

func (s *Session) handleTransportError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errMsg = err.Error()
	s.errCount++
	s.mu.Unlock()
	metrics.TransportErrorsTotal.Inc()
	s.logger.Error().Err(err).Msg("transport error")
}

// Status returns a point-in-time snapshot of the session.
func (s *Session) Status() model.Status {
	counters := s.ingest.Counters()
	joints, hasJoints := s.ingest.Joints()

	s.mu.Lock()
	st := model.Status{
		SessionID:   s.spec.ID,
		State:       s.state,
		PolicyPath:  s.spec.PolicyPath,
		PolicyKind:  s.spec.Kind,
		CameraNames: append([]string(nil), s.spec.Cameras...),
		Rooms:       s.spec.Rooms.Clone(),
		Stats: model.Stats{
			InferenceCount: s.inferenceCount,
			ImagesReceived: counters.ImagesReceived,
			JointsReceived: counters.JointsReceived,
			CommandsSent:   s.commandsSent,
			Errors:         counters.Errors + s.errCount,
			ActionsInQueue: s.queue.Len(),
		},
		JointState:   model.JointState{Current: joints, HasJoints: hasJoints},
		ErrorMessage: s.errMsg,
		CreatedAt:    s.createdAt,
		LastActivity: s.ingest.LastActivity(),
	}
	if s.lastCommand != nil {
		v := *s.lastCommand
		st.JointState.LastCommand = &v
	}
	s.mu.Unlock()

	st.InferenceStats = s.capability.Info()
	return st
}

// QueueInfo returns the debug view of the action queue and input readiness.
func (s *Session) QueueInfo() model.QueueInfo {
	r := s.ingest.Readiness()
	return model.QueueInfo{
		SessionID:      s.spec.ID,
		QueueLength:    s.queue.Len(),
		QueueCapacity:  s.queue.Cap(),
		HighWater:      s.queue.HighWater(),
		NActionSteps:   s.cfg.NActionSteps,
		ControlHz:      s.cfg.ControlHz,
		InferenceHz:    s.cfg.InferenceHz,
		LastFlushCheck: s.queue.LastCheck(),
		CamerasReady:   r.CamerasReady,
		JointsReady:    r.JointsReady,
		FreshImages:    r.FreshImages,
		FreshJoints:    r.FreshJoints,
		ReadyToInfer:   r.Ready(),
	}
}
