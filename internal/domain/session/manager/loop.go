// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/log"
	"github.com/ManuGH/robohub-inference/internal/metrics"
	"github.com/ManuGH/robohub-inference/internal/telemetry"
)

// refillBelow is the queue length under which a scheduled tick re-infers.
const refillBelow = 3

// shouldInfer decides whether the current tick calls the capability.
// An empty queue always infers; otherwise only every interval ticks
// while the queue is nearly drained.
func shouldInfer(queueLen int, tick, interval uint64) bool {
	if queueLen == 0 {
		return true
	}
	return tick%interval == 0 && queueLen < refillBelow
}

// run is the control loop. Ticks are never skipped; an overrun tick is
// followed immediately by the next one.
func (s *Session) run(ctx context.Context) {
	period := s.cfg.TickPeriod()
	interval := uint64(s.cfg.InferenceInterval())

	s.logger.Info().
		Dur("period", period).
		Uint64("inference_interval", interval).
		Msg("control loop started")
	defer func() { s.logger.Info().Msg("control loop stopped") }()

	var tick uint64
	for ctx.Err() == nil {
		start := s.clock.Now()

		s.step(ctx, tick)

		if s.queue.MaybeFlush(s.clock.Now(), s.cfg.CleanupInterval) {
			metrics.QueueFlushTotal.Inc()
			s.logger.Info().Int("high_water", s.queue.HighWater()).Msg("action queue flushed")
		}
		tick++

		remaining := period - s.clock.Now().Sub(start)
		if remaining < -s.cfg.SlowTickThreshold {
			metrics.SlowTicksTotal.Inc()
			s.slowLog.Do(func() {
				s.logger.Warn().Dur("overrun", -remaining).Dur("period", period).Msg("control loop running slow")
			})
		}
		if err := s.pacer.Wait(ctx, remaining); err != nil {
			return
		}
	}
}

// step executes one control tick: infer when due, then dispatch one step.
func (s *Session) step(ctx context.Context, tick uint64) {
	if !s.ingest.Ready() {
		return
	}
	interval := uint64(s.cfg.InferenceInterval())
	if shouldInfer(s.queue.Len(), tick, interval) {
		s.infer(ctx)
	}
	s.dispatch(ctx)
}

func (s *Session) infer(ctx context.Context) {
	images, joints := s.ingest.Snapshot()
	obs := model.Observation{Images: images, Joints: joints}
	if s.spec.Kind.SupportsLanguage() {
		obs.Task = s.spec.Instruction
	}

	ctx, span := s.tracer.Start(ctx, "session.predict", trace.WithAttributes(
		telemetry.SessionAttributes(s.spec.ID, string(s.spec.Kind), s.queue.Len())...,
	))
	defer span.End()

	start := time.Now()
	chunk, err := s.capability.Predict(ctx, obs)
	if err == nil && len(chunk) == 0 {
		err = ports.ErrEmptyChunk
	}
	if err != nil && ctx.Err() != nil {
		// Cancelled by Stop; not a prediction failure.
		return
	}
	metrics.RecordInference(string(s.spec.Kind), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(metrics.TickErrorPredict)...)
		span.SetStatus(codes.Error, err.Error())
		s.recordTickError(metrics.TickErrorPredict, err)
		return
	}

	if n := s.cfg.NActionSteps; len(chunk) > n {
		chunk = chunk[:n]
	}
	steps := make([]model.JointCommands, len(chunk))
	for i, v := range chunk {
		steps[i] = v.Commands()
	}
	enqueued := s.queue.PushChunk(steps, s.cfg.NActionSteps)
	s.ingest.MarkConsumed()

	s.mu.Lock()
	s.inferenceCount++
	s.mu.Unlock()

	queueLen := s.queue.Len()
	metrics.QueueDepth.Observe(float64(queueLen))
	span.SetAttributes(attribute.Int(telemetry.ActionsEnqueuedKey, enqueued))
	s.logger.Debug().Int("enqueued", enqueued).Int(log.FieldQueueLen, queueLen).Msg("actions enqueued")
}

func (s *Session) dispatch(ctx context.Context) {
	cmds, ok := s.queue.PopOne()
	if !ok {
		return
	}
	if err := s.jointOut.Send(ctx, cmds); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.recordTickError(metrics.TickErrorSend, err)
		return
	}
	values := cmds.Values()

	s.mu.Lock()
	s.commandsSent++
	s.lastCommand = &values
	s.mu.Unlock()
	metrics.CommandsSentTotal.Inc()
}

func (s *Session) recordTickError(kind string, err error) {
	s.mu.Lock()
	s.errCount++
	s.mu.Unlock()
	metrics.RecordTickError(kind)
	s.errLog.Do(func() {
		s.logger.Error().Err(err).Str("kind", kind).Msg("control tick failed")
	})
}
