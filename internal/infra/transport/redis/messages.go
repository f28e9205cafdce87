package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// FrameMessage is the payload on a video channel. Data is base64 in JSON.
type FrameMessage struct {
	Camera      string `json:"camera,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	Data        []byte `json:"data"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// JointsMessage is the payload on a joints channel. Commands is only set on
// messages produced by the scheduler.
type JointsMessage struct {
	Joints      map[string]float64  `json:"joints"`
	Commands    model.JointCommands `json:"commands,omitempty"`
	TimestampMS int64               `json:"timestamp_ms"`
}

func encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func decodeFrame(payload string) (model.Frame, error) {
	var m FrameMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return model.Frame{}, fmt.Errorf("decode frame message: %w", err)
	}
	return model.Frame{
		Camera:     m.Camera,
		Data:       m.Data,
		Width:      m.Width,
		Height:     m.Height,
		Format:     m.Format,
		ReceivedAt: time.Now(),
	}, nil
}

func decodeJoints(payload string) (JointsMessage, error) {
	var m JointsMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return JointsMessage{}, fmt.Errorf("decode joints message: %w", err)
	}
	if m.Joints == nil {
		return JointsMessage{}, fmt.Errorf("decode joints message: missing joints")
	}
	return m, nil
}

// PublishFrame publishes a camera frame into a room, as a robot would.
// It returns the number of subscribers that received it.
func (c *Client) PublishFrame(ctx context.Context, ws, roomID string, f model.Frame) (int64, error) {
	return c.publish(ctx, videoChannel(ws, roomID), FrameMessage{
		Camera:      f.Camera,
		Width:       f.Width,
		Height:      f.Height,
		Format:      f.Format,
		Data:        f.Data,
		TimestampMS: time.Now().UnixMilli(),
	})
}

// PublishJoints publishes a joint state update into a room.
func (c *Client) PublishJoints(ctx context.Context, ws, roomID string, values map[string]float64) (int64, error) {
	return c.publish(ctx, jointsChannel(ws, roomID), JointsMessage{
		Joints:      values,
		TimestampMS: time.Now().UnixMilli(),
	})
}
