package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

func setupClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	f := NewFactory()
	t.Cleanup(func() { _ = f.Close() })

	tc, err := f.Client("redis://" + mr.Addr())
	require.NoError(t, err)
	again, err := f.Client("redis://" + mr.Addr())
	require.NoError(t, err)
	assert.Same(t, tc, again, "clients are cached per endpoint")
	return mr, tc.(*Client)
}

func TestFactory_RejectsBadEndpoint(t *testing.T) {
	_, err := NewFactory().Client("http://nope")
	assert.Error(t, err)
}

func TestCreateRoom(t *testing.T) {
	mr, c := setupClient(t)
	ctx := context.Background()

	ws, room, err := c.CreateRoom(ctx, "", "s1-front")
	require.NoError(t, err)
	assert.NotEmpty(t, ws)
	assert.Equal(t, "s1-front", room)
	assert.Equal(t, ws, mr.HGet(roomKey(ws, room), "workspace"))
	created := mr.HGet(roomKey(ws, room), "created_at_ms")
	require.NotEmpty(t, created)

	gotWS, _, err := c.CreateRoom(ctx, ws, "s1-front")
	require.NoError(t, err)
	assert.Equal(t, ws, gotWS)
	assert.Equal(t, created, mr.HGet(roomKey(ws, room), "created_at_ms"), "existing room is untouched")

	_, _, err = c.CreateRoom(ctx, ws, "")
	assert.Error(t, err)
}

func TestConnect_RefusesUnknownRoom(t *testing.T) {
	_, c := setupClient(t)
	ok, err := c.NewJointProducer().Connect(context.Background(), "ws", "missing", "me")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVideoConsumer_ReceivesFrames(t *testing.T) {
	_, c := setupClient(t)
	ctx := context.Background()
	ws, room, err := c.CreateRoom(ctx, "", "s1-front")
	require.NoError(t, err)

	vc := c.NewVideoConsumer()
	frames := make(chan model.Frame, 1)
	errs := make(chan error, 1)
	vc.OnFrame(func(f model.Frame) { frames <- f })
	vc.OnError(func(err error) { errs <- err })

	assert.ErrorIs(t, vc.StartReceiving(ctx), errNotConnected)
	ok, err := vc.Connect(ctx, ws, room, "s1-front-consumer")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, vc.StartReceiving(ctx))

	members, err := c.Participants(ctx, ws, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1-front-consumer"}, members)

	n, err := c.PublishFrame(ctx, ws, room, model.Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, Format: model.FormatRGB24})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case f := <-frames:
		assert.Equal(t, []byte{1, 2, 3}, f.Data)
		assert.Equal(t, 1, f.Width)
		assert.Equal(t, model.FormatRGB24, f.Format)
		assert.False(t, f.ReceivedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}

	_, err = c.rdb.Publish(ctx, videoChannel(ws, room), "{not json").Result()
	require.NoError(t, err)
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "decode frame")
	case <-time.After(2 * time.Second):
		t.Fatal("decode error not reported")
	}

	require.NoError(t, vc.StopReceiving(ctx))
	require.NoError(t, vc.Disconnect(ctx))
	members, err = c.Participants(ctx, ws, room)
	require.NoError(t, err)
	assert.Empty(t, members)

	n, err = c.PublishFrame(ctx, ws, room, model.Frame{})
	require.NoError(t, err)
	assert.Zero(t, n, "no subscribers after stop")
}

func TestJointConsumer_ReceivesOnConnect(t *testing.T) {
	_, c := setupClient(t)
	ctx := context.Background()
	ws, room, err := c.CreateRoom(ctx, "", "s1-joint-input")
	require.NoError(t, err)

	jc := c.NewJointConsumer()
	got := make(chan map[string]float64, 1)
	errs := make(chan error, 1)
	jc.OnJoints(func(v map[string]float64) { got <- v })
	jc.OnError(func(err error) { errs <- err })
	ok, err := jc.Connect(ctx, ws, room, "s1-joint-input-consumer")
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = jc.Disconnect(context.Background()) })

	_, err = c.PublishJoints(ctx, ws, room, map[string]float64{"Rotation": 12.5})
	require.NoError(t, err)
	select {
	case v := <-got:
		assert.Equal(t, map[string]float64{"Rotation": 12.5}, v)
	case <-time.After(2 * time.Second):
		t.Fatal("joints not delivered")
	}

	_, err = c.rdb.Publish(ctx, jointsChannel(ws, room), `{"timestamp_ms":1}`).Result()
	require.NoError(t, err)
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "missing joints")
	case <-time.After(2 * time.Second):
		t.Fatal("decode error not reported")
	}
}

func TestJointProducer_Send(t *testing.T) {
	_, c := setupClient(t)
	ctx := context.Background()
	ws, room, err := c.CreateRoom(ctx, "", "s1-joint-output")
	require.NoError(t, err)

	p := c.NewJointProducer()
	assert.ErrorIs(t, p.Send(ctx, nil), errNotConnected)
	ok, err := p.Connect(ctx, ws, room, "s1-joint-output-producer")
	require.NoError(t, err)
	require.True(t, ok)

	sub := c.rdb.Subscribe(ctx, jointsChannel(ws, room))
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	cmds := model.JointVector{10, 20, 30, 40, 50, 60}.Commands()
	require.NoError(t, p.Send(ctx, cmds))

	var msg *goredis.Message
	select {
	case msg = <-sub.Channel():
	case <-time.After(2 * time.Second):
		t.Fatal("command not published")
	}
	var decoded JointsMessage
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, cmds, decoded.Commands)
	assert.InDelta(t, 10.0, decoded.Joints["Rotation"], 1e-9)
	assert.InDelta(t, 60.0, decoded.Joints["Jaw"], 1e-9)

	require.NoError(t, p.Disconnect(ctx))
	assert.ErrorIs(t, p.Send(ctx, cmds), errNotConnected)
}
