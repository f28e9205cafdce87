package ports

import (
	"context"

	"github.com/ManuGH/robohub-inference/internal/domain/session/model"
)

// Handlers are invoked on transport goroutines and must not block.
type (
	FrameHandler func(frame model.Frame)
	JointHandler func(values map[string]float64)
	ErrorHandler func(err error)
)

// Connector joins a room under an identity. A false result with a nil error
// means the transport refused the join.
type Connector interface {
	Connect(ctx context.Context, workspaceID, roomID, identity string) (bool, error)
	Disconnect(ctx context.Context) error
}

// VideoConsumer receives frames from one camera room.
type VideoConsumer interface {
	Connector
	OnFrame(h FrameHandler)
	OnError(h ErrorHandler)
	StartReceiving(ctx context.Context) error
	StopReceiving(ctx context.Context) error
}

// JointConsumer receives joint telemetry from the robot.
type JointConsumer interface {
	Connector
	OnJoints(h JointHandler)
	OnError(h ErrorHandler)
}

// JointProducer dispatches joint commands to the robot.
type JointProducer interface {
	Connector
	Send(ctx context.Context, cmds model.JointCommands) error
}

// TransportClient allocates rooms and hands out consumers and producers.
type TransportClient interface {
	// CreateRoom creates roomID inside workspaceID, allocating a new
	// workspace when workspaceID is empty.
	CreateRoom(ctx context.Context, workspaceID, roomID string) (ws, room string, err error)
	NewVideoConsumer() VideoConsumer
	NewJointConsumer() JointConsumer
	NewJointProducer() JointProducer
}

// TransportFactory resolves a transport endpoint to a client.
type TransportFactory interface {
	Client(endpoint string) (TransportClient, error)
}
