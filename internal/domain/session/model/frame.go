package model

import "time"

// FormatRGB24 is the only pixel format accepted from camera feeds.
const FormatRGB24 = "rgb24"

// Frame is one raw camera image as delivered by the transport.
type Frame struct {
	Camera     string
	Data       []byte
	Width      int
	Height     int
	Format     string
	ReceivedAt time.Time
}

// ExpectedSize is the byte length of an RGB24 frame with these dimensions.
func (f Frame) ExpectedSize() int {
	return f.Width * f.Height * 3
}

// Observation is the input handed to a single prediction call.
type Observation struct {
	Images map[string]Frame
	Joints JointVector
	Task   string
}
