package iface

import (
	"context"
	"sync"
	"time"

	"MLvsTheWorld/tensor"
)

type PixelFormat int

const (
	FormatRGBA8888 PixelFormat = 0x3001
	FormatYUV420   PixelFormat = 0x3002
)

func (p PixelFormat) String() string {
	switch p {
	case FormatRGBA8888:
		return "RGBA_8888"
	case FormatYUV420:
		return "YUV_420_888"
	default:
		return "unknown"
	}
}

// Plane is one colour plane of a frame. RowStride is the distance in bytes
// between the starts of two rows, PixelStride between two samples of a row.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Frame is a single capture tick. It is consumed synchronously and must not
// be retained once Done has been called.
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Format    PixelFormat
	Planes    []Plane
	Timestamp time.Time
	Release   func()

	releaseOnce sync.Once
}

// Done runs the release callback once.
func (f *Frame) Done() {
	if f == nil {
		return
	}
	f.releaseOnce.Do(func() {
		if f.Release != nil {
			f.Release()
		}
	})
}

// Backend is the inference boundary: a named model takes a fixed-shape input
// tensor and returns the output tensor of that model.
type Backend interface {
	Name() string
	Infer(ctx context.Context, modelName string, input *tensor.Tensor) (*tensor.Tensor, error)
	Close() error
}
