package capture

import (
	"context"
	"errors"
	"fmt"

	iface "MLvsTheWorld/interface"
)

const (
	SourceDevice  = "device"
	SourceRawFile = "rawfile"

	PixelNV21 = "nv21"
	PixelI420 = "i420"

	DefaultWidth  = 1280
	DefaultHeight = 960
	DefaultFPS    = 15
)

var ErrSource = errors.New("capture source unavailable")

// Source produces frames until ctx is cancelled or the source fails. emit is
// called synchronously from the capture goroutine; the receiver owns the
// frame and must call Done on it.
type Source interface {
	Run(ctx context.Context, emit func(*iface.Frame)) error
}

type Config struct {
	Source      string `yaml:"source"`
	Device      int    `yaml:"device"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	File        string `yaml:"file"`
	PixelFormat string `yaml:"pixelFormat"`
	FPS         int    `yaml:"fps"`
}

func DefaultConfig() Config {
	return Config{
		Source:      SourceDevice,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		PixelFormat: PixelNV21,
		FPS:         DefaultFPS,
	}
}

func New(cfg Config) (Source, error) {
	switch cfg.Source {
	case SourceDevice:
		return &DeviceSource{Device: cfg.Device, Width: cfg.Width, Height: cfg.Height}, nil
	case SourceRawFile:
		return NewRawFileSource(cfg.File, cfg.PixelFormat, cfg.Width, cfg.Height, cfg.FPS)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrSource, cfg.Source)
	}
}
