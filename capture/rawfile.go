package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	iface "MLvsTheWorld/interface"
	"MLvsTheWorld/logger"

	"go.uber.org/zap"
)

// RawFileSource replays a dump of back-to-back YUV 4:2:0 frames. nv21 dumps
// are exposed as semi-planar views (chroma pixel stride 2), i420 dumps as
// separate planes (pixel stride 1), the two layouts a camera HAL hands out.
// Playback loops at end of file.
type RawFileSource struct {
	Path   string
	Layout string
	Width  int
	Height int
	FPS    int

	pool sync.Pool
}

func NewRawFileSource(path, layout string, width, height, fps int) (*RawFileSource, error) {
	if layout != PixelNV21 && layout != PixelI420 {
		return nil, fmt.Errorf("%w: unknown raw layout %q", ErrSource, layout)
	}
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: raw frames need even dimensions, got %dx%d", ErrSource, width, height)
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	r := &RawFileSource{Path: path, Layout: layout, Width: width, Height: height, FPS: fps}
	size := r.FrameSize()
	r.pool.New = func() any { return make([]byte, size) }
	return r, nil
}

func (r *RawFileSource) FrameSize() int {
	return r.Width * r.Height * 3 / 2
}

func (r *RawFileSource) Run(ctx context.Context, emit func(*iface.Frame)) error {
	log := logger.Named("capture")
	file, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer file.Close()

	ticker := time.NewTicker(time.Second / time.Duration(r.FPS))
	defer ticker.Stop()
	var seq uint64
	for {
		buf := r.pool.Get().([]byte)
		_, err := io.ReadFull(file, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.pool.Put(buf)
			if seq == 0 {
				return fmt.Errorf("%w: %s holds less than one %dx%d frame", ErrSource, r.Path, r.Width, r.Height)
			}
			log.Debug("raw dump rewound", zap.String("file", r.Path), zap.Uint64("seq", seq))
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("%w: rewind: %w", ErrSource, err)
			}
			continue
		}
		if err != nil {
			r.pool.Put(buf)
			return fmt.Errorf("%w: %w", ErrSource, err)
		}

		seq++
		f := r.frame(buf)
		f.Seq = seq
		emit(f)
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *RawFileSource) frame(buf []byte) *iface.Frame {
	w, h := r.Width, r.Height
	luma := w * h
	f := &iface.Frame{
		Width:     w,
		Height:    h,
		Format:    iface.FormatYUV420,
		Timestamp: time.Now(),
		Release:   func() { r.pool.Put(buf) },
	}
	y := iface.Plane{Data: buf[:luma], RowStride: w, PixelStride: 1}
	switch r.Layout {
	case PixelNV21:
		vu := buf[luma:]
		f.Planes = []iface.Plane{
			y,
			{Data: vu[1:], RowStride: w, PixelStride: 2},
			{Data: vu[:len(vu)-1], RowStride: w, PixelStride: 2},
		}
	default:
		q := luma / 4
		f.Planes = []iface.Plane{
			y,
			{Data: buf[luma : luma+q], RowStride: w / 2, PixelStride: 1},
			{Data: buf[luma+q:], RowStride: w / 2, PixelStride: 1},
		}
	}
	return f
}
