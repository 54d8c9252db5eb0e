package capture

import (
	"context"
	"fmt"
	"time"

	iface "MLvsTheWorld/interface"
	"MLvsTheWorld/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DeviceSource reads a local camera through OpenCV and emits RGBA frames.
// The requested resolution is a hint; each frame reports what the device
// actually delivered.
type DeviceSource struct {
	Device int
	Width  int
	Height int
}

func (d *DeviceSource) Run(ctx context.Context, emit func(*iface.Frame)) error {
	log := logger.Named("capture")
	cam, err := gocv.VideoCaptureDevice(d.Device)
	if err != nil {
		return fmt.Errorf("%w: device %d: %w", ErrSource, d.Device, err)
	}
	defer cam.Close()
	if d.Width > 0 && d.Height > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(d.Width))
		cam.Set(gocv.VideoCaptureFrameHeight, float64(d.Height))
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	var seq uint64
	misses := 0
	for ctx.Err() == nil {
		if ok := cam.Read(&bgr); !ok || bgr.Empty() {
			misses++
			if misses == 30 {
				log.Warn("camera delivers no frames", zap.Int("device", d.Device))
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0
		f, err := d.toFrame(&bgr)
		if err != nil {
			log.Warn("frame conversion failed", zap.Error(err))
			continue
		}
		seq++
		f.Seq = seq
		emit(f)
	}
	return nil
}

func (d *DeviceSource) toFrame(bgr *gocv.Mat) (*iface.Frame, error) {
	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(*bgr, &rgba, gocv.ColorBGRToRGBA)
	if rgba.Empty() {
		return nil, fmt.Errorf("convert %dx%d frame to RGBA", bgr.Cols(), bgr.Rows())
	}
	return &iface.Frame{
		Width:     rgba.Cols(),
		Height:    rgba.Rows(),
		Format:    iface.FormatRGBA8888,
		Planes:    []iface.Plane{{Data: rgba.ToBytes(), RowStride: rgba.Step(), PixelStride: 4}},
		Timestamp: time.Now(),
	}, nil
}
