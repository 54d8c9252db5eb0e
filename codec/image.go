package codec

import (
	"fmt"
	"image"

	iface "MLvsTheWorld/interface"

	"gocv.io/x/gocv"
)

// Image returns the frame as an RGBA image. RGBA frames are wrapped in place
// using their row stride, so row padding never reaches the pixel grid. YUV
// frames are converted through NV21.
func Image(f *iface.Frame) (*image.NRGBA, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	switch f.Format {
	case iface.FormatRGBA8888:
		return rgbaView(f)
	case iface.FormatYUV420:
		return ToRGBA(f)
	default:
		return nil, fmt.Errorf("%w: unsupported format %d", ErrMalformedFrame, f.Format)
	}
}

func rgbaView(f *iface.Frame) (*image.NRGBA, error) {
	if f.Width <= 0 || f.Height <= 0 || len(f.Planes) != 1 {
		return nil, fmt.Errorf("%w: %dx%d with %d planes", ErrMalformedFrame, f.Width, f.Height, len(f.Planes))
	}
	p := f.Planes[0]
	if p.PixelStride != 4 {
		return nil, fmt.Errorf("%w: RGBA pixel stride %d", ErrMalformedFrame, p.PixelStride)
	}
	rowBytes := f.Width * 4
	if p.RowStride < rowBytes {
		return nil, fmt.Errorf("%w: row stride %d shorter than %d", ErrMalformedFrame, p.RowStride, rowBytes)
	}
	if need := (f.Height-1)*p.RowStride + rowBytes; len(p.Data) < need {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrMalformedFrame, len(p.Data), need)
	}
	return &image.NRGBA{
		Pix:    p.Data,
		Stride: p.RowStride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

// ToRGBA converts a YUV420 frame with even dimensions to a tightly packed
// RGBA image.
func ToRGBA(f *iface.Frame) (*image.NRGBA, error) {
	nv21, err := NV21(f)
	if err != nil {
		return nil, err
	}
	if f.Width%2 != 0 || f.Height%2 != 0 {
		return nil, fmt.Errorf("%w: odd size %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	src, err := gocv.NewMatFromBytes(f.Height*3/2, f.Width, gocv.MatTypeCV8UC1, nv21)
	if err != nil {
		return nil, fmt.Errorf("wrap nv21: %w", err)
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.CvtColor(src, &dst, gocv.ColorYUVToRGBANV21)
	if dst.Empty() {
		return nil, fmt.Errorf("%w: nv21 conversion produced no pixels", ErrMalformedFrame)
	}
	pix := dst.ToBytes()
	if len(pix) != f.Width*f.Height*4 {
		return nil, fmt.Errorf("%w: converted %d bytes for %dx%d", ErrMalformedFrame, len(pix), f.Width, f.Height)
	}
	return &image.NRGBA{
		Pix:    pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}, nil
}
