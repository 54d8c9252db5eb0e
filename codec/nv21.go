package codec

import (
	"errors"
	"fmt"

	iface "MLvsTheWorld/interface"
)

var ErrMalformedFrame = errors.New("malformed frame")

// NV21 packs a YUV420 frame into the NV21 layout: the full luma plane
// followed by interleaved V/U pairs, one pair per 2x2 block.
//
// Two chroma layouts are accepted. With a pixel stride of 2 the V plane is a
// view into an already interleaved VUVU... buffer that stops one byte short
// of the last U, which is then taken from the U plane. With a pixel stride of
// 1 the planes are separate and get interleaved sample by sample.
func NV21(f *iface.Frame) ([]byte, error) {
	if err := checkYUV(f); err != nil {
		return nil, err
	}
	w, h := f.Width, f.Height
	cw, ch := (w+1)/2, (h+1)/2
	out := make([]byte, w*h+2*cw*ch)

	y, u, v := f.Planes[0], f.Planes[1], f.Planes[2]
	for r := 0; r < h; r++ {
		if err := gatherRow(out[r*w:(r+1)*w], y, r); err != nil {
			return nil, fmt.Errorf("luma: %w", err)
		}
	}

	vu := out[w*h:]
	switch {
	case u.PixelStride == 2 && v.PixelStride == 2:
		n := 2*cw - 1
		for r := 0; r < ch; r++ {
			base := r * v.RowStride
			if base+n > len(v.Data) {
				return nil, fmt.Errorf("%w: V plane row %d out of bounds", ErrMalformedFrame, r)
			}
			dst := vu[r*2*cw : (r+1)*2*cw]
			copy(dst, v.Data[base:base+n])
			last := r*u.RowStride + 2*(cw-1)
			if last >= len(u.Data) {
				return nil, fmt.Errorf("%w: U plane row %d out of bounds", ErrMalformedFrame, r)
			}
			dst[n] = u.Data[last]
		}
	case u.PixelStride == 1 && v.PixelStride == 1:
		for r := 0; r < ch; r++ {
			vb, ub := r*v.RowStride, r*u.RowStride
			if vb+cw > len(v.Data) || ub+cw > len(u.Data) {
				return nil, fmt.Errorf("%w: chroma row %d out of bounds", ErrMalformedFrame, r)
			}
			dst := vu[r*2*cw : (r+1)*2*cw]
			for c := 0; c < cw; c++ {
				dst[2*c] = v.Data[vb+c]
				dst[2*c+1] = u.Data[ub+c]
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported chroma pixel strides U=%d V=%d", ErrMalformedFrame, u.PixelStride, v.PixelStride)
	}
	return out, nil
}

func checkYUV(f *iface.Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	if f.Format != iface.FormatYUV420 {
		return fmt.Errorf("%w: expected %s, got %s", ErrMalformedFrame, iface.FormatYUV420, f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if len(f.Planes) != 3 {
		return fmt.Errorf("%w: %d planes", ErrMalformedFrame, len(f.Planes))
	}
	return nil
}

func gatherRow(dst []byte, p iface.Plane, row int) error {
	base := row * p.RowStride
	if p.PixelStride == 1 {
		if base < 0 || base+len(dst) > len(p.Data) {
			return fmt.Errorf("%w: row %d out of bounds", ErrMalformedFrame, row)
		}
		copy(dst, p.Data[base:base+len(dst)])
		return nil
	}
	if p.PixelStride < 1 {
		return fmt.Errorf("%w: pixel stride %d", ErrMalformedFrame, p.PixelStride)
	}
	if base+(len(dst)-1)*p.PixelStride >= len(p.Data) {
		return fmt.Errorf("%w: row %d out of bounds", ErrMalformedFrame, row)
	}
	for i := range dst {
		dst[i] = p.Data[base+i*p.PixelStride]
	}
	return nil
}
