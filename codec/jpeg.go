package codec

import (
	"fmt"

	iface "MLvsTheWorld/interface"

	"gocv.io/x/gocv"
)

const DefaultJPEGQuality = 100

// EncodeJPEG encodes a frame as JPEG. YUV frames go through NV21 exactly as a
// camera snapshot would, RGBA frames are repacked without row padding.
func EncodeJPEG(f *iface.Frame, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	bgr, err := toBGR(f)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func toBGR(f *iface.Frame) (gocv.Mat, error) {
	if f == nil {
		return gocv.NewMat(), fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	var (
		src  gocv.Mat
		code gocv.ColorConversionCode
		err  error
	)
	switch f.Format {
	case iface.FormatYUV420:
		if f.Width%2 != 0 || f.Height%2 != 0 {
			return gocv.NewMat(), fmt.Errorf("%w: odd size %dx%d", ErrMalformedFrame, f.Width, f.Height)
		}
		nv21, nerr := NV21(f)
		if nerr != nil {
			return gocv.NewMat(), nerr
		}
		src, err = gocv.NewMatFromBytes(f.Height*3/2, f.Width, gocv.MatTypeCV8UC1, nv21)
		code = gocv.ColorYUVToBGRNV21
	case iface.FormatRGBA8888:
		img, verr := rgbaView(f)
		if verr != nil {
			return gocv.NewMat(), verr
		}
		rowBytes := f.Width * 4
		tight := make([]byte, rowBytes*f.Height)
		for r := 0; r < f.Height; r++ {
			copy(tight[r*rowBytes:(r+1)*rowBytes], img.Pix[r*img.Stride:r*img.Stride+rowBytes])
		}
		src, err = gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC4, tight)
		code = gocv.ColorRGBAToBGR
	default:
		return gocv.NewMat(), fmt.Errorf("%w: unsupported format %d", ErrMalformedFrame, f.Format)
	}
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("wrap frame: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, code)
	if dst.Empty() {
		_ = dst.Close()
		return gocv.NewMat(), fmt.Errorf("%w: colour conversion produced no pixels", ErrMalformedFrame)
	}
	return dst, nil
}
