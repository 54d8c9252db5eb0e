package codec

import (
	"bytes"
	"image"
	"testing"

	iface "MLvsTheWorld/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func paddedRGBA(w, h, pad int) *iface.Frame {
	stride := w*4 + pad
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := y*stride + x*4
			data[o], data[o+1], data[o+2], data[o+3] = byte(x), byte(y), 7, 255
		}
		for p := 0; p < pad; p++ {
			data[y*stride+w*4+p] = 0xEE
		}
	}
	return &iface.Frame{
		Width:  w,
		Height: h,
		Format: iface.FormatRGBA8888,
		Planes: []iface.Plane{{Data: data, RowStride: stride, PixelStride: 4}},
	}
}

func TestImage_RGBAStripsPadding(t *testing.T) {
	img, err := Image(paddedRGBA(3, 2, 8))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	c := img.NRGBAAt(2, 1)
	assert.Equal(t, uint8(2), c.R)
	assert.Equal(t, uint8(1), c.G)
	assert.Equal(t, uint8(7), c.B)
}

func TestImage_RGBAMalformed(t *testing.T) {
	f := paddedRGBA(3, 2, 0)
	f.Planes[0].Data = f.Planes[0].Data[:20]
	_, err := Image(f)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	f = paddedRGBA(3, 2, 0)
	f.Planes[0].RowStride = 8
	_, err = Image(f)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestToRGBA_Gray(t *testing.T) {
	// Neutral chroma yields a gray image whatever the layout.
	y := bytes.Repeat([]byte{128}, 16)
	f := planar(4, 4, y, bytes.Repeat([]byte{128}, 4), bytes.Repeat([]byte{128}, 4))
	img, err := ToRGBA(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
	c := img.NRGBAAt(1, 1)
	assert.InDelta(t, 128, int(c.R), 2)
	assert.InDelta(t, 128, int(c.G), 2)
	assert.InDelta(t, 128, int(c.B), 2)
	assert.Equal(t, uint8(255), c.A)
}

func TestToRGBA_OddSize(t *testing.T) {
	f := planar(3, 3, make([]byte, 9), make([]byte, 4), make([]byte, 4))
	_, err := ToRGBA(f)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeJPEG(t *testing.T) {
	for name, f := range map[string]*iface.Frame{
		"yuv":  semiPlanar(4, 4, bytes.Repeat([]byte{90}, 16), bytes.Repeat([]byte{128}, 8)),
		"rgba": paddedRGBA(4, 4, 4),
	} {
		t.Run(name, func(t *testing.T) {
			data, err := EncodeJPEG(f, 0)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			mat, err := gocv.IMDecode(data, gocv.IMReadColor)
			require.NoError(t, err)
			defer mat.Close()
			assert.Equal(t, 4, mat.Cols())
			assert.Equal(t, 4, mat.Rows())
		})
	}
}
