package preprocess

import (
	"fmt"
	"image"

	"MLvsTheWorld/codec"
	iface "MLvsTheWorld/interface"
	"MLvsTheWorld/tensor"

	"github.com/disintegration/imaging"
)

const (
	DefaultWidth  = 128
	DefaultHeight = 176
	// DefaultRotateQuarterTurns was tuned on the reference device and camera
	// and is only meaningful modulo 4. Recalibrate per camera/model pairing.
	DefaultRotateQuarterTurns = 135
	Channels                  = 3
)

type Config struct {
	Width              int `yaml:"inputWidth"`
	Height             int `yaml:"inputHeight"`
	RotateQuarterTurns int `yaml:"rotateQuarterTurns"`
}

func DefaultConfig() Config {
	return Config{
		Width:              DefaultWidth,
		Height:             DefaultHeight,
		RotateQuarterTurns: DefaultRotateQuarterTurns,
	}
}

// Preprocessor turns camera frames into model input tensors of shape
// (1, Height, Width, 3).
type Preprocessor struct {
	cfg   Config
	turns int
}

func New(cfg Config) (*Preprocessor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid model input size %dx%d", cfg.Width, cfg.Height)
	}
	turns := cfg.RotateQuarterTurns % 4
	if turns < 0 {
		turns += 4
	}
	return &Preprocessor{cfg: cfg, turns: turns}, nil
}

func (p *Preprocessor) Config() Config { return p.cfg }

// InputShape is the shape of every tensor Process returns.
func (p *Preprocessor) InputShape() []int {
	return []int{1, p.cfg.Height, p.cfg.Width, Channels}
}

// Process runs padding removal, the fixed rotation, a nearest-neighbor resize
// and channel packing. A frame that cannot be decoded yields
// codec.ErrMalformedFrame and no tensor.
func (p *Preprocessor) Process(f *iface.Frame) (*tensor.Tensor, error) {
	src, err := codec.Image(f)
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(p.rotate(src), p.cfg.Width, p.cfg.Height, imaging.NearestNeighbor)
	return p.pack(resized)
}

// rotate turns the image counter-clockwise by the configured quarter turns.
func (p *Preprocessor) rotate(img image.Image) image.Image {
	switch p.turns {
	case 1:
		return imaging.Rotate90(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

func (p *Preprocessor) pack(img *image.NRGBA) (*tensor.Tensor, error) {
	w, h := p.cfg.Width, p.cfg.Height
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		return nil, fmt.Errorf("resize produced %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
	}
	out, err := tensor.New(p.InputShape()...)
	if err != nil {
		return nil, err
	}
	data := out.Data()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := data[y*w*Channels : (y+1)*w*Channels]
		for x := 0; x < w; x++ {
			dst[x*3] = float32(row[x*4])
			dst[x*3+1] = float32(row[x*4+1])
			dst[x*3+2] = float32(row[x*4+2])
		}
	}
	return out, nil
}
