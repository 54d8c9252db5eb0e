package model

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"MLvsTheWorld/tensor"

	"gonum.org/v1/gonum/floats"
)

// Identity selects both the model artifact and the decoding strategy.
type Identity int32

const (
	BackgroundRemover Identity = iota
	FreshnessClassifier
)

type Kind int

const (
	KindMask Kind = iota + 1
	KindLabel
)

const (
	// MaxOverlayAlpha keeps the camera preview visible under the mask.
	MaxOverlayAlpha float32 = 0.6
	NumClasses              = 12
)

var ErrUnknownModel = errors.New("unknown model")

// OverlayColor is painted over the background, its alpha follows the mask.
var OverlayColor = color.NRGBA{R: 3, G: 218, B: 197}

// Labels is indexed by the classifier's output channel.
var Labels = [NumClasses]string{
	"Fresh apple",
	"Fresh banana",
	"Fresh bitter gourd",
	"Fresh capsicum",
	"Fresh orange",
	"Fresh tomato",
	"Stale apple",
	"Stale banana",
	"Stale bitter gourd",
	"Stale capsicum",
	"Stale orange",
	"Stale tomato",
}

func All() []Identity {
	return []Identity{BackgroundRemover, FreshnessClassifier}
}

func (id Identity) Valid() bool {
	return id == BackgroundRemover || id == FreshnessClassifier
}

func (id Identity) String() string {
	switch id {
	case BackgroundRemover:
		return "background_remover"
	case FreshnessClassifier:
		return "freshness_classifier"
	default:
		return fmt.Sprintf("model(%d)", int32(id))
	}
}

// FileName is the artifact base name; the backend appends its own suffix.
func (id Identity) FileName() string {
	switch id {
	case BackgroundRemover:
		return "BackgroundRemoverStatic2WxH_128x176"
	case FreshnessClassifier:
		return "FreshnessFGclassifier2WxH_128x176"
	default:
		return ""
	}
}

func (id Identity) Kind() Kind {
	switch id {
	case BackgroundRemover:
		return KindMask
	case FreshnessClassifier:
		return KindLabel
	default:
		return 0
	}
}

// OutputShape is the tensor shape the model produces for a w x h input.
func (id Identity) OutputShape(w, h int) []int {
	switch id {
	case BackgroundRemover:
		return []int{1, h, w, 1}
	case FreshnessClassifier:
		return []int{1, 1, 1, NumClasses}
	default:
		return nil
	}
}

// Accepts reports whether out can be decoded by this model's strategy.
func (id Identity) Accepts(out *tensor.Tensor, w, h int) bool {
	shape := id.OutputShape(w, h)
	return out != nil && shape != nil && out.Matches(shape)
}

// Parse accepts the identity name or the artifact name, case-insensitively.
func Parse(name string) (Identity, error) {
	n := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".tflite")
	for _, id := range All() {
		if n == id.String() || n == strings.ToLower(id.FileName()) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Artifact is the displayable result of one frame.
type Artifact struct {
	Kind    Kind
	Overlay *image.NRGBA
	Label   string
}

// Decode interprets out with the strategy of id. Callers validate the shape
// with Accepts first.
func Decode(id Identity, out *tensor.Tensor) (Artifact, error) {
	if out == nil {
		return Artifact{}, errors.New("nil output tensor")
	}
	switch id.Kind() {
	case KindMask:
		img, err := decodeMask(out)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Kind: KindMask, Overlay: img}, nil
	case KindLabel:
		label, err := decodeLabel(out)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{Kind: KindLabel, Label: label}, nil
	default:
		return Artifact{}, fmt.Errorf("%w: %d", ErrUnknownModel, int32(id))
	}
}

// Clear returns the artifact that wipes id's output when it stops being the
// active model. Models without a visual overlay have nothing to clear.
func Clear(id Identity, w, h int) (Artifact, bool) {
	if id.Kind() != KindMask || w <= 0 || h <= 0 {
		return Artifact{}, false
	}
	return Artifact{Kind: KindMask, Overlay: image.NewNRGBA(image.Rect(0, 0, w, h))}, true
}

// MaskAlpha maps a background score to overlay opacity: the model darkens
// the background, the overlay highlights it, so the score is inverted.
func MaskAlpha(score float32) float32 {
	a := 1 - score
	if a != a {
		return 0
	}
	if a > MaxOverlayAlpha {
		a = MaxOverlayAlpha
	}
	if a < 0 {
		a = 0
	}
	return a
}

func decodeMask(out *tensor.Tensor) (*image.NRGBA, error) {
	h, w, err := maskDims(out)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	scores := out.Data()
	for i, s := range scores {
		o := i * 4
		img.Pix[o] = OverlayColor.R
		img.Pix[o+1] = OverlayColor.G
		img.Pix[o+2] = OverlayColor.B
		img.Pix[o+3] = uint8(MaskAlpha(s) * 255)
	}
	return img, nil
}

// maskDims reads H and W from an (N=1, H, W, 1), (H, W, 1) or (H, W) tensor.
func maskDims(out *tensor.Tensor) (int, int, error) {
	switch {
	case out.Rank() == 4 && out.Dim(0) == 1 && out.Dim(3) == 1:
		return out.Dim(1), out.Dim(2), nil
	case out.Rank() == 3 && out.Dim(2) == 1:
		return out.Dim(0), out.Dim(1), nil
	case out.Rank() == 2:
		return out.Dim(0), out.Dim(1), nil
	}
	return 0, 0, fmt.Errorf("%w: mask output %v", tensor.ErrShape, out.Shape())
}

func decodeLabel(out *tensor.Tensor) (string, error) {
	if out.Len() != NumClasses {
		return "", fmt.Errorf("%w: %d class scores", tensor.ErrShape, out.Len())
	}
	scores := make([]float64, NumClasses)
	for i, v := range out.Data() {
		scores[i] = float64(v)
	}
	return Labels[floats.MaxIdx(scores)], nil
}
