package tensor

import (
	"errors"
	"fmt"
)

var (
	ErrShape = errors.New("invalid tensor shape")
	ErrIndex = errors.New("tensor index out of range")
)

// Tensor is a dense row-major float32 array with a fixed shape.
type Tensor struct {
	shape   []int
	strides []int
	data    []float32
}

func New(shape ...int) (*Tensor, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	return build(make([]float32, n), shape), nil
}

// FromData wraps data without copying. len(data) must equal the volume of shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
	}
	return build(data, shape), nil
}

func volume(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShape)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

func build(data []float32, shape []int) *Tensor {
	s := append([]int(nil), shape...)
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return &Tensor{shape: s, strides: strides, data: data}
}

func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i, or 0 when i is out of range.
func (t *Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.shape) {
		return 0
	}
	return t.shape[i]
}

func (t *Tensor) Len() int { return len(t.data) }

// Data exposes the backing buffer.
func (t *Tensor) Data() []float32 { return t.data }

func (t *Tensor) Offset(idx ...int) (int, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("%w: %d indices for rank %d", ErrIndex, len(idx), len(t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			return 0, fmt.Errorf("%w: %v in %v", ErrIndex, idx, t.shape)
		}
		off += v * t.strides[i]
	}
	return off, nil
}

func (t *Tensor) At(idx ...int) (float32, error) {
	off, err := t.Offset(idx...)
	if err != nil {
		return 0, err
	}
	return t.data[off], nil
}

func (t *Tensor) Set(v float32, idx ...int) error {
	off, err := t.Offset(idx...)
	if err != nil {
		return err
	}
	t.data[off] = v
	return nil
}

// Squeeze returns the shape with every unit dimension removed.
func (t *Tensor) Squeeze() []int {
	return squeeze(t.shape)
}

// Matches reports whether t and shape agree once unit dimensions are dropped
// from both, so (1,176,128,1) matches (176,128) but not (1,1,1,12).
func (t *Tensor) Matches(shape []int) bool {
	a, b := squeeze(t.shape), squeeze(shape)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func squeeze(shape []int) []int {
	out := make([]int, 0, len(shape))
	for _, d := range shape {
		if d != 1 {
			out = append(out, d)
		}
	}
	return out
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}
