//go:build notflite

package engine

import (
	"context"
	"fmt"

	"MLvsTheWorld/tensor"
)

// TFLite is unavailable in binaries built with the notflite tag.
type TFLite struct{}

func NewTFLite(string, int) (*TFLite, error) {
	return nil, fmt.Errorf("%w: built without tflite", ErrUnsupportedBackend)
}

func (t *TFLite) Name() string { return BackendTFLite }

func (t *TFLite) Infer(context.Context, string, *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, ErrUnsupportedBackend
}

func (t *TFLite) Close() error { return nil }
