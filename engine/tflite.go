//go:build !notflite

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"MLvsTheWorld/tensor"

	"github.com/mattn/go-tflite"
)

// TFLite runs models from ModelDir with the TensorFlow Lite C runtime. The
// artifact is loaded again for every call, nothing is cached between frames.
type TFLite struct {
	ModelDir   string
	NumThreads int
}

func NewTFLite(modelDir string, numThreads int) (*TFLite, error) {
	if numThreads <= 0 {
		numThreads = DefaultNumThreads
	}
	info, err := os.Stat(modelDir)
	if err != nil {
		return nil, fmt.Errorf("%w: model dir: %w", ErrModelLoad, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrModelLoad, modelDir)
	}
	return &TFLite{ModelDir: modelDir, NumThreads: numThreads}, nil
}

func (t *TFLite) Name() string { return BackendTFLite }

func (t *TFLite) Path(modelName string) string {
	return filepath.Join(t.ModelDir, modelName+ModelExt)
}

func (t *TFLite) Infer(ctx context.Context, modelName string, input *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := t.Path(modelName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, fmt.Errorf("%w: cannot read %s", ErrModelLoad, path)
	}
	defer model.Delete()

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	options.SetNumThread(t.NumThreads)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		return nil, fmt.Errorf("%w: cannot create interpreter for %s", ErrModelLoad, modelName)
	}
	defer interp.Delete()
	if status := interp.AllocateTensors(); status != tflite.OK {
		return nil, fmt.Errorf("%w: allocate tensors for %s", ErrModelLoad, modelName)
	}

	in := interp.GetInputTensor(0)
	if in == nil || in.Type() != tflite.Float32 {
		return nil, fmt.Errorf("%w: %s wants a float32 input", ErrInference, modelName)
	}
	buf := in.Float32s()
	if len(buf) != input.Len() {
		return nil, fmt.Errorf("%w: %s input holds %d values, got %d", ErrInference, modelName, len(buf), input.Len())
	}
	copy(buf, input.Data())

	if status := interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("%w: invoke %s", ErrInference, modelName)
	}

	out := interp.GetOutputTensor(0)
	if out == nil || out.Type() != tflite.Float32 {
		return nil, fmt.Errorf("%w: %s has no float32 output", ErrInference, modelName)
	}
	shape := make([]int, out.NumDims())
	for i := range shape {
		shape[i] = out.Dim(i)
	}
	data := append([]float32(nil), out.Float32s()...)
	return tensor.FromData(data, shape...)
}

func (t *TFLite) Close() error { return nil }
