package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"MLvsTheWorld/tensor"

	"github.com/go-resty/resty/v2"
)

type predictRequest struct {
	Instances []any `json:"instances"`
}

type predictResponse struct {
	Predictions json.RawMessage `json:"predictions"`
	Error       string          `json:"error"`
}

// Serving forwards inference to a TensorFlow Serving style REST endpoint.
// The leading batch dimension of the input becomes the instances list.
type Serving struct {
	baseURL string
	client  *resty.Client
}

func NewServing(baseURL string, timeout time.Duration) (*Serving, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid serving url %q", ErrUnsupportedBackend, baseURL)
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Serving{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (s *Serving) Name() string { return BackendServing }

func (s *Serving) Infer(ctx context.Context, modelName string, input *tensor.Tensor) (*tensor.Tensor, error) {
	instances, err := nest(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	var body predictResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Instances: instances}).
		SetResult(&body).
		SetError(&body).
		Post(fmt.Sprintf("%s/v1/models/%s:predict", s.baseURL, url.PathEscape(modelName)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInference, modelName, err)
	}
	switch {
	case resp.StatusCode() == 404:
		return nil, fmt.Errorf("%w: %s not served: %s", ErrModelLoad, modelName, body.Error)
	case resp.IsError():
		return nil, fmt.Errorf("%w: %s: %s %s", ErrInference, modelName, resp.Status(), body.Error)
	}

	var predictions any
	if err := json.Unmarshal(body.Predictions, &predictions); err != nil {
		return nil, fmt.Errorf("%w: %s predictions: %w", ErrInference, modelName, err)
	}
	data, shape, err := flatten(predictions)
	if err != nil {
		return nil, fmt.Errorf("%w: %s predictions: %w", ErrInference, modelName, err)
	}
	return tensor.FromData(data, shape...)
}

func (s *Serving) Close() error { return nil }

// nest turns the tensor into nested lists, one entry per batch element.
func nest(t *tensor.Tensor) ([]any, error) {
	if t.Rank() < 2 {
		return nil, fmt.Errorf("%w: need a batch dimension, got %v", tensor.ErrShape, t.Shape())
	}
	shape := t.Shape()
	data := t.Data()
	var build func(dims []int, off int) any
	build = func(dims []int, off int) any {
		if len(dims) == 1 {
			row := make([]float32, dims[0])
			copy(row, data[off:off+dims[0]])
			return row
		}
		step := 1
		for _, d := range dims[1:] {
			step *= d
		}
		out := make([]any, dims[0])
		for i := range out {
			out[i] = build(dims[1:], off+i*step)
		}
		return out
	}
	list, _ := build(shape, 0).([]any)
	return list, nil
}

// flatten walks rectangular nested lists of numbers. The nesting depth and
// lengths give the shape.
func flatten(v any) ([]float32, []int, error) {
	var shape []int
	for cur := v; ; {
		list, ok := cur.([]any)
		if !ok {
			break
		}
		if len(list) == 0 {
			return nil, nil, fmt.Errorf("%w: empty list", tensor.ErrShape)
		}
		shape = append(shape, len(list))
		cur = list[0]
	}
	if len(shape) == 0 {
		return nil, nil, fmt.Errorf("%w: predictions are not a list", tensor.ErrShape)
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, 0, n)
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		if depth == len(shape) {
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("%w: non-numeric value %v", tensor.ErrShape, v)
			}
			data = append(data, float32(f))
			return nil
		}
		list, ok := v.([]any)
		if !ok || len(list) != shape[depth] {
			return fmt.Errorf("%w: ragged predictions at depth %d", tensor.ErrShape, depth)
		}
		for _, e := range list {
			if err := walk(e, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}
