package engine

import (
	"errors"
	"fmt"
	"time"

	iface "MLvsTheWorld/interface"
	"MLvsTheWorld/logger"

	"go.uber.org/zap"
)

const (
	BackendTFLite  = "tflite"
	BackendServing = "serving"

	ModelExt = ".tflite"

	DefaultNumThreads     = 4
	DefaultServingTimeout = 2 * time.Second
)

var (
	ErrModelLoad          = errors.New("model load failed")
	ErrInference          = errors.New("inference failed")
	ErrUnsupportedBackend = errors.New("unsupported inference backend")
)

// Config selects and parameterises the inference backend.
type Config struct {
	UseBackend       string `yaml:"inferenceBackend"`
	ModelDir         string `yaml:"modelDir"`
	NumThreads       int    `yaml:"numThreads"`
	ServingURL       string `yaml:"servingURL"`
	ServingTimeoutMs int    `yaml:"servingTimeoutMs"`
}

func (c Config) servingTimeout() time.Duration {
	if c.ServingTimeoutMs <= 0 {
		return DefaultServingTimeout
	}
	return time.Duration(c.ServingTimeoutMs) * time.Millisecond
}

// Load builds the backend named by cfg.UseBackend.
func Load(cfg Config) (iface.Backend, error) {
	var (
		b   iface.Backend
		err error
	)
	switch cfg.UseBackend {
	case BackendTFLite, "":
		b, err = NewTFLite(cfg.ModelDir, cfg.NumThreads)
	case BackendServing:
		b, err = NewServing(cfg.ServingURL, cfg.servingTimeout())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.UseBackend)
	}
	if err != nil {
		return nil, err
	}
	logger.Log().Info("inference backend loaded", zap.String("backend", b.Name()))
	return b, nil
}
