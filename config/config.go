package config

import (
	"fmt"
	"os"
	"runtime"

	"MLvsTheWorld/capture"
	"MLvsTheWorld/engine"
	"MLvsTheWorld/logger"
	"MLvsTheWorld/model"
	"MLvsTheWorld/pipeline"
	"MLvsTheWorld/preprocess"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath           = "config.yaml"
	DefaultHTTPPort       = 8080
	DefaultMetricsPort    = 9090
	DefaultPreviewQuality = 100
)

type Config struct {
	HTTPPort     int    `yaml:"httpPort"`
	MetricsPort  int    `yaml:"metricsPort"`
	LogMode      string `yaml:"logMode"`
	DefaultModel string `yaml:"defaultModel"`

	Engine   engine.Config     `yaml:"engine"`
	Model    preprocess.Config `yaml:"model"`
	Pipeline pipeline.Config   `yaml:"pipeline"`
	Capture  capture.Config    `yaml:"capture"`
}

func Default() Config {
	return Config{
		HTTPPort:     DefaultHTTPPort,
		MetricsPort:  DefaultMetricsPort,
		LogMode:      logger.ModeProduction,
		DefaultModel: model.BackgroundRemover.String(),
		Engine: engine.Config{
			UseBackend: engine.BackendTFLite,
			ModelDir:   "models",
			NumThreads: runtime.NumCPU(),
		},
		Model:    preprocess.DefaultConfig(),
		Pipeline: pipeline.Config{PreviewQuality: DefaultPreviewQuality},
		Capture:  capture.DefaultConfig(),
	}
}

// Load reads path on top of the defaults. Out-of-range values are reported
// by Normalize.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Normalize replaces invalid values with defaults and returns one warning per
// replaced value.
func (c *Config) Normalize() []string {
	def := Default()
	var warnings []string
	fix := func(bad bool, msg string, apply func()) {
		if bad {
			warnings = append(warnings, msg)
			apply()
		}
	}
	fix(c.HTTPPort <= 0 || c.HTTPPort > 65535, fmt.Sprintf("invalid httpPort %d, defaulting to %d", c.HTTPPort, def.HTTPPort),
		func() { c.HTTPPort = def.HTTPPort })
	fix(c.MetricsPort < 0 || c.MetricsPort > 65535, fmt.Sprintf("invalid metricsPort %d, defaulting to %d", c.MetricsPort, def.MetricsPort),
		func() { c.MetricsPort = def.MetricsPort })
	_, err := model.Parse(c.DefaultModel)
	fix(err != nil, fmt.Sprintf("invalid defaultModel %q, defaulting to %s", c.DefaultModel, def.DefaultModel),
		func() { c.DefaultModel = def.DefaultModel })
	fix(c.Engine.NumThreads <= 0, fmt.Sprintf("invalid numThreads %d, defaulting to %d", c.Engine.NumThreads, def.Engine.NumThreads),
		func() { c.Engine.NumThreads = def.Engine.NumThreads })
	fix(c.Engine.NumThreads > runtime.NumCPU(), "numThreads exceeds CPU cores, inference may slow down",
		func() {})
	fix(c.Model.Width <= 0 || c.Model.Height <= 0,
		fmt.Sprintf("invalid model input %dx%d, defaulting to %dx%d", c.Model.Width, c.Model.Height, def.Model.Width, def.Model.Height),
		func() { c.Model.Width, c.Model.Height = def.Model.Width, def.Model.Height })
	fix(c.Pipeline.PreviewQuality < 1 || c.Pipeline.PreviewQuality > 100,
		fmt.Sprintf("invalid previewQuality %d, defaulting to %d", c.Pipeline.PreviewQuality, def.Pipeline.PreviewQuality),
		func() { c.Pipeline.PreviewQuality = def.Pipeline.PreviewQuality })
	fix(c.Capture.FPS <= 0, fmt.Sprintf("invalid capture fps %d, defaulting to %d", c.Capture.FPS, def.Capture.FPS),
		func() { c.Capture.FPS = def.Capture.FPS })
	return warnings
}

// ActiveModel is the model selected at startup.
func (c Config) ActiveModel() model.Identity {
	id, err := model.Parse(c.DefaultModel)
	if err != nil {
		return model.BackgroundRemover
	}
	return id
}

// Log writes the effective configuration and any warnings.
func (c Config) Log(warnings []string) {
	log := logger.Named("config")
	for _, w := range warnings {
		log.Warn(w)
	}
	log.Info("configuration loaded",
		zap.Int("httpPort", c.HTTPPort),
		zap.Int("metricsPort", c.MetricsPort),
		zap.String("backend", c.Engine.UseBackend),
		zap.String("modelDir", c.Engine.ModelDir),
		zap.Int("numThreads", c.Engine.NumThreads),
		zap.String("defaultModel", c.DefaultModel),
		zap.Int("inputWidth", c.Model.Width),
		zap.Int("inputHeight", c.Model.Height),
		zap.String("capture", c.Capture.Source),
	)
}
