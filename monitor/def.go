package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"MLvsTheWorld/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const (
	ReasonMalformedFrame = "malformed_frame"
	ReasonInference      = "inference"
	ReasonShapeMismatch  = "shape_mismatch"
	ReasonDecode         = "decode"
	ReasonStaleModel     = "stale_model"
)

var (
	Registry = prometheus.NewRegistry()

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	FramesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frames_captured_total",
		Help: "Frames handed to the pipeline by the capture source",
	})
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frames_dropped_total",
		Help: "Frames overwritten in the mailbox before the worker took them",
	})
	FramesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "frames_processed_total",
		Help: "Frames that produced a display artifact",
	})
	FramesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frames_skipped_total",
		Help: "Frames discarded by the worker, by reason",
	}, []string{"reason"})
	DisplayDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "display_discarded_total",
		Help: "Artifacts rejected by the display because another model was shown",
	})
	ModelSwitches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_switches_total",
		Help: "Active model changes, by new model",
	}, []string{"model"})
	InferenceSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inference_duration_seconds",
		Help:    "Wall time of one inference call",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"backend", "model"})
)

func init() {
	Registry.MustRegister(memUsage, cpuUsage, FramesCaptured, FramesDropped, FramesProcessed,
		FramesSkipped, DisplayDiscarded, ModelSwitches, InferenceSeconds)
}

// Skip counts a frame discarded by the worker.
func Skip(reason string) {
	FramesSkipped.WithLabelValues(reason).Inc()
}

func checkProcessInfo(p *process.Process) {
	memInfo, err := p.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := p.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples process usage until ctx is done.
func StartMon(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server stopped", zap.Error(err))
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Warn("process stats unavailable", zap.Error(err))
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			if p != nil {
				checkProcessInfo(p)
			}
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("metrics server shutdown", zap.Error(err))
	}
}
