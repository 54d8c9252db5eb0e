package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"MLvsTheWorld/codec"
	"MLvsTheWorld/display"
	iface "MLvsTheWorld/interface"
	"MLvsTheWorld/logger"
	"MLvsTheWorld/model"
	"MLvsTheWorld/monitor"
	"MLvsTheWorld/preprocess"

	"go.uber.org/zap"
)

var (
	ErrShapeMismatch = errors.New("output shape does not match the active model")
	ErrStaleModel    = errors.New("active model changed during inference")
)

const restartDelay = time.Second

// ActiveModel is read once before and once after inference.
type ActiveModel interface {
	Active() model.Identity
}

type Poster interface {
	Post(u display.Update) bool
}

type Config struct {
	Preview        bool `yaml:"preview"`
	PreviewQuality int  `yaml:"previewQuality"`
}

// Pipeline runs captured frames through preprocessing, inference and
// decoding on a single worker goroutine.
type Pipeline struct {
	cfg     Config
	pre     *preprocess.Preprocessor
	backend iface.Backend
	modes   ActiveModel
	poster  Poster
	box     *Mailbox
	log     *zap.Logger
}

func New(cfg Config, pre *preprocess.Preprocessor, backend iface.Backend, modes ActiveModel, poster Poster) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		pre:     pre,
		backend: backend,
		modes:   modes,
		poster:  poster,
		box:     NewMailbox(),
		log:     logger.Named("pipeline"),
	}
}

// Submit hands a captured frame to the worker, replacing any frame it has
// not started yet.
func (p *Pipeline) Submit(f *iface.Frame) {
	monitor.FramesCaptured.Inc()
	if p.box.Publish(f) {
		monitor.FramesDropped.Inc()
	}
}

func (p *Pipeline) Stats() MailboxStats { return p.box.Stats() }

// Run consumes frames until ctx is cancelled. A panicking worker is
// restarted after a short delay.
func (p *Pipeline) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, p.box.Close)
	defer stop()
	for {
		if p.work(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
			p.log.Info("restarting frame worker")
		}
	}
}

func (p *Pipeline) work(ctx context.Context) (clean bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("frame worker panic", zap.Any("panic", r))
			clean = false
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		f := p.box.Next()
		if f == nil {
			return true
		}
		p.handle(ctx, f)
	}
}

func (p *Pipeline) handle(ctx context.Context, f *iface.Frame) {
	err := p.Process(ctx, f)
	switch {
	case err == nil:
	case errors.Is(err, codec.ErrMalformedFrame):
		p.log.Warn("frame dropped", zap.Uint64("seq", f.Seq), zap.Error(err))
	case errors.Is(err, ErrShapeMismatch), errors.Is(err, ErrStaleModel):
		p.log.Info("result discarded", zap.Uint64("seq", f.Seq), zap.Error(err))
	default:
		p.log.Error("frame skipped", zap.Uint64("seq", f.Seq), zap.Error(err))
	}
}

// Process handles one frame synchronously and releases it. Nothing is
// posted to the display when an error is returned.
func (p *Pipeline) Process(ctx context.Context, f *iface.Frame) error {
	defer f.Done()

	input, err := p.pre.Process(f)
	if err != nil {
		monitor.Skip(monitor.ReasonMalformedFrame)
		return fmt.Errorf("preprocess frame %d: %w", f.Seq, err)
	}
	if p.cfg.Preview {
		p.postPreview(f)
	}

	requested := p.modes.Active()
	start := time.Now()
	out, err := p.backend.Infer(ctx, requested.FileName(), input)
	monitor.InferenceSeconds.WithLabelValues(p.backend.Name(), requested.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		monitor.Skip(monitor.ReasonInference)
		return fmt.Errorf("infer %s: %w", requested, err)
	}

	active := p.modes.Active()
	in := p.pre.Config()
	if !active.Accepts(out, in.Width, in.Height) {
		monitor.Skip(monitor.ReasonShapeMismatch)
		return fmt.Errorf("%w: %s expects %v, got %v", ErrShapeMismatch, active, active.OutputShape(in.Width, in.Height), out.Shape())
	}
	if active != requested {
		monitor.Skip(monitor.ReasonStaleModel)
		return fmt.Errorf("%w: ran %s, now %s", ErrStaleModel, requested, active)
	}

	art, err := model.Decode(active, out)
	if err != nil {
		monitor.Skip(monitor.ReasonDecode)
		return fmt.Errorf("decode %s: %w", active, err)
	}
	p.poster.Post(display.Update{
		Kind:     display.UpdateArtifact,
		Model:    active,
		Seq:      f.Seq,
		Artifact: art,
	})
	monitor.FramesProcessed.Inc()
	return nil
}

func (p *Pipeline) postPreview(f *iface.Frame) {
	jpg, err := codec.EncodeJPEG(f, p.cfg.PreviewQuality)
	if err != nil {
		p.log.Debug("preview encode failed", zap.Uint64("seq", f.Seq), zap.Error(err))
		return
	}
	p.poster.Post(display.Update{Kind: display.UpdatePreview, Seq: f.Seq, JPEG: jpg})
}
