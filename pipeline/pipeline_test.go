package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MLvsTheWorld/codec"
	"MLvsTheWorld/display"
	iface "MLvsTheWorld/interface"
	"MLvsTheWorld/mode"
	"MLvsTheWorld/model"
	"MLvsTheWorld/preprocess"
	"MLvsTheWorld/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testW = 4
	testH = 6
)

type MockBackend struct {
	mu     sync.Mutex
	calls  []string
	err    error
	during func(name string)
	// score fills mask outputs, label index gets the top class score
	score float32
	label int
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Infer(_ context.Context, name string, input *tensor.Tensor) (*tensor.Tensor, error) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	during, err := m.during, m.err
	m.mu.Unlock()

	if during != nil {
		during(name)
	}
	if err != nil {
		return nil, err
	}
	if input.Dim(1) != testH || input.Dim(2) != testW {
		return nil, errors.New("unexpected input shape")
	}
	switch name {
	case model.BackgroundRemover.FileName():
		out, _ := tensor.New(1, testH, testW, 1)
		for i := range out.Data() {
			out.Data()[i] = m.score
		}
		return out, nil
	case model.FreshnessClassifier.FileName():
		out, _ := tensor.New(1, 1, 1, model.NumClasses)
		out.Data()[m.label] = 5
		return out, nil
	}
	return nil, errors.New("no such model")
}

func (m *MockBackend) Close() error { return nil }

func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type recordingPoster struct {
	mu      sync.Mutex
	updates []display.Update
}

func (p *recordingPoster) Post(u display.Update) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return true
}

func (p *recordingPoster) artifacts() []display.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []display.Update
	for _, u := range p.updates {
		if u.Kind == display.UpdateArtifact {
			out = append(out, u)
		}
	}
	return out
}

func rgbaFrame(seq uint64, released *atomic.Int32) *iface.Frame {
	w, h := 8, 8
	return &iface.Frame{
		Seq:    seq,
		Width:  w,
		Height: h,
		Format: iface.FormatRGBA8888,
		Planes: []iface.Plane{{Data: make([]byte, w*h*4), RowStride: w * 4, PixelStride: 4}},
		Release: func() {
			if released != nil {
				released.Add(1)
			}
		},
	}
}

func newTestPipeline(t *testing.T, initial model.Identity, backend *MockBackend) (*Pipeline, *mode.Switch, *recordingPoster) {
	t.Helper()
	pre, err := preprocess.New(preprocess.Config{Width: testW, Height: testH, RotateQuarterTurns: preprocess.DefaultRotateQuarterTurns})
	require.NoError(t, err)
	poster := &recordingPoster{}
	sw := mode.New(initial, poster, testW, testH)
	return New(Config{}, pre, backend, sw, poster), sw, poster
}

func TestProcess_Mask(t *testing.T) {
	backend := &MockBackend{score: 0}
	p, _, poster := newTestPipeline(t, model.BackgroundRemover, backend)
	var released atomic.Int32

	require.NoError(t, p.Process(context.Background(), rgbaFrame(1, &released)))
	assert.Equal(t, int32(1), released.Load())
	assert.Equal(t, []string{model.BackgroundRemover.FileName()}, backend.Calls())

	arts := poster.artifacts()
	require.Len(t, arts, 1)
	assert.Equal(t, model.BackgroundRemover, arts[0].Model)
	assert.Equal(t, uint64(1), arts[0].Seq)
	require.NotNil(t, arts[0].Artifact.Overlay)
	assert.Equal(t, testW, arts[0].Artifact.Overlay.Bounds().Dx())
	assert.Equal(t, testH, arts[0].Artifact.Overlay.Bounds().Dy())
	assert.Equal(t, uint8(153), arts[0].Artifact.Overlay.NRGBAAt(0, 0).A)
}

func TestProcess_Label(t *testing.T) {
	backend := &MockBackend{label: 9}
	p, _, poster := newTestPipeline(t, model.FreshnessClassifier, backend)

	require.NoError(t, p.Process(context.Background(), rgbaFrame(2, nil)))
	arts := poster.artifacts()
	require.Len(t, arts, 1)
	assert.Equal(t, "Stale capsicum", arts[0].Artifact.Label)
}

func TestProcess_MalformedFrame(t *testing.T) {
	backend := &MockBackend{}
	p, _, poster := newTestPipeline(t, model.BackgroundRemover, backend)
	var released atomic.Int32

	f := rgbaFrame(3, &released)
	f.Planes[0].Data = f.Planes[0].Data[:10]
	err := p.Process(context.Background(), f)
	assert.ErrorIs(t, err, codec.ErrMalformedFrame)
	assert.Empty(t, backend.Calls())
	assert.Empty(t, poster.artifacts())
	assert.Equal(t, int32(1), released.Load())
}

func TestProcess_InferenceFailure(t *testing.T) {
	loadErr := errors.New("model file missing")
	backend := &MockBackend{err: loadErr}
	p, _, poster := newTestPipeline(t, model.BackgroundRemover, backend)
	var released atomic.Int32

	err := p.Process(context.Background(), rgbaFrame(4, &released))
	assert.ErrorIs(t, err, loadErr)
	assert.Empty(t, poster.artifacts())
	assert.Equal(t, int32(1), released.Load())
}

func TestProcess_SwitchDuringInference(t *testing.T) {
	backend := &MockBackend{}
	p, sw, poster := newTestPipeline(t, model.BackgroundRemover, backend)
	backend.during = func(string) { sw.Select(model.FreshnessClassifier) }

	err := p.Process(context.Background(), rgbaFrame(5, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Empty(t, poster.artifacts(), "stale mask must not reach the display")

	// The next frame runs and decodes with the new model.
	backend.mu.Lock()
	backend.during = nil
	backend.label = 0
	backend.mu.Unlock()
	require.NoError(t, p.Process(context.Background(), rgbaFrame(6, nil)))
	arts := poster.artifacts()
	require.Len(t, arts, 1)
	assert.Equal(t, model.FreshnessClassifier, arts[0].Model)
	assert.Equal(t, "Fresh apple", arts[0].Artifact.Label)
}

func TestRun_ProcessesLatestFrames(t *testing.T) {
	backend := &MockBackend{label: 3}
	p, _, poster := newTestPipeline(t, model.FreshnessClassifier, backend)
	var released atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	const n = 20
	for i := 1; i <= n; i++ {
		p.Submit(rgbaFrame(uint64(i), &released))
	}
	assert.Eventually(t, func() bool {
		arts := poster.artifacts()
		return len(arts) > 0 && arts[len(arts)-1].Seq == n
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, int32(n), released.Load(), "every frame is released, processed or dropped")

	stats := p.Stats()
	assert.Equal(t, uint64(n), stats.Published)
	assert.Equal(t, stats.Published, stats.Consumed+stats.Dropped)
}
