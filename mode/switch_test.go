package mode

import (
	"sync"
	"testing"

	"MLvsTheWorld/display"
	"MLvsTheWorld/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPoster captures posted updates together with the identity the
// switch exposed at the moment of posting.
type recordingPoster struct {
	mu       sync.Mutex
	sw       *Switch
	updates  []display.Update
	observed []model.Identity
}

func (p *recordingPoster) Post(u display.Update) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	p.observed = append(p.observed, p.sw.Active())
	return true
}

func TestSelect_ClearsBeforeActivating(t *testing.T) {
	p := &recordingPoster{}
	sw := New(model.BackgroundRemover, p, 128, 176)
	p.sw = sw

	require.True(t, sw.Select(model.FreshnessClassifier))
	assert.Equal(t, model.FreshnessClassifier, sw.Active())

	require.Len(t, p.updates, 1)
	u := p.updates[0]
	assert.Equal(t, display.UpdateSwitch, u.Kind)
	assert.Equal(t, model.FreshnessClassifier, u.Model)
	require.NotNil(t, u.Clear)
	assert.Equal(t, 128, u.Clear.Overlay.Bounds().Dx())
	assert.Equal(t, 176, u.Clear.Overlay.Bounds().Dy())
	// The clear was posted while the old model was still the active one.
	assert.Equal(t, model.BackgroundRemover, p.observed[0])
}

func TestSelect_LabelModelHasNoClear(t *testing.T) {
	p := &recordingPoster{}
	sw := New(model.FreshnessClassifier, p, 128, 176)
	p.sw = sw

	require.True(t, sw.Select(model.BackgroundRemover))
	require.Len(t, p.updates, 1)
	assert.Nil(t, p.updates[0].Clear)
	assert.Equal(t, model.FreshnessClassifier, p.observed[0])
}

func TestSelect_SameModelIsNoop(t *testing.T) {
	p := &recordingPoster{}
	sw := New(model.BackgroundRemover, p, 128, 176)
	p.sw = sw

	assert.False(t, sw.Select(model.BackgroundRemover))
	assert.Empty(t, p.updates)
}

func TestSelect_Concurrent(t *testing.T) {
	p := &recordingPoster{}
	sw := New(model.BackgroundRemover, p, 4, 4)
	p.sw = sw

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sw.Select(model.All()[i%2])
		}(i)
	}
	wg.Wait()

	// Every switch moved away from the identity that was active when it posted.
	for i, u := range p.updates {
		assert.NotEqual(t, u.Model, p.observed[i])
	}
	if n := len(p.updates); n > 0 {
		assert.Equal(t, p.updates[n-1].Model, sw.Active())
	}
}
