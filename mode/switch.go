package mode

import (
	"sync"
	"sync/atomic"

	"MLvsTheWorld/display"
	"MLvsTheWorld/logger"
	"MLvsTheWorld/model"
	"MLvsTheWorld/monitor"

	"go.uber.org/zap"
)

// Poster delivers updates to the display goroutine.
type Poster interface {
	Post(u display.Update) bool
}

// Switch holds the active model. The frame worker reads it without locking
// and may act on the previous model for at most the frame in flight; the
// pipeline's shape check and the display's model check discard that result.
type Switch struct {
	mu     sync.Mutex
	active atomic.Int32
	poster Poster
	width  int
	height int
	log    *zap.Logger
}

// New starts with initial active. width and height size the clear overlay.
func New(initial model.Identity, poster Poster, width, height int) *Switch {
	s := &Switch{
		poster: poster,
		width:  width,
		height: height,
		log:    logger.Named("mode"),
	}
	s.active.Store(int32(initial))
	return s
}

func (s *Switch) Active() model.Identity {
	return model.Identity(s.active.Load())
}

// Select makes id the active model. The outgoing model's output is cleared
// on the display before id becomes visible to the frame worker. It returns
// false when id was already active.
func (s *Switch) Select(id model.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.Active()
	if prev == id {
		return false
	}
	u := display.Update{Kind: display.UpdateSwitch, Model: id}
	if art, ok := model.Clear(prev, s.width, s.height); ok {
		u.Clear = &art
	}
	if !s.poster.Post(u) {
		s.log.Warn("display stopped, switch not shown", zap.String("model", id.String()))
	}
	s.active.Store(int32(id))

	monitor.ModelSwitches.WithLabelValues(id.String()).Inc()
	s.log.Info("active model changed", zap.String("from", prev.String()), zap.String("to", id.String()))
	return true
}
