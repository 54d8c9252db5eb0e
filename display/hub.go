package display

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"MLvsTheWorld/logger"
	"MLvsTheWorld/model"
	"MLvsTheWorld/monitor"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type UpdateKind int

const (
	UpdateArtifact UpdateKind = iota + 1
	UpdateSwitch
	UpdatePreview
)

// Update is one display mutation. Updates are applied strictly in the order
// they were posted.
type Update struct {
	Kind     UpdateKind
	Model    model.Identity
	Seq      uint64
	Artifact model.Artifact
	// Clear is the outgoing model's wipe artifact, set on UpdateSwitch only.
	Clear *model.Artifact
	JPEG  []byte
}

// State is a copy of what the display currently shows.
type State struct {
	Model      model.Identity
	Label      string
	OverlayPNG []byte
	PreviewJPG []byte
	LastSeq    uint64
	UpdatedAt  time.Time
	Applied    uint64
	Discarded  uint64
}

type event struct {
	Type    string `json:"type"`
	Model   string `json:"model"`
	Seq     uint64 `json:"seq,omitempty"`
	Label   string `json:"label,omitempty"`
	Overlay bool   `json:"overlay,omitempty"`
}

// Hub owns the visible state. Run is the only goroutine that mutates it,
// everything else posts updates.
type Hub struct {
	updates chan Update
	done    chan struct{}
	log     *zap.Logger

	mu    sync.RWMutex
	state State

	clientsMu     sync.Mutex
	clients       map[string]*client
	clientsClosed bool
}

func NewHub(initial model.Identity, queue int) *Hub {
	if queue <= 0 {
		queue = 32
	}
	return &Hub{
		updates: make(chan Update, queue),
		done:    make(chan struct{}),
		log:     logger.Named("display"),
		state:   State{Model: initial},
		clients: make(map[string]*client),
	}
}

// Post enqueues u without waiting for it to be applied. It returns false
// once the hub has stopped.
func (h *Hub) Post(u Update) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case <-h.done:
		return false
	case h.updates <- u:
		return true
	}
}

func (h *Hub) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Run applies updates until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeClients()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-h.updates:
			if ev, ok := h.apply(u); ok {
				h.broadcast(ev)
			}
		}
	}
}

func (h *Hub) apply(u Update) (event, bool) {
	switch u.Kind {
	case UpdateSwitch:
		var png []byte
		if u.Clear != nil && u.Clear.Overlay != nil {
			png = h.encodeOverlay(u.Clear)
		}
		h.mu.Lock()
		h.state.Model = u.Model
		if png != nil {
			h.state.OverlayPNG = png
		}
		h.state.UpdatedAt = time.Now()
		h.mu.Unlock()
		h.log.Info("switched model", zap.String("model", u.Model.String()), zap.Bool("cleared", png != nil))
		return event{Type: "switch", Model: u.Model.String(), Overlay: png != nil}, true

	case UpdateArtifact:
		h.mu.RLock()
		shown := h.state.Model
		h.mu.RUnlock()
		if u.Model != shown {
			h.mu.Lock()
			h.state.Discarded++
			h.mu.Unlock()
			monitor.DisplayDiscarded.Inc()
			h.log.Debug("discarding artifact of inactive model",
				zap.String("model", u.Model.String()), zap.String("shown", shown.String()), zap.Uint64("seq", u.Seq))
			return event{}, false
		}
		ev := event{Model: u.Model.String(), Seq: u.Seq}
		switch u.Artifact.Kind {
		case model.KindMask:
			png := h.encodeOverlay(&u.Artifact)
			if png == nil {
				return event{}, false
			}
			h.mu.Lock()
			h.state.OverlayPNG = png
			h.mu.Unlock()
			ev.Type, ev.Overlay = "overlay", true
		case model.KindLabel:
			h.mu.Lock()
			h.state.Label = u.Artifact.Label
			h.mu.Unlock()
			ev.Type, ev.Label = "label", u.Artifact.Label
		default:
			return event{}, false
		}
		h.mu.Lock()
		h.state.LastSeq = u.Seq
		h.state.Applied++
		h.state.UpdatedAt = time.Now()
		h.mu.Unlock()
		return ev, true

	case UpdatePreview:
		h.mu.Lock()
		h.state.PreviewJPG = u.JPEG
		h.mu.Unlock()
		return event{}, false
	}
	return event{}, false
}

func (h *Hub) encodeOverlay(a *model.Artifact) []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, a.Overlay, imaging.PNG); err != nil {
		h.log.Error("encode overlay", zap.Error(err))
		return nil
	}
	return buf.Bytes()
}

func (h *Hub) broadcast(ev event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("websocket client lagging, event dropped", zap.String("client", id))
		}
	}
}
