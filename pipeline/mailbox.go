package pipeline

import (
	"sync"

	iface "MLvsTheWorld/interface"
)

// Mailbox is a single-slot frame buffer with keep-only-latest semantics:
// Publish never blocks and replaces an unconsumed frame, which is released
// and counted as dropped.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *iface.Frame
	closed bool

	published uint64
	consumed  uint64
	dropped   uint64
}

type MailboxStats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores f as the next frame. It reports whether an older frame was
// dropped. Frames published after Close are released immediately.
func (m *Mailbox) Publish(f *iface.Frame) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		f.Done()
		return false
	}
	old := m.frame
	m.frame = f
	m.published++
	if old != nil {
		m.dropped++
	}
	m.cond.Signal()
	m.mu.Unlock()

	if old != nil {
		old.Done()
		return true
	}
	return false
}

// Next blocks until a frame is available and takes it. It returns nil once
// the mailbox is closed.
func (m *Mailbox) Next() *iface.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.frame == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return nil
	}
	f := m.frame
	m.frame = nil
	m.consumed++
	return f
}

// Close wakes the consumer and releases a pending frame. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.frame
	m.frame = nil
	m.cond.Broadcast()
	m.mu.Unlock()
	pending.Done()
}

func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{Published: m.published, Consumed: m.consumed, Dropped: m.dropped}
}
