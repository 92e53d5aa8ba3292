package game

import (
	"time"

	"github.com/tikotus/funky-server/internal/network"
)

// runTicker schedules wakeups at step-time boundaries. On each wakeup it
// increments step, builds the lock barrier, and — if a join announcement
// is pending — combines [lock, join] into one batch so clients always see
// lock-before-join for the same step. It never runs for a stepless session
// (step-time == 0).
func (s *Session) runTicker() {
	interval := time.Duration(s.stepTime) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	closing := s.step.Add(1) - 1
	lock := network.LockMessage(closing)

	var batch []network.Envelope
	select {
	case pending := <-s.joinCh:
		batch = []network.Envelope{lock, network.WithStep(pending, closing)}
	default:
		batch = []network.Envelope{lock}
	}

	s.publishBatch(batch)
	s.advanceTickSignal()
}

// tickSignal returns a channel that closes the next time tick() runs to
// completion, used by the sync mediator to wait for one lock tick to pass.
func (s *Session) tickSignal() <-chan struct{} {
	return s.tickNotify.Load().(chan struct{})
}

func (s *Session) advanceTickSignal() {
	old := s.tickNotify.Load().(chan struct{})
	s.tickNotify.Store(make(chan struct{}))
	close(old)
}
