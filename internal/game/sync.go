package game

import (
	"math/rand"
	"time"

	"github.com/tikotus/funky-server/config"
	"github.com/tikotus/funky-server/internal/network"
	"github.com/tikotus/funky-server/internal/player"
)

// syncSlot is a sliding buffer of 1: it always holds the most recently
// delivered message, never blocks a publisher, and is read exactly once by
// the waiting mediator.
type syncSlot struct {
	ch chan network.Envelope
}

func newSyncSlot() *syncSlot {
	return &syncSlot{ch: make(chan network.Envelope, 1)}
}

// Deliver implements subscriber. A full slot is drained before the new
// value is pushed, so the slot always carries the latest sync reply.
func (s *syncSlot) Deliver(e network.Envelope) {
	select {
	case s.ch <- e:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- e:
	default:
	}
}

// pickSyncer returns a uniformly random member of synced-players whose
// last-seen is within the active window, or ok=false if none qualifies.
func (s *Session) pickSyncer() (donor *player.Player, ok bool) {
	s.mu.Lock()
	candidates := make([]*player.Player, 0, len(s.syncedPlayers))
	now := time.Now()
	for _, p := range s.syncedPlayers {
		if p.Disconnected() {
			continue
		}
		if now.Sub(p.LastSeen()) > config.SyncActiveWindow {
			continue
		}
		candidates = append(candidates, p)
	}
	s.mu.Unlock()

	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// runSync performs the late-join synchronization protocol on behalf of a
// newly admitted player. It is run in its own goroutine by AddPlayer
// whenever the session was non-empty at admission time.
func (s *Session) runSync(newcomer *player.Player, slot int) {
	slot1 := newSyncSlot()
	s.topicPub.Subscribe(slot1, network.TopicSync)
	defer s.topicPub.Unsubscribe(slot1)

	// Step 2: wait for one lock tick so the newcomer has every message up
	// to step k before receiving sync at step k+1. Stepless sessions have
	// no ticks to wait for.
	if s.stepTime > 0 {
		select {
		case <-s.tickSignal():
		case <-s.done:
			return
		}
	}

	donor, ok := s.pickSyncer()
	if !ok {
		// No donor available. The dispatcher is expected to have checked
		// this before placing the player here; if it still happens (a
		// donor went inactive in the interim) the newcomer simply never
		// completes sync and no envelope goes out for it.
		return
	}

	select {
	case s.joinCh <- network.Envelope{Msg: network.MsgJoin, Syncer: donor.ID}:
	case <-s.done:
		return
	}

	var reply network.Envelope
	select {
	case reply = <-slot1.ch:
	case <-s.done:
		return
	}

	newcomer.Send(reply)

	s.addSynced(newcomer)
	s.topicPub.AddTopic(newcomer, network.TopicJoin)
}
