// Package game implements the Game Session: the per-session input fan-in,
// the ticker-driven lock stream, the topic-filtered fan-out, and the sync
// mediator that together relay one group of same-typed, same-capacity
// players.
package game

import (
	"log"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tikotus/funky-server/internal/network"
	"github.com/tikotus/funky-server/internal/player"
)

// rawEvent is one client message after the per-player transformer has
// stamped it with its origin slot, on its way into the session's ingress
// channel.
type rawEvent struct {
	slot int
	env  network.Envelope
}

// Session is a Game Session: a group of players sharing (gameType,
// maxPlayers), relayed in lockstep order. Its stepTime is fixed at creation
// and is not part of the matching key.
type Session struct {
	id         string
	gameType   string
	maxPlayers int
	stepTime   int
	seed       int64

	mu            sync.Mutex
	players       map[int]*player.Player
	syncedPlayers []*player.Player
	nextPlayerID  int

	step atomic.Int64

	rawIn      chan rawEvent
	joinCh     chan network.Envelope
	topicPub   *topicPub
	pubMu      sync.Mutex   // serializes publishBatch across fanIn and the ticker
	tickNotify atomic.Value // chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// New creates an empty session for (gameType, maxPlayers, stepTime) and
// starts its pipeline goroutines. The session starts empty — callers add
// the first player via AddPlayer.
func New(gameType string, maxPlayers, stepTime int) *Session {
	s := &Session{
		id:         uuid.NewString()[:8],
		gameType:   gameType,
		maxPlayers: maxPlayers,
		stepTime:   stepTime,
		seed:       rand.Int63(),
		players:    make(map[int]*player.Player),
		rawIn:      make(chan rawEvent, 256),
		joinCh:     make(chan network.Envelope, 32),
		topicPub:   newTopicPub(),
		done:       make(chan struct{}),
	}
	s.tickNotify.Store(make(chan struct{}))

	go s.fanIn()
	if stepTime > 0 {
		go s.runTicker()
	}

	log.Printf("session %s: created (type=%s maxPlayers=%d stepTime=%dms)", s.id, gameType, maxPlayers, stepTime)
	return s
}

// Type, MaxPlayers, and StepTime expose the session's parameters; the first
// two form the dispatcher's matching key.
func (s *Session) Type() string     { return s.gameType }
func (s *Session) MaxPlayers() int  { return s.maxPlayers }
func (s *Session) StepTime() int    { return s.stepTime }

// PlayerCount returns the number of players currently in the session.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// IsEmpty reports whether the session has no players left.
func (s *Session) IsEmpty() bool {
	return s.PlayerCount() == 0
}

// HasCapacity reports whether the session can admit one more player.
func (s *Session) HasCapacity() bool {
	return s.PlayerCount() < s.maxPlayers
}

// DonorAvailable reports whether this session can currently synchronize a
// newcomer: true if the session is empty (new-game case, no sync needed)
// or a donor is reachable.
func (s *Session) DonorAvailable() bool {
	if s.IsEmpty() {
		return true
	}
	_, ok := s.pickSyncer()
	return ok
}

// Done returns the session's termination signal.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// AddPlayer admits p into the session, assigning it the next monotonically
// increasing slot, subscribing its outbound to the appropriate topics, and
// — for every admission after the first — kicking off the sync mediator.
func (s *Session) AddPlayer(p *player.Player) {
	s.mu.Lock()
	newGame := len(s.players) == 0
	slot := s.nextPlayerID
	s.nextPlayerID++
	s.players[slot] = p
	s.mu.Unlock()

	p.SetSlotID(slot)
	s.topicPub.Subscribe(p, network.TopicLock, network.TopicOther)

	go s.forwardInbound(slot, p)

	p.Send(network.AdmissionMessage(newGame, slot, s.seed))

	if newGame {
		s.topicPub.AddTopic(p, network.TopicJoin)
		s.addSynced(p)
		return
	}

	go s.runSync(p, slot)
}

// RemovePlayer removes the player occupying slot, if any, notifies the
// remaining participants of its departure, and terminates the session if
// it is now empty. A duplicate removal of an already-departed slot is a
// no-op.
func (s *Session) RemovePlayer(slot int) {
	s.mu.Lock()
	p, ok := s.players[slot]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.players, slot)
	s.removeSyncedLocked(p)
	remaining := make([]*player.Player, 0, len(s.players))
	for _, rp := range s.players {
		remaining = append(remaining, rp)
	}
	empty := len(s.players) == 0
	s.mu.Unlock()

	s.topicPub.Unsubscribe(p)

	notice := network.DisconnectedMessage(slot)
	for _, rp := range remaining {
		rp.SendLocal(notice)
	}

	log.Printf("session %s: player %s left (slot %d), %d remaining", s.id, p.ID, slot, len(remaining))

	if empty {
		s.Terminate()
	}
}

// Terminate stops the ticker and fan-in, releasing every subscriber. Safe
// to call more than once.
func (s *Session) Terminate() {
	s.closeOnce.Do(func() {
		log.Printf("session %s: terminated", s.id)
		close(s.done)
	})
}

func (s *Session) addSynced(p *player.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncedPlayers = append(s.syncedPlayers, p)
}

func (s *Session) removeSyncedLocked(p *player.Player) {
	for i, sp := range s.syncedPlayers {
		if sp == p {
			s.syncedPlayers = append(s.syncedPlayers[:i], s.syncedPlayers[i+1:]...)
			return
		}
	}
}

// forwardInbound is the per-player transformer: it stamps every decoded
// client message with its origin slot and pipes it into the session's
// single ingress channel.
func (s *Session) forwardInbound(slot int, p *player.Player) {
	for {
		env, ok := p.Recv()
		if !ok {
			return
		}
		select {
		case s.rawIn <- rawEvent{slot: slot, env: env}:
		case <-s.done:
			return
		}
	}
}

// fanIn is the in-mult: it reads the merged ingress stream and realizes
// both Tap A (the main event pipeline, composed into `out`) and Tap B (the
// sync topic, published directly so sync mediators can observe donor
// replies) in a single serialization point, plus — for stepless sessions
// only — flushing pending join announcements immediately since no ticker
// exists to carry them.
func (s *Session) fanIn() {
	// Stepped sessions carry join announcements exclusively through the
	// ticker (tick() drains s.joinCh to pair [lock, join] in one batch); a
	// nil channel here permanently disables that select case so fanIn
	// never competes with the ticker for the same value.
	var joinCh chan network.Envelope
	if s.stepTime == 0 {
		joinCh = s.joinCh
	}

	for {
		select {
		case <-s.done:
			return

		case re := <-s.rawIn:
			env := network.WithPlayerID(re.env, re.slot)

			if env.IsSync() {
				// Routed only to the requesting newcomer via the sync
				// mediator's subscription — never broadcast.
				s.topicPub.Publish(env)
				continue
			}
			if env.IsAlive() {
				// Heartbeat already updated last-seen in the Player
				// Session; never forwarded.
				continue
			}

			if s.stepTime > 0 {
				env = network.WithStep(env, s.step.Load())
			}
			s.publishBatch([]network.Envelope{env})

		case pending := <-joinCh:
			s.publishBatch([]network.Envelope{pending})
		}
	}
}

// publishBatch flattens an ordered batch of messages onto the egress
// topic publication, one at a time, preserving the batch's internal order.
func (s *Session) publishBatch(batch []network.Envelope) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	for _, env := range batch {
		s.topicPub.Publish(env)
	}
}
