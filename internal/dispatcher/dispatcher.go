// Package dispatcher is a single-threaded consumer of the merged player
// lifecycle stream that matches newly handshaken players to an existing
// session or spawns a new one, and retires sessions once they drain.
package dispatcher

import (
	"log"
	"time"

	"github.com/tikotus/funky-server/config"
	"github.com/tikotus/funky-server/internal/game"
	"github.com/tikotus/funky-server/internal/player"
)

// matchKey groups sessions by the two handshake fields that must agree for
// players to share a session. step-time is deliberately not part of the
// key: it's fixed once at session creation, and an arriving player joins
// whatever step-time the session already runs rather than forcing a new
// session over a mismatch.
type matchKey struct {
	gameType   string
	maxPlayers int
}

type departure struct {
	key  matchKey
	sess *game.Session
	slot int
}

// Dispatcher owns the live session list. Every mutation to that list
// happens on its single Run goroutine, so the list itself needs no lock.
type Dispatcher struct {
	arrivals   chan *player.Player
	departures chan departure
	statsReqs  chan func()
	done       chan struct{}

	sessions map[matchKey][]*game.Session
}

// New creates a Dispatcher. Call Run in its own goroutine to start
// consuming the lifecycle stream.
func New() *Dispatcher {
	return &Dispatcher{
		arrivals:   make(chan *player.Player, 64),
		departures: make(chan departure, 64),
		statsReqs:  make(chan func(), 8),
		done:       make(chan struct{}),
		sessions:   make(map[matchKey][]*game.Session),
	}
}

// Offer submits a handshaken player for placement. Safe to call from any
// goroutine.
func (d *Dispatcher) Offer(p *player.Player) {
	select {
	case d.arrivals <- p:
	case <-d.done:
	}
}

// TerminateAll terminates every live session, for use during graceful
// shutdown so no ticker or fan-in goroutine outlives the process. Blocks
// until done.
func (d *Dispatcher) TerminateAll() {
	ack := make(chan struct{})
	req := func() {
		for _, list := range d.sessions {
			for _, s := range list {
				s.Terminate()
			}
		}
		close(ack)
	}

	select {
	case d.statsReqs <- req:
	case <-d.done:
		return
	}
	select {
	case <-ack:
	case <-d.done:
	}
}

// Stop shuts the dispatcher down. Call TerminateAll first to also stop any
// live sessions; Stop alone only ends the Run loop.
func (d *Dispatcher) Stop() {
	close(d.done)
}

// Run is the dispatcher's single consumer loop. It must run in its own
// goroutine and must never be called concurrently with itself.
func (d *Dispatcher) Run() {
	sweep := time.NewTicker(config.SessionSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-d.done:
			return

		case p := <-d.arrivals:
			d.place(p)

		case dep := <-d.departures:
			d.retire(dep)

		case req := <-d.statsReqs:
			req()

		case <-sweep.C:
			d.reconcile()
		}
	}
}

// place matches p to an existing session sharing its (gameType, maxPlayers)
// key with capacity and a reachable sync donor, or spawns a new one using
// p's requested step-time. A player joining an existing session simply
// adopts that session's already-fixed step-time.
func (d *Dispatcher) place(p *player.Player) {
	gi, ok := p.GameInfo()
	if !ok {
		log.Printf("dispatcher: dropping player %s offered without a completed handshake", p.ID)
		p.Close()
		return
	}

	key := matchKey{gameType: gi.GameType, maxPlayers: gi.MaxPlayers}

	var sess *game.Session
	for _, candidate := range d.sessions[key] {
		if candidate.HasCapacity() && candidate.DonorAvailable() {
			sess = candidate
			break
		}
	}

	if sess == nil {
		total := 0
		for _, list := range d.sessions {
			total += len(list)
		}
		if total >= config.MaxGameSessions {
			log.Printf("dispatcher: refusing player %s, at session capacity", p.ID)
			p.Close()
			return
		}
		sess = game.New(key.gameType, key.maxPlayers, gi.StepTime)
		d.sessions[key] = append(d.sessions[key], sess)
	}

	sess.AddPlayer(p)
	slot := p.SlotID()

	go d.watch(key, sess, slot, p)
}

// watch waits for either the player's transport to close or the session to
// terminate, then reports the departure back to the dispatcher's own
// queue so the session-list mutation stays single-threaded.
func (d *Dispatcher) watch(key matchKey, sess *game.Session, slot int, p *player.Player) {
	select {
	case <-p.Done():
	case <-sess.Done():
	}

	select {
	case d.departures <- departure{key: key, sess: sess, slot: slot}:
	case <-d.done:
	}
}

func (d *Dispatcher) retire(dep departure) {
	dep.sess.RemovePlayer(dep.slot)

	if !dep.sess.IsEmpty() {
		return
	}
	d.dropSession(dep.key, dep.sess)
}

func (d *Dispatcher) dropSession(key matchKey, sess *game.Session) {
	list := d.sessions[key]
	for i, s := range list {
		if s == sess {
			d.sessions[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(d.sessions[key]) == 0 {
		delete(d.sessions, key)
	}
}

// reconcile is a periodic safety net: it terminates and drops any session
// that has gone empty without its departure having been reported yet (e.g.
// a session emptied by a burst of simultaneous disconnects). The primary
// retirement path is retire, triggered by watch; this is belt-and-suspenders
// cleanup, not the main termination path.
func (d *Dispatcher) reconcile() {
	removed := 0
	for key, list := range d.sessions {
		kept := list[:0]
		for _, s := range list {
			if s.IsEmpty() {
				s.Terminate()
				removed++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(d.sessions, key)
		} else {
			d.sessions[key] = kept
		}
	}
	if removed > 0 {
		log.Printf("dispatcher: reconciliation swept %d empty session(s)", removed)
	}
}

// Stats summarizes the dispatcher's live session list for the /stats
// endpoint.
type Stats struct {
	TotalSessions int
	TotalPlayers  int
	Sessions      []SessionStats
}

// SessionStats summarizes one session.
type SessionStats struct {
	GameType   string
	MaxPlayers int
	StepTime   int
	Players    int
}

// GetStats is safe to call from any goroutine; it hands a snapshot request
// through the dispatcher's own queue so it never races the Run loop's
// session-list mutations.
func (d *Dispatcher) GetStats() Stats {
	reply := make(chan Stats, 1)
	req := func() {
		stats := Stats{Sessions: make([]SessionStats, 0)}
		for key, list := range d.sessions {
			for _, s := range list {
				n := s.PlayerCount()
				stats.TotalSessions++
				stats.TotalPlayers += n
				stats.Sessions = append(stats.Sessions, SessionStats{
					GameType:   key.gameType,
					MaxPlayers: key.maxPlayers,
					StepTime:   s.StepTime(),
					Players:    n,
				})
			}
		}
		reply <- stats
	}

	select {
	case d.statsReqs <- req:
	case <-d.done:
		return Stats{}
	}

	select {
	case s := <-reply:
		return s
	case <-d.done:
		return Stats{}
	}
}
