// Package player wraps a transport connection as the Player Session
// component: per-client inbound/outbound/local-inbound queues, JSON
// decode/encode, and the idle-timeout watchdog.
package player

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tikotus/funky-server/config"
	"github.com/tikotus/funky-server/internal/network"
	"github.com/tikotus/funky-server/internal/transport"
)

// Player is a connected client's session state. It is created on socket
// accept and destroyed on transport close; it is added to exactly one game
// session once the handshake completes.
type Player struct {
	ID   string
	Conn transport.Conn

	// GameInfo is the zero value until the handshake completes, after
	// which it is written exactly once.
	gameInfo atomic.Pointer[network.GameInfo]

	// SlotID is the session-local playerId assigned at admission. -1 until
	// set.
	slotID atomic.Int64

	inbound      *slidingQueue
	outbound     chan network.Envelope
	localInbound chan network.Envelope

	lastSeenNanos atomic.Int64
	disconnected  atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Player wrapping conn, assigns it a fresh UUID, and starts
// its read/write pumps and idle watchdog.
func New(conn transport.Conn) *Player {
	p := &Player{
		ID:           uuid.New().String(),
		Conn:         conn,
		inbound:      newSlidingQueue(config.InboundBufferSize),
		outbound:     make(chan network.Envelope, config.OutboundBufferSize),
		localInbound: make(chan network.Envelope, config.LocalInboundBufferSize),
		done:         make(chan struct{}),
	}
	p.slotID.Store(-1)
	p.lastSeenNanos.Store(time.Now().UnixNano())

	go p.readLoop()
	go p.writeLoop()
	go p.watchdogLoop()

	return p
}

// GameInfo returns the handshake payload, or (zero, false) before the
// handshake has completed.
func (p *Player) GameInfo() (network.GameInfo, bool) {
	gi := p.gameInfo.Load()
	if gi == nil {
		return network.GameInfo{}, false
	}
	return *gi, true
}

// SetGameInfo attaches the canonical handshake payload. Called exactly once
// by the Handshake component.
func (p *Player) SetGameInfo(gi network.GameInfo) {
	p.gameInfo.Store(&gi)
}

// SlotID returns the session-local playerId, or -1 before admission.
func (p *Player) SlotID() int {
	return int(p.slotID.Load())
}

// SetSlotID assigns the session-local playerId. Called exactly once by the
// Game Session on admission.
func (p *Player) SetSlotID(id int) {
	p.slotID.Store(int64(id))
}

// Recv blocks for the next decoded client message. Used first by the
// Handshake component, then by the Game Session's input fan-in — the
// single-consumer handoff keeps inbound's "one producer, one consumer"
// invariant intact across the handshake/session boundary.
func (p *Player) Recv() (network.Envelope, bool) {
	return p.inbound.Pop()
}

// Send enqueues e for delivery to the client via the normal topic-fan-out
// path. Non-blocking: if the outbound buffer is full the message is
// dropped (drop-newest) rather than stalling the broadcaster.
func (p *Player) Send(e network.Envelope) {
	select {
	case p.outbound <- e:
	case <-p.done:
	default:
		// Buffer full: slow client, drop the newest message.
	}
}

// Deliver implements the Game Session's topic-subscriber interface in
// terms of Send, so a Player can be subscribed directly to topicPub
// without an extra layer of buffering.
func (p *Player) Deliver(e network.Envelope) {
	p.Send(e)
}

// SendLocal enqueues e on the small local-inbound side channel, bypassing
// topic fan-out entirely. Used for the handful of server-injected events
// that target this one player directly (e.g. a peer's disconnect notice).
func (p *Player) SendLocal(e network.Envelope) {
	select {
	case p.localInbound <- e:
	case <-p.done:
	default:
		log.Printf("player %s: local-inbound buffer full, dropping event", p.ID)
	}
}

// LastSeen returns the timestamp of the most recent successful inbound
// decode.
func (p *Player) LastSeen() time.Time {
	return time.Unix(0, p.lastSeenNanos.Load())
}

func (p *Player) touch() {
	p.lastSeenNanos.Store(time.Now().UnixNano())
}

// Disconnected reports the terminal flag.
func (p *Player) Disconnected() bool {
	return p.disconnected.Load()
}

// Done returns a channel closed once the player's transport has shut down,
// used by the dispatcher to detect departure.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Close tears down the player: marks it disconnected, stops the pumps, and
// closes the underlying transport. Safe to call more than once.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.disconnected.Store(true)
		close(p.done)
		p.inbound.Close()
		p.Conn.Close()
	})
}

// readLoop decodes inbound frames and feeds the sliding-window queue. A
// framing/decode error drops the offending frame and logs it; the
// connection stays open.
func (p *Player) readLoop() {
	defer p.Close()

	for {
		frame, err := p.Conn.ReadFrame()
		if err != nil {
			return
		}
		if len(frame) == 0 {
			continue
		}

		var env network.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Printf("player %s: malformed frame dropped: %v", p.ID, err)
			continue
		}

		p.touch()
		p.inbound.Push(env)
	}
}

// writeLoop serializes outbound and the local-inbound side channel onto the
// transport. A write failure closes the connection.
func (p *Player) writeLoop() {
	defer p.Close()

	for {
		var env network.Envelope
		select {
		case <-p.done:
			return
		case env = <-p.outbound:
		case env = <-p.localInbound:
		}

		data, err := json.Marshal(env)
		if err != nil {
			log.Printf("player %s: failed to encode outbound message: %v", p.ID, err)
			continue
		}
		if err := p.Conn.WriteFrame(data); err != nil {
			return
		}
	}
}

// watchdogLoop force-closes the connection once the client has been silent
// for longer than config.IdleTimeout.
func (p *Player) watchdogLoop() {
	ticker := time.NewTicker(config.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if time.Since(p.LastSeen()) > config.IdleTimeout {
				log.Printf("player %s: idle timeout, closing connection", p.ID)
				p.Close()
				return
			}
		}
	}
}
