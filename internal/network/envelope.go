// Package network defines the wire-level message shape shared by every
// transport (TCP and WebSocket) and every pipeline stage. It does not
// implement framing; Envelope's MarshalJSON/UnmarshalJSON plug into
// encoding/json, which callers use to decode/encode before handing Envelope
// values to the session pipeline.
package network

import "encoding/json"

// Topic is the small, finite routing key the Game Session fan-out uses to
// decide which subscribers see a given message.
type Topic string

const (
	TopicLock  Topic = "lock"
	TopicSync  Topic = "sync"
	TopicJoin  Topic = "join"
	TopicOther Topic = "other"
)

// GameInfo is the canonical handshake payload attached to a Player once the
// client has named a game type, capacity, and step interval.
type GameInfo struct {
	GameType   string
	MaxPlayers int
	StepTime   int // ms; 0 = stepless
}

// Reserved message-kind strings recognized in the "msg" field.
const (
	MsgSync  = "sync"
	MsgAlive = "alive"
	MsgJoin  = "join"
)

// Envelope is the canonical, decoded form of a client or server JSON object.
// Unknown/application fields round-trip through Extra so that opaque event
// payloads are relayed with their fields and values aside from the
// server-stamped fields. The relayed object is re-encoded by encoding/json,
// so key order and whitespace of the original bytes are not preserved.
type Envelope struct {
	Msg          string `json:"msg,omitempty"`
	Lock         *int64 `json:"lock,omitempty"`
	Join         *bool  `json:"join,omitempty"`
	NewGame      *bool  `json:"newGame,omitempty"`
	PlayerID     *int   `json:"playerId,omitempty"`
	Seed         *int64 `json:"seed,omitempty"`
	Syncer       string `json:"syncer,omitempty"`
	Step         *int64 `json:"step,omitempty"`
	Disconnected *int   `json:"disconnected,omitempty"`
	ID           string `json:"id,omitempty"`

	// Handshake fields, accepted under either canonical or alternate keys
	// (alternate keys are normalized into these by UnmarshalJSON).
	GameType   string `json:"gameType,omitempty"`
	MaxPlayers *int   `json:"maxPlayers,omitempty"`
	StepTime   *int   `json:"stepTime,omitempty"`

	// Extra carries every field not named above: application event
	// payloads are opaque to the server, which never interprets game state.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra alongside the named fields so the wire form is
// a single flat JSON object, matching what clients expect to parse.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	named, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return named, nil
	}

	merged := make(map[string]any, len(e.Extra)+8)
	if err := json.Unmarshal(named, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the named fields, normalizes the handshake's
// alternate hyphenated key names into their canonical camelCase fields,
// and stashes everything else in Extra.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Envelope(a)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if e.GameType == "" {
		if s, ok := raw["game-type"].(string); ok {
			e.GameType = s
		}
	}
	if e.MaxPlayers == nil {
		if n, ok := asInt(raw["max-players"]); ok {
			e.MaxPlayers = &n
		}
	}
	if e.StepTime == nil {
		if n, ok := asInt(raw["step-time"]); ok {
			e.StepTime = &n
		}
	}

	for _, known := range []string{
		"msg", "lock", "join", "newGame", "playerId", "seed", "syncer",
		"step", "disconnected", "id", "gameType", "maxPlayers", "stepTime",
		"game-type", "max-players", "step-time",
	} {
		delete(raw, known)
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// Handshake reports whether e carries all three required handshake fields
// and, if so, the canonical GameInfo built from them.
func (e Envelope) Handshake() (GameInfo, bool) {
	if e.GameType == "" || e.MaxPlayers == nil || e.StepTime == nil {
		return GameInfo{}, false
	}
	return GameInfo{
		GameType:   e.GameType,
		MaxPlayers: *e.MaxPlayers,
		StepTime:   *e.StepTime,
	}, true
}

// IsAlive reports whether this is a heartbeat (never broadcast, only
// updates last-seen).
func (e Envelope) IsAlive() bool { return e.Msg == MsgAlive }

// IsSync reports whether this is a donor reply (routed only to the
// requesting newcomer).
func (e Envelope) IsSync() bool { return e.Msg == MsgSync }

// TopicOf classifies a message for fan-out: presence of "lock" wins, then
// "sync", then "join", else "other".
func TopicOf(e Envelope) Topic {
	switch {
	case e.Lock != nil:
		return TopicLock
	case e.Msg == MsgSync:
		return TopicSync
	case e.Msg == MsgJoin:
		return TopicJoin
	default:
		return TopicOther
	}
}

// WithPlayerID returns a copy of e with PlayerID overridden, used to stamp
// every forwarded client event regardless of any client-supplied value.
func WithPlayerID(e Envelope, id int) Envelope {
	e.PlayerID = &id
	return e
}

// WithStep returns a copy of e with Step set, used when the owning session
// is stepped (stepTime > 0).
func WithStep(e Envelope, step int64) Envelope {
	e.Step = &step
	return e
}

// LockMessage builds the tick-barrier control message {lock:k}.
func LockMessage(step int64) Envelope {
	return Envelope{Lock: &step}
}

// WelcomeMessage builds the handshake acknowledgement.
func WelcomeMessage(id string) Envelope {
	return Envelope{Msg: "Welcome!", ID: id}
}

// AdmissionMessage builds the session-admission message sent once to a
// newly placed player.
func AdmissionMessage(newGame bool, playerID int, seed int64) Envelope {
	t := true
	return Envelope{Join: &t, NewGame: &newGame, PlayerID: &playerID, Seed: &seed}
}

// JoinAnnounce builds the broadcast join-announce naming the donor.
func JoinAnnounce(syncer string, step int64) Envelope {
	return Envelope{Msg: MsgJoin, Syncer: syncer, Step: &step}
}

// DisconnectedMessage builds the peer-departure notice, delivered via the
// target's local-inbound reinjection rather than the fan-out.
func DisconnectedMessage(playerID int) Envelope {
	return Envelope{Disconnected: &playerID}
}
