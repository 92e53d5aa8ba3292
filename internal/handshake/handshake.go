// Package handshake issues a player UUID, waits for the client's
// game-selection message, and hands the identified player to the
// dispatcher.
package handshake

import (
	"github.com/tikotus/funky-server/internal/network"
	"github.com/tikotus/funky-server/internal/player"
)

// Run sends the welcome message, then reads from p until a handshake
// message is received or the connection closes. On success it attaches the
// canonical GameInfo to p and returns true. On inbound closure before
// completion it returns false and the caller should discard the player
// without ever offering it to the dispatcher.
func Run(p *player.Player) bool {
	p.Send(network.WelcomeMessage(p.ID))

	for {
		env, ok := p.Recv()
		if !ok {
			return false
		}

		gi, ok := env.Handshake()
		if !ok {
			// Not a handshake message: silently drop it, the player isn't
			// in any session yet so there's nowhere to forward it.
			continue
		}

		p.SetGameInfo(gi)
		return true
	}
}
