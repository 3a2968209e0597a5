package lobby

import (
	"sync"

	"github.com/leighmacdonald/steamid/v4/steamid"
)

// Store is the single authoritative container for the current Lobby. Writers
// are fully serialized and readers never observe partial state: the only ways
// in are a deep snapshot copy or a scoped exclusive block. The lock itself
// never escapes.
type Store struct {
	mu    sync.Mutex
	lobby *Lobby
}

func NewStore() *Store {
	return &Store{lobby: New()}
}

// Snapshot returns a deep, independent copy of the current lobby, taken
// atomically. Callers may hold it as long as they like without blocking
// writers.
func (s *Store) Snapshot() Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lobby.clone()
}

// With grants exclusive in-place access for the duration of fn. fn must not
// block on anything outside the lobby.
func (s *Store) With(fn func(lobby *Lobby)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.lobby)
}

// UpdatePlayer applies fn to the active player with the given id, reporting
// whether the player was found. Absent players are a no-op, never an error.
func (s *Store) UpdatePlayer(sid steamid.SteamID, fn func(player *Player)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, found := s.lobby.Player(sid)
	if !found {
		return false
	}

	fn(player)

	return true
}
