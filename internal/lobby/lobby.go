// Package lobby holds the reconstructed state of one game session and the
// reconciliation engine that keeps it current. All mutation funnels through
// the engine into a Store; everything else reads snapshot copies.
package lobby

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/leighmacdonald/steamid/v4/steamid"
)

// ChatMessage references its author by steam id so the entry stays valid
// after the player departs.
type ChatMessage struct {
	Seq        int
	SteamID    steamid.SteamID
	Name       string
	Message    string
	Translated string
	Dead       bool
	TeamOnly   bool
	CreatedOn  time.Time
}

type KillFeedEntry struct {
	Killer     steamid.SteamID
	Victim     steamid.SteamID
	KillerName string
	VictimName string
	Weapon     string
	Crit       bool
	CreatedOn  time.Time
}

// Lobby is the aggregate root. Players is ordered by arrival; Departed holds
// recently left players until their retention window lapses.
type Lobby struct {
	SessionID uuid.UUID
	Players   []*Player
	Departed  []*Player
	Chat      []ChatMessage
	KillFeed  []KillFeedEntry
	ChatSeq   int
	Friends   map[steamid.SteamID]steamid.Collection
}

func New() *Lobby {
	return &Lobby{
		SessionID: uuid.New(),
		Friends:   map[steamid.SteamID]steamid.Collection{},
	}
}

// Player returns the active player with the given id.
func (l *Lobby) Player(sid steamid.SteamID) (*Player, bool) {
	for _, player := range l.Players {
		if player.SteamID.Equal(sid) {
			return player, true
		}
	}

	return nil, false
}

// PlayerByName resolves an active player by display name. The log feed has no
// numeric identity, so this is its only path into the roster.
func (l *Lobby) PlayerByName(name string) (*Player, bool) {
	for _, player := range l.Players {
		if player.Name == name {
			return player, true
		}
	}

	return nil, false
}

func (l *Lobby) departed(sid steamid.SteamID) (*Player, bool) {
	for _, player := range l.Departed {
		if player.SteamID.Equal(sid) {
			return player, true
		}
	}

	return nil, false
}

func (l *Lobby) removeDeparted(sid steamid.SteamID) {
	l.Departed = slices.DeleteFunc(l.Departed, func(p *Player) bool {
		return p.SteamID.Equal(sid)
	})
}

// AreFriends consults the derived friendship graph. The relation is
// symmetric even when only one side's friend list is public.
func (l *Lobby) AreFriends(a steamid.SteamID, b steamid.SteamID) bool {
	return slices.Contains(l.Friends[a], b)
}

// rebuildFriends recomputes the friendship graph over the active roster by
// unioning each player's own friend list with the set of players declaring
// them as a friend.
func (l *Lobby) rebuildFriends() {
	graph := map[steamid.SteamID]steamid.Collection{}

	link := func(a steamid.SteamID, b steamid.SteamID) {
		if !slices.Contains(graph[a], b) {
			graph[a] = append(graph[a], b)
		}
		if !slices.Contains(graph[b], a) {
			graph[b] = append(graph[b], a)
		}
	}

	for _, player := range l.Players {
		if !player.FriendsKnown {
			continue
		}

		for _, friend := range player.Friends {
			if _, active := l.Player(friend); active {
				link(player.SteamID, friend)
			}
		}
	}

	l.Friends = graph
}

func (l *Lobby) clone() Lobby {
	dup := Lobby{
		SessionID: l.SessionID,
		Players:   make([]*Player, len(l.Players)),
		Departed:  make([]*Player, len(l.Departed)),
		Chat:      slices.Clone(l.Chat),
		KillFeed:  slices.Clone(l.KillFeed),
		ChatSeq:   l.ChatSeq,
		Friends:   make(map[steamid.SteamID]steamid.Collection, len(l.Friends)),
	}

	for idx, player := range l.Players {
		dup.Players[idx] = player.clone()
	}
	for idx, player := range l.Departed {
		dup.Departed[idx] = player.clone()
	}
	for sid, friends := range l.Friends {
		dup.Friends[sid] = slices.Clone(friends)
	}

	return dup
}
