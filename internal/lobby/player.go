package lobby

import (
	"slices"
	"time"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/leighmacdonald/tf-lobby/internal/tf"
)

// WeaponKill is one entry in a player's recent kill log.
type WeaponKill struct {
	Victim    steamid.SteamID
	Weapon    string
	Crit      bool
	CreatedOn time.Time
}

// Player is the fused view of one lobby member. Identity is the stable
// 64-bit steam id; UserID is the transient in-session slot and only
// meaningful within one connection.
type Player struct {
	SteamID    steamid.SteamID
	UserID     int
	Name       string
	Team       tf.Team
	Alive      bool
	Health     int
	Ping       int
	Score      int
	Deaths     int
	CritDeaths int
	Kills      int
	CritKills  int
	KillLog    []WeaponKill
	FirstSeen  time.Time
	LastSeen   time.Time
	DepartedOn time.Time

	// Lazily filled enrichment, each arriving as its own message.
	Profile         *events.Profile
	FriendsKnown    bool
	Friends         steamid.Collection
	PlaytimeMinutes int
	Bans            []events.Ban
	Reputation      string
	Markings        []events.Marking
}

// SetMarking replaces the marking from the same source, or removes it when
// the marking carries no attributes.
func (p *Player) SetMarking(marking *events.Marking, source string) {
	p.Markings = slices.DeleteFunc(p.Markings, func(m events.Marking) bool {
		return m.Source == source
	})

	if marking != nil && len(marking.Attributes) > 0 {
		p.Markings = append(p.Markings, *marking)
	}
}

func (p *Player) Marking(source string) (events.Marking, bool) {
	for _, marking := range p.Markings {
		if marking.Source == source {
			return marking, true
		}
	}

	return events.Marking{}, false
}

func (p *Player) clone() *Player {
	dup := *p
	dup.KillLog = slices.Clone(p.KillLog)
	dup.Friends = slices.Clone(p.Friends)
	dup.Bans = slices.Clone(p.Bans)
	dup.Markings = make([]events.Marking, len(p.Markings))
	for idx, marking := range p.Markings {
		dup.Markings[idx] = marking
		dup.Markings[idx].Attributes = slices.Clone(marking.Attributes)
	}

	if p.Profile != nil {
		profile := *p.Profile
		dup.Profile = &profile
	}

	return &dup
}
