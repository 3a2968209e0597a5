package events

import (
	"time"

	"github.com/leighmacdonald/steamid/v4/steamid"
)

// Enrichment is the common interface for results produced by the out of
// process lookup services. The engine only ever consumes these as pre-formed
// messages; performing the lookups is not this module's job.
type Enrichment interface {
	Subject() steamid.SteamID
}

// Profile is a player profile summary.
type Profile struct {
	SteamID     steamid.SteamID
	PersonaName string
	AvatarHash  string
	AvatarURL   string
	TimeCreated time.Time
}

func (p Profile) Subject() steamid.SteamID { return p.SteamID }

// Friends carries one player's friend list. An empty Known=false result means
// the profile is private, which is distinct from an empty friend list.
type Friends struct {
	SteamID steamid.SteamID
	Known   bool
	IDs     steamid.Collection
}

func (f Friends) Subject() steamid.SteamID { return f.SteamID }

// Playtime carries total in-game minutes.
type Playtime struct {
	SteamID steamid.SteamID
	Minutes int
}

func (p Playtime) Subject() steamid.SteamID { return p.SteamID }

// Ban is a single ban record attached to an account.
type Ban struct {
	SteamID    steamid.SteamID
	SiteName   string
	Reason     string
	CreatedOn  time.Time
	Permanent  bool
	DaysSince  int
	GameBans   int
	VACBans    int
	Community  bool
	EconomyBan string
}

func (b Ban) Subject() steamid.SteamID { return b.SteamID }

// Reputation is a free-text reputation summary.
type Reputation struct {
	SteamID steamid.SteamID
	Summary string
}

func (r Reputation) Subject() steamid.SteamID { return r.SteamID }

// SourceUser tags markings created by local user flag toggles, as opposed to
// community list sources.
const SourceUser = "user"

// Marking is a set of behavioral attributes attached to an account by either
// the local user or a community list.
type Marking struct {
	SteamID    steamid.SteamID
	Source     string
	Attributes []string
}

func (m Marking) Subject() steamid.SteamID { return m.SteamID }

// MarkingUpdate is re-broadcast whenever a flag toggle has been applied to the
// persisted ruleset. Marking is nil when the toggle removed the last
// attribute.
type MarkingUpdate struct {
	SteamID steamid.SteamID
	Source  string
	Marking *Marking
}

// Command is a user-originated request crossing the bus.
type Command interface {
	isCommand()
}

// FlagCommand toggles a single ruleset attribute for a player.
type FlagCommand struct {
	SteamID steamid.SteamID
	Attr    string
	Enable  bool
}

func (FlagCommand) isCommand() {}

// RawCommand asks for a raw command string to be sent to the game process.
type RawCommand struct {
	Command string
}

func (RawCommand) isCommand() {}
