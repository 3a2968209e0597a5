// Package dump parses the textual `g15_dumpplayer` roster snapshot into a
// structured player list. A single dump is noisy: slots flicker in and out
// between polls, so observed entries decay over several dumps before they are
// considered gone. This functionality requires the `-g15` launch parameter
// for TF2 to be set.
package dump

import (
	"bufio"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/tf"
)

// seenCounterMax is the number of consecutive dumps a previously observed
// player may be absent from before being evicted. A single momentary omission
// (packet truncation, ordering jitter) must never read as a departure.
const seenCounterMax = 8

var g15re = regexp.MustCompile(`^(m_szName|m_iPing|m_iScore|m_iDeaths|m_bConnected|m_iTeam|m_bAlive|m_iHealth|m_iAccountID|m_bValid|m_iUserID)\[(\d+)]\s(integer|bool|string)\s\((.+?)?\)$`)

// Entry is one player as reported by the roster feed.
type Entry struct {
	SteamID   steamid.SteamID
	UserID    int
	Name      string
	Team      tf.Team
	Connected bool
	Valid     bool
	Alive     bool
	Health    int
	Ping      int
	Score     int
	Deaths    int
}

// active reports whether a raw slot describes a real connected player rather
// than an empty, bot or half-initialized slot that still shows up in dumps.
func (e Entry) active() bool {
	return e.Connected && e.Valid && e.Name != "" && e.SteamID.Valid()
}

// Roster is the parser output for one dump cycle.
type Roster struct {
	Players   []Entry
	CreatedOn time.Time
}

type tracked struct {
	Entry
	seen int
}

// Parser converts dumps into rosters. It is stateful: the decay table
// persists across dumps and belongs to a single polling goroutine.
type Parser struct {
	table map[steamid.SteamID]*tracked
}

func NewParser() *Parser {
	return &Parser{table: make(map[steamid.SteamID]*tracked)}
}

// Parse consumes one dump and returns the currently tracked roster after
// applying presence decay.
func (p *Parser) Parse(reader io.Reader) (Roster, error) {
	slots := make(map[int]*Entry)
	scanner := bufio.NewScanner(reader)

	for scanner.Scan() {
		matches := g15re.FindStringSubmatch(strings.Trim(scanner.Text(), "\r"))
		if len(matches) == 0 {
			continue
		}

		index := parseInt(matches[2], -1)
		if index < 0 || index >= tf.MaxPlayerCount {
			continue
		}

		value := ""
		if len(matches) == 5 {
			value = matches[4]
		}

		slot, found := slots[index]
		if !found {
			slot = &Entry{}
			slots[index] = slot
		}

		switch matches[1] {
		case "m_szName":
			slot.Name = value
		case "m_iPing":
			slot.Ping = parseInt(value, 0)
		case "m_iScore":
			slot.Score = parseInt(value, 0)
		case "m_iDeaths":
			slot.Deaths = parseInt(value, 0)
		case "m_bConnected":
			slot.Connected = parseBool(value)
		case "m_iTeam":
			slot.Team = tf.TeamFromCode(parseInt(value, 0))
		case "m_bAlive":
			slot.Alive = parseBool(value)
		case "m_iHealth":
			slot.Health = parseInt(value, 0)
		case "m_iAccountID":
			slot.SteamID = steamid.New(int32(parseInt(value, 0)))
		case "m_bValid":
			slot.Valid = parseBool(value)
		case "m_iUserID":
			slot.UserID = parseInt(value, -1)
		}
	}

	if err := scanner.Err(); err != nil {
		return Roster{}, err
	}

	for _, slot := range slots {
		if !slot.active() {
			continue
		}

		p.table[slot.SteamID] = &tracked{Entry: *slot, seen: seenCounterMax}
	}

	for sid, entry := range p.table {
		entry.seen--
		if entry.seen <= 0 {
			delete(p.table, sid)
		}
	}

	players := make([]Entry, 0, len(p.table))
	for _, entry := range p.table {
		players = append(players, entry.Entry)
	}

	slices.SortFunc(players, func(a Entry, b Entry) int {
		return a.UserID - b.UserID
	})

	return Roster{Players: players, CreatedOn: time.Now()}, nil
}

func parseInt(s string, def int) int {
	value, errValue := strconv.ParseInt(s, 10, 32)
	if errValue != nil {
		return def
	}

	return int(value)
}

func parseBool(s string) bool {
	value, errValue := strconv.ParseBool(s)
	if errValue != nil {
		return false
	}

	return value
}
