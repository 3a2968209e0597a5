// Package logparse classifies console.log lines into typed events.
package logparse

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	teamPrefix     = "(TEAM) "
	deadPrefix     = "*DEAD* "
	deadTeamPrefix = "*DEAD*(TEAM) "

	logTimestampFormat = "01/02/2006 - 15:04:05"
	timestampLen       = len(logTimestampFormat)

	lobbyCreatedMarker   = "Lobby created"
	lobbyDestroyedMarker = "Lobby destroyed"
)

var ErrNoMatch = errors.New("no match found")

type EventType int

const (
	Chat EventType = iota
	Kill
	Suicide
	LobbyCreated
	LobbyDestroyed
)

func (t EventType) String() string {
	switch t {
	case Chat:
		return "chat"
	case Kill:
		return "kill"
	case Suicide:
		return "suicide"
	case LobbyCreated:
		return "lobby_created"
	case LobbyDestroyed:
		return "lobby_destroyed"
	default:
		return "unknown"
	}
}

type Event struct {
	Type      EventType
	Timestamp time.Time
	Raw       string
	Data      any
}

type ChatEvent struct {
	Player   string
	Message  string
	Dead     bool
	TeamOnly bool
}

type KillEvent struct {
	Killer string
	Victim string
	Weapon string
	Crit   bool
}

type SuicideEvent struct {
	Player string
}

// Parser matches one line at a time. Chat is deliberately tried before the
// kill and suicide patterns: player-authored message text can read exactly
// like either of those and must still classify as chat.
type Parser struct {
	rxChat    *regexp.Regexp
	rxKill    *regexp.Regexp
	rxSuicide *regexp.Regexp
}

func NewParser() *Parser {
	return &Parser{
		rxChat:    regexp.MustCompile(`^(?P<name>.+?) :  (?P<message>.*)$`),
		rxKill:    regexp.MustCompile(`^(?P<killer>.+?) killed (?P<victim>.+?) with (?P<weapon>.+?)\.(?P<crit> \(crit\))?$`),
		rxSuicide: regexp.MustCompile(`^(?P<name>.+) suicided\.$`),
	}
}

// Parse classifies a single line. Lines without a parseable timestamp prefix,
// or matching no known pattern, yield ErrNoMatch.
func (p *Parser) Parse(line string) (Event, error) {
	line = strings.TrimSuffix(line, "\r")
	if len(line) < timestampLen+2 {
		return Event{}, ErrNoMatch
	}

	timestamp, errTS := time.Parse(logTimestampFormat, line[:timestampLen])
	if errTS != nil || line[timestampLen:timestampLen+2] != ": " {
		return Event{}, ErrNoMatch
	}

	rest := line[timestampLen+2:]
	if rest == "" {
		return Event{}, ErrNoMatch
	}

	event := Event{Timestamp: timestamp, Raw: line}

	if match := p.rxChat.FindStringSubmatch(rest); match != nil {
		event.Type = Chat
		event.Data = parseChat(match)

		return event, nil
	}

	if match := p.rxKill.FindStringSubmatch(rest); match != nil {
		event.Type = Kill
		event.Data = KillEvent{
			Killer: match[1],
			Victim: match[2],
			Weapon: match[3],
			Crit:   match[4] != "",
		}

		return event, nil
	}

	switch rest {
	case lobbyCreatedMarker:
		event.Type = LobbyCreated

		return event, nil
	case lobbyDestroyedMarker:
		event.Type = LobbyDestroyed

		return event, nil
	}

	if match := p.rxSuicide.FindStringSubmatch(rest); match != nil {
		event.Type = Suicide
		event.Data = SuicideEvent{Player: match[1]}

		return event, nil
	}

	return Event{}, ErrNoMatch
}

func parseChat(match []string) ChatEvent {
	name := match[1]
	dead := false
	team := false

	if after, found := strings.CutPrefix(name, deadTeamPrefix); found {
		name = after
		dead = true
		team = true
	} else if after, found := strings.CutPrefix(name, deadPrefix); found {
		name = after
		dead = true
	} else if after, found := strings.CutPrefix(name, teamPrefix); found {
		name = after
		team = true
	}

	return ChatEvent{Player: name, Message: match[2], Dead: dead, TeamOnly: team}
}
