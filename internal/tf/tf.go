// Package tf holds the game-facing constants and types shared by the
// components that talk to the game client.
package tf

const (
	// Max number of players supported by the game.
	MaxPlayerCount = 102
	// In game max message length.
	MaxMessageLength = 127
)

type Team int

const (
	UNASSIGNED Team = iota
	SPEC
	BLU
	RED
)

// TeamFromCode maps the raw team integer found in roster dumps. Codes 2 and 3
// are the playing sides, 1 is spectator, anything else is unassigned.
func TeamFromCode(code int) Team {
	switch code {
	case 1:
		return SPEC
	case 2:
		return BLU
	case 3:
		return RED
	default:
		return UNASSIGNED
	}
}

func (t Team) String() string {
	switch t {
	case SPEC:
		return "spectator"
	case BLU:
		return "blu"
	case RED:
		return "red"
	case UNASSIGNED:
		fallthrough
	default:
		return "unassigned"
	}
}
