package dump

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/leighmacdonald/tf-lobby/internal/tf/rcon"
)

// Fetcher polls the game process for roster dumps on a fixed period and
// publishes the parsed roster. Each poll is independent: a failed command
// just skips that cycle, the next one dials fresh.
type Fetcher struct {
	address  string
	password string
	interval time.Duration
	parser   *Parser
	topic    *events.Topic[Roster]
}

func NewFetcher(address string, password string, interval time.Duration, topic *events.Topic[Roster]) *Fetcher {
	return &Fetcher{
		address:  address,
		password: password,
		interval: interval,
		parser:   NewParser(),
		topic:    topic,
	}
}

func (f *Fetcher) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.update(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fetcher) update(ctx context.Context) {
	response, errExec := rcon.New(f.address, f.password).Exec(ctx, "g15_dumpplayer")
	if errExec != nil {
		slog.Debug("Roster dump query failed, skipping cycle", slog.String("error", errExec.Error()))

		return
	}

	roster, errParse := f.parser.Parse(strings.NewReader(response))
	if errParse != nil {
		slog.Warn("Failed to parse roster dump", slog.String("error", errParse.Error()))

		return
	}

	f.topic.Publish(roster)
}
