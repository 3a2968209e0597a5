package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/leighmacdonald/tf-lobby/internal/config"
	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/leighmacdonald/tf-lobby/internal/lobby"
	"github.com/leighmacdonald/tf-lobby/internal/store"
	"github.com/leighmacdonald/tf-lobby/internal/tf/console"
	"github.com/leighmacdonald/tf-lobby/internal/tf/dump"
	"github.com/leighmacdonald/tf-lobby/internal/tf/logparse"
	"github.com/leighmacdonald/tf-lobby/internal/tf/rcon"
	"golang.org/x/sync/errgroup"
)

const (
	rosterBacklog  = 8
	logBacklog     = 512
	enrichBacklog  = 64
	commandBacklog = 16
)

// App wires the feeders, the event bus and the reconciliation engine together.
type App struct {
	config         config.Config
	store          *lobby.Store
	engine         *lobby.Engine
	fetcher        *dump.Fetcher
	tailer         *console.Tailer
	rosters        *events.Topic[dump.Roster]
	logs           *events.Topic[logparse.Event]
	enrichment     *events.Topic[events.Enrichment]
	commands       *events.Topic[events.Command]
	markingUpdates *events.Topic[events.MarkingUpdate]
	configUpdates  <-chan config.Config
}

// New returns a new application instance. To actually start the app you must
// call Start().
func New(conf config.Config, database *sql.DB, configUpdates <-chan config.Config) *App {
	rosters := events.NewTopic[dump.Roster](rosterBacklog)
	logs := events.NewTopic[logparse.Event](logBacklog)
	enrichment := events.NewTopic[events.Enrichment](enrichBacklog)
	commands := events.NewTopic[events.Command](commandBacklog)
	markingUpdates := events.NewTopic[events.MarkingUpdate](commandBacklog)

	lobbyStore := lobby.NewStore()
	interval := time.Duration(conf.UpdateFreqMs) * time.Millisecond
	engine := lobby.NewEngine(lobbyStore, lobby.Opts{
		Interval:  interval,
		Retention: time.Duration(conf.RetentionSecs) * time.Second,
	}, rosters, logs, enrichment, commands, markingUpdates, store.NewMarkings(database), nil)

	return &App{
		config:         conf,
		store:          lobbyStore,
		engine:         engine,
		fetcher:        dump.NewFetcher(conf.Address, conf.Password, interval, rosters),
		tailer:         console.NewTailer(conf.ConsoleLogPath),
		rosters:        rosters,
		logs:           logs,
		enrichment:     enrichment,
		commands:       commands,
		markingUpdates: markingUpdates,
		configUpdates:  configUpdates,
	}
}

// Start brings up all the background goroutines and blocks until the context
// is cancelled.
func (app *App) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		app.fetcher.Start(groupCtx)

		return nil
	})

	group.Go(func() error {
		app.tailer.Start(groupCtx, &logBridge{parser: logparse.NewParser(), topic: app.logs})

		return nil
	})

	group.Go(func() error {
		app.engine.Start(groupCtx)

		return nil
	})

	group.Go(func() error {
		app.commandPump(groupCtx)

		return nil
	})

	group.Go(func() error {
		app.configPump(groupCtx)

		return nil
	})

	return group.Wait()
}

// commandPump forwards raw console commands to the game over RCON. Flag
// commands are handled inside the engine and skipped here.
func (app *App) commandPump(ctx context.Context) {
	incoming := app.commands.Subscribe()

	for {
		select {
		case cmd := <-incoming:
			raw, isRaw := cmd.(events.RawCommand)
			if !isRaw {
				continue
			}

			app.onRawCommand(ctx, raw)
		case <-ctx.Done():
			return
		}
	}
}

func (app *App) onRawCommand(ctx context.Context, cmd events.RawCommand) {
	conn := rcon.New(app.config.Address, app.config.Password)

	resp, errExec := conn.Exec(ctx, cmd.Command)
	if errExec != nil {
		slog.Error("Failed to execute command", slog.String("command", cmd.Command),
			slog.String("error", errExec.Error()))

		return
	}

	slog.Debug("Command executed", slog.String("command", cmd.Command),
		slog.Int("response_len", len(resp)))
}

// configPump applies live configuration reloads to the running engine.
func (app *App) configPump(ctx context.Context) {
	for {
		select {
		case conf := <-app.configUpdates:
			slog.Info("Configuration reloaded")
			app.engine.SetRetention(time.Duration(conf.RetentionSecs) * time.Second)
		case <-ctx.Done():
			return
		}
	}
}

// logBridge feeds tailed console lines through the parser and onto the bus.
// Lines matching no known pattern are dropped.
type logBridge struct {
	parser *logparse.Parser
	topic  *events.Topic[logparse.Event]
}

func (b *logBridge) Send(line string) {
	evt, errParse := b.parser.Parse(line)
	if errParse != nil {
		return
	}

	b.topic.Publish(evt)
}
