package lobby

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/leighmacdonald/tf-lobby/internal/tf/dump"
	"github.com/leighmacdonald/tf-lobby/internal/tf/logparse"
)

const (
	defaultInterval  = time.Second
	defaultRetention = time.Second * 120
)

// MarkingStore is the persisted ruleset backing user flag toggles.
type MarkingStore interface {
	Get(ctx context.Context, sid steamid.SteamID) (*events.Marking, error)
	SetFlag(ctx context.Context, sid steamid.SteamID, attr string) (events.Marking, error)
	ClearFlag(ctx context.Context, sid steamid.SteamID, attr string) (*events.Marking, error)
}

// Translator fills in chat translations. Implementations live outside the
// core; failures fall back to the original text.
type Translator interface {
	Translate(ctx context.Context, message string) (string, error)
}

type Opts struct {
	Interval  time.Duration
	Retention time.Duration
}

// Engine drains every inbound stream once per cycle and applies the results
// to the shared store under its merge rules. It is the sole writer of the
// lobby; feeders and readers only ever touch the bus and snapshots.
type Engine struct {
	store          *Store
	interval       time.Duration
	retention      atomic.Int64
	rosters        <-chan dump.Roster
	logs           <-chan logparse.Event
	enrichment     <-chan events.Enrichment
	commands       <-chan events.Command
	markingUpdates *events.Topic[events.MarkingUpdate]
	markings       MarkingStore
	translator     Translator
}

func NewEngine(
	store *Store,
	opts Opts,
	rosters *events.Topic[dump.Roster],
	logs *events.Topic[logparse.Event],
	enrichment *events.Topic[events.Enrichment],
	commands *events.Topic[events.Command],
	markingUpdates *events.Topic[events.MarkingUpdate],
	markings MarkingStore,
	translator Translator,
) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	engine := &Engine{
		store:          store,
		interval:       opts.Interval,
		rosters:        rosters.Subscribe(),
		logs:           logs.Subscribe(),
		enrichment:     enrichment.Subscribe(),
		commands:       commands.Subscribe(),
		markingUpdates: markingUpdates,
		markings:       markings,
		translator:     translator,
	}
	engine.retention.Store(int64(opts.Retention))

	return engine
}

// SetRetention applies a changed departed-player retention window, typically
// after a config reload.
func (e *Engine) SetRetention(retention time.Duration) {
	if retention > 0 {
		e.retention.Store(int64(retention))
	}
}

func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.cycle(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// cycle runs one reconciliation pass. Order matters: stale departed players
// are purged first, then roster dumps establish identity, then log events
// mutate it, then enrichment and commands fill in the rest.
func (e *Engine) cycle(ctx context.Context, now time.Time) {
	rosters := events.Drain(e.rosters)
	logs := events.Drain(e.logs)
	enrichments := events.Drain(e.enrichment)
	commands := events.Drain(e.commands)

	e.store.With(func(lobby *Lobby) {
		e.purgeDeparted(lobby, now)

		for _, roster := range rosters {
			e.applyRoster(ctx, lobby, roster, now)
		}

		for _, event := range logs {
			applyLogEvent(lobby, event, now)
		}
	})

	for _, msg := range enrichments {
		e.applyEnrichment(msg)
	}

	for _, cmd := range commands {
		e.applyCommand(ctx, cmd)
	}

	e.store.With(func(lobby *Lobby) {
		lobby.rebuildFriends()
	})

	e.translateChat(ctx)
}

// purgeDeparted drops departed players whose retention lapsed. A player that
// reappeared in the active list just leaves the departed set; reappearance
// always wins.
func (e *Engine) purgeDeparted(lobby *Lobby, now time.Time) {
	retention := time.Duration(e.retention.Load())

	var keep []*Player
	for _, player := range lobby.Departed {
		if _, active := lobby.Player(player.SteamID); active {
			continue
		}

		if now.Sub(player.DepartedOn) > retention {
			continue
		}

		keep = append(keep, player)
	}

	lobby.Departed = keep
}

// applyRoster upserts every listed player and then moves any active player no
// longer listed into the departed set. This diff is the sole mechanism by
// which a player is considered to have left.
func (e *Engine) applyRoster(ctx context.Context, lobby *Lobby, roster dump.Roster, now time.Time) {
	listed := make(map[steamid.SteamID]bool, len(roster.Players))

	for _, entry := range roster.Players {
		listed[entry.SteamID] = true

		player, found := lobby.Player(entry.SteamID)
		if !found {
			if gone, wasDeparted := lobby.departed(entry.SteamID); wasDeparted {
				lobby.removeDeparted(entry.SteamID)
				gone.DepartedOn = time.Time{}
				player = gone
			} else {
				player = &Player{SteamID: entry.SteamID, FirstSeen: now}
				e.attachMarkings(ctx, player)
			}

			lobby.Players = append(lobby.Players, player)
		}

		player.UserID = entry.UserID
		player.Name = entry.Name
		player.Team = entry.Team
		player.Alive = entry.Alive
		player.Health = entry.Health
		player.Ping = entry.Ping
		player.Score = entry.Score
		player.Deaths = entry.Deaths
		player.LastSeen = now
	}

	var active []*Player
	for _, player := range lobby.Players {
		if listed[player.SteamID] {
			active = append(active, player)

			continue
		}

		player.DepartedOn = now
		lobby.Departed = append(lobby.Departed, player)
	}

	lobby.Players = active
}

// applyLogEvent resolves players by display name. An unresolvable name drops
// the event: the log path may only mutate identities the roster feed already
// established, never create them.
func applyLogEvent(lobby *Lobby, event logparse.Event, now time.Time) {
	switch event.Type {
	case logparse.Kill:
		data, _ := event.Data.(logparse.KillEvent)

		killer, killerFound := lobby.PlayerByName(data.Killer)
		victim, victimFound := lobby.PlayerByName(data.Victim)
		if !killerFound || !victimFound {
			slog.Warn("Dropping kill event referencing unknown player",
				slog.String("killer", data.Killer), slog.String("victim", data.Victim))

			return
		}

		killer.Kills++
		victim.Deaths++
		if data.Crit {
			killer.CritKills++
			victim.CritDeaths++
		}

		killer.KillLog = append(killer.KillLog, WeaponKill{
			Victim:    victim.SteamID,
			Weapon:    data.Weapon,
			Crit:      data.Crit,
			CreatedOn: event.Timestamp,
		})

		lobby.KillFeed = append(lobby.KillFeed, KillFeedEntry{
			Killer:     killer.SteamID,
			Victim:     victim.SteamID,
			KillerName: killer.Name,
			VictimName: victim.Name,
			Weapon:     data.Weapon,
			Crit:       data.Crit,
			CreatedOn:  event.Timestamp,
		})
	case logparse.Suicide:
		data, _ := event.Data.(logparse.SuicideEvent)

		player, found := lobby.PlayerByName(data.Player)
		if !found {
			slog.Warn("Dropping suicide event referencing unknown player",
				slog.String("player", data.Player))

			return
		}

		player.Deaths++
	case logparse.Chat:
		data, _ := event.Data.(logparse.ChatEvent)

		player, found := lobby.PlayerByName(data.Player)
		if !found {
			slog.Warn("Dropping chat message from unknown player",
				slog.String("player", data.Player))

			return
		}

		lobby.ChatSeq++
		lobby.Chat = append(lobby.Chat, ChatMessage{
			Seq:       lobby.ChatSeq,
			SteamID:   player.SteamID,
			Name:      player.Name,
			Message:   data.Message,
			Dead:      data.Dead,
			TeamOnly:  data.TeamOnly,
			CreatedOn: event.Timestamp,
		})
	case logparse.LobbyCreated, logparse.LobbyDestroyed:
		recreate(lobby, now)
	}
}

// recreate tears the session down wholesale: actives migrate into the
// departed set (skipping anyone already there) and a fresh session id is
// issued. Chat and the kill feed reference players by steam id and stay
// valid across the teardown.
func recreate(lobby *Lobby, now time.Time) {
	for _, player := range lobby.Players {
		if _, already := lobby.departed(player.SteamID); already {
			continue
		}

		player.DepartedOn = now
		lobby.Departed = append(lobby.Departed, player)
	}

	lobby.Players = nil
	lobby.SessionID = uuid.New()
}

func (e *Engine) applyEnrichment(msg events.Enrichment) {
	e.store.UpdatePlayer(msg.Subject(), func(player *Player) {
		switch result := msg.(type) {
		case events.Profile:
			player.Profile = &result
		case events.Friends:
			player.FriendsKnown = result.Known
			player.Friends = result.IDs
		case events.Playtime:
			player.PlaytimeMinutes = result.Minutes
		case events.Ban:
			player.Bans = append(player.Bans, result)
		case events.Reputation:
			player.Reputation = result.Summary
		case events.Marking:
			player.SetMarking(&result, result.Source)
		}
	})
}

// applyCommand persists a user flag toggle and re-broadcasts the resulting
// marking. Raw command passthrough is handled by its own bus subscriber.
func (e *Engine) applyCommand(ctx context.Context, cmd events.Command) {
	toggle, isToggle := cmd.(events.FlagCommand)
	if !isToggle || e.markings == nil {
		return
	}

	var (
		marking *events.Marking
		errFlag error
	)

	if toggle.Enable {
		var updated events.Marking
		updated, errFlag = e.markings.SetFlag(ctx, toggle.SteamID, toggle.Attr)
		marking = &updated
	} else {
		marking, errFlag = e.markings.ClearFlag(ctx, toggle.SteamID, toggle.Attr)
	}

	if errFlag != nil {
		slog.Error("Failed to persist flag toggle",
			slog.String("steam_id", toggle.SteamID.String()), slog.String("error", errFlag.Error()))

		return
	}

	e.markingUpdates.Publish(events.MarkingUpdate{
		SteamID: toggle.SteamID,
		Source:  events.SourceUser,
		Marking: marking,
	})

	e.store.UpdatePlayer(toggle.SteamID, func(player *Player) {
		player.SetMarking(marking, events.SourceUser)
	})
}

// attachMarkings loads any persisted marking for a newly established player.
func (e *Engine) attachMarkings(ctx context.Context, player *Player) {
	if e.markings == nil {
		return
	}

	marking, errGet := e.markings.Get(ctx, player.SteamID)
	if errGet != nil {
		slog.Error("Failed to load persisted marking",
			slog.String("steam_id", player.SteamID.String()), slog.String("error", errGet.Error()))

		return
	}

	if marking != nil {
		player.SetMarking(marking, marking.Source)
	}
}

// translateChat fills in translations for chat entries that have none yet.
// Best effort: a failed translation falls back to the original text and is
// not retried. The store lock is never held across the translator call.
func (e *Engine) translateChat(ctx context.Context) {
	if e.translator == nil {
		return
	}

	var pending []ChatMessage
	e.store.With(func(lobby *Lobby) {
		for _, msg := range lobby.Chat {
			if msg.Translated == "" {
				pending = append(pending, msg)
			}
		}
	})

	if len(pending) == 0 {
		return
	}

	translated := make(map[int]string, len(pending))
	for _, msg := range pending {
		text, errTranslate := e.translator.Translate(ctx, msg.Message)
		if errTranslate != nil || text == "" {
			text = msg.Message
		}

		translated[msg.Seq] = text
	}

	e.store.With(func(lobby *Lobby) {
		for idx := range lobby.Chat {
			if text, found := translated[lobby.Chat[idx].Seq]; found {
				lobby.Chat[idx].Translated = text
			}
		}
	})
}
