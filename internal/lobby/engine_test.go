package lobby

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/leighmacdonald/tf-lobby/internal/tf"
	"github.com/leighmacdonald/tf-lobby/internal/tf/dump"
	"github.com/leighmacdonald/tf-lobby/internal/tf/logparse"
	"github.com/stretchr/testify/require"
)

var (
	sidAlice = steamid.New(int32(111))
	sidBob   = steamid.New(int32(222))
)

type harness struct {
	engine         *Engine
	store          *Store
	rosters        *events.Topic[dump.Roster]
	logs           *events.Topic[logparse.Event]
	enrichment     *events.Topic[events.Enrichment]
	commands       *events.Topic[events.Command]
	markingUpdates <-chan events.MarkingUpdate
}

func newHarness(opts Opts, markings MarkingStore, translator Translator) *harness {
	var (
		store          = NewStore()
		rosters        = events.NewTopic[dump.Roster](8)
		logs           = events.NewTopic[logparse.Event](32)
		enrichment     = events.NewTopic[events.Enrichment](8)
		commands       = events.NewTopic[events.Command](8)
		markingUpdates = events.NewTopic[events.MarkingUpdate](8)
	)

	updates := markingUpdates.Subscribe()
	engine := NewEngine(store, opts, rosters, logs, enrichment, commands, markingUpdates, markings, translator)

	return &harness{
		engine:         engine,
		store:          store,
		rosters:        rosters,
		logs:           logs,
		enrichment:     enrichment,
		commands:       commands,
		markingUpdates: updates,
	}
}

func rosterOf(entries ...dump.Entry) dump.Roster {
	return dump.Roster{Players: entries, CreatedOn: time.Now()}
}

func entryAlice() dump.Entry {
	return dump.Entry{
		SteamID: sidAlice, UserID: 20, Name: "Alice", Team: tf.BLU,
		Connected: true, Valid: true, Alive: true, Health: 100, Ping: 42,
	}
}

func entryBob() dump.Entry {
	return dump.Entry{
		SteamID: sidBob, UserID: 21, Name: "Bob", Team: tf.RED,
		Connected: true, Valid: true, Alive: true, Health: 125, Ping: 60,
	}
}

func TestRosterUpsertAndMerge(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice(), entryBob()))
	h.engine.cycle(context.Background(), now)

	snap := h.store.Snapshot()
	require.Len(t, snap.Players, 2)
	require.Equal(t, "Alice", snap.Players[0].Name)
	require.Equal(t, tf.BLU, snap.Players[0].Team)
	require.Equal(t, 100, snap.Players[0].Health)
	require.Equal(t, now, snap.Players[0].LastSeen)

	// Field updates merge into the same player, arrival order is kept.
	hurt := entryAlice()
	hurt.Health = 12
	hurt.Alive = false
	h.rosters.Publish(rosterOf(hurt, entryBob()))
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap = h.store.Snapshot()
	require.Len(t, snap.Players, 2)
	require.Equal(t, sidAlice, snap.Players[0].SteamID)
	require.Equal(t, 12, snap.Players[0].Health)
	require.False(t, snap.Players[0].Alive)
	require.Empty(t, snap.Departed)
}

func TestRosterDiffMovesUnlistedToDeparted(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice(), entryBob()))
	h.engine.cycle(context.Background(), now)

	h.rosters.Publish(rosterOf(entryBob()))
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.Len(t, snap.Players, 1)
	require.Equal(t, sidBob, snap.Players[0].SteamID)
	require.Len(t, snap.Departed, 1)
	require.Equal(t, sidAlice, snap.Departed[0].SteamID)
}

func TestDepartedReappearanceWins(t *testing.T) {
	h := newHarness(Opts{Retention: time.Second * 30}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	h.rosters.Publish(rosterOf())
	h.engine.cycle(context.Background(), now.Add(time.Second))

	h.store.UpdatePlayer(sidAlice, func(*Player) { t.Fatal("departed player must not be active") })

	// Way past retention, but the player is back in the roster: restored to
	// active, removed from departed, nothing purged.
	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now.Add(time.Hour))

	snap := h.store.Snapshot()
	require.Len(t, snap.Players, 1)
	require.Empty(t, snap.Departed)
}

func TestDepartedPurgedAfterRetention(t *testing.T) {
	h := newHarness(Opts{Retention: time.Second * 30}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	h.rosters.Publish(rosterOf())
	h.engine.cycle(context.Background(), now.Add(time.Second))
	require.Len(t, h.store.Snapshot().Departed, 1)

	// Within retention: still there.
	h.engine.cycle(context.Background(), now.Add(time.Second*20))
	require.Len(t, h.store.Snapshot().Departed, 1)

	h.engine.cycle(context.Background(), now.Add(time.Minute))
	require.Empty(t, h.store.Snapshot().Departed)
}

func TestKillScenario(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice(), entryBob()))
	h.engine.cycle(context.Background(), now)

	ts := time.Date(2025, 8, 16, 1, 13, 52, 0, time.UTC)
	h.logs.Publish(logparse.Event{
		Type:      logparse.Kill,
		Timestamp: ts,
		Data:      logparse.KillEvent{Killer: "Alice", Victim: "Bob", Weapon: "rocketlauncher", Crit: true},
	})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	alice, _ := snap.Player(sidAlice)
	require.Equal(t, 1, alice.Kills)
	require.Equal(t, 1, alice.CritKills)
	require.Len(t, alice.KillLog, 1)
	require.Equal(t, "rocketlauncher", alice.KillLog[0].Weapon)

	bob, _ := snap.Player(sidBob)
	require.Equal(t, 1, bob.Deaths)
	require.Equal(t, 1, bob.CritDeaths)

	require.Len(t, snap.KillFeed, 1)
	feed := snap.KillFeed[0]
	require.Equal(t, sidAlice, feed.Killer)
	require.Equal(t, sidBob, feed.Victim)
	require.Equal(t, "rocketlauncher", feed.Weapon)
	require.True(t, feed.Crit)
	require.Equal(t, ts, feed.CreatedOn)
}

func TestUnknownNameDropped(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	// Bob was never surfaced by the roster feed; the log path must not
	// create identities.
	h.logs.Publish(logparse.Event{
		Type: logparse.Kill,
		Data: logparse.KillEvent{Killer: "Bob", Victim: "Alice", Weapon: "knife"},
	})
	h.logs.Publish(logparse.Event{
		Type: logparse.Chat,
		Data: logparse.ChatEvent{Player: "Bob", Message: "hello"},
	})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.Len(t, snap.Players, 1)
	alice, _ := snap.Player(sidAlice)
	require.Zero(t, alice.Deaths)
	require.Empty(t, snap.Chat)
	require.Empty(t, snap.KillFeed)
}

func TestChatAndSuicide(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	h.logs.Publish(logparse.Event{
		Type: logparse.Chat,
		Data: logparse.ChatEvent{Player: "Alice", Message: "hello", Dead: true, TeamOnly: true},
	})
	h.logs.Publish(logparse.Event{
		Type: logparse.Suicide,
		Data: logparse.SuicideEvent{Player: "Alice"},
	})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.Len(t, snap.Chat, 1)
	require.Equal(t, 1, snap.Chat[0].Seq)
	require.Equal(t, sidAlice, snap.Chat[0].SteamID)
	require.True(t, snap.Chat[0].Dead)
	require.True(t, snap.Chat[0].TeamOnly)

	alice, _ := snap.Player(sidAlice)
	require.Equal(t, 1, alice.Deaths)
}

func TestLobbyRecreateIdempotent(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice(), entryBob()))
	h.engine.cycle(context.Background(), now)
	session := h.store.Snapshot().SessionID

	h.logs.Publish(logparse.Event{Type: logparse.LobbyCreated})
	h.logs.Publish(logparse.Event{Type: logparse.LobbyCreated})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.Empty(t, snap.Players)
	// Migrated exactly once despite the duplicate lifecycle event.
	require.Len(t, snap.Departed, 2)
	require.NotEqual(t, session, snap.SessionID)
}

func TestFriendshipSymmetry(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice(), entryBob()))
	h.engine.cycle(context.Background(), now)

	// Alice's list is public and contains Bob; Bob's profile is private.
	h.enrichment.Publish(events.Friends{SteamID: sidAlice, Known: true, IDs: steamid.Collection{sidBob}})
	h.enrichment.Publish(events.Friends{SteamID: sidBob, Known: false})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.True(t, snap.AreFriends(sidAlice, sidBob))
	require.True(t, snap.AreFriends(sidBob, sidAlice))
}

func TestFriendshipIgnoresNonMembers(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	stranger := steamid.New(int32(999))
	h.enrichment.Publish(events.Friends{SteamID: sidAlice, Known: true, IDs: steamid.Collection{stranger}})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.False(t, snap.AreFriends(sidAlice, stranger))
}

func TestEnrichmentApplied(t *testing.T) {
	h := newHarness(Opts{}, nil, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	created := time.Date(2010, 1, 2, 0, 0, 0, 0, time.UTC)
	h.enrichment.Publish(events.Profile{SteamID: sidAlice, PersonaName: "alice_", TimeCreated: created})
	h.enrichment.Publish(events.Playtime{SteamID: sidAlice, Minutes: 1234})
	h.enrichment.Publish(events.Ban{SteamID: sidAlice, SiteName: "example", VACBans: 1})
	h.enrichment.Publish(events.Reputation{SteamID: sidAlice, Summary: "suspicious"})
	h.enrichment.Publish(events.Marking{SteamID: sidAlice, Source: "bd.example", Attributes: []string{"cheater"}})
	// Enrichment for players not in the lobby is a silent no-op.
	h.enrichment.Publish(events.Playtime{SteamID: sidBob, Minutes: 1})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	alice, _ := snap.Player(sidAlice)
	require.NotNil(t, alice.Profile)
	require.Equal(t, "alice_", alice.Profile.PersonaName)
	require.Equal(t, created, alice.Profile.TimeCreated)
	require.Equal(t, 1234, alice.PlaytimeMinutes)
	require.Len(t, alice.Bans, 1)
	require.Equal(t, "suspicious", alice.Reputation)

	marking, found := alice.Marking("bd.example")
	require.True(t, found)
	require.Equal(t, []string{"cheater"}, marking.Attributes)
}

type fakeMarkings struct {
	rows map[steamid.SteamID][]string
}

func newFakeMarkings() *fakeMarkings {
	return &fakeMarkings{rows: map[steamid.SteamID][]string{}}
}

func (f *fakeMarkings) Get(_ context.Context, sid steamid.SteamID) (*events.Marking, error) {
	attrs, found := f.rows[sid]
	if !found {
		return nil, nil //nolint:nilnil
	}

	return &events.Marking{SteamID: sid, Source: events.SourceUser, Attributes: slices.Clone(attrs)}, nil
}

func (f *fakeMarkings) SetFlag(_ context.Context, sid steamid.SteamID, attr string) (events.Marking, error) {
	if !slices.Contains(f.rows[sid], attr) {
		f.rows[sid] = append(f.rows[sid], attr)
	}

	return events.Marking{SteamID: sid, Source: events.SourceUser, Attributes: slices.Clone(f.rows[sid])}, nil
}

func (f *fakeMarkings) ClearFlag(_ context.Context, sid steamid.SteamID, attr string) (*events.Marking, error) {
	f.rows[sid] = slices.DeleteFunc(f.rows[sid], func(a string) bool { return a == attr })
	if len(f.rows[sid]) == 0 {
		delete(f.rows, sid)

		return nil, nil //nolint:nilnil
	}

	return &events.Marking{SteamID: sid, Source: events.SourceUser, Attributes: slices.Clone(f.rows[sid])}, nil
}

func TestFlagToggleRoundTrip(t *testing.T) {
	markings := newFakeMarkings()
	h := newHarness(Opts{}, markings, nil)
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	h.commands.Publish(events.FlagCommand{SteamID: sidAlice, Attr: "suspicious", Enable: true})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	updates := events.Drain(h.markingUpdates)
	require.Len(t, updates, 1)
	require.Equal(t, sidAlice, updates[0].SteamID)
	require.Equal(t, events.SourceUser, updates[0].Source)
	require.NotNil(t, updates[0].Marking)
	require.Equal(t, []string{"suspicious"}, updates[0].Marking.Attributes)

	snap := h.store.Snapshot()
	alice, _ := snap.Player(sidAlice)
	marking, found := alice.Marking(events.SourceUser)
	require.True(t, found)
	require.Equal(t, []string{"suspicious"}, marking.Attributes)

	// Clearing the only flag removes the marking entirely.
	h.commands.Publish(events.FlagCommand{SteamID: sidAlice, Attr: "suspicious", Enable: false})
	h.engine.cycle(context.Background(), now.Add(time.Second*2))

	updates = events.Drain(h.markingUpdates)
	require.Len(t, updates, 1)
	require.Nil(t, updates[0].Marking)

	snap = h.store.Snapshot()
	alice, _ = snap.Player(sidAlice)
	_, found = alice.Marking(events.SourceUser)
	require.False(t, found)
}

func TestPersistedMarkingAttachedOnUpsert(t *testing.T) {
	markings := newFakeMarkings()
	markings.rows[sidAlice] = []string{"cheater"}

	h := newHarness(Opts{}, markings, nil)
	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), time.Now())

	snap := h.store.Snapshot()
	alice, _ := snap.Player(sidAlice)
	marking, found := alice.Marking(events.SourceUser)
	require.True(t, found)
	require.Equal(t, []string{"cheater"}, marking.Attributes)
}

type fakeTranslator struct {
	failOn string
}

func (f fakeTranslator) Translate(_ context.Context, message string) (string, error) {
	if message == f.failOn {
		return "", errors.New("translation backend down")
	}

	return strings.ToUpper(message), nil
}

func TestChatTranslationBestEffort(t *testing.T) {
	h := newHarness(Opts{}, nil, fakeTranslator{failOn: "bonjour"})
	now := time.Now()

	h.rosters.Publish(rosterOf(entryAlice()))
	h.engine.cycle(context.Background(), now)

	h.logs.Publish(logparse.Event{Type: logparse.Chat, Data: logparse.ChatEvent{Player: "Alice", Message: "hola"}})
	h.logs.Publish(logparse.Event{Type: logparse.Chat, Data: logparse.ChatEvent{Player: "Alice", Message: "bonjour"}})
	h.engine.cycle(context.Background(), now.Add(time.Second))

	snap := h.store.Snapshot()
	require.Len(t, snap.Chat, 2)
	require.Equal(t, "HOLA", snap.Chat[0].Translated)
	// Failure falls back to the original text instead of blocking.
	require.Equal(t, "bonjour", snap.Chat[1].Translated)
}
