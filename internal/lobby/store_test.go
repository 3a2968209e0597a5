package lobby_test

import (
	"testing"
	"time"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/lobby"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsIndependentCopy(t *testing.T) {
	store := lobby.NewStore()
	sid := steamid.New(int32(111))

	store.With(func(l *lobby.Lobby) {
		l.Players = append(l.Players, &lobby.Player{SteamID: sid, Name: "Alice", Health: 100})
		l.Chat = append(l.Chat, lobby.ChatMessage{Seq: 1, SteamID: sid, Message: "hi", CreatedOn: time.Now()})
	})

	snap := store.Snapshot()

	store.With(func(l *lobby.Lobby) {
		l.Players[0].Name = "Mallory"
		l.Players[0].Health = 1
		l.Chat[0].Message = "changed"
		l.Players = nil
	})

	require.Len(t, snap.Players, 1)
	require.Equal(t, "Alice", snap.Players[0].Name)
	require.Equal(t, 100, snap.Players[0].Health)
	require.Equal(t, "hi", snap.Chat[0].Message)
}

func TestUpdatePlayer(t *testing.T) {
	store := lobby.NewStore()
	sid := steamid.New(int32(111))

	require.False(t, store.UpdatePlayer(sid, func(*lobby.Player) {
		t.Fatal("mutation must not run for unknown players")
	}))

	store.With(func(l *lobby.Lobby) {
		l.Players = append(l.Players, &lobby.Player{SteamID: sid})
	})

	require.True(t, store.UpdatePlayer(sid, func(p *lobby.Player) {
		p.Reputation = "trusted"
	}))

	snap := store.Snapshot()
	require.Equal(t, "trusted", snap.Players[0].Reputation)
}

func TestAreFriendsOnEmptyLobby(t *testing.T) {
	store := lobby.NewStore()
	snap := store.Snapshot()
	require.False(t, snap.AreFriends(steamid.New(int32(1)), steamid.New(int32(2))))
}
