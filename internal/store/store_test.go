package store_test

import (
	"context"
	"testing"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/leighmacdonald/tf-lobby/internal/store"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMarkingRoundTrip(t *testing.T) {
	ctx := context.Background()

	db, errOpen := store.Open(ctx, "", true)
	require.NoError(t, errOpen)

	defer db.Close()

	markings := store.NewMarkings(db)
	sid := steamid.New(int32(111))

	got, errGet := markings.Get(ctx, sid)
	require.NoError(t, errGet)
	require.Nil(t, got)

	first, errSet := markings.SetFlag(ctx, sid, "cheater")
	require.NoError(t, errSet)
	require.Equal(t, events.SourceUser, first.Source)
	require.Equal(t, []string{"cheater"}, first.Attributes)

	second, errSet2 := markings.SetFlag(ctx, sid, "bot")
	require.NoError(t, errSet2)
	require.Equal(t, []string{"cheater", "bot"}, second.Attributes)

	// Setting an attribute twice does not duplicate it.
	again, errSet3 := markings.SetFlag(ctx, sid, "bot")
	require.NoError(t, errSet3)
	require.Equal(t, []string{"cheater", "bot"}, again.Attributes)

	persisted, errGet2 := markings.Get(ctx, sid)
	require.NoError(t, errGet2)
	require.NotNil(t, persisted)
	require.Equal(t, sid.Int64(), persisted.SteamID.Int64())
	require.Equal(t, []string{"cheater", "bot"}, persisted.Attributes)

	all, errAll := markings.All(ctx)
	require.NoError(t, errAll)
	require.Len(t, all, 1)
}

func TestMarkingClearFlag(t *testing.T) {
	ctx := context.Background()

	db, errOpen := store.Open(ctx, "", true)
	require.NoError(t, errOpen)

	defer db.Close()

	markings := store.NewMarkings(db)
	sid := steamid.New(int32(222))

	// Clearing a flag on an unknown account is a no-op.
	cleared, errClear := markings.ClearFlag(ctx, sid, "cheater")
	require.NoError(t, errClear)
	require.Nil(t, cleared)

	_, errSet := markings.SetFlag(ctx, sid, "cheater")
	require.NoError(t, errSet)
	_, errSet2 := markings.SetFlag(ctx, sid, "bot")
	require.NoError(t, errSet2)

	remaining, errClear2 := markings.ClearFlag(ctx, sid, "cheater")
	require.NoError(t, errClear2)
	require.NotNil(t, remaining)
	require.Equal(t, []string{"bot"}, remaining.Attributes)

	// Removing the last attribute deletes the row entirely.
	empty, errClear3 := markings.ClearFlag(ctx, sid, "bot")
	require.NoError(t, errClear3)
	require.Nil(t, empty)

	got, errGet := markings.Get(ctx, sid)
	require.NoError(t, errGet)
	require.Nil(t, got)
}
