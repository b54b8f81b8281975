package memstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pomona/internal/store"
)

func day(v string) time.Time {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	store *Store
	home  store.Team
	away  store.Team
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := New()

	home := store.Team{Sport: store.SportNBA, ExternalID: "1", Abbreviation: "CHI", Name: "Bulls"}
	away := store.Team{Sport: store.SportNBA, ExternalID: "2", Abbreviation: "BOS", Name: "Celtics"}
	require.NoError(t, s.UpsertTeam(ctx, &home))
	require.NoError(t, s.UpsertTeam(ctx, &away))

	return &fixture{store: s, home: home, away: away}
}

func (f *fixture) player(t *testing.T, ext string, team store.Team, status store.Availability) store.Player {
	t.Helper()
	p := store.Player{
		Sport:      store.SportNBA,
		ExternalID: ext,
		FirstName:  "Player",
		LastName:   ext,
		TeamID:     sql.NullInt32{Int32: int32(team.TeamID), Valid: true},
		Status:     status,
	}
	require.NoError(t, f.store.UpsertPlayer(context.Background(), &p))
	return p
}

func (f *fixture) game(t *testing.T, ext, date, status string) store.Game {
	t.Helper()
	g := store.Game{
		Sport:      store.SportNBA,
		ExternalID: ext,
		Season:     "2025",
		GameDate:   day(date),
		HomeTeamID: f.home.TeamID,
		AwayTeamID: f.away.TeamID,
		Status:     status,
		Venue:      sql.NullString{String: "United Center", Valid: true},
	}
	require.NoError(t, f.store.UpsertGame(context.Background(), &g))
	return g
}

func (f *fixture) points(t *testing.T, g store.Game, p store.Player, pts int32) {
	t.Helper()
	st := store.PlayerGameStats{
		GameID:   g.GameID,
		PlayerID: p.PlayerID,
		Sport:    store.SportNBA,
		Points:   sql.NullInt32{Int32: pts, Valid: true},
	}
	require.NoError(t, f.store.UpsertPlayerStats(context.Background(), &st))
}

func TestUpsertKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again := store.Team{Sport: store.SportNBA, ExternalID: "1", Abbreviation: "CHI", Name: "Chicago Bulls"}
	require.NoError(t, f.store.UpsertTeam(ctx, &again))
	assert.Equal(t, f.home.TeamID, again.TeamID)

	got, err := f.store.TeamByExternalID(ctx, store.SportNBA, "1")
	require.NoError(t, err)
	assert.Equal(t, "Chicago Bulls", got.Name)

	_, err = f.store.TeamByExternalID(ctx, store.SportNFL, "1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestActivePlayersSkipsRuledOutAndNonScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.player(t, "a", f.home, store.AvailabilityActive)
	questionable := f.player(t, "q", f.away, store.AvailabilityQuestionable)
	f.player(t, "o", f.home, store.AvailabilityOut)
	f.player(t, "i", f.home, store.AvailabilityInjured)
	game := f.game(t, "g1", "2025-01-10", store.GameStatusScheduled)
	f.game(t, "g2", "2025-01-11", store.GameStatusFinal)

	players, err := f.store.ActivePlayers(ctx, store.SportNBA, day("2025-01-10"))
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, active.PlayerID, players[0].PlayerID)
	assert.Equal(t, questionable.PlayerID, players[1].PlayerID)
	assert.Equal(t, game.GameID, players[0].GameID)
	assert.Equal(t, "Player a", players[0].Name)

	players, err = f.store.ActivePlayers(ctx, store.SportNBA, day("2025-01-11"))
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestRecentSamplesOrderingAndCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.player(t, "a", f.home, store.AvailabilityActive)
	dates := []string{"2025-01-01", "2025-01-03", "2025-01-05", "2025-01-07"}
	for i, d := range dates {
		g := f.game(t, d, d, store.GameStatusFinal)
		f.points(t, g, p, int32(10+i))
	}
	// scheduled games never count as history
	f.game(t, "future", "2025-01-06", store.GameStatusScheduled)

	samples, err := f.store.RecentSamples(ctx, p.PlayerID, store.SportNBA, day("2025-01-07"), 5)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 12.0, samples[0].Value(store.StatPoints))
	assert.Equal(t, 11.0, samples[1].Value(store.StatPoints))
	assert.Equal(t, 10.0, samples[2].Value(store.StatPoints))

	samples, err = f.store.RecentSamples(ctx, p.PlayerID, store.SportNBA, day("2025-01-08"), 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 13.0, samples[0].Value(store.StatPoints))

	last, ok, err := f.store.LastGameDateBefore(ctx, p.PlayerID, day("2025-01-07"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-01-05", last.Format("2006-01-02"))

	_, ok, err = f.store.LastGameDateBefore(ctx, p.PlayerID, day("2025-01-01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGameContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	homePlayer := f.player(t, "h", f.home, store.AvailabilityLimited)
	awayPlayer := f.player(t, "a", f.away, store.AvailabilityActive)
	g := f.game(t, "g1", "2025-01-10", store.GameStatusScheduled)

	gc, err := f.store.GameContext(ctx, homePlayer.PlayerID, day("2025-01-10"))
	require.NoError(t, err)
	assert.True(t, gc.IsHome)
	assert.Equal(t, g.GameID, gc.GameID)
	assert.Equal(t, store.AvailabilityLimited, gc.Availability)
	assert.Equal(t, "United Center", gc.Venue)

	gc, err = f.store.GameContext(ctx, awayPlayer.PlayerID, day("2025-01-10"))
	require.NoError(t, err)
	assert.False(t, gc.IsHome)

	_, err = f.store.GameContext(ctx, homePlayer.PlayerID, day("2025-01-12"))
	assert.True(t, errors.Is(err, store.ErrContextNotFound))
}

func TestSaveProjectionsUpsertsByKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := &store.Projection{
		PlayerID:       7,
		GameID:         3,
		Sport:          store.SportNBA,
		ProjectionDate: day("2025-01-10"),
		Stats:          map[store.Stat]float64{store.StatPoints: 20},
		FruitScore:     70,
	}
	require.NoError(t, s.SaveProjections(ctx, []*store.Projection{p}))

	p.Stats[store.StatPoints] = 25
	p.FruitScore = 81
	require.NoError(t, s.SaveProjections(ctx, []*store.Projection{p}))

	assert.Equal(t, 1, s.ProjectionCount())
	got, err := s.PlayerProjection(ctx, 7, day("2025-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Stats[store.StatPoints])
	assert.Equal(t, 81, got.FruitScore)

	list, err := s.ProjectionsForDate(ctx, store.SportNFL, day("2025-01-10"), 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ProjectionsForDate(ctx, "", day("2025-01-10"), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRefreshLogCompletesOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC)

	entry := &store.RefreshLog{RunID: "run", JobKind: "full_refresh", StartedAt: start}
	require.NoError(t, s.StartRefreshLog(ctx, entry))
	require.NotZero(t, entry.ID)

	require.NoError(t, s.CompleteRefreshLog(ctx, entry.ID, store.RefreshResult{
		Status:           store.RefreshSuccess,
		RecordsProcessed: 12,
		CompletedAt:      start.Add(2 * time.Second),
		Duration:         2 * time.Second,
	}))
	require.NoError(t, s.CompleteRefreshLog(ctx, entry.ID, store.RefreshResult{
		Status:      store.RefreshError,
		Err:         errors.New("late"),
		CompletedAt: start.Add(time.Minute),
	}))

	logs, err := s.RecentRefreshLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.RefreshSuccess, logs[0].Status)
	assert.Equal(t, 12, logs[0].RecordsProcessed)
	assert.Equal(t, int64(2000), logs[0].DurationMS.Int64)
	assert.False(t, logs[0].ErrorMessage.Valid)
}

func TestDeleteBeforeIsStrict(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -30)

	for _, started := range []time.Time{cutoff.Add(-time.Second), cutoff, cutoff.Add(time.Hour)} {
		require.NoError(t, s.StartRefreshLog(ctx, &store.RefreshLog{JobKind: "midday_update", StartedAt: started}))
	}

	n, err := s.DeleteRefreshLogsBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	logs, err := s.RecentRefreshLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.False(t, l.StartedAt.Before(cutoff))
	}
}

func TestDeleteProjectionsAndStatsBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.player(t, "a", f.home, store.AvailabilityActive)
	old := f.game(t, "old", "2025-01-01", store.GameStatusFinal)
	kept := f.game(t, "kept", "2025-01-15", store.GameStatusFinal)
	f.points(t, old, p, 10)
	f.points(t, kept, p, 20)

	require.NoError(t, f.store.SaveProjections(ctx, []*store.Projection{
		{PlayerID: p.PlayerID, GameID: old.GameID, ProjectionDate: day("2025-01-01")},
		{PlayerID: p.PlayerID, GameID: kept.GameID, ProjectionDate: day("2025-01-15")},
	}))

	n, err := f.store.DeleteStatsBefore(ctx, day("2025-01-15"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.store.DeleteProjectionsBefore(ctx, day("2025-01-15"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.store.ProjectionCount())

	samples, err := f.store.RecentSamples(ctx, p.PlayerID, store.SportNBA, day("2025-02-01"), 5)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 20.0, samples[0].Value(store.StatPoints))
}

func TestZeroLimitReturnsEverything(t *testing.T) {
	s := New()
	ctx := context.Background()

	var batch []*store.Projection
	for i := 1; i <= 3; i++ {
		batch = append(batch, &store.Projection{
			PlayerID:       i,
			GameID:         1,
			Sport:          store.SportNBA,
			ProjectionDate: day("2025-01-10"),
			FruitScore:     50 + i,
		})
	}
	require.NoError(t, s.SaveProjections(ctx, batch))

	list, err := s.ProjectionsForDate(ctx, "", day("2025-01-10"), 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = s.ProjectionsForDate(ctx, "", day("2025-01-10"), 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.StartRefreshLog(ctx, &store.RefreshLog{RunID: "r", JobKind: "midday_update", StartedAt: day("2025-01-10")}))
	}
	logs, err := s.RecentRefreshLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}
