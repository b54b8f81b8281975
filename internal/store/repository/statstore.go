package repository

import (
	"context"
	"time"

	"github.com/fortuna/pomona/internal/store"
)

// StatStore bundles the repositories behind the query-shaped operations the
// engine, orchestrator, refresher and read services depend on.
type StatStore struct {
	db          *store.Database
	Teams       *TeamRepository
	Players     *PlayerRepository
	Games       *GameRepository
	Stats       *StatsRepository
	Projections *ProjectionRepository
	RefreshLogs *RefreshLogRepository
}

// NewStatStore wires every repository against one database
func NewStatStore(db *store.Database) *StatStore {
	return &StatStore{
		db:          db,
		Teams:       NewTeamRepository(db),
		Players:     NewPlayerRepository(db),
		Games:       NewGameRepository(db),
		Stats:       NewStatsRepository(db),
		Projections: NewProjectionRepository(db),
		RefreshLogs: NewRefreshLogRepository(db),
	}
}

func (s *StatStore) ActivePlayers(ctx context.Context, sport store.Sport, date time.Time) ([]store.ActivePlayer, error) {
	return s.Players.ActiveWithGames(ctx, sport, date)
}

func (s *StatStore) RecentSamples(ctx context.Context, playerID int, sport store.Sport, before time.Time, k int) ([]store.StatSample, error) {
	return s.Stats.RecentSamples(ctx, playerID, sport, before, k)
}

func (s *StatStore) LastGameDateBefore(ctx context.Context, playerID int, date time.Time) (time.Time, bool, error) {
	return s.Stats.LastGameDateBefore(ctx, playerID, date)
}

func (s *StatStore) GameContext(ctx context.Context, playerID int, date time.Time) (*store.GameContext, error) {
	return s.Games.ContextForPlayer(ctx, playerID, date)
}

func (s *StatStore) SaveProjections(ctx context.Context, projections []*store.Projection) error {
	return s.Projections.SaveAll(ctx, projections)
}

func (s *StatStore) ProjectionsForDate(ctx context.Context, sport store.Sport, date time.Time, limit int) ([]*store.Projection, error) {
	return s.Projections.GetByDate(ctx, sport, date, limit)
}

func (s *StatStore) PlayerProjection(ctx context.Context, playerID int, date time.Time) (*store.Projection, error) {
	return s.Projections.GetForPlayer(ctx, playerID, date)
}

func (s *StatStore) StartRefreshLog(ctx context.Context, entry *store.RefreshLog) error {
	return s.RefreshLogs.Start(ctx, entry)
}

func (s *StatStore) CompleteRefreshLog(ctx context.Context, id int64, result store.RefreshResult) error {
	return s.RefreshLogs.Complete(ctx, id, result)
}

func (s *StatStore) RecentRefreshLogs(ctx context.Context, limit int) ([]*store.RefreshLog, error) {
	return s.RefreshLogs.Recent(ctx, limit)
}

func (s *StatStore) DeleteRefreshLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.RefreshLogs.DeleteBefore(ctx, cutoff)
}

func (s *StatStore) DeleteProjectionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.Projections.DeleteBefore(ctx, cutoff)
}

func (s *StatStore) DeleteStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.Stats.DeleteBefore(ctx, cutoff)
}

func (s *StatStore) UpsertTeam(ctx context.Context, team *store.Team) error {
	return s.Teams.Upsert(ctx, team)
}

func (s *StatStore) UpsertPlayer(ctx context.Context, player *store.Player) error {
	return s.Players.Upsert(ctx, player)
}

func (s *StatStore) UpsertGame(ctx context.Context, game *store.Game) error {
	return s.Games.Upsert(ctx, game)
}

func (s *StatStore) UpsertPlayerStats(ctx context.Context, stats *store.PlayerGameStats) error {
	return s.Stats.UpsertPlayerStats(ctx, stats)
}

func (s *StatStore) UpdatePlayerStatus(ctx context.Context, sport store.Sport, externalID string, status store.Availability) error {
	return s.Players.UpdateStatus(ctx, sport, externalID, status)
}

func (s *StatStore) TeamByExternalID(ctx context.Context, sport store.Sport, externalID string) (*store.Team, error) {
	return s.Teams.GetByExternalID(ctx, sport, externalID)
}

func (s *StatStore) PlayerByExternalID(ctx context.Context, sport store.Sport, externalID string) (*store.Player, error) {
	return s.Players.GetByExternalID(ctx, sport, externalID)
}

// Ping reports database connectivity
func (s *StatStore) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
