package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fortuna/pomona/internal/store"
)

type statKey struct {
	gameID   int
	playerID int
}

type projectionKey struct {
	playerID int
	gameID   int
	date     string
}

type externalKey struct {
	sport store.Sport
	id    string
}

// Store keeps a thread-safe copy of the stat store in memory.
type Store struct {
	mu sync.RWMutex

	teams       map[int]store.Team
	players     map[int]store.Player
	games       map[int]store.Game
	stats       map[statKey]store.PlayerGameStats
	projections map[projectionKey]store.Projection
	logs        map[int64]store.RefreshLog

	teamsByExt   map[externalKey]int
	playersByExt map[externalKey]int
	gamesByExt   map[externalKey]int

	nextTeamID   int
	nextPlayerID int
	nextGameID   int
	nextStatID   int
	nextLogID    int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		teams:        make(map[int]store.Team),
		players:      make(map[int]store.Player),
		games:        make(map[int]store.Game),
		stats:        make(map[statKey]store.PlayerGameStats),
		projections:  make(map[projectionKey]store.Projection),
		logs:         make(map[int64]store.RefreshLog),
		teamsByExt:   make(map[externalKey]int),
		playersByExt: make(map[externalKey]int),
		gamesByExt:   make(map[externalKey]int),
	}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// UpsertTeam inserts or updates a team keyed by (sport, external id).
func (s *Store) UpsertTeam(_ context.Context, team *store.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey{team.Sport, team.ExternalID}
	id, ok := s.teamsByExt[key]
	if !ok {
		s.nextTeamID++
		id = s.nextTeamID
		s.teamsByExt[key] = id
	}
	team.TeamID = id
	s.teams[id] = *team
	return nil
}

// UpsertPlayer inserts or updates a player keyed by (sport, external id).
func (s *Store) UpsertPlayer(_ context.Context, player *store.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey{player.Sport, player.ExternalID}
	id, ok := s.playersByExt[key]
	if !ok {
		s.nextPlayerID++
		id = s.nextPlayerID
		s.playersByExt[key] = id
	}
	player.PlayerID = id
	if player.Status == "" {
		player.Status = store.AvailabilityActive
	}
	s.players[id] = *player
	return nil
}

// UpsertGame inserts or updates a game keyed by (sport, external id).
func (s *Store) UpsertGame(_ context.Context, game *store.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey{game.Sport, game.ExternalID}
	id, ok := s.gamesByExt[key]
	if !ok {
		s.nextGameID++
		id = s.nextGameID
		s.gamesByExt[key] = id
	}
	game.GameID = id
	if game.Status == "" {
		game.Status = store.GameStatusScheduled
	}
	s.games[id] = *game
	return nil
}

// UpsertPlayerStats inserts or updates a box score line keyed by (game, player).
func (s *Store) UpsertPlayerStats(_ context.Context, stats *store.PlayerGameStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[stats.GameID]; !ok {
		return fmt.Errorf("upserting player stats: game %d: %w", stats.GameID, store.ErrNotFound)
	}

	key := statKey{stats.GameID, stats.PlayerID}
	if existing, ok := s.stats[key]; ok {
		stats.ID = existing.ID
	} else {
		s.nextStatID++
		stats.ID = s.nextStatID
	}
	s.stats[key] = *stats
	return nil
}

// UpdatePlayerStatus sets availability for the player with the given upstream id.
func (s *Store) UpdatePlayerStatus(_ context.Context, sport store.Sport, externalID string, status store.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.playersByExt[externalKey{sport, externalID}]
	if !ok {
		return nil
	}
	p := s.players[id]
	p.Status = status
	s.players[id] = p
	return nil
}

// TeamByExternalID looks a team up by upstream id.
func (s *Store) TeamByExternalID(_ context.Context, sport store.Sport, externalID string) (*store.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.teamsByExt[externalKey{sport, externalID}]
	if !ok {
		return nil, fmt.Errorf("team %s/%s: %w", sport, externalID, store.ErrNotFound)
	}
	t := s.teams[id]
	return &t, nil
}

// PlayerByExternalID looks a player up by upstream id.
func (s *Store) PlayerByExternalID(_ context.Context, sport store.Sport, externalID string) (*store.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.playersByExt[externalKey{sport, externalID}]
	if !ok {
		return nil, fmt.Errorf("player %s/%s: %w", sport, externalID, store.ErrNotFound)
	}
	p := s.players[id]
	return &p, nil
}

// gameForTeam returns the lowest-id game for a team on a date. Caller holds the lock.
func (s *Store) gameForTeam(sport store.Sport, teamID int, date string, scheduledOnly bool) (store.Game, bool) {
	var (
		found store.Game
		ok    bool
	)
	for _, g := range s.games {
		if g.Sport != sport || dateKey(g.GameDate) != date {
			continue
		}
		if g.HomeTeamID != teamID && g.AwayTeamID != teamID {
			continue
		}
		if scheduledOnly && g.Status != store.GameStatusScheduled {
			continue
		}
		if !ok || g.GameID < found.GameID {
			found, ok = g, true
		}
	}
	return found, ok
}

// ActivePlayers returns players not ruled out whose team has a scheduled game on date.
func (s *Store) ActivePlayers(_ context.Context, sport store.Sport, date time.Time) ([]store.ActivePlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	var out []store.ActivePlayer
	for _, p := range s.players {
		if p.Sport != sport || !p.TeamID.Valid || p.Status.IsRuledOut() {
			continue
		}
		g, ok := s.gameForTeam(sport, int(p.TeamID.Int32), day, true)
		if !ok {
			continue
		}
		out = append(out, store.ActivePlayer{
			PlayerID: p.PlayerID,
			Sport:    p.Sport,
			GameID:   g.GameID,
			TeamID:   int(p.TeamID.Int32),
			Name:     p.FullName(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

// RecentSamples returns up to k final-game samples before the date, most recent first.
func (s *Store) RecentSamples(_ context.Context, playerID int, sport store.Sport, before time.Time, k int) ([]store.StatSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := dateKey(before)
	var samples []store.StatSample
	for key, st := range s.stats {
		if key.playerID != playerID || st.Sport != sport {
			continue
		}
		g := s.games[key.gameID]
		if g.Status != store.GameStatusFinal || dateKey(g.GameDate) >= cutoff {
			continue
		}
		samples = append(samples, store.StatSample{
			PlayerID: playerID,
			GameID:   g.GameID,
			GameDate: g.GameDate,
			Values:   st.Values(),
		})
	}

	sort.Slice(samples, func(i, j int) bool {
		di, dj := dateKey(samples[i].GameDate), dateKey(samples[j].GameDate)
		if di != dj {
			return di > dj
		}
		return samples[i].GameID > samples[j].GameID
	})
	if k > 0 && len(samples) > k {
		samples = samples[:k]
	}
	return samples, nil
}

// LastGameDateBefore returns the most recent game date with a stat line for the player.
func (s *Store) LastGameDateBefore(_ context.Context, playerID int, date time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := dateKey(date)
	var (
		last  time.Time
		found bool
	)
	for key := range s.stats {
		if key.playerID != playerID {
			continue
		}
		g := s.games[key.gameID]
		if dateKey(g.GameDate) >= cutoff {
			continue
		}
		if !found || dateKey(g.GameDate) > dateKey(last) {
			last, found = g.GameDate, true
		}
	}
	return last, found, nil
}

// GameContext resolves the player's game on date.
func (s *Store) GameContext(_ context.Context, playerID int, date time.Time) (*store.GameContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	p, ok := s.players[playerID]
	if !ok || !p.TeamID.Valid {
		return nil, fmt.Errorf("player %d on %s: %w", playerID, day, store.ErrContextNotFound)
	}
	teamID := int(p.TeamID.Int32)
	g, ok := s.gameForTeam(p.Sport, teamID, day, false)
	if !ok {
		return nil, fmt.Errorf("player %d on %s: %w", playerID, day, store.ErrContextNotFound)
	}

	return &store.GameContext{
		PlayerID:     playerID,
		TeamID:       teamID,
		GameID:       g.GameID,
		GameDate:     g.GameDate,
		IsHome:       g.HomeTeamID == teamID,
		Venue:        g.Venue.String,
		Availability: p.Status,
	}, nil
}

// SaveProjections upserts all projections under one lock.
func (s *Store) SaveProjections(_ context.Context, projections []*store.Projection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range projections {
		key := projectionKey{p.PlayerID, p.GameID, dateKey(p.ProjectionDate)}
		s.projections[key] = cloneProjection(*p)
	}
	return nil
}

// ProjectionsForDate returns projections on date by fruit score; empty sport matches all.
func (s *Store) ProjectionsForDate(_ context.Context, sport store.Sport, date time.Time, limit int) ([]*store.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	var out []*store.Projection
	for key, p := range s.projections {
		if key.date != day || (sport != "" && p.Sport != sport) {
			continue
		}
		cp := cloneProjection(p)
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FruitScore != out[j].FruitScore {
			return out[i].FruitScore > out[j].FruitScore
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PlayerProjection returns the newest projection for the player on date.
func (s *Store) PlayerProjection(_ context.Context, playerID int, date time.Time) (*store.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := dateKey(date)
	var found *store.Projection
	for key, p := range s.projections {
		if key.playerID != playerID || key.date != day {
			continue
		}
		if found == nil || p.LastUpdated.After(found.LastUpdated) {
			cp := cloneProjection(p)
			found = &cp
		}
	}
	if found == nil {
		return nil, fmt.Errorf("projection for player %d: %w", playerID, store.ErrNotFound)
	}
	return found, nil
}

// ProjectionCount reports the number of live projection rows.
func (s *Store) ProjectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projections)
}

// StartRefreshLog inserts a running log row.
func (s *Store) StartRefreshLog(_ context.Context, entry *store.RefreshLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	entry.ID = s.nextLogID
	entry.Status = store.RefreshRunning
	s.logs[entry.ID] = *entry
	return nil
}

// CompleteRefreshLog moves a running row to its terminal state once.
func (s *Store) CompleteRefreshLog(_ context.Context, id int64, result store.RefreshResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("refresh log %d: %w", id, store.ErrNotFound)
	}
	if entry.Status != store.RefreshRunning {
		return nil
	}

	entry.Status = result.Status
	entry.RecordsProcessed = result.RecordsProcessed
	if result.Err != nil {
		entry.ErrorMessage.String, entry.ErrorMessage.Valid = result.Err.Error(), true
	}
	entry.CompletedAt.Time, entry.CompletedAt.Valid = result.CompletedAt, true
	entry.DurationMS.Int64, entry.DurationMS.Valid = result.Duration.Milliseconds(), true
	s.logs[id] = entry
	return nil
}

// RecentRefreshLogs returns log rows newest first.
func (s *Store) RecentRefreshLogs(_ context.Context, limit int) ([]*store.RefreshLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.RefreshLog, 0, len(s.logs))
	for _, entry := range s.logs {
		e := entry
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteRefreshLogsBefore removes rows started strictly before cutoff.
func (s *Store) DeleteRefreshLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, entry := range s.logs {
		if entry.StartedAt.Before(cutoff) {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

// DeleteProjectionsBefore removes projections dated strictly before cutoff.
func (s *Store) DeleteProjectionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := dateKey(cutoff)
	var n int64
	for key := range s.projections {
		if key.date < day {
			delete(s.projections, key)
			n++
		}
	}
	return n, nil
}

// DeleteStatsBefore removes stat lines for games dated strictly before cutoff.
func (s *Store) DeleteStatsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := dateKey(cutoff)
	var n int64
	for key := range s.stats {
		if dateKey(s.games[key.gameID].GameDate) < day {
			delete(s.stats, key)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

func cloneProjection(p store.Projection) store.Projection {
	p.Stats = cloneStats(p.Stats)
	p.BaseStats = cloneStats(p.BaseStats)
	return p
}

func cloneStats(in map[store.Stat]float64) map[store.Stat]float64 {
	if in == nil {
		return nil
	}
	out := make(map[store.Stat]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
