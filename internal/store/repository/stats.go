package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/pomona/internal/store"
)

// StatsRepository handles player box score data access
type StatsRepository struct {
	db *store.Database
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *store.Database) *StatsRepository {
	return &StatsRepository{db: db}
}

const statColumns = `pgs.stat_id, pgs.game_id, pgs.player_id, pgs.sport, pgs.points, pgs.rebounds,
	pgs.assists, pgs.steals, pgs.blocks, pgs.turnovers, pgs.minutes_played, pgs.passing_yards,
	pgs.rushing_yards, pgs.receiving_yards, pgs.touchdowns, pgs.receptions, pgs.created_at, pgs.updated_at`

// RecentSamples returns the last limit completed games before the given date, most recent first
func (r *StatsRepository) RecentSamples(ctx context.Context, playerID int, sport store.Sport, before time.Time, limit int) ([]store.StatSample, error) {
	query := `
		SELECT ` + statColumns + `, g.game_date
		FROM player_game_stats pgs
		JOIN games g ON pgs.game_id = g.game_id
		WHERE pgs.player_id = $1 AND pgs.sport = $2
			AND g.status = 'final'
			AND g.game_date < $3::date
		ORDER BY g.game_date DESC, g.game_id DESC
		LIMIT $4
	`

	rows, err := r.db.DB().QueryContext(ctx, query, playerID, sport, dateParam(before), limitParam(limit))
	if err != nil {
		return nil, fmt.Errorf("querying recent stats: %w", err)
	}
	defer rows.Close()

	var samples []store.StatSample
	for rows.Next() {
		stats := &store.PlayerGameStats{}
		var gameDate time.Time
		err := rows.Scan(
			&stats.ID, &stats.GameID, &stats.PlayerID, &stats.Sport, &stats.Points, &stats.Rebounds,
			&stats.Assists, &stats.Steals, &stats.Blocks, &stats.Turnovers, &stats.MinutesPlayed,
			&stats.PassingYards, &stats.RushingYards, &stats.ReceivingYards, &stats.Touchdowns,
			&stats.Receptions, &stats.CreatedAt, &stats.UpdatedAt, &gameDate,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning recent stats: %w", err)
		}
		samples = append(samples, store.StatSample{
			PlayerID: stats.PlayerID,
			GameID:   stats.GameID,
			GameDate: gameDate,
			Values:   stats.Values(),
		})
	}

	return samples, rows.Err()
}

// LastGameDateBefore returns the date of the player's most recent counted game before date
func (r *StatsRepository) LastGameDateBefore(ctx context.Context, playerID int, date time.Time) (time.Time, bool, error) {
	query := `
		SELECT g.game_date
		FROM player_game_stats pgs
		JOIN games g ON pgs.game_id = g.game_id
		WHERE pgs.player_id = $1 AND g.game_date < $2::date
		ORDER BY g.game_date DESC
		LIMIT 1
	`

	var last time.Time
	err := r.db.DB().QueryRowContext(ctx, query, playerID, dateParam(date)).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last game date: %w", err)
	}

	return last, true, nil
}

// UpsertPlayerStats inserts or updates player game stats
func (r *StatsRepository) UpsertPlayerStats(ctx context.Context, stats *store.PlayerGameStats) error {
	query := `
		INSERT INTO player_game_stats (game_id, player_id, sport, points, rebounds, assists,
			steals, blocks, turnovers, minutes_played, passing_yards, rushing_yards,
			receiving_yards, touchdowns, receptions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (game_id, player_id) DO UPDATE SET
			points = EXCLUDED.points,
			rebounds = EXCLUDED.rebounds,
			assists = EXCLUDED.assists,
			steals = EXCLUDED.steals,
			blocks = EXCLUDED.blocks,
			turnovers = EXCLUDED.turnovers,
			minutes_played = EXCLUDED.minutes_played,
			passing_yards = EXCLUDED.passing_yards,
			rushing_yards = EXCLUDED.rushing_yards,
			receiving_yards = EXCLUDED.receiving_yards,
			touchdowns = EXCLUDED.touchdowns,
			receptions = EXCLUDED.receptions,
			updated_at = NOW()
		RETURNING stat_id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		stats.GameID, stats.PlayerID, stats.Sport, stats.Points, stats.Rebounds, stats.Assists,
		stats.Steals, stats.Blocks, stats.Turnovers, stats.MinutesPlayed, stats.PassingYards,
		stats.RushingYards, stats.ReceivingYards, stats.Touchdowns, stats.Receptions,
	).Scan(&stats.ID)
	if err != nil {
		return fmt.Errorf("upserting player stats: %w", err)
	}

	return nil
}

// DeleteBefore removes stat rows for games dated strictly before cutoff
func (r *StatsRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM player_game_stats pgs
		USING games g
		WHERE pgs.game_id = g.game_id AND g.game_date < $1::date
	`

	result, err := r.db.DB().ExecContext(ctx, query, dateParam(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting old stats: %w", err)
	}
	return result.RowsAffected()
}
