package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/pomona/internal/store"
)

// GameRepository handles game data access
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

// Upsert inserts or updates a game and sets its GameID
func (r *GameRepository) Upsert(ctx context.Context, game *store.Game) error {
	query := `
		INSERT INTO games (sport, external_id, season, game_date, home_team_id, away_team_id,
			home_score, away_score, status, venue)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sport, external_id) DO UPDATE SET
			season = EXCLUDED.season,
			game_date = EXCLUDED.game_date,
			home_team_id = EXCLUDED.home_team_id,
			away_team_id = EXCLUDED.away_team_id,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			status = EXCLUDED.status,
			venue = EXCLUDED.venue,
			updated_at = NOW()
		RETURNING game_id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		game.Sport, game.ExternalID, game.Season, dateParam(game.GameDate),
		game.HomeTeamID, game.AwayTeamID, game.HomeScore, game.AwayScore, game.Status, game.Venue,
	).Scan(&game.GameID)
	if err != nil {
		return fmt.Errorf("upserting game: %w", err)
	}

	return nil
}

// ContextForPlayer resolves the player's game on date with home/away and availability
func (r *GameRepository) ContextForPlayer(ctx context.Context, playerID int, date time.Time) (*store.GameContext, error) {
	query := `
		SELECT p.player_id, p.team_id, g.game_id, g.game_date,
			g.home_team_id = p.team_id AS is_home, COALESCE(g.venue, ''), p.status
		FROM players p
		JOIN games g ON g.sport = p.sport
			AND (g.home_team_id = p.team_id OR g.away_team_id = p.team_id)
		WHERE p.player_id = $1 AND g.game_date = $2::date
		ORDER BY g.game_id
		LIMIT 1
	`

	gc := &store.GameContext{}
	err := r.db.DB().QueryRowContext(ctx, query, playerID, dateParam(date)).Scan(
		&gc.PlayerID, &gc.TeamID, &gc.GameID, &gc.GameDate, &gc.IsHome, &gc.Venue, &gc.Availability,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %d on %s: %w", playerID, dateParam(date), store.ErrContextNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game context: %w", err)
	}

	return gc, nil
}
