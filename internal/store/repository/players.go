package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/pomona/internal/store"
)

// PlayerRepository handles player data access
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

const playerColumns = `player_id, sport, external_id, first_name, last_name, position, jersey_number,
	team_id, photo_url, status, created_at, updated_at`

// GetByExternalID finds a player by upstream ID
func (r *PlayerRepository) GetByExternalID(ctx context.Context, sport store.Sport, externalID string) (*store.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE sport = $1 AND external_id = $2`

	player, err := scanPlayer(r.db.DB().QueryRowContext(ctx, query, sport, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s/%s: %w", sport, externalID, store.ErrNotFound)
	}
	return player, err
}

// Upsert inserts or updates a player and sets its PlayerID
func (r *PlayerRepository) Upsert(ctx context.Context, player *store.Player) error {
	query := `
		INSERT INTO players (sport, external_id, first_name, last_name, position, jersey_number,
			team_id, photo_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sport, external_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			position = EXCLUDED.position,
			jersey_number = EXCLUDED.jersey_number,
			team_id = EXCLUDED.team_id,
			photo_url = EXCLUDED.photo_url,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING player_id
	`

	status := player.Status
	if status == "" {
		status = store.AvailabilityActive
	}

	err := r.db.DB().QueryRowContext(ctx, query,
		player.Sport, player.ExternalID, player.FirstName, player.LastName, player.Position,
		player.JerseyNumber, player.TeamID, player.PhotoURL, status,
	).Scan(&player.PlayerID)
	if err != nil {
		return fmt.Errorf("upserting player: %w", err)
	}

	return nil
}

// UpdateStatus sets the availability of a player identified by upstream ID
func (r *PlayerRepository) UpdateStatus(ctx context.Context, sport store.Sport, externalID string, status store.Availability) error {
	query := `
		UPDATE players
		SET status = $3, updated_at = NOW()
		WHERE sport = $1 AND external_id = $2
	`

	if _, err := r.db.DB().ExecContext(ctx, query, sport, externalID, status); err != nil {
		return fmt.Errorf("updating player status: %w", err)
	}
	return nil
}

// ActiveWithGames returns players not ruled out whose team has a scheduled game on date
func (r *PlayerRepository) ActiveWithGames(ctx context.Context, sport store.Sport, date time.Time) ([]store.ActivePlayer, error) {
	query := `
		SELECT DISTINCT ON (p.player_id) p.player_id, p.sport, g.game_id, p.team_id, p.first_name, p.last_name
		FROM players p
		JOIN games g ON g.sport = p.sport
			AND (g.home_team_id = p.team_id OR g.away_team_id = p.team_id)
		WHERE p.sport = $1
			AND g.game_date = $2::date
			AND g.status = 'scheduled'
			AND p.status <> ALL($3)
		ORDER BY p.player_id, g.game_id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, sport, dateParam(date), pq.Array(ruledOutStatuses()))
	if err != nil {
		return nil, fmt.Errorf("querying active players: %w", err)
	}
	defer rows.Close()

	var players []store.ActivePlayer
	for rows.Next() {
		var (
			p           store.ActivePlayer
			first, last string
		)
		if err := rows.Scan(&p.PlayerID, &p.Sport, &p.GameID, &p.TeamID, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning active player: %w", err)
		}
		p.Name = first + " " + last
		players = append(players, p)
	}

	return players, rows.Err()
}

func scanPlayer(row rowScanner) (*store.Player, error) {
	player := &store.Player{}
	err := row.Scan(
		&player.PlayerID, &player.Sport, &player.ExternalID, &player.FirstName, &player.LastName,
		&player.Position, &player.JerseyNumber, &player.TeamID, &player.PhotoURL, &player.Status,
		&player.CreatedAt, &player.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning player: %w", err)
	}
	return player, nil
}

func ruledOutStatuses() []string {
	out := make([]string, len(store.RuledOut))
	for i, s := range store.RuledOut {
		out[i] = string(s)
	}
	return out
}

// dateParam formats a calendar date for ::date casts
func dateParam(t time.Time) string {
	return t.Format("2006-01-02")
}

// limitParam binds a LIMIT placeholder; zero or negative means no limit,
// which Postgres expresses as LIMIT NULL
func limitParam(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}
