package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/pomona/internal/store"
)

// TeamRepository handles team data access
type TeamRepository struct {
	db *store.Database
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *store.Database) *TeamRepository {
	return &TeamRepository{db: db}
}

const teamColumns = `team_id, sport, external_id, abbreviation, name, city, conference, division,
	logo_url, created_at, updated_at`

// GetByExternalID finds a team by its upstream ID
func (r *TeamRepository) GetByExternalID(ctx context.Context, sport store.Sport, externalID string) (*store.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE sport = $1 AND external_id = $2`

	team, err := scanTeam(r.db.DB().QueryRowContext(ctx, query, sport, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %s/%s: %w", sport, externalID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return team, nil
}

// Upsert inserts or updates a team and sets its TeamID
func (r *TeamRepository) Upsert(ctx context.Context, team *store.Team) error {
	query := `
		INSERT INTO teams (sport, external_id, abbreviation, name, city, conference, division, logo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sport, external_id) DO UPDATE SET
			abbreviation = EXCLUDED.abbreviation,
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			conference = EXCLUDED.conference,
			division = EXCLUDED.division,
			logo_url = EXCLUDED.logo_url,
			updated_at = NOW()
		RETURNING team_id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		team.Sport, team.ExternalID, team.Abbreviation, team.Name, team.City,
		team.Conference, team.Division, team.LogoURL,
	).Scan(&team.TeamID)
	if err != nil {
		return fmt.Errorf("upserting team: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (*store.Team, error) {
	team := &store.Team{}
	err := row.Scan(
		&team.TeamID, &team.Sport, &team.ExternalID, &team.Abbreviation, &team.Name,
		&team.City, &team.Conference, &team.Division, &team.LogoURL,
		&team.CreatedAt, &team.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning team: %w", err)
	}
	return team, nil
}
