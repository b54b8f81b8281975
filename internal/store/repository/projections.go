package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/pomona/internal/store"
)

// ProjectionRepository persists engine output
type ProjectionRepository struct {
	db *store.Database
}

// NewProjectionRepository creates a new projection repository
func NewProjectionRepository(db *store.Database) *ProjectionRepository {
	return &ProjectionRepository{db: db}
}

const projectionColumns = `player_id, game_id, sport, projection_date, stats, base_stats, fruit_score,
	confidence_level, trend_direction, momentum_score, projection_method, last_updated`

// SaveAll upserts projections keyed by (player, game, date) inside one transaction
func (r *ProjectionRepository) SaveAll(ctx context.Context, projections []*store.Projection) error {
	if len(projections) == 0 {
		return nil
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projections tx: %w: %w", store.ErrPersistence, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO projections (`+projectionColumns+`)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (player_id, game_id, projection_date) DO UPDATE SET
			sport = EXCLUDED.sport,
			stats = EXCLUDED.stats,
			base_stats = EXCLUDED.base_stats,
			fruit_score = EXCLUDED.fruit_score,
			confidence_level = EXCLUDED.confidence_level,
			trend_direction = EXCLUDED.trend_direction,
			momentum_score = EXCLUDED.momentum_score,
			projection_method = EXCLUDED.projection_method,
			last_updated = EXCLUDED.last_updated
	`)
	if err != nil {
		return fmt.Errorf("prepare projection upsert: %w: %w", store.ErrPersistence, err)
	}
	defer stmt.Close()

	for _, p := range projections {
		stats, err := json.Marshal(p.Stats)
		if err != nil {
			return fmt.Errorf("encoding projection stats: %w", err)
		}
		base, err := json.Marshal(p.BaseStats)
		if err != nil {
			return fmt.Errorf("encoding base stats: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			p.PlayerID, p.GameID, p.Sport, dateParam(p.ProjectionDate), stats, base, p.FruitScore,
			p.Confidence, p.Trend.Direction, p.Trend.MomentumScore, p.Method, p.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("upserting projection for player %d: %w: %w", p.PlayerID, store.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projections: %w: %w", store.ErrPersistence, err)
	}

	return nil
}

// GetByDate returns projections for a date ordered by fruit score; empty sport means every league
func (r *ProjectionRepository) GetByDate(ctx context.Context, sport store.Sport, date time.Time, limit int) ([]*store.Projection, error) {
	query := `
		SELECT ` + projectionColumns + `
		FROM projections
		WHERE projection_date = $1::date AND ($2::varchar = '' OR sport = $2::varchar)
		ORDER BY fruit_score DESC, player_id
		LIMIT $3
	`

	rows, err := r.db.DB().QueryContext(ctx, query, dateParam(date), string(sport), limitParam(limit))
	if err != nil {
		return nil, fmt.Errorf("querying projections: %w", err)
	}
	defer rows.Close()

	var projections []*store.Projection
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, err
		}
		projections = append(projections, p)
	}

	return projections, rows.Err()
}

// GetForPlayer returns the player's projection for a date
func (r *ProjectionRepository) GetForPlayer(ctx context.Context, playerID int, date time.Time) (*store.Projection, error) {
	query := `
		SELECT ` + projectionColumns + `
		FROM projections
		WHERE player_id = $1 AND projection_date = $2::date
		ORDER BY last_updated DESC
		LIMIT 1
	`

	p, err := scanProjection(r.db.DB().QueryRowContext(ctx, query, playerID, dateParam(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("projection for player %d: %w", playerID, store.ErrNotFound)
	}
	return p, err
}

// DeleteBefore removes projections dated strictly before cutoff
func (r *ProjectionRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.DB().ExecContext(ctx,
		`DELETE FROM projections WHERE projection_date < $1::date`, dateParam(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting old projections: %w", err)
	}
	return result.RowsAffected()
}

func scanProjection(row rowScanner) (*store.Projection, error) {
	p := &store.Projection{}
	var stats, base []byte
	err := row.Scan(
		&p.PlayerID, &p.GameID, &p.Sport, &p.ProjectionDate, &stats, &base, &p.FruitScore,
		&p.Confidence, &p.Trend.Direction, &p.Trend.MomentumScore, &p.Method, &p.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning projection: %w", err)
	}

	if err := json.Unmarshal(stats, &p.Stats); err != nil {
		return nil, fmt.Errorf("decoding projection stats: %w", err)
	}
	if err := json.Unmarshal(base, &p.BaseStats); err != nil {
		return nil, fmt.Errorf("decoding base stats: %w", err)
	}

	return p, nil
}
