package sportsdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/ingest"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/store"
)

// DefaultLookbackDays is how many days of box scores a full refresh pulls, today included
const DefaultLookbackDays = 7

// Source is the upstream feed a Refresher reads
type Source interface {
	Teams(ctx context.Context, sport store.Sport) ([]Team, error)
	Players(ctx context.Context, sport store.Sport) ([]Player, error)
	GamesByDate(ctx context.Context, sport store.Sport, date time.Time) ([]Game, error)
	PlayerGameStats(ctx context.Context, sport store.Sport, gameID int) ([]PlayerGame, error)
}

// Store is the write side of the stat store a Refresher fills
type Store interface {
	UpsertTeam(ctx context.Context, team *store.Team) error
	UpsertPlayer(ctx context.Context, player *store.Player) error
	UpsertGame(ctx context.Context, game *store.Game) error
	UpsertPlayerStats(ctx context.Context, stats *store.PlayerGameStats) error
	UpdatePlayerStatus(ctx context.Context, sport store.Sport, externalID string, status store.Availability) error
	TeamByExternalID(ctx context.Context, sport store.Sport, externalID string) (*store.Team, error)
	PlayerByExternalID(ctx context.Context, sport store.Sport, externalID string) (*store.Player, error)
}

// Refresher copies upstream teams, players, games and box scores into the stat store
type Refresher struct {
	source       Source
	store        Store
	loc          *time.Location
	lookbackDays int
	now          func() time.Time
	log          logrus.FieldLogger
}

// RefresherOption configures a Refresher
type RefresherOption func(*Refresher)

// WithLocation sets the zone that decides what "today" is
func WithLocation(loc *time.Location) RefresherOption {
	return func(r *Refresher) { r.loc = loc }
}

// WithLookbackDays sets how many days of box scores a full refresh pulls
func WithLookbackDays(days int) RefresherOption {
	return func(r *Refresher) {
		if days > 0 {
			r.lookbackDays = days
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a refresher writing source data into st
func NewRefresher(source Source, st Store, log logrus.FieldLogger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:       source,
		store:        st,
		loc:          time.UTC,
		lookbackDays: DefaultLookbackDays,
		now:          time.Now,
		log:          logging.Component(log, "refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// idCache memoizes upstream id to store id lookups for one refresh
type idCache map[string]int

func (r *Refresher) today() time.Time {
	return store.DateOnly(r.now().In(r.loc))
}

// RefreshAll refreshes teams, players, today's games and the box scores of
// the lookback window. A failure on the lookback days is logged and skipped;
// anything else aborts.
func (r *Refresher) RefreshAll(ctx context.Context, sport store.Sport) (int, error) {
	start := time.Now()
	log := r.log.WithField("sport", sport)

	teams, err := r.refreshTeams(ctx, sport)
	if err != nil {
		return 0, err
	}
	records := len(teams)

	players := idCache{}
	n, err := r.refreshPlayers(ctx, sport, teams, players)
	if err != nil {
		return records, err
	}
	records += n

	today := r.today()
	for i := 0; i < r.lookbackDays; i++ {
		date := today.AddDate(0, 0, -i)
		n, err := r.refreshDay(ctx, sport, date, teams, players, i > 0)
		records += n
		if err == nil {
			continue
		}
		if i == 0 {
			return records, err
		}
		log.WithError(err).WithField("date", date.Format(dateLayout)).Warn("skipping day of box scores")
	}

	log.WithFields(logrus.Fields{
		"records":  records,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("league data refreshed")
	return records, nil
}

// RefreshAvailability updates every player's availability from the latest injury report
func (r *Refresher) RefreshAvailability(ctx context.Context, sport store.Sport) (int, error) {
	feed, err := r.source.Players(ctx, sport)
	if err != nil {
		return 0, fmt.Errorf("fetching %s players: %w", sport, err)
	}

	updated := 0
	for _, p := range feed {
		status := ingest.MapInjuryStatus(p.Injury(), p.Active)
		if err := r.store.UpdatePlayerStatus(ctx, sport, strconv.Itoa(p.PlayerID), status); err != nil {
			return updated, fmt.Errorf("updating player %d status: %w", p.PlayerID, err)
		}
		updated++
	}

	r.log.WithFields(logrus.Fields{"sport": sport, "players": updated}).Info("availability refreshed")
	return updated, nil
}

// RefreshLineups refreshes today's game statuses and player availability
// ahead of tip-off.
func (r *Refresher) RefreshLineups(ctx context.Context, sport store.Sport) (int, error) {
	games, err := r.refreshDay(ctx, sport, r.today(), idCache{}, nil, false)
	if err != nil {
		return games, err
	}
	players, err := r.RefreshAvailability(ctx, sport)
	return games + players, err
}

func (r *Refresher) refreshTeams(ctx context.Context, sport store.Sport) (idCache, error) {
	feed, err := r.source.Teams(ctx, sport)
	if err != nil {
		return nil, fmt.Errorf("fetching %s teams: %w", sport, err)
	}

	ids := make(idCache, len(feed))
	for _, t := range feed {
		team := &store.Team{
			Sport:        sport,
			ExternalID:   strconv.Itoa(t.TeamID),
			Abbreviation: t.Key,
			Name:         t.Name,
			City:         nullString(t.City),
			Conference:   nullString(t.Conference),
			Division:     nullString(t.Division),
			LogoURL:      nullString(t.WikipediaLogoURL),
		}
		if err := r.store.UpsertTeam(ctx, team); err != nil {
			return nil, fmt.Errorf("upserting team %s: %w", team.ExternalID, err)
		}
		ids[team.ExternalID] = team.TeamID
	}
	return ids, nil
}

// refreshPlayers upserts rostered players and marks the rest inactive
func (r *Refresher) refreshPlayers(ctx context.Context, sport store.Sport, teams, players idCache) (int, error) {
	feed, err := r.source.Players(ctx, sport)
	if err != nil {
		return 0, fmt.Errorf("fetching %s players: %w", sport, err)
	}

	updated := 0
	for _, p := range feed {
		externalID := strconv.Itoa(p.PlayerID)
		if !p.Active || p.TeamID == nil {
			if err := r.store.UpdatePlayerStatus(ctx, sport, externalID, store.AvailabilityInactive); err != nil {
				return updated, fmt.Errorf("deactivating player %s: %w", externalID, err)
			}
			continue
		}

		teamID, ok := teams[strconv.Itoa(*p.TeamID)]
		if !ok {
			continue
		}

		player := &store.Player{
			Sport:      sport,
			ExternalID: externalID,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Position:   nullString(p.Position),
			TeamID:     sql.NullInt32{Int32: int32(teamID), Valid: true},
			PhotoURL:   nullString(p.PhotoURL),
			Status:     ingest.MapInjuryStatus(p.Injury(), true),
		}
		if p.Jersey != nil {
			player.JerseyNumber = nullString(strconv.Itoa(*p.Jersey))
		}
		if err := r.store.UpsertPlayer(ctx, player); err != nil {
			return updated, fmt.Errorf("upserting player %s: %w", externalID, err)
		}
		players[externalID] = player.PlayerID
		updated++
	}
	return updated, nil
}

// refreshDay upserts the games of one date and, when withStats is set, the
// box scores of those already final.
func (r *Refresher) refreshDay(ctx context.Context, sport store.Sport, date time.Time, teams, players idCache, withStats bool) (int, error) {
	feed, err := r.source.GamesByDate(ctx, sport, date)
	if err != nil {
		return 0, fmt.Errorf("fetching %s games for %s: %w", sport, date.Format(dateLayout), err)
	}

	records := 0
	for _, g := range feed {
		game, err := r.upsertGame(ctx, sport, g, teams)
		if err != nil {
			return records, err
		}
		if game == nil {
			continue
		}
		records++

		if !withStats || game.Status != store.GameStatusFinal {
			continue
		}
		n, err := r.refreshBoxScore(ctx, sport, game, players)
		records += n
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

// upsertGame returns nil when either team is unknown
func (r *Refresher) upsertGame(ctx context.Context, sport store.Sport, g Game, teams idCache) (*store.Game, error) {
	home, ok, err := r.teamID(ctx, sport, g.HomeTeamID, teams)
	if err != nil || !ok {
		return nil, err
	}
	away, ok, err := r.teamID(ctx, sport, g.AwayTeamID, teams)
	if err != nil || !ok {
		return nil, err
	}

	date, err := g.Date()
	if err != nil {
		r.log.WithError(err).Warn("skipping undated game")
		return nil, nil
	}

	game := &store.Game{
		Sport:      sport,
		ExternalID: strconv.Itoa(g.GameID),
		Season:     strconv.Itoa(g.Season),
		GameDate:   date,
		HomeTeamID: home,
		AwayTeamID: away,
		HomeScore:  nullInt(g.HomeTeamScore),
		AwayScore:  nullInt(g.AwayTeamScore),
		Status:     ingest.MapGameStatus(g.Status),
	}
	if g.StadiumName != nil {
		game.Venue = nullString(*g.StadiumName)
	}
	if err := r.store.UpsertGame(ctx, game); err != nil {
		return nil, fmt.Errorf("upserting game %s: %w", game.ExternalID, err)
	}
	return game, nil
}

func (r *Refresher) refreshBoxScore(ctx context.Context, sport store.Sport, game *store.Game, players idCache) (int, error) {
	externalID, err := strconv.Atoi(game.ExternalID)
	if err != nil {
		return 0, fmt.Errorf("%w: game %d has non-numeric external id %q", ingest.ErrDataSource, game.GameID, game.ExternalID)
	}
	lines, err := r.source.PlayerGameStats(ctx, sport, externalID)
	if err != nil {
		return 0, fmt.Errorf("fetching box score for game %s: %w", game.ExternalID, err)
	}

	written := 0
	for _, line := range lines {
		playerID, ok, err := r.playerID(ctx, sport, line.PlayerID, players)
		if err != nil {
			return written, err
		}
		if !ok {
			continue
		}

		stats := boxScore(sport, game.GameID, playerID, line)
		if err := r.store.UpsertPlayerStats(ctx, stats); err != nil {
			return written, fmt.Errorf("upserting stats for player %d game %d: %w", playerID, game.GameID, err)
		}
		written++
	}
	return written, nil
}

func boxScore(sport store.Sport, gameID, playerID int, line PlayerGame) *store.PlayerGameStats {
	stats := &store.PlayerGameStats{GameID: gameID, PlayerID: playerID, Sport: sport}
	valid := func(v float64) sql.NullInt32 { return sql.NullInt32{Int32: count(v), Valid: true} }

	switch sport {
	case store.SportNFL:
		stats.PassingYards = valid(line.PassingYards)
		stats.RushingYards = valid(line.RushingYards)
		stats.ReceivingYards = valid(line.ReceivingYards)
		stats.Touchdowns = valid(line.PassingTouchdowns + line.RushingTouchdowns + line.ReceivingTDs)
		stats.Receptions = valid(line.Receptions)
	default:
		stats.Points = valid(line.Points)
		stats.Rebounds = valid(line.Rebounds)
		stats.Assists = valid(line.Assists)
		stats.Steals = valid(line.Steals)
		stats.Blocks = valid(line.BlockedShots)
		stats.Turnovers = valid(line.Turnovers)
		stats.MinutesPlayed = sql.NullFloat64{Float64: line.Minutes, Valid: true}
	}
	return stats
}

func (r *Refresher) teamID(ctx context.Context, sport store.Sport, upstream int, teams idCache) (int, bool, error) {
	return lookup(strconv.Itoa(upstream), teams, func(ext string) (int, error) {
		t, err := r.store.TeamByExternalID(ctx, sport, ext)
		if err != nil {
			return 0, err
		}
		return t.TeamID, nil
	})
}

func (r *Refresher) playerID(ctx context.Context, sport store.Sport, upstream int, players idCache) (int, bool, error) {
	return lookup(strconv.Itoa(upstream), players, func(ext string) (int, error) {
		p, err := r.store.PlayerByExternalID(ctx, sport, ext)
		if err != nil {
			return 0, err
		}
		return p.PlayerID, nil
	})
}

// lookup resolves an upstream id through the cache, then the store. Unknown
// ids report false rather than an error.
func lookup(ext string, ids idCache, find func(string) (int, error)) (int, bool, error) {
	if id, ok := ids[ext]; ok {
		return id, true, nil
	}
	id, err := find(ext)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if ids != nil {
		ids[ext] = id
	}
	return id, true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
