package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fortuna/pomona/internal/config"
	"github.com/fortuna/pomona/internal/ingest"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/metrics"
	"github.com/fortuna/pomona/internal/store"
)

const (
	// DefaultBaseURL is the production API root
	DefaultBaseURL = "https://api.sportsdata.io/v3"

	dateLayout = "2006-01-02"
	authHeader = "Ocp-Apim-Subscription-Key"
)

// Client fetches teams, players, games and box scores from the sports data
// API. Each league has its own circuit breaker; one limiter bounds the
// request rate across leagues.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	breakers map[store.Sport]*gobreaker.CircuitBreaker
	metrics  *metrics.Recorder
	log      logrus.FieldLogger
}

// NewClient creates a client from configuration
func NewClient(cfg config.SportsDataConfig, rec *metrics.Recorder, log logrus.FieldLogger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
		breakers: make(map[store.Sport]*gobreaker.CircuitBreaker),
		metrics:  rec,
		log:      logging.Component(log, "sportsdata"),
	}
	for _, sport := range []store.Sport{store.SportNBA, store.SportNFL} {
		c.breakers[sport] = c.newBreaker(sport)
	}
	return c
}

func (c *Client) newBreaker(sport store.Sport) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sportsdata-" + strings.ToLower(string(sport)),
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

// BreakerState reports the breaker state for a league
func (c *Client) BreakerState(sport store.Sport) gobreaker.State {
	if b, ok := c.breakers[sport]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}

// Teams fetches every team of a league
func (c *Client) Teams(ctx context.Context, sport store.Sport) ([]Team, error) {
	var teams []Team
	if err := c.get(ctx, sport, "teams", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Players fetches the league's player pool, including injury designations
func (c *Client) Players(ctx context.Context, sport store.Sport) ([]Player, error) {
	var players []Player
	if err := c.get(ctx, sport, "players", &players); err != nil {
		return nil, err
	}
	return players, nil
}

// GamesByDate fetches games scheduled on a calendar date
func (c *Client) GamesByDate(ctx context.Context, sport store.Sport, date time.Time) ([]Game, error) {
	var games []Game
	if err := c.get(ctx, sport, "gamesbydate/"+date.Format(dateLayout), &games); err != nil {
		return nil, err
	}
	return games, nil
}

// PlayerGameStats fetches the box score lines of one game
func (c *Client) PlayerGameStats(ctx context.Context, sport store.Sport, gameID int) ([]PlayerGame, error) {
	var lines []PlayerGame
	if err := c.get(ctx, sport, fmt.Sprintf("player-game-stats-by-game/%d", gameID), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *Client) endpoint(sport store.Sport, path string) string {
	return fmt.Sprintf("%s/%s/scoreboard/json/%s", c.baseURL, strings.ToLower(string(sport)), path)
}

// get performs a rate-limited GET through the league breaker and decodes the JSON body into out
func (c *Client) get(ctx context.Context, sport store.Sport, path string, out any) error {
	breaker, ok := c.breakers[sport]
	if !ok {
		return fmt.Errorf("%w: unsupported league %q", ingest.ErrDataSource, sport)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for rate limiter: %w", ingest.ErrDataSource, err)
	}

	url := c.endpoint(sport, path)
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, c.fetch(ctx, url, out)
	})
	c.metrics.UpstreamCall(string(sport), err)

	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"sport": sport, "path": path}).Warn("upstream request failed")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %w", ingest.ErrDataSource, sport, err)
		}
		return err
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ingest.ErrDataSource, err)
	}
	req.Header.Set(authHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ingest.ErrDataSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ingest.ErrDataSource, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ingest.ErrDataSource, err)
	}
	return nil
}
