package sportsdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/store"
)

// MaxBackfillDays bounds one backfill request
const MaxBackfillDays = 366

// ErrInvalidRange rejects an empty or oversized backfill window
var ErrInvalidRange = errors.New("invalid backfill range")

// BackfillResult summarizes a backfill run
type BackfillResult struct {
	Days       int      `json:"days"`
	Records    int      `json:"records"`
	FailedDays []string `json:"failed_days,omitempty"`
}

// Backfill loads teams, players and then the games and final box scores of
// every date in [from, to]. A failed day is recorded and skipped.
func (r *Refresher) Backfill(ctx context.Context, sport store.Sport, from, to time.Time) (*BackfillResult, error) {
	from, to = store.DateOnly(from), store.DateOnly(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, to.Format(dateLayout), from.Format(dateLayout))
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
		if len(dates) > MaxBackfillDays {
			return nil, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxBackfillDays)
		}
	}

	log := r.log.WithFields(logrus.Fields{
		"sport": sport,
		"from":  from.Format(dateLayout),
		"to":    to.Format(dateLayout),
	})
	log.Info("backfill started")

	teams, err := r.refreshTeams(ctx, sport)
	if err != nil {
		return nil, err
	}
	players := idCache{}
	n, err := r.refreshPlayers(ctx, sport, teams, players)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Days: len(dates), Records: len(teams) + n}
	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := r.refreshDay(ctx, sport, date, teams, players, true)
		result.Records += n
		day := date.Format(dateLayout)
		if err != nil {
			result.FailedDays = append(result.FailedDays, day)
			log.WithError(err).WithField("date", day).Warn("backfill day failed")
			continue
		}
		log.WithFields(logrus.Fields{"date": day, "records": n}).Debugf("[%d/%d] day loaded", i+1, len(dates))
	}

	log.WithFields(logrus.Fields{
		"records": result.Records,
		"failed":  len(result.FailedDays),
	}).Info("backfill finished")
	return result, nil
}
