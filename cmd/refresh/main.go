package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/app"
	"github.com/fortuna/pomona/internal/config"
	"github.com/fortuna/pomona/internal/logging"
	"github.com/fortuna/pomona/internal/scheduler"
	"github.com/fortuna/pomona/internal/store"
)

const appName = "pomona-refresh"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	jobNames := make([]string, len(scheduler.Jobs))
	for i, j := range scheduler.Jobs {
		jobNames[i] = string(j)
	}

	var (
		job   = flag.String("job", string(scheduler.JobFullRefresh), "Job to run: "+strings.Join(jobNames, ", "))
		from  = flag.String("from", "", "Backfill start date (YYYY-MM-DD); runs a backfill instead of -job")
		to    = flag.String("to", "", "Backfill end date (YYYY-MM-DD), defaults to -from")
		sport = flag.String("sport", "", "League to backfill; defaults to every configured league")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *from != "" {
		return backfill(ctx, cfg, log, *from, *to, *sport)
	}

	kind, err := scheduler.ParseJob(*job)
	if err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.WithField("job", kind).Info("Running job")
	if err := a.Orchestrator.RunJob(ctx, kind); err != nil {
		return err
	}

	logs, err := a.Store.RecentRefreshLogs(ctx, 1)
	if err == nil && len(logs) > 0 {
		entry := logs[0]
		log.WithFields(logrus.Fields{
			"run_id":  entry.RunID,
			"status":  entry.Status,
			"records": entry.RecordsProcessed,
		}).Info("✓ Job complete")
	}
	return nil
}

func backfill(ctx context.Context, cfg *config.Config, log *logrus.Logger, fromStr, toStr, sportStr string) error {
	if toStr == "" {
		toStr = fromStr
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return fmt.Errorf("invalid -from date: %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return fmt.Errorf("invalid -to date: %w", err)
	}

	leagues := cfg.Scheduler.Leagues
	if sportStr != "" {
		leagues = []string{sportStr}
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Refresher == nil {
		return errors.New("backfill needs SPORTS_API_KEY")
	}

	for _, name := range leagues {
		sport, ok := store.ParseSport(name)
		if !ok {
			return fmt.Errorf("unsupported league %q", name)
		}

		res, err := a.Refresher.Backfill(ctx, sport, from, to)
		if err != nil {
			return fmt.Errorf("backfilling %s: %w", sport, err)
		}
		log.WithFields(logrus.Fields{
			"sport":       sport,
			"days":        res.Days,
			"records":     res.Records,
			"failed_days": res.FailedDays,
		}).Info("✓ Backfill complete")
	}
	return nil
}
