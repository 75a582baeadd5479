package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/logger"
)

// Run checks service health, submits generated events with cfg.Workers
// concurrent clients, waits settle for the queue to drain and reads back
// the top of the board.
func Run(ctx context.Context, cfg Config, settle time.Duration) (Stats, error) {
	cfg = cfg.withDefaults()
	log := logger.Named("loadgen")
	c := &client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{Timeout: cfg.Timeout},
	}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", c.base),
		logger.String("leaderboard", cfg.Leaderboard),
		logger.Int("events", cfg.NumEvents),
		logger.Int("members", cfg.Members),
		logger.Int("workers", cfg.Workers))

	if err := c.health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	events := Generate(cfg)
	stats := Stats{Generated: len(events)}

	start := time.Now()
	counts := submitAll(ctx, c, events, cfg.Workers)
	stats.Duration = time.Since(start)
	stats.Accepted = int(counts[outcomeAccepted].Load())
	stats.Duplicate = int(counts[outcomeDuplicate].Load())
	stats.Rejected = int(counts[outcomeRejected].Load())
	stats.Failed = int(counts[outcomeFailed].Load())
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	log.Info(ctx, "events submitted",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Float64("eventsPerSecond", stats.Throughput()))

	if settle > 0 {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(settle):
		}
	}

	top, err := c.top(ctx, cfg.Leaderboard, cfg.TopN)
	if err != nil {
		return stats, err
	}
	stats.Top = top
	if err := Verify(top); err != nil {
		return stats, err
	}
	return stats, nil
}

func submitAll(ctx context.Context, c *client, events []model.ScoreEvent, workers int) *[4]atomic.Int64 {
	var counts [4]atomic.Int64
	ch := make(chan model.ScoreEvent, workers*2)

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for e := range ch {
				counts[c.submit(gctx, e)].Add(1)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(ch)
		for _, e := range events {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ch <- e:
			}
		}
		return nil
	})
	_ = g.Wait()
	return &counts
}

// Verify checks that ranks count up from 1 and scores never increase down
// the page.
func Verify(top []Entry) error {
	for i, e := range top {
		if e.Rank != int64(i+1) {
			return fmt.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Score > top[i-1].Score {
			return fmt.Errorf("rank %d scores %v above rank %d at %v", e.Rank, e.Score, top[i-1].Rank, top[i-1].Score)
		}
	}
	return nil
}
