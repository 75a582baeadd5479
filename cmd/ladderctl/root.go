package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/leaderboard"
	"github.com/okian/ladder/pkg/logger"
)

type board = leaderboard.Leaderboard[string, float64, json.RawMessage]

// cli carries what every subcommand needs once the root has run.
type cli struct {
	redisURL string
	name     string
	reverse  bool
	pageSize int
	withData bool

	store repository.Store
	board *board
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "ladderctl",
		Short: "Inspect and edit leaderboards",
		Long: `ladderctl talks to the leaderboard store directly, bypassing the
HTTP service. Settings come from LADDER_ environment variables and the
optional LADDER_CONFIG file; flags override them.`,
		SilenceUsage:       true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.redisURL, "redis-url", "", "Redis URL; defaults to redis_url from the configuration")
	flags.StringVarP(&c.name, "board", "b", "leaderboard", "Leaderboard name")
	flags.BoolVar(&c.reverse, "reverse", false, "Rank 1 is the lowest score")
	flags.IntVar(&c.pageSize, "page-size", 0, "Page size; defaults to the board configuration")
	flags.BoolVar(&c.withData, "with-data", false, "Include member data in listings")

	root.AddCommand(
		c.rankCmd(),
		c.incrCmd(),
		c.removeCmd(),
		c.getCmd(),
		c.pageCmd(),
		c.aroundCmd(),
		c.topCmd(),
		c.mergeCmd(),
		c.deleteCmd(),
		c.loadCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	_ = logger.SetLevelString(cfg.LogLevel)

	url := cfg.RedisURL
	if cmd.Flags().Changed("redis-url") {
		url = c.redisURL
	}
	if url == "" {
		logger.Get().Warn(ctx, "no redis url configured; changes will not outlive this command")
	}
	if c.store, err = repository.Open(ctx, url); err != nil {
		return err
	}

	settings := cfg.Board(c.name)
	if cmd.Flags().Changed("reverse") {
		settings.Reverse = c.reverse
	}
	if c.pageSize > 0 {
		settings.PageSize = c.pageSize
	}
	c.board = leaderboard.New[string, float64, json.RawMessage](c.name, c.store,
		leaderboard.WithPageSize(settings.PageSize),
		leaderboard.WithReverse(settings.Reverse),
		leaderboard.WithHydrationConcurrency(cfg.HydrationConcurrency),
	)
	return nil
}

func (c *cli) close(*cobra.Command, []string) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *cli) queryOptions() []leaderboard.QueryOption {
	if c.withData {
		return []leaderboard.QueryOption{leaderboard.WithMemberData()}
	}
	return nil
}

func printRecords(w io.Writer, recs []leaderboard.Record[string, float64, json.RawMessage]) {
	for _, r := range recs {
		if r.Data != nil {
			fmt.Fprintf(w, "%d\t%s\t%v\t%s\n", r.Rank, r.Member, r.Score, *r.Data)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%v\n", r.Rank, r.Member, r.Score)
	}
}
