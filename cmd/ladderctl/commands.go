package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/ladder/internal/leaderboard"
	"github.com/okian/ladder/internal/loadgen"
)

func (c *cli) rankCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "rank [member] [score]",
		Short: "Sets a member's score",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("score must be a number: %w", err)
			}
			if data == "" {
				err = c.board.RankMember(cmd.Context(), args[0], score)
			} else {
				if !json.Valid([]byte(data)) {
					return errors.New("data must be valid JSON")
				}
				err = c.board.RankMemberWithData(cmd.Context(), args[0], score, json.RawMessage(data))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ranked %s with %v\n", args[0], score)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON payload stored with the member")
	return cmd
}

func (c *cli) incrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "incr [member] [delta]",
		Short: "Adds delta to a member's score",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			score, err := c.board.ChangeScore(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", args[0], score)
			return nil
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [member]",
		Short: "Removes a member and its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.board.RemoveMember(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [member]",
		Short: "Shows rank, score, percentile and page of a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rec, ok, err := c.board.Record(ctx, args[0], c.queryOptions()...)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not on %s", args[0], c.board.Name())
			}
			pct, _, err := c.board.Percentile(ctx, args[0])
			if err != nil {
				return err
			}
			page, err := c.board.Page(ctx, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "member=%s rank=%d score=%v percentile=%d page=%d\n", rec.Member, rec.Rank, rec.Score, pct, page)
			if rec.Data != nil {
				fmt.Fprintf(w, "data=%s\n", *rec.Data)
			}
			return nil
		},
	}
}

func (c *cli) pageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page [n]",
		Short: "Lists one page of the board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page := int64(1)
			if len(args) == 1 {
				n, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("page must be a number: %w", err)
				}
				page = n
			}
			recs, err := c.board.Members(cmd.Context(), page, c.queryOptions()...)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func (c *cli) aroundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "around [member]",
		Short: "Lists the page-sized window around a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := c.board.AroundMe(cmd.Context(), args[0], c.queryOptions()...)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func (c *cli) topCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "top [n]",
		Short: "Lists ranks 1 through n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || n < 1 {
				return errors.New("n must be a positive number")
			}
			recs, err := c.board.MembersInRankRange(cmd.Context(), 1, n, c.queryOptions()...)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func (c *cli) mergeCmd() *cobra.Command {
	var (
		aggregate string
		intersect bool
	)
	cmd := &cobra.Command{
		Use:   "merge [dest] [board...]",
		Short: "Combines this board with others into dest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agg, err := leaderboard.ParseAggregate(aggregate)
			if err != nil {
				return err
			}
			combine := c.board.Merge
			if intersect {
				combine = c.board.Intersect
			}
			n, err := combine(cmd.Context(), args[0], args[1:], agg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d members\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().StringVar(&aggregate, "aggregate", "sum", "sum, min or max")
	cmd.Flags().BoolVar(&intersect, "intersect", false, "Keep only members present on every board")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Deletes the board and its member data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.board.Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", c.board.Name())
			return nil
		},
	}
}

func (c *cli) loadCmd() *cobra.Command {
	var (
		cfg    loadgen.Config
		settle time.Duration
	)
	cmd := &cobra.Command{
		Use:   "load [base-url]",
		Short: "Submits synthetic events to a running service and checks the standings",
		Args:  cobra.ExactArgs(1),
		// The load run only talks HTTP.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = args[0]
			cfg.Leaderboard = c.name
			stats, err := loadgen.Run(cmd.Context(), cfg, settle)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "generated=%d accepted=%d duplicate=%d rejected=%d failed=%d rate=%.0f/s\n",
				stats.Generated, stats.Accepted, stats.Duplicate, stats.Rejected, stats.Failed, stats.Throughput())
			for _, e := range stats.Top {
				fmt.Fprintf(w, "%d\t%s\t%v\n", e.Rank, e.Member, e.Score)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.IntVarP(&cfg.NumEvents, "events", "n", 10_000, "Events to submit")
	f.IntVar(&cfg.Members, "members", 0, "Distinct members; defaults to a tenth of the events")
	f.StringVar(&cfg.Mode, "mode", "increment", "set, increment or best")
	f.IntVarP(&cfg.Workers, "workers", "w", 32, "Concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Per-request timeout")
	f.IntVar(&cfg.TopN, "top", 10, "Ranks read back for verification")
	f.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "Generator seed")
	f.DurationVar(&settle, "settle", 2*time.Second, "Wait before reading the board back")
	return cmd
}
