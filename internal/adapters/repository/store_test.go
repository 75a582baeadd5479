package repository

import (
	"context"
	"errors"
	"math"
	"testing"
)

func members(ms []Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Member
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seed(t *testing.T, s Store, key string) {
	t.Helper()
	ctx := context.Background()
	for m, sc := range map[string]float64{"alice": 10, "bob": 30, "carol": 20, "dave": 20} {
		if err := s.Add(ctx, key, m, sc); err != nil {
			t.Fatalf("add %s: %v", m, err)
		}
	}
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CountRankScore", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")

		if n, _ := s.Count(ctx, "board"); n != 4 {
			t.Errorf("expected count 4, got %d", n)
		}
		if r, ok, _ := s.Rank(ctx, "board", "carol", false); !ok || r != 1 {
			t.Errorf("expected ascending rank 1, got %d (ok=%v)", r, ok)
		}
		if r, ok, _ := s.Rank(ctx, "board", "carol", true); !ok || r != 2 {
			t.Errorf("expected descending rank 2, got %d (ok=%v)", r, ok)
		}
		if _, ok, err := s.Rank(ctx, "board", "nobody", true); ok || err != nil {
			t.Errorf("expected absent member, got ok=%v err=%v", ok, err)
		}
		if sc, ok, _ := s.Score(ctx, "board", "bob"); !ok || sc != 30 {
			t.Errorf("expected score 30, got %v (ok=%v)", sc, ok)
		}
		if _, ok, err := s.Score(ctx, "missing", "bob"); ok || err != nil {
			t.Errorf("expected absent key, got ok=%v err=%v", ok, err)
		}
		if n, _ := s.Count(ctx, "missing"); n != 0 {
			t.Errorf("expected empty count, got %d", n)
		}
	})

	t.Run("Ranges", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")

		got, err := s.RangeByIndex(ctx, "board", 0, 1, true)
		if err != nil {
			t.Fatalf("range: %v", err)
		}
		if want := []string{"bob", "dave"}; !equalStrings(members(got), want) {
			t.Errorf("expected %v, got %v", want, members(got))
		}
		if got[0].Score != 30 {
			t.Errorf("expected score 30, got %v", got[0].Score)
		}

		got, _ = s.RangeByIndex(ctx, "board", -2, -1, false)
		if want := []string{"dave", "bob"}; !equalStrings(members(got), want) {
			t.Errorf("expected %v, got %v", want, members(got))
		}

		got, _ = s.RangeByIndex(ctx, "board", 10, 20, false)
		if len(got) != 0 {
			t.Errorf("expected empty window, got %v", members(got))
		}

		got, _ = s.RangeByScore(ctx, "board", 15, 25, false)
		if want := []string{"carol", "dave"}; !equalStrings(members(got), want) {
			t.Errorf("expected %v, got %v", want, members(got))
		}
		got, _ = s.RangeByScore(ctx, "board", 15, 25, true)
		if want := []string{"dave", "carol"}; !equalStrings(members(got), want) {
			t.Errorf("expected %v, got %v", want, members(got))
		}

		if n, _ := s.CountByScore(ctx, "board", 20, 20); n != 2 {
			t.Errorf("expected 2 at score 20, got %d", n)
		}
		if n, _ := s.CountByScore(ctx, "board", math.Inf(-1), math.Inf(1)); n != 4 {
			t.Errorf("expected 4 in unbounded range, got %d", n)
		}
	})

	t.Run("NaNScoreBounds", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")
		nan := math.NaN()

		if _, err := s.CountByScore(ctx, "board", nan, 100); !errors.Is(err, ErrInvalidScore) {
			t.Errorf("count: expected invalid score, got %v", err)
		}
		if _, err := s.RangeByScore(ctx, "board", 0, nan, false); !errors.Is(err, ErrInvalidScore) {
			t.Errorf("range: expected invalid score, got %v", err)
		}
		n, err := s.RemoveByScore(ctx, "board", nan, 100)
		if !errors.Is(err, ErrInvalidScore) || !errors.Is(err, ErrStore) || n != 0 {
			t.Errorf("remove: expected invalid score and nothing removed, got %d (%v)", n, err)
		}
		if n, _ := s.Count(ctx, "board"); n != 4 {
			t.Errorf("expected board untouched, got %d members", n)
		}
	})

	t.Run("Mutations", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")

		v, err := s.Increment(ctx, "board", "alice", 5)
		if err != nil || v != 15 {
			t.Fatalf("expected 15, got %v (%v)", v, err)
		}
		v, _ = s.Increment(ctx, "board", "erin", 2)
		if v != 2 {
			t.Errorf("expected new member at 2, got %v", v)
		}

		if n, _ := s.RemoveByScore(ctx, "board", 20, 20); n != 2 {
			t.Errorf("expected 2 removed, got %d", n)
		}
		if n, _ := s.RemoveByIndex(ctx, "board", 0, 0); n != 1 {
			t.Errorf("expected 1 removed, got %d", n)
		}
		got, _ := s.RangeByIndex(ctx, "board", 0, -1, false)
		if want := []string{"alice", "bob"}; !equalStrings(members(got), want) {
			t.Errorf("expected %v, got %v", want, members(got))
		}

		if err := s.Remove(ctx, "board", "alice"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, ok, _ := s.Score(ctx, "board", "alice"); ok {
			t.Error("expected alice removed")
		}

		if err := s.Add(ctx, "board", "nan", math.NaN()); !errors.Is(err, ErrStore) {
			t.Errorf("expected store error for NaN, got %v", err)
		}
	})

	t.Run("UnionIntersect", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "a")
		_ = s.Add(ctx, "b", "bob", 5)
		_ = s.Add(ctx, "b", "erin", 1)

		n, err := s.Union(ctx, "u", []string{"a", "b"}, AggregateSum)
		if err != nil || n != 5 {
			t.Fatalf("expected union of 5, got %d (%v)", n, err)
		}
		if sc, _, _ := s.Score(ctx, "u", "bob"); sc != 35 {
			t.Errorf("expected summed 35, got %v", sc)
		}

		n, _ = s.Intersect(ctx, "i", []string{"a", "b"}, AggregateMax)
		if n != 1 {
			t.Errorf("expected intersection of 1, got %d", n)
		}
		if sc, _, _ := s.Score(ctx, "i", "bob"); sc != 30 {
			t.Errorf("expected max 30, got %v", sc)
		}

		n, _ = s.Union(ctx, "m", []string{"a", "b"}, AggregateMin)
		if sc, _, _ := s.Score(ctx, "m", "bob"); n != 5 || sc != 5 {
			t.Errorf("expected min 5, got %v", sc)
		}

		if _, err := s.Union(ctx, "u", nil, AggregateSum); err == nil {
			t.Error("expected error without source keys")
		}
	})

	t.Run("MemberData", func(t *testing.T) {
		s := newStore(t)
		key := MemberDataKey("board")

		if _, ok, err := s.GetData(ctx, key, "alice"); ok || err != nil {
			t.Errorf("expected no data, got ok=%v err=%v", ok, err)
		}
		if err := s.SetData(ctx, key, "alice", []byte(`{"team":"red"}`)); err != nil {
			t.Fatalf("set data: %v", err)
		}
		blob, ok, err := s.GetData(ctx, key, "alice")
		if err != nil || !ok || string(blob) != `{"team":"red"}` {
			t.Errorf("unexpected data %q ok=%v err=%v", blob, ok, err)
		}
		if exists, _ := s.Exists(ctx, key); !exists {
			t.Error("expected member-data key to exist")
		}
		if err := s.RemoveData(ctx, key, "alice"); err != nil {
			t.Fatalf("remove data: %v", err)
		}
		if _, ok, _ := s.GetData(ctx, key, "alice"); ok {
			t.Error("expected data removed")
		}
	})

	t.Run("AtomicBatch", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")

		var (
			count *Result[int64]
			rank  *Result[int64]
			score *Result[float64]
			gone  *Result[int64]
		)
		err := s.Atomic(ctx, func(tx Tx) error {
			tx.Add("board", "erin", 40)
			tx.SetData(MemberDataKey("board"), "erin", []byte("x"))
			count = tx.Count("board")
			rank = tx.Rank("board", "erin", true)
			score = tx.Score("board", "erin")
			gone = tx.Rank("board", "nobody", true)
			return nil
		})
		if err != nil {
			t.Fatalf("atomic: %v", err)
		}
		if n, ok := count.Val(); !ok || n != 5 {
			t.Errorf("expected count 5, got %d", n)
		}
		if r, ok := rank.Val(); !ok || r != 0 {
			t.Errorf("expected rank 0, got %d", r)
		}
		if sc, ok := score.Val(); !ok || sc != 40 {
			t.Errorf("expected score 40, got %v", sc)
		}
		if _, ok := gone.Val(); ok {
			t.Error("expected absent rank for unknown member")
		}
		if blob, ok, _ := s.GetData(ctx, MemberDataKey("board"), "erin"); !ok || string(blob) != "x" {
			t.Errorf("expected data applied, got %q", blob)
		}
	})

	t.Run("AtomicAbort", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")

		err := s.Atomic(ctx, func(tx Tx) error {
			tx.Remove("board", "alice")
			tx.Add("board", "bad", math.NaN())
			return nil
		})
		if !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("expected invalid score, got %v", err)
		}
		if _, ok, _ := s.Score(ctx, "board", "alice"); !ok {
			t.Error("expected batch not applied")
		}

		sentinel := errors.New("abort")
		err = s.Atomic(ctx, func(tx Tx) error {
			tx.Remove("board", "alice")
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel, got %v", err)
		}
		if _, ok, _ := s.Score(ctx, "board", "alice"); !ok {
			t.Error("expected batch not applied")
		}
	})

	t.Run("DeleteAndExists", func(t *testing.T) {
		s := newStore(t)
		seed(t, s, "board")

		if ok, _ := s.Exists(ctx, "board"); !ok {
			t.Fatal("expected board to exist")
		}
		if err := s.Delete(ctx, "board", "missing"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if ok, _ := s.Exists(ctx, "board"); ok {
			t.Error("expected board deleted")
		}
	})
}

func TestParseAggregate(t *testing.T) {
	cases := map[string]Aggregate{"": AggregateSum, "sum": AggregateSum, "MIN": AggregateMin, " max ": AggregateMax}
	for in, want := range cases {
		got, err := ParseAggregate(in)
		if err != nil || got != want {
			t.Errorf("ParseAggregate(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseAggregate("avg"); !errors.Is(err, ErrInvalidAggregate) {
		t.Errorf("expected invalid aggregate, got %v", err)
	}
}
