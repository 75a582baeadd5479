package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/ladder/internal/leaderboard"
)

// queryParser turns query parameters into engine query options.
type queryParser struct {
	maxPageSize int
}

// options reads page_size, with_data and sort_by. The returned page size is
// zero when the request did not set one.
func (q queryParser) options(r *http.Request) ([]leaderboard.QueryOption, int, error) {
	var (
		opts     []leaderboard.QueryOption
		pageSize int
	)
	values := r.URL.Query()

	if raw := values.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, 0, fmt.Errorf("%w: page_size must be a positive integer", ErrBadRequest)
		}
		if n > q.maxPageSize {
			return nil, 0, fmt.Errorf("%w: page_size exceeds %d", ErrBadRequest, q.maxPageSize)
		}
		pageSize = n
		opts = append(opts, leaderboard.PageSize(n))
	}

	if raw := values.Get("with_data"); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: with_data must be a boolean", ErrBadRequest)
		}
		if on {
			opts = append(opts, leaderboard.WithMemberData())
		}
	}

	if raw := values.Get("sort_by"); raw != "" {
		by, err := leaderboard.ParseSortBy(raw)
		if err != nil {
			return nil, 0, err
		}
		opts = append(opts, leaderboard.Sort(by))
	}
	return opts, pageSize, nil
}

func intParam(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, key)
	}
	return n, nil
}

// requiredInt reads a mandatory integer query parameter.
func requiredInt(r *http.Request, key string) (int64, error) {
	if r.URL.Query().Get(key) == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrBadRequest, key)
	}
	return intParam(r, key, 0)
}

// scoreBounds reads min and max. Either may be -inf or +inf, NaN is
// rejected and both are required.
func scoreBounds(r *http.Request) (float64, float64, error) {
	var bounds [2]float64
	for i, key := range [2]string{"min", "max"} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			return 0, 0, fmt.Errorf("%w: %s is required", ErrBadRequest, key)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return 0, 0, fmt.Errorf("%w: %s must be a number", ErrBadRequest, key)
		}
		bounds[i] = v
	}
	return bounds[0], bounds[1], nil
}

func boardName(r *http.Request) string  { return chi.URLParam(r, "name") }
func memberName(r *http.Request) string { return chi.URLParam(r, "member") }
