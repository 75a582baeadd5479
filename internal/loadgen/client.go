package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/ladder/internal/domain/model"
)

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeFailed
)

// client talks to the ladder HTTP API.
type client struct {
	base string
	http *http.Client
}

func (c *client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *client) submit(ctx context.Context, e model.ScoreEvent) outcome {
	body, err := json.Marshal(e)
	if err != nil {
		return outcomeFailed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/events", bytes.NewReader(body))
	if err != nil {
		return outcomeFailed
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return outcomeFailed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return outcomeAccepted
	case resp.StatusCode == http.StatusOK:
		return outcomeDuplicate
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}

func (c *client) top(ctx context.Context, board string, n int) ([]Entry, error) {
	u := c.base + "/leaderboards/" + url.PathEscape(board) + "?page=1&page_size=" + strconv.Itoa(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reading %s returned %d", board, resp.StatusCode)
	}
	var page struct {
		Members []Entry `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return page.Members, nil
}
