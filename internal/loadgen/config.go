// Package loadgen drives a running ladder service with synthetic score
// events and checks the resulting standings.
package loadgen

import "time"

// Config holds the load run settings.
type Config struct {
	BaseURL     string        // service root, e.g. http://localhost:9080
	Leaderboard string        // board receiving the events
	NumEvents   int           // events to submit
	Members     int           // distinct members the events are spread over
	Mode        string        // set, increment or best
	Workers     int           // concurrent submitters
	Timeout     time.Duration // per request
	TopN        int           // ranks fetched for verification
	Seed        uint64
}

// Stats summarizes a run.
type Stats struct {
	Generated int
	Accepted  int
	Duplicate int
	Rejected  int
	Failed    int
	Top       []Entry
	Duration  time.Duration
}

// Entry is one row of the leaderboard read back after a run.
type Entry struct {
	Rank   int64   `json:"rank"`
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Throughput is accepted events per second.
func (s Stats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Accepted) / s.Duration.Seconds()
}

func (c Config) withDefaults() Config {
	if c.Leaderboard == "" {
		c.Leaderboard = "loadtest"
	}
	if c.Members <= 0 {
		c.Members = max(1, c.NumEvents/10)
	}
	if c.Mode == "" {
		c.Mode = "increment"
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	return c
}
