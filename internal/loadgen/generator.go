package loadgen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/ladder/internal/domain/model"
)

// Score bands. Most members land in the middle band, few at the top.
var bands = []struct {
	weight   int
	min, max float64
}{
	{weight: 4, min: 3, max: 7},
	{weight: 2, min: 7, max: 9},
	{weight: 1, min: 0.1, max: 3},
	{weight: 1, min: 9, max: 10},
}

// Generate builds n events spread over members. The same seed yields the
// same members and scores; event ids are always fresh.
func Generate(cfg Config) []model.ScoreEvent {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	total := 0
	for _, b := range bands {
		total += b.weight
	}

	events := make([]model.ScoreEvent, cfg.NumEvents)
	for i := range events {
		pick := rng.IntN(total)
		band := bands[0]
		for _, b := range bands {
			if pick < b.weight {
				band = b
				break
			}
			pick -= b.weight
		}
		events[i] = model.ScoreEvent{
			EventID:     uuid.NewString(),
			Leaderboard: cfg.Leaderboard,
			Member:      fmt.Sprintf("member-%05d", rng.IntN(cfg.Members)),
			Score:       band.min + rng.Float64()*(band.max-band.min),
			Mode:        model.Mode(cfg.Mode),
		}
	}
	return events
}
