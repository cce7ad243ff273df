package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/pkg/logger"
)

var (
	drillNames = []string{"Rondo", "Passing square", "Finishing wave", "Pressing box", "Overload 3v2", "Dribble gates"}
	arrowTypes = []drill.ArrowType{drill.Pass, drill.Dribble, drill.Run}
	layouts    = []drill.Layout{drill.LayoutFull, drill.LayoutHalf, drill.LayoutGrid}
)

// generateSaves builds cfg.Saves requests. Roughly cfg.Repeat of them
// resend an earlier request with its key, as a client retrying would.
func generateSaves(ctx context.Context, cfg *Config, stats *Stats) ([]Save, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	logger.Get().Info(ctx, "generating history saves", logger.Int("saves", cfg.Saves), logger.Any("seed", seed))

	saves := make([]Save, 0, cfg.Saves)
	for i := range cfg.Saves {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		if len(saves) > 0 && rng.Float64() < cfg.Repeat {
			saves = append(saves, saves[rng.IntN(len(saves))])
			continue
		}
		d := randomDrill(rng, i)
		body, err := json.Marshal(struct {
			Drill drill.Drill `json:"drill"`
		}{d})
		if err != nil {
			return nil, fmt.Errorf("marshal save %d: %w", i, err)
		}
		saves = append(saves, Save{Key: "load-" + drill.NewID(), Body: body, Drill: d.ID})
	}

	stats.Generated = len(saves)
	return saves, nil
}

func randomDrill(rng *rand.Rand, i int) drill.Drill {
	d := drill.New()
	d.Name = drillNames[rng.IntN(len(drillNames))] + " #" + strconv.Itoa(i)
	d.Categories = []drill.Category{drill.Categories[rng.IntN(len(drill.Categories))]}
	d.Layout = layouts[rng.IntN(len(layouts))]
	d.Duration = strconv.Itoa(5+5*rng.IntN(4)) + "m"

	players := 2 + rng.IntN(8)
	d.Players = strconv.Itoa(players)
	for p := range players {
		d.Positions = append(d.Positions, drill.Position{
			ID:    drill.NewID(),
			X:     coord(rng),
			Y:     coord(rng),
			Label: strconv.Itoa(p + 1),
			Type:  drill.Player,
			Color: drill.PlayerColor,
		})
	}
	d.Positions = append(d.Positions, drill.Position{ID: drill.NewID(), X: coord(rng), Y: coord(rng), Type: drill.Ball})

	for range rng.IntN(4) {
		d.Arrows = append(d.Arrows, drill.Arrow{
			ID:    drill.NewID(),
			Start: drill.Point{X: coord(rng), Y: coord(rng)},
			End:   drill.Point{X: coord(rng), Y: coord(rng)},
			Type:  arrowTypes[rng.IntN(len(arrowTypes))],
		})
	}
	return d
}

func coord(rng *rand.Rand) float64 {
	return float64(int(rng.Float64()*10000)) / 100
}
