package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/pthm-cable/mould/config"
	"github.com/pthm-cable/mould/game"
	"github.com/pthm-cable/mould/gpu/lanes"
	"github.com/pthm-cable/mould/telemetry"
)

// FitnessEvaluator runs headless simulations and scores the trail patterns
// they settle into.
type FitnessEvaluator struct {
	params     *ParamVector
	ticks      int
	seeds      []int64
	baseConfig *config.Config
	workers    int // lanes workers per seed

	mu          sync.Mutex
	lastQuality float64 // mean pattern score of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		ticks:      ticks,
		seeds:      seeds,
		baseConfig: baseCfg,
		workers:    max(1, runtime.GOMAXPROCS(0)/max(1, len(seeds))),
	}
}

// LastQuality returns the pattern score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// Evaluate computes fitness for a parameter vector (lower = better): the
// negated mean pattern score over all seeds. Failed runs score zero.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	scores := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Go(func() {
			windows, err := fe.runSimulation(x, seed)
			if err != nil {
				slog.Warn("seed run failed", "seed", seed, "error", err)
				return
			}
			scores[i] = patternScore(windows)
		})
	}
	wg.Wait()

	var total float64
	for _, s := range scores {
		total += s
	}
	mean := total / float64(len(scores))

	fe.mu.Lock()
	fe.lastQuality = mean
	fe.mu.Unlock()

	return -mean
}

// runSimulation executes one headless run and returns its stats windows.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) ([]telemetry.WindowStats, error) {
	cfg := fe.copyConfig()
	cfg.Simulation.Seed = seed
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return nil, err
	}

	var windows []telemetry.WindowStats
	dev := lanes.New(fe.workers)
	defer dev.Release()

	g, err := game.NewGame(dev, cfg, rand.New(rand.NewSource(seed)), game.Options{
		RunID:          fmt.Sprintf("optimize-%d", seed),
		StepsPerUpdate: game.MaxStepsPerUpdate,
		StatsCallback: func(ws telemetry.WindowStats) {
			windows = append(windows, ws)
		},
	})
	if err != nil {
		return nil, err
	}
	defer g.Unload()

	clock := game.FixedClock{DT: cfg.Simulation.DT}
	if err := g.Run(clock, game.UntilTick(g.Orchestrator(), fe.ticks)); err != nil {
		return nil, err
	}
	return windows, nil
}

// patternScore rewards fields with strong contrast spread over a meaningful
// share of the grid: a network of trails rather than a uniform haze or a few
// isolated hot spots. Only the second half of the run is scored so the
// transient from the random start is ignored.
func patternScore(windows []telemetry.WindowStats) float64 {
	if len(windows) == 0 {
		return 0
	}
	settled := windows[len(windows)/2:]

	var total float64
	for _, w := range settled {
		if !(w.Mass > 0) || math.IsNaN(w.Contrast) {
			continue
		}
		total += w.Contrast * math.Sqrt(w.Coverage)
	}
	return total / float64(len(settled))
}

// copyConfig returns an independent copy of the base config.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
