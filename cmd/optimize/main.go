// Command optimize runs CMA-ES over the steering and trail parameters to find
// settings that produce a contrasted trail network.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/mould/config"
)

type options struct {
	configPath string
	ticks      int
	seeds      int
	maxEvals   int
	population int
	resX, resY int
	agents     int
	outputDir  string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	flag.IntVar(&o.ticks, "ticks", 1800, "Simulation ticks per run")
	flag.IntVar(&o.seeds, "seeds", 3, "Number of seeds per evaluation")
	flag.IntVar(&o.maxEvals, "max-evals", 200, "Maximum number of evaluations")
	flag.IntVar(&o.population, "population", 0, "CMA-ES population size (0 = auto)")
	flag.IntVar(&o.resX, "res-x", 256, "Field width during tuning (0 = use config)")
	flag.IntVar(&o.resY, "res-y", 192, "Field height during tuning (0 = use config)")
	flag.IntVar(&o.agents, "agents", 20000, "Agent count during tuning (0 = use config)")
	flag.StringVar(&o.outputDir, "output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(o); err != nil {
		slog.Error("optimize failed", "error", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.outputDir == "" {
		return errors.New("-output is required")
	}
	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	baseCfg, err := tuningConfig(o)
	if err != nil {
		return err
	}
	params := NewParamVector()

	evalSeeds := make([]int64, o.seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, o.ticks, evalSeeds, baseCfg)

	elog, err := newEvalLog(filepath.Join(o.outputDir, "optimize_log.csv"), params.Names())
	if err != nil {
		return err
	}
	defer elog.Close()

	popSize := o.population
	if popSize == 0 {
		popSize = 4 + 3*params.Dim()/2
	}

	var (
		evals      int
		best       = 0.0
		bestParams []float64
		start      = time.Now()
	)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(raw)
			evals++
			if bestParams == nil || fitness < best {
				best, bestParams = fitness, raw
			}
			if err := elog.Write(evals, fitness, raw); err != nil {
				slog.Warn("eval log write failed", "error", err)
			}

			elapsed := time.Since(start)
			eta := time.Duration(o.maxEvals-evals) * (elapsed / time.Duration(evals))
			slog.Info("eval",
				"n", evals,
				"of", o.maxEvals,
				"score", fmt.Sprintf("%.3f", evaluator.LastQuality()),
				"best", fmt.Sprintf("%.3f", -best),
				"elapsed", formatDuration(elapsed),
				"eta", formatDuration(eta),
			)
			return fitness
		},
	}

	slog.Info("starting CMA-ES",
		"params", params.Dim(),
		"population", popSize,
		"max_evals", o.maxEvals,
		"seeds", o.seeds,
		"ticks", o.ticks,
		"res_x", baseCfg.Simulation.ResX,
		"res_y", baseCfg.Simulation.ResY,
		"agents", baseCfg.Simulation.AgentCount,
	)

	initX := params.Normalize(params.ExtractFromConfig(baseCfg))
	settings := &optimize.Settings{FuncEvaluations: o.maxEvals}
	method := &optimize.CmaEsChol{InitStepSize: 0.3, Population: popSize}

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended early", "error", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		return errors.New("no evaluation completed")
	}

	report := []any{"evals", evals, "duration", formatDuration(time.Since(start)), "score", -best}
	for i, spec := range params.Specs {
		report = append(report, spec.Path, bestParams[i])
	}
	slog.Info("optimization complete", report...)

	// The saved config keeps the user's resolution and population.
	bestCfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	if err := params.ApplyToConfig(bestCfg, bestParams); err != nil {
		return fmt.Errorf("best parameters rejected: %w", err)
	}
	out := filepath.Join(o.outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(out); err != nil {
		return fmt.Errorf("writing best config: %w", err)
	}
	slog.Info("best config saved", "path", out)
	return nil
}

// tuningConfig loads the base config and shrinks it to the tuning size. The
// stats window is a tenth of a run so every run yields ten windows.
func tuningConfig(o options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.resX > 0 {
		cfg.Simulation.ResX = o.resX
	}
	if o.resY > 0 {
		cfg.Simulation.ResY = o.resY
	}
	if o.agents > 0 {
		cfg.Simulation.AgentCount = o.agents
	}
	cfg.Telemetry.StatsWindow = cfg.Simulation.DT * float64(o.ticks) / 10
	if err := cfg.Refresh(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}
	return cfg, nil
}

// evalLog records every evaluation as a CSV row. Its columns follow the
// parameter set, so rows are built by hand.
type evalLog struct {
	f *os.File
	w *csv.Writer
}

func newEvalLog(path string, names []string) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating eval log: %w", err)
	}
	l := &evalLog{f: f, w: csv.NewWriter(f)}
	if err := l.w.Write(append([]string{"eval", "fitness"}, names...)); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Write appends one evaluation and flushes it.
func (l *evalLog) Write(n int, fitness float64, raw []float64) error {
	row := []string{strconv.Itoa(n), strconv.FormatFloat(fitness, 'f', 6, 64)}
	for _, v := range raw {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the file.
func (l *evalLog) Close() error {
	l.w.Flush()
	return errors.Join(l.w.Error(), l.f.Close())
}

// formatDuration renders d as 1h02m05s, or 2m05s under an hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
