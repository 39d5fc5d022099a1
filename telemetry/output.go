package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/pthm-cable/mould/config"
)

// NewRunID returns a fresh identifier tagging every log line and CSV row of
// one run.
func NewRunID() string {
	return uuid.NewString()
}

// Output file names inside a run directory.
const (
	ConfigFile    = "config.yaml"
	TelemetryFile = "telemetry.csv"
	PerfFile      = "perf.csv"
)

// csvSink appends rows of one record type to a CSV file. The header is
// written with the first row.
type csvSink[T any] struct {
	f      *os.File
	header bool
}

func createSink[T any](path string) (*csvSink[T], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &csvSink[T]{f: f}, nil
}

func (s *csvSink[T]) append(row T) error {
	rows := []T{row}
	if s.header {
		return gocsv.MarshalWithoutHeaders(rows, s.f)
	}
	if err := gocsv.Marshal(rows, s.f); err != nil {
		return err
	}
	s.header = true
	return nil
}

func (s *csvSink[T]) close() error {
	if s == nil {
		return nil
	}
	return s.f.Close()
}

// OutputManager writes one run's artifacts into a directory: the effective
// config, one telemetry row and one perf row per stats window. A nil manager
// discards everything.
type OutputManager struct {
	dir   string
	runID string

	telemetry *csvSink[WindowStats]
	perf      *csvSink[PerfStatsCSV]
}

// NewOutputManager creates dir and the CSV files in it. An empty dir disables
// output and returns a nil manager.
func NewOutputManager(dir, runID string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, runID: runID}
	var err error
	if om.telemetry, err = createSink[WindowStats](filepath.Join(dir, TelemetryFile)); err != nil {
		return nil, fmt.Errorf("creating %s: %w", TelemetryFile, err)
	}
	if om.perf, err = createSink[PerfStatsCSV](filepath.Join(dir, PerfFile)); err != nil {
		om.telemetry.close()
		return nil, fmt.Errorf("creating %s: %w", PerfFile, err)
	}
	return om, nil
}

// WriteConfig snapshots the effective configuration.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, ConfigFile))
}

// WriteWindow appends the field statistics and tick timings of one closed
// stats window.
func (om *OutputManager) WriteWindow(stats WindowStats, perf PerfStats) error {
	if om == nil {
		return nil
	}
	var errs []error
	if err := om.telemetry.append(stats); err != nil {
		errs = append(errs, fmt.Errorf("writing telemetry: %w", err))
	}
	if err := om.perf.append(perf.ToCSV(om.runID, stats.WindowEndTick)); err != nil {
		errs = append(errs, fmt.Errorf("writing perf: %w", err))
	}
	return errors.Join(errs...)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes the CSV files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	return errors.Join(om.telemetry.close(), om.perf.close())
}
