// Package footprint evaluates the wind field of each event at every grid
// cell centroid, reduces the samples of an event to one intensity per cell,
// and bins that intensity into footprint records.
//
// Events are independent and run on a bounded worker pool. Within an event
// each sample only visits the cells inside its cutoff radius, found through
// an rtree over the cell centroids. The cutoff is exact: cells beyond it
// cannot reach the lowest intensity bin, so pruning never changes the
// footprint. An optional influence-radius factor caps the search at a multiple
// of Rmax and trades exactness for speed.
package footprint

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"

	"github.com/couchcryptid/storm-footprint/internal/binning"
	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingParameters is returned when a sample reaches the aggregator
	// without Rmax or B.
	ErrMissingParameters = errors.New("track sample missing wind-field parameters")
	// ErrModelEvaluation is returned when the wind profile cannot be evaluated
	// for a (sample, cell) pair. It wraps the windfield error.
	ErrModelEvaluation = errors.New("wind-field evaluation failed")
	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("invalid footprint options")
)

// Options configures an Aggregator.
type Options struct {
	// Workers bounds the number of events evaluated concurrently.
	// Zero means runtime.NumCPU().
	Workers int
	// InfluenceRadiusFactor caps each sample's search radius at this multiple
	// of its Rmax. Zero disables the cap.
	InfluenceRadiusFactor float64
}

// CellIntensity is the reduced (event, cell) row before bin lookup.
// Only samples whose cutoff radius reaches the cell contribute.
type CellIntensity struct {
	EventID       int     `json:"event_id"`
	AreaPerilID   int     `json:"areaperil_id"`
	VcMph         float64 `json:"vc_mph"`
	MinDistanceKm float64 `json:"min_distance_km"`
	MaxRmaxKm     float64 `json:"max_rmax_km"`
	MaxVmaxMs     float64 `json:"max_vmax_ms"`
	MeanB         float64 `json:"mean_b"`
}

// Stats counts the work done by one Run.
type Stats struct {
	Events         int `json:"events"`
	Samples        int `json:"samples"`
	Cells          int `json:"cells"`
	PairsEvaluated int `json:"pairs_evaluated"`
	PairsPruned    int `json:"pairs_pruned"`
}

// Result is the output of one Run.
type Result struct {
	Records     []domain.FootprintRecord
	Intensities []CellIntensity
	Unmatched   domain.UnmatchedSummary
	Stats       Stats
}

// Aggregator builds footprints. It holds no per-run state and is safe for
// concurrent use.
type Aggregator struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns an Aggregator.
func New(opts Options, logger *slog.Logger) (*Aggregator, error) {
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidOptions, opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	f := opts.InfluenceRadiusFactor
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fmt.Errorf("%w: influence radius factor must be finite and >= 0, got %v", ErrInvalidOptions, f)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{opts: opts, logger: logger}, nil
}

// Run computes the footprint of events over cells. Every sample must carry
// Rmax and B. Records are sorted by (event id, areaperil id) and carry
// probability 1. Reduced intensities outside the table produce no record and
// are counted in Result.Unmatched, as are cells beyond every sample's cutoff,
// so records plus unmatched always equals events times cells.
func (a *Aggregator) Run(ctx context.Context, events []domain.Event, cells []domain.GridCell, bins *binning.Table) (Result, error) {
	if err := checkParameters(events); err != nil {
		return Result{}, err
	}

	index := newCellIndex(cells)
	floor := bins.Min()
	partials := make([]eventResult, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := a.evaluateEvent(gctx, events[i], index, floor)
			if err != nil {
				return err
			}
			partials[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		Unmatched: domain.UnmatchedSummary{Table: bins.Name()},
		Stats:     Stats{Events: len(events), Cells: len(cells)},
	}
	for _, p := range partials {
		res.Stats.Samples += p.samples
		res.Stats.PairsEvaluated += p.evaluated
		res.Intensities = append(res.Intensities, p.intensities...)
	}
	var belowFloor domain.UnmatchedSummary
	for _, p := range partials {
		belowFloor.Merge(p.unreached)
	}
	res.Stats.PairsPruned = res.Stats.Samples*len(cells) - res.Stats.PairsEvaluated

	slices.SortFunc(res.Intensities, func(x, y CellIntensity) int {
		return cmp.Or(cmp.Compare(x.EventID, y.EventID), cmp.Compare(x.AreaPerilID, y.AreaPerilID))
	})
	for _, ci := range res.Intensities {
		bin, ok := bins.Lookup(ci.VcMph)
		if !ok {
			res.Unmatched.Add("event=%d areaperil=%d vc_mph=%.3f", ci.EventID, ci.AreaPerilID, ci.VcMph)
			continue
		}
		res.Records = append(res.Records, domain.FootprintRecord{
			EventID:        ci.EventID,
			AreaPerilID:    ci.AreaPerilID,
			IntensityBinID: bin.Index,
			Probability:    1,
		})
	}
	res.Unmatched.Merge(belowFloor)

	a.logger.Debug("footprint aggregated",
		"events", res.Stats.Events,
		"cells", res.Stats.Cells,
		"pairs_evaluated", res.Stats.PairsEvaluated,
		"pairs_pruned", res.Stats.PairsPruned,
		"records", len(res.Records),
		"unmatched", res.Unmatched.Count,
	)
	return res, nil
}

func checkParameters(events []domain.Event) error {
	for _, e := range events {
		for _, s := range e.Samples {
			switch {
			case s.RmaxKm == nil:
				return fmt.Errorf("%w: event %d (%s) timestep %d has no rmax", ErrMissingParameters, e.ID, e.Key, s.Timestep)
			case s.B == nil:
				return fmt.Errorf("%w: event %d (%s) timestep %d has no b", ErrMissingParameters, e.ID, e.Key, s.Timestep)
			case math.IsNaN(*s.RmaxKm) || math.IsNaN(*s.B):
				return fmt.Errorf("%w: event %d (%s) timestep %d has NaN rmax or b", ErrMissingParameters, e.ID, e.Key, s.Timestep)
			}
		}
	}
	return nil
}

type eventResult struct {
	intensities []CellIntensity
	unreached   domain.UnmatchedSummary
	samples     int
	evaluated   int
}

// accumulator reduces the samples of one event at one cell.
type accumulator struct {
	maxVcMph float64
	minDist  float64
	maxRmax  float64
	maxVmax  float64
	sumB     float64
	n        int
}

func (acc *accumulator) add(vcMph, dist, rmax, vmax, b float64) {
	if acc.n == 0 {
		*acc = accumulator{maxVcMph: vcMph, minDist: dist, maxRmax: rmax, maxVmax: vmax, sumB: b, n: 1}
		return
	}
	acc.maxVcMph = max(acc.maxVcMph, vcMph)
	acc.minDist = min(acc.minDist, dist)
	acc.maxRmax = max(acc.maxRmax, rmax)
	acc.maxVmax = max(acc.maxVmax, vmax)
	acc.sumB += b
	acc.n++
}

func (a *Aggregator) evaluateEvent(ctx context.Context, e domain.Event, index *cellIndex, floorMph float64) (eventResult, error) {
	accs := make(map[int]*accumulator)
	res := eventResult{samples: len(e.Samples)}

	for _, s := range e.Samples {
		if err := ctx.Err(); err != nil {
			return eventResult{}, err
		}
		rmax, b := *s.RmaxKm, *s.B
		radius := cutoffRadius(s.VmaxMs, rmax, b, floorMph)
		if f := a.opts.InfluenceRadiusFactor; f > 0 && rmax > 0 {
			radius = min(radius, f*rmax)
		}

		err := index.within(s.Lon, s.Lat, radius, func(pos int, dist float64) error {
			cell := index.cells[pos]
			vc, err := windfield.WindSpeed(s.VmaxMs, rmax, dist, b)
			if err != nil {
				return fmt.Errorf("%w: event %d timestep %d areaperil %d: %w", ErrModelEvaluation, e.ID, s.Timestep, cell.ID, err)
			}
			res.evaluated++
			acc, ok := accs[pos]
			if !ok {
				acc = &accumulator{}
				accs[pos] = acc
			}
			acc.add(geomath.MsToMph(vc), dist, rmax, s.VmaxMs, b)
			return nil
		})
		if err != nil {
			return eventResult{}, err
		}
	}

	res.intensities = make([]CellIntensity, 0, len(accs))
	for pos, acc := range accs {
		res.intensities = append(res.intensities, CellIntensity{
			EventID:       e.ID,
			AreaPerilID:   index.cells[pos].ID,
			VcMph:         acc.maxVcMph,
			MinDistanceKm: acc.minDist,
			MaxRmaxKm:     acc.maxRmax,
			MaxVmaxMs:     acc.maxVmax,
			MeanB:         acc.sumB / float64(acc.n),
		})
	}
	for pos, c := range index.cells {
		if _, ok := accs[pos]; !ok {
			res.unreached.Add("event=%d areaperil=%d beyond_cutoff", e.ID, c.ID)
		}
	}
	a.logger.Debug("event evaluated", "event_id", e.ID, "samples", len(e.Samples), "cells_reached", len(accs))
	return res, nil
}
