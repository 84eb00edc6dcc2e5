// Package pipeline runs one footprint build end to end: load inputs, select
// events near the region, estimate wind-field parameters, evaluate every event
// over the grid, bin the results, and hand the outputs to each sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-footprint/internal/binning"
	"github.com/couchcryptid/storm-footprint/internal/catalog"
	"github.com/couchcryptid/storm-footprint/internal/config"
	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/footprint"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
	"github.com/couchcryptid/storm-footprint/internal/grid"
	"github.com/couchcryptid/storm-footprint/internal/observability"
	"github.com/couchcryptid/storm-footprint/internal/region"
	"github.com/couchcryptid/storm-footprint/internal/selection"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
	"github.com/google/uuid"
)

// Sink write retry policy.
const (
	sinkAttempts   = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Source loads the inputs of a run. Damage bins, vulnerability curves, and
// the region may be nil when not configured.
type Source interface {
	LoadTracks(ctx context.Context) ([]domain.TrackSample, error)
	LoadIntensityBins(ctx context.Context) ([]domain.Bin, error)
	LoadDamageBins(ctx context.Context) ([]domain.Bin, error)
	LoadVulnerability(ctx context.Context) ([]domain.VulnerabilityCurve, error)
	LoadRegion(ctx context.Context) ([]byte, error)
}

// Sink receives the outputs of a completed run.
type Sink interface {
	Name() string
	Write(ctx context.Context, out *domain.RunOutput) error
}

// inputs are the loaded and validated run inputs.
type inputs struct {
	tracks    []domain.TrackSample
	intensity *binning.Table
	damage    *binning.Table
	curves    []domain.VulnerabilityCurve
	regionRaw []byte
}

// Pipeline orchestrates a footprint run.
type Pipeline struct {
	cfg     *config.Config
	source  Source
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	last    atomic.Pointer[domain.Manifest]
}

// New creates a Pipeline reading from source and writing to every sink.
func New(cfg *config.Config, source Source, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		source:  source,
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has completed and been written to
// every sink.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no footprint run has completed yet")
	}
	return nil
}

// LastManifest returns the manifest of the most recent completed run.
func (p *Pipeline) LastManifest() (domain.Manifest, bool) {
	m := p.last.Load()
	if m == nil {
		return domain.Manifest{}, false
	}
	return *m, true
}

// Run executes one footprint build and writes the outputs to every sink.
func (p *Pipeline) Run(ctx context.Context) (*domain.RunOutput, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	logger.Info("footprint run started", "estimator", p.cfg.Estimator.Name(), "rmax_override", p.cfg.OverrideRmax)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	out, err := p.build(ctx, runID, logger)
	if err != nil {
		logger.Error("footprint run failed", "error", err)
		return nil, err
	}

	err = p.stage("write", func() error { return p.writeSinks(ctx, out, logger) })
	if err != nil {
		logger.Error("footprint run failed", "error", err)
		return nil, err
	}

	manifest := out.Manifest
	p.last.Store(&manifest)
	p.ready.Store(true)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	logger.Info("footprint run complete",
		"events", manifest.Counts.EventsSelected,
		"cells", manifest.Counts.Cells,
		"footprint_records", manifest.Counts.FootprintRecords,
		"duration", time.Since(start),
	)
	return out, nil
}

func (p *Pipeline) build(ctx context.Context, runID string, logger *slog.Logger) (*domain.RunOutput, error) {
	var in inputs
	if err := p.stage("load", func() error {
		var err error
		in, err = p.load(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	proj, err := grid.NewProjection(p.cfg.CRS)
	if err != nil {
		p.metrics.ValidationFailure.WithLabelValues("extent").Inc()
		return nil, err
	}
	centroid, extent, err := p.resolveRegion(in.regionRaw, proj)
	if err != nil {
		return nil, err
	}

	var sel selection.Result
	if err := p.stage("select", func() error {
		var err error
		sel, err = selection.Select(in.tracks, centroid, p.cfg.Selection)
		return err
	}); err != nil {
		p.metrics.ValidationFailure.WithLabelValues("criteria").Inc()
		return nil, err
	}
	p.metrics.EventsSelected.Add(float64(len(sel.EventKeys)))
	logger.Info("events selected",
		"considered", sel.Considered,
		"near", sel.NearEvents,
		"selected", len(sel.EventKeys),
		"centroid_lon", centroid.Lon,
		"centroid_lat", centroid.Lat,
	)

	enriched := windfield.Enrich(sel.Samples, p.cfg.Estimator, p.cfg.OverrideRmax)
	events := catalog.Number(enriched)

	var g *grid.Grid
	if err := p.stage("grid", func() error {
		var err error
		g, err = grid.Build(extent, proj)
		return err
	}); err != nil {
		p.metrics.ValidationFailure.WithLabelValues("extent").Inc()
		return nil, err
	}
	logger.Info("grid built", "rows", g.Rows, "cols", g.Cols, "crs", g.CRS)

	agg, err := footprint.New(p.cfg.Footprint, logger)
	if err != nil {
		return nil, err
	}
	var fp footprint.Result
	if err := p.stage("footprint", func() error {
		var err error
		fp, err = agg.Run(ctx, events, g.Cells, in.intensity)
		return err
	}); err != nil {
		if errors.Is(err, footprint.ErrMissingParameters) {
			p.metrics.ValidationFailure.WithLabelValues("parameters").Inc()
		}
		return nil, err
	}
	p.metrics.PairsEvaluated.Add(float64(fp.Stats.PairsEvaluated))
	p.metrics.PairsPruned.Add(float64(fp.Stats.PairsPruned))
	p.metrics.FootprintRecords.Add(float64(len(fp.Records)))

	var unmatched []domain.UnmatchedSummary
	if fp.Unmatched.Count > 0 {
		p.metrics.UnmatchedBins.WithLabelValues("intensity").Add(float64(fp.Unmatched.Count))
		logger.Warn("intensities outside the bin table were dropped",
			"table", fp.Unmatched.Table, "count", fp.Unmatched.Count, "examples", fp.Unmatched.Examples)
		unmatched = append(unmatched, fp.Unmatched)
	}

	var vuln []domain.VulnerabilityBinRecord
	if in.damage != nil && in.curves != nil {
		start := time.Now()
		res := binning.BinVulnerability(in.curves, in.damage, in.intensity)
		p.metrics.StageDuration.WithLabelValues("vulnerability").Observe(time.Since(start).Seconds())
		vuln = res.Records
		if res.Unmatched.Count > 0 {
			p.metrics.UnmatchedBins.WithLabelValues("damage").Add(float64(res.Unmatched.Count))
			logger.Warn("vulnerability points outside the bin tables were dropped",
				"table", res.Unmatched.Table, "count", res.Unmatched.Count, "examples", res.Unmatched.Examples)
			unmatched = append(unmatched, res.Unmatched)
		}
		logger.Info("vulnerability binned", "records", len(res.Records), "duplicates", res.Duplicates)
	}

	gridJSON, err := g.GeoJSON()
	if err != nil {
		return nil, err
	}

	return &domain.RunOutput{
		Footprint:     fp.Records,
		Vulnerability: vuln,
		Events:        events,
		Occurrences:   catalog.Occurrences(events),
		Dictionary:    g.Dictionary(p.cfg.PerilID, p.cfg.CoverageType),
		GridGeoJSON:   gridJSON,
		Manifest: domain.Manifest{
			RunID:                 runID,
			GeneratedAt:           domain.Now(),
			IntensityUnit:         geomath.IntensityUnit,
			RmaxEstimator:         p.cfg.Estimator.Name(),
			RmaxOverride:          p.cfg.OverrideRmax,
			SelectionDistanceKm:   p.cfg.Selection.DistanceKm,
			SelectionMinCategory:  p.cfg.Selection.MinCategory,
			RegionCentroid:        centroid,
			InfluenceRadiusFactor: p.cfg.Footprint.InfluenceRadiusFactor,
			PerilID:               p.cfg.PerilID,
			CoverageType:          p.cfg.CoverageType,
			Grid: domain.GridSummary{
				CRS:        g.CRS,
				MinX:       g.Extent.MinX,
				MinY:       g.Extent.MinY,
				MaxX:       g.Extent.MaxX,
				MaxY:       g.Extent.MaxY,
				CellHeight: g.Extent.CellHeight,
				CellWidth:  g.Extent.CellWidth,
				Rows:       g.Rows,
				Cols:       g.Cols,
			},
			Counts: domain.Counts{
				TrackSamples:         len(in.tracks),
				EventsConsidered:     sel.Considered,
				EventsSelected:       len(events),
				Cells:                len(g.Cells),
				PairsEvaluated:       fp.Stats.PairsEvaluated,
				PairsPruned:          fp.Stats.PairsPruned,
				FootprintRecords:     len(fp.Records),
				VulnerabilityRecords: len(vuln),
			},
			Unmatched: unmatched,
		},
	}, nil
}

// load reads every input and validates the samples and bin tables.
func (p *Pipeline) load(ctx context.Context) (inputs, error) {
	var in inputs
	tracks, err := p.source.LoadTracks(ctx)
	if err != nil {
		return in, fmt.Errorf("load tracks: %w", err)
	}
	p.metrics.TracksLoaded.Add(float64(len(tracks)))
	if err := domain.ValidateSamples(tracks); err != nil {
		p.metrics.ValidationFailure.WithLabelValues("samples").Inc()
		return in, err
	}
	in.tracks = tracks

	bins, err := p.source.LoadIntensityBins(ctx)
	if err != nil {
		return in, fmt.Errorf("load intensity bins: %w", err)
	}
	if in.intensity, err = binning.NewTable("intensity", bins); err != nil {
		p.metrics.ValidationFailure.WithLabelValues("bins").Inc()
		return in, err
	}

	damage, err := p.source.LoadDamageBins(ctx)
	if err != nil {
		return in, fmt.Errorf("load damage bins: %w", err)
	}
	if damage != nil {
		if in.damage, err = binning.NewTable("damage", damage); err != nil {
			p.metrics.ValidationFailure.WithLabelValues("bins").Inc()
			return in, err
		}
	}

	if in.curves, err = p.source.LoadVulnerability(ctx); err != nil {
		return in, fmt.Errorf("load vulnerability: %w", err)
	}
	if p.cfg.RegionCentroid != nil && p.cfg.Extent != nil {
		return in, nil
	}
	if in.regionRaw, err = p.source.LoadRegion(ctx); err != nil {
		return in, fmt.Errorf("load region: %w", err)
	}
	return in, nil
}

// resolveRegion returns the selection centroid and the buffered grid extent.
// Explicit configuration wins over the region boundary.
func (p *Pipeline) resolveRegion(raw []byte, proj *grid.Projection) (domain.Point, grid.Extent, error) {
	var (
		centroid domain.Point
		extent   grid.Extent
	)
	if p.cfg.RegionCentroid == nil || p.cfg.Extent == nil {
		if len(raw) == 0 {
			return centroid, extent, errors.New("no region boundary configured")
		}
		r, err := region.ParseGeoJSON(raw, proj)
		if err != nil {
			p.metrics.ValidationFailure.WithLabelValues("extent").Inc()
			return centroid, extent, err
		}
		if p.cfg.RegionCentroid == nil {
			if centroid, err = r.Centroid(); err != nil {
				return centroid, extent, err
			}
		}
		if p.cfg.Extent == nil {
			extent = r.Extent(p.cfg.CellHeight, p.cfg.CellWidth)
		}
	}
	if p.cfg.RegionCentroid != nil {
		centroid = *p.cfg.RegionCentroid
	}
	if p.cfg.Extent != nil {
		extent = *p.cfg.Extent
	}
	return centroid, extent.Buffer(p.cfg.Buffer), nil
}

// writeSinks writes out to every sink, retrying each with backoff. All sinks
// are attempted; their errors are joined.
func (p *Pipeline) writeSinks(ctx context.Context, out *domain.RunOutput, logger *slog.Logger) error {
	var errs []error
	for _, s := range p.sinks {
		if err := p.writeSink(ctx, s, out, logger); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) writeSink(ctx context.Context, s Sink, out *domain.RunOutput, logger *slog.Logger) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= sinkAttempts; attempt++ {
		if err = s.Write(ctx, out); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == sinkAttempts {
			break
		}
		logger.Warn("sink write failed, retrying", "sink", s.Name(), "attempt", attempt, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return err
}

// stage runs fn and records its duration.
func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}
