package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-footprint/internal/binning"
	"github.com/couchcryptid/storm-footprint/internal/config"
	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/footprint"
	"github.com/couchcryptid/storm-footprint/internal/grid"
	"github.com/couchcryptid/storm-footprint/internal/observability"
	"github.com/couchcryptid/storm-footprint/internal/pipeline"
	"github.com/couchcryptid/storm-footprint/internal/selection"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSource struct {
	tracks []domain.TrackSample
	bins   []domain.Bin
	damage []domain.Bin
	curves []domain.VulnerabilityCurve
	region []byte
	err    error

	regionErr   error
	regionLoads int
}

func (f *fakeSource) LoadTracks(context.Context) ([]domain.TrackSample, error) {
	return f.tracks, f.err
}

func (f *fakeSource) LoadIntensityBins(context.Context) ([]domain.Bin, error) { return f.bins, nil }

func (f *fakeSource) LoadDamageBins(context.Context) ([]domain.Bin, error) { return f.damage, nil }

func (f *fakeSource) LoadVulnerability(context.Context) ([]domain.VulnerabilityCurve, error) {
	return f.curves, nil
}

func (f *fakeSource) LoadRegion(context.Context) ([]byte, error) {
	f.regionLoads++
	return f.region, f.regionErr
}

type captureSink struct {
	mu       sync.Mutex
	name     string
	failures int
	calls    int
	got      *domain.RunOutput
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Write(_ context.Context, out *domain.RunOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("sink broken")
	}
	s.got = out
	return nil
}

// --- fixtures ---

var runTime = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(runTime))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func sample(key string, step int, lon, lat, vmax float64) domain.TrackSample {
	return domain.TrackSample{
		EventKey: key, Year: 3, Month: 9, Timestep: step,
		Lon: lon, Lat: lat, VmaxMs: vmax, Category: windfield.Category(vmax),
	}
}

func testSource() *fakeSource {
	return &fakeSource{
		tracks: []domain.TrackSample{
			sample("A", 0, -62, 15.8, 50),
			sample("A", 1, -61, 16.0, 52),
			sample("A", 2, -60, 16.2, 48),
			sample("far", 0, 0, 40, 65),
			sample("far", 1, 1, 41, 65),
			sample("weak", 0, -61.2, 16.1, 20),
			sample("weak", 1, -60.8, 16.3, 22),
		},
		bins: []domain.Bin{
			{Index: 1, From: 10, To: 50},
			{Index: 2, From: 50, To: 100},
			{Index: 3, From: 100, To: 250},
		},
		damage: []domain.Bin{
			{Index: 1, From: 0, To: 0.1},
			{Index: 2, From: 0.1, To: 0.5},
			{Index: 3, From: 0.5, To: 1.01},
		},
		curves: []domain.VulnerabilityCurve{{ID: 1, Points: []domain.CurvePoint{
			{IntensityMph: 30, Damage: 0.05},
			{IntensityMph: 75, Damage: 0.2},
			{IntensityMph: 150, Damage: 0.6},
		}}},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		RegionCentroid: &domain.Point{Lon: -61, Lat: 16},
		Extent: &grid.Extent{
			MinX: -61.5, MinY: 15.5, MaxX: -60.5, MaxY: 16.5,
			CellHeight: 0.25, CellWidth: 0.25,
		},
		CellHeight:   0.25,
		CellWidth:    0.25,
		CRS:          "EPSG:4326",
		Selection:    selection.Criteria{DistanceKm: 300, MinCategory: 1},
		Estimator:    windfield.W06,
		Footprint:    footprint.Options{Workers: 2},
		PerilID:      "WTC",
		CoverageType: 1,
	}
}

func newTestPipeline(cfg *config.Config, src pipeline.Source, sinks ...pipeline.Sink) (*pipeline.Pipeline, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return pipeline.New(cfg, src, sinks, slog.New(slog.DiscardHandler), metrics), metrics
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	freezeClock(t)
	sink := &captureSink{name: "capture"}
	p, metrics := newTestPipeline(testConfig(), testSource(), sink)

	require.Error(t, p.CheckReadiness(context.Background()))
	_, ok := p.LastManifest()
	assert.False(t, ok)

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, out, sink.got)

	require.Len(t, out.Events, 1)
	assert.Equal(t, "A", out.Events[0].Key)
	assert.Equal(t, 1, out.Events[0].ID)
	assert.Equal(t, []domain.Occurrence{{EventID: 1, PeriodNo: 3, OccYear: 3, OccMonth: 9, OccDay: 9}}, out.Occurrences)

	require.Len(t, out.Footprint, 16)
	for i, r := range out.Footprint {
		assert.Equal(t, 1, r.EventID)
		assert.Equal(t, i+1, r.AreaPerilID)
		assert.InDelta(t, 1.0, r.Probability, 0)
	}
	assert.Len(t, out.Dictionary, 16)
	assert.Equal(t, "WTC", out.Dictionary[0].PerilID)
	assert.Contains(t, string(out.GridGeoJSON), "FeatureCollection")

	want := []domain.VulnerabilityBinRecord{
		{VulnerabilityID: 1, IntensityBinID: 1, DamageBinID: 1, Probability: 1},
		{VulnerabilityID: 1, IntensityBinID: 2, DamageBinID: 2, Probability: 1},
		{VulnerabilityID: 1, IntensityBinID: 3, DamageBinID: 3, Probability: 1},
	}
	if diff := cmp.Diff(want, out.Vulnerability); diff != "" {
		t.Errorf("vulnerability mismatch (-want +got):\n%s", diff)
	}

	m := out.Manifest
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, runTime, m.GeneratedAt)
	assert.Equal(t, "W06", m.RmaxEstimator)
	assert.Equal(t, "mph", m.IntensityUnit)
	assert.Equal(t, domain.Point{Lon: -61, Lat: 16}, m.RegionCentroid)
	assert.Equal(t, 4, m.Grid.Rows)
	assert.Equal(t, 4, m.Grid.Cols)
	assert.Equal(t, domain.Counts{
		TrackSamples:         7,
		EventsConsidered:     3,
		EventsSelected:       1,
		Cells:                16,
		PairsEvaluated:       m.Counts.PairsEvaluated,
		PairsPruned:          m.Counts.PairsPruned,
		FootprintRecords:     16,
		VulnerabilityRecords: 3,
	}, m.Counts)
	assert.Equal(t, 3*16, m.Counts.PairsEvaluated+m.Counts.PairsPruned)
	assert.Empty(t, m.Unmatched)

	require.NoError(t, p.CheckReadiness(context.Background()))
	last, ok := p.LastManifest()
	require.True(t, ok)
	assert.Equal(t, m.RunID, last.RunID)

	assert.InDelta(t, 7.0, testutil.ToFloat64(metrics.TracksLoaded), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.EventsSelected), 0)
	assert.InDelta(t, 16.0, testutil.ToFloat64(metrics.FootprintRecords), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_RegionFromGeoJSON(t *testing.T) {
	cfg := testConfig()
	cfg.RegionCentroid = nil
	cfg.Extent = nil
	src := testSource()
	src.region = []byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon",
		"coordinates":[[[-61.5,15.5],[-60.5,15.5],[-60.5,16.5],[-61.5,16.5],[-61.5,15.5]]]}}`)
	sink := &captureSink{name: "capture"}
	p, _ := newTestPipeline(cfg, src, sink)

	out, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, -61.0, out.Manifest.RegionCentroid.Lon, 1e-9)
	assert.InDelta(t, 16.0, out.Manifest.RegionCentroid.Lat, 1e-9)
	assert.Equal(t, 16, out.Manifest.Counts.Cells)
	assert.Len(t, out.Footprint, 16)
}

func TestPipeline_Run_ExplicitRegionSkipsBoundaryFile(t *testing.T) {
	src := testSource()
	src.regionErr = errors.New("open data/region.geojson: no such file or directory")
	p, _ := newTestPipeline(testConfig(), src)

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, src.regionLoads)
	assert.Len(t, out.Footprint, 16)

	cfg := testConfig()
	cfg.Extent = nil
	p, _ = newTestPipeline(cfg, src)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load region")
	assert.Equal(t, 1, src.regionLoads)
}

func TestPipeline_Run_BufferGrowsGrid(t *testing.T) {
	cfg := testConfig()
	cfg.Buffer = 0.25
	p, _ := newTestPipeline(cfg, testSource())

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, out.Manifest.Grid.Rows)
	assert.Equal(t, 6, out.Manifest.Grid.Cols)
	assert.InDelta(t, -61.75, out.Manifest.Grid.MinX, 1e-12)
}

func TestPipeline_Run_NoRegion(t *testing.T) {
	cfg := testConfig()
	cfg.Extent = nil
	p, _ := newTestPipeline(cfg, testSource())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no region boundary")
}

func TestPipeline_Run_InvalidBins(t *testing.T) {
	src := testSource()
	src.bins = []domain.Bin{{Index: 1, From: 0, To: 60}, {Index: 2, From: 50, To: 100}}
	sink := &captureSink{name: "capture"}
	p, metrics := newTestPipeline(testConfig(), src, sink)

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, binning.ErrInvalidTable)
	assert.Equal(t, 0, sink.calls)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ValidationFailure.WithLabelValues("bins")), 0)
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_InvalidSample(t *testing.T) {
	src := testSource()
	src.tracks[1].Lat = 95
	p, metrics := newTestPipeline(testConfig(), src)

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrInvalidSample)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ValidationFailure.WithLabelValues("samples")), 0)
}

func TestPipeline_Run_SourceError(t *testing.T) {
	src := testSource()
	src.err = errors.New("disk gone")
	p, _ := newTestPipeline(testConfig(), src)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load tracks: disk gone")
}

func TestPipeline_Run_UnmatchedIntensities(t *testing.T) {
	src := testSource()
	// Only the strongest intensities fall inside the table.
	src.bins = []domain.Bin{{Index: 9, From: 100, To: 250}}
	src.damage = nil
	src.curves = nil
	p, metrics := newTestPipeline(testConfig(), src)

	out, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Vulnerability)
	for _, r := range out.Footprint {
		assert.Equal(t, 9, r.IntensityBinID)
	}
	assert.Less(t, len(out.Footprint), 16)
	dropped := 16 - len(out.Footprint)
	assert.InDelta(t, float64(dropped), testutil.ToFloat64(metrics.UnmatchedBins.WithLabelValues("intensity")), 0)
	require.Len(t, out.Manifest.Unmatched, 1)
	assert.Equal(t, dropped, out.Manifest.Unmatched[0].Count)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.UnmatchedBins.WithLabelValues("damage")))
}

func TestPipeline_Run_SinkRetry(t *testing.T) {
	flaky := &captureSink{name: "flaky", failures: 1}
	p, _ := newTestPipeline(testConfig(), testSource(), flaky)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.calls)
	assert.NotNil(t, flaky.got)
}

func TestPipeline_Run_SinkFailure(t *testing.T) {
	broken := &captureSink{name: "broken", failures: 10}
	healthy := &captureSink{name: "healthy"}
	p, _ := newTestPipeline(testConfig(), testSource(), broken, healthy)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink broken: sink broken")
	assert.Equal(t, 3, broken.calls)
	assert.NotNil(t, healthy.got, "remaining sinks are still written")
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _ := newTestPipeline(testConfig(), testSource())

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
