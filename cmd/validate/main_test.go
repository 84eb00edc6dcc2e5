package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/couchcryptid/storm-footprint/internal/adapter/csvio"
	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corners(lon, lat float64) [4]domain.Point {
	return [4]domain.Point{{Lon: lon, Lat: lat + 1}, {Lon: lon + 1, Lat: lat + 1}, {Lon: lon + 1, Lat: lat}, {Lon: lon, Lat: lat}}
}

func validRun() *domain.RunOutput {
	return &domain.RunOutput{
		Footprint: []domain.FootprintRecord{
			{EventID: 1, AreaPerilID: 1, IntensityBinID: 2, Probability: 1},
			{EventID: 1, AreaPerilID: 2, IntensityBinID: 1, Probability: 1},
			{EventID: 2, AreaPerilID: 1, IntensityBinID: 1, Probability: 1},
		},
		Events:      []domain.Event{{ID: 1, Year: 4, Month: 8}, {ID: 2, Year: 9, Month: 10}},
		Occurrences: []domain.Occurrence{{EventID: 1, PeriodNo: 4, OccYear: 4, OccMonth: 8, OccDay: 8}, {EventID: 2, PeriodNo: 9, OccYear: 9, OccMonth: 10, OccDay: 10}},
		Dictionary: []domain.AreaPerilRow{
			{PerilID: "WTC", CoverageType: 1, AreaPerilID: 1, Corners: corners(0, 1)},
			{PerilID: "WTC", CoverageType: 1, AreaPerilID: 2, Corners: corners(0, 0)},
		},
		Manifest: domain.Manifest{
			RunID:   "run-1",
			PerilID: "WTC",
			Grid:    domain.GridSummary{Rows: 2, Cols: 1},
			Counts:  domain.Counts{FootprintRecords: 3, EventsSelected: 2, Cells: 2},
		},
	}
}

func loadRun(t *testing.T, run *domain.RunOutput) outputs {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, csvio.NewDirSink(dir, slog.New(slog.DiscardHandler)).Write(context.Background(), run))
	out, err := load(dir, "")
	require.NoError(t, err)
	out.bins = []domain.Bin{{Index: 1, From: 0, To: 50}, {Index: 2, From: 50, To: 100}}
	return out
}

func TestValidate_Passes(t *testing.T) {
	for _, p := range validate(loadRun(t, validRun())) {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
}

func TestValidate_DetectsBrokenFootprint(t *testing.T) {
	run := validRun()
	run.Footprint[2] = domain.FootprintRecord{EventID: 1, AreaPerilID: 2, IntensityBinID: 7, Probability: 0.5}

	phases := validate(loadRun(t, run))
	fp := phases[1]
	require.False(t, fp.passed())
	assert.Len(t, fp.errors, 3, "order, probability, and bin errors: %v", fp.errors)
}

func TestValidate_DetectsCountMismatch(t *testing.T) {
	run := validRun()
	run.Manifest.Counts.FootprintRecords = 10
	run.Occurrences = run.Occurrences[:1]

	phases := validate(loadRun(t, run))
	assert.False(t, phases[0].passed())
	assert.True(t, phases[1].passed())
	assert.False(t, phases[2].passed())
	assert.True(t, phases[3].passed())
}
