package binning

import (
	"testing"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func damageBins() []domain.Bin {
	return []domain.Bin{
		{Index: 1, From: 0, To: 0.2},
		{Index: 2, From: 0.2, To: 0.5},
		{Index: 3, From: 0.5, To: 1.01},
	}
}

func mustTables(t *testing.T) (damage, intensity *Table) {
	t.Helper()
	damage, err := NewTable("damage", damageBins())
	require.NoError(t, err)
	intensity, err = NewTable("intensity", intensityBins())
	require.NoError(t, err)
	return damage, intensity
}

func TestBinVulnerability_ChainedLookup(t *testing.T) {
	damage, intensity := mustTables(t)
	curves := []domain.VulnerabilityCurve{
		{ID: 7, Points: []domain.CurvePoint{
			{IntensityMph: 20, Damage: 0.01},
			{IntensityMph: 60, Damage: 0.3},
			{IntensityMph: 100, Damage: 0.9},
		}},
	}

	res := BinVulnerability(curves, damage, intensity)

	want := []domain.VulnerabilityBinRecord{
		{VulnerabilityID: 7, IntensityBinID: 1, DamageBinID: 1, Probability: 1},
		{VulnerabilityID: 7, IntensityBinID: 3, DamageBinID: 2, Probability: 1},
		{VulnerabilityID: 7, IntensityBinID: 4, DamageBinID: 3, Probability: 1},
	}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.Unmatched.Count)
}

func TestBinVulnerability_TieBreakKeepsLast(t *testing.T) {
	damage, intensity := mustTables(t)
	// Both points fall in intensity bin 3 (50-80 mph) but in different damage bins.
	curves := []domain.VulnerabilityCurve{
		{ID: 4, Points: []domain.CurvePoint{
			{IntensityMph: 55, Damage: 0.1},
			{IntensityMph: 75, Damage: 0.6},
		}},
	}

	res := BinVulnerability(curves, damage, intensity)

	require.Len(t, res.Records, 1)
	assert.Equal(t, domain.VulnerabilityBinRecord{
		VulnerabilityID: 4, IntensityBinID: 3, DamageBinID: 3, Probability: 1,
	}, res.Records[0])
	assert.Equal(t, 1, res.Duplicates)
}

func TestBinVulnerability_SortsAcrossCurves(t *testing.T) {
	damage, intensity := mustTables(t)
	curves := []domain.VulnerabilityCurve{
		{ID: 9, Points: []domain.CurvePoint{{IntensityMph: 40, Damage: 0.3}}},
		{ID: 2, Points: []domain.CurvePoint{{IntensityMph: 90, Damage: 0.6}, {IntensityMph: 10, Damage: 0.05}}},
	}

	res := BinVulnerability(curves, damage, intensity)

	want := []domain.VulnerabilityBinRecord{
		{VulnerabilityID: 2, IntensityBinID: 1, DamageBinID: 1, Probability: 1},
		{VulnerabilityID: 2, IntensityBinID: 4, DamageBinID: 3, Probability: 1},
		{VulnerabilityID: 9, IntensityBinID: 2, DamageBinID: 2, Probability: 1},
	}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestBinVulnerability_UnmatchedPointsSkipped(t *testing.T) {
	damage, intensity := mustTables(t)
	curves := []domain.VulnerabilityCurve{
		{ID: 1, Points: []domain.CurvePoint{
			{IntensityMph: 60, Damage: 1.5},  // above damage range
			{IntensityMph: 150, Damage: 0.4}, // above intensity range
			{IntensityMph: 60, Damage: 0.4},
		}},
	}

	res := BinVulnerability(curves, damage, intensity)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 2, res.Records[0].DamageBinID)
	assert.Equal(t, 2, res.Unmatched.Count)
	assert.Len(t, res.Unmatched.Examples, 2)
	assert.Contains(t, res.Unmatched.Examples[0], "damage=1.5")
}
