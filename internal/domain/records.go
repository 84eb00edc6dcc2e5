package domain

import "fmt"

// Bin is one half-open range [From, To) of an intensity or damage table.
type Bin struct {
	Index int     `json:"bin_index"`
	From  float64 `json:"bin_from"`
	To    float64 `json:"bin_to"`
}

// Contains reports whether v falls in [From, To).
func (b Bin) Contains(v float64) bool {
	return v >= b.From && v < b.To
}

// GridCell is one area peril. Corners and centroid are geographic.
type GridCell struct {
	ID       int      `json:"areaperil_id"`
	Corners  [4]Point `json:"corners"`
	Centroid Point    `json:"centroid"`
}

// FootprintRecord assigns an intensity bin to one (event, cell) pair.
type FootprintRecord struct {
	EventID        int     `json:"event_id" db:"event_id"`
	AreaPerilID    int     `json:"areaperil_id" db:"areaperil_id"`
	IntensityBinID int     `json:"intensity_bin_id" db:"intensity_bin_id"`
	Probability    float64 `json:"probability" db:"probability"`
}

// CurvePoint is one (intensity, damage-fraction) sample of a vulnerability curve.
// Intensity is in mph so it is comparable with the footprint intensity bins.
type CurvePoint struct {
	IntensityMph float64 `json:"intensity_mph"`
	Damage       float64 `json:"damage"`
}

// VulnerabilityCurve maps hazard intensity to expected damage fraction.
type VulnerabilityCurve struct {
	ID     int          `json:"vulnerability_id"`
	Points []CurvePoint `json:"points"`
}

// VulnerabilityBinRecord assigns a damage bin to one (vulnerability, intensity bin) pair.
type VulnerabilityBinRecord struct {
	VulnerabilityID int     `json:"vulnerability_id" db:"vulnerability_id"`
	IntensityBinID  int     `json:"intensity_bin_id" db:"intensity_bin_id"`
	DamageBinID     int     `json:"damage_bin_id" db:"damage_bin_id"`
	Probability     float64 `json:"probability" db:"probability"`
}

// maxUnmatchedExamples bounds the example keys kept in an UnmatchedSummary.
const maxUnmatchedExamples = 5

// UnmatchedSummary counts values that fell outside every bin of a table.
// These drops are not errors; they are reported so that bin tables that do not
// cover the modeled range are visible.
type UnmatchedSummary struct {
	Table    string   `json:"table"`
	Count    int      `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

// Add records one unmatched key.
func (u *UnmatchedSummary) Add(format string, args ...any) {
	u.Count++
	if len(u.Examples) < maxUnmatchedExamples {
		u.Examples = append(u.Examples, fmt.Sprintf(format, args...))
	}
}

// Merge folds other into u, keeping at most the bounded number of examples.
func (u *UnmatchedSummary) Merge(other UnmatchedSummary) {
	u.Count += other.Count
	for _, ex := range other.Examples {
		if len(u.Examples) >= maxUnmatchedExamples {
			break
		}
		u.Examples = append(u.Examples, ex)
	}
}
