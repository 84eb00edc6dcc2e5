package domain

import "time"

// Occurrence is one row of the occurrence table.
type Occurrence struct {
	EventID  int `json:"event_id" db:"event_id"`
	PeriodNo int `json:"period_no" db:"period_no"`
	OccYear  int `json:"occ_year" db:"occ_year"`
	OccMonth int `json:"occ_month" db:"occ_month"`
	OccDay   int `json:"occ_day" db:"occ_day"`
}

// AreaPerilRow is one entry of the area-peril dictionary.
type AreaPerilRow struct {
	PerilID      string   `json:"peril_id"`
	CoverageType int      `json:"coverage_type"`
	Corners      [4]Point `json:"corners"`
	AreaPerilID  int      `json:"areaperil_id"`
}

// GridSummary describes the grid a footprint was built on.
type GridSummary struct {
	CRS        string  `json:"crs"`
	MinX       float64 `json:"min_x"`
	MinY       float64 `json:"min_y"`
	MaxX       float64 `json:"max_x"`
	MaxY       float64 `json:"max_y"`
	CellHeight float64 `json:"cell_height"`
	CellWidth  float64 `json:"cell_width"`
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
}

// Counts summarizes the size of each stage of a run.
type Counts struct {
	TrackSamples         int `json:"track_samples"`
	EventsConsidered     int `json:"events_considered"`
	EventsSelected       int `json:"events_selected"`
	Cells                int `json:"cells"`
	PairsEvaluated       int `json:"pairs_evaluated"`
	PairsPruned          int `json:"pairs_pruned"`
	FootprintRecords     int `json:"footprint_records"`
	VulnerabilityRecords int `json:"vulnerability_records"`
}

// Manifest records the parameters and outcome of one footprint run so the
// footprint can be reproduced.
type Manifest struct {
	RunID                 string             `json:"run_id"`
	GeneratedAt           time.Time          `json:"generated_at"`
	IntensityUnit         string             `json:"intensity_unit"`
	RmaxEstimator         string             `json:"rmax_estimator"`
	RmaxOverride          bool               `json:"rmax_override"`
	SelectionDistanceKm   float64            `json:"selection_distance_km"`
	SelectionMinCategory  int                `json:"selection_min_category"`
	RegionCentroid        Point              `json:"region_centroid"`
	InfluenceRadiusFactor float64            `json:"influence_radius_factor"`
	PerilID               string             `json:"peril_id"`
	CoverageType          int                `json:"coverage_type"`
	Grid                  GridSummary        `json:"grid"`
	Counts                Counts             `json:"counts"`
	Unmatched             []UnmatchedSummary `json:"unmatched,omitempty"`
}

// RunOutput is everything a run hands to its sinks.
type RunOutput struct {
	Footprint     []FootprintRecord
	Vulnerability []VulnerabilityBinRecord
	Events        []Event
	Occurrences   []Occurrence
	Dictionary    []AreaPerilRow
	// GridGeoJSON is the grid as a GeoJSON FeatureCollection.
	GridGeoJSON []byte
	Manifest    Manifest
}
