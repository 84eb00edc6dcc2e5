// Package csvio reads the track catalogue, bin tables, and vulnerability
// curves from CSV and writes the footprint run outputs to a directory.
package csvio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
)

// ErrMissingColumn is returned when a required header column is absent.
var ErrMissingColumn = errors.New("missing required column")

var (
	trackColumns         = []string{"event_id", "year", "month", "timestep", "lat", "lon", "vmax_ms"}
	binColumns           = []string{"bin_index", "bin_from", "bin_to"}
	vulnerabilityColumns = []string{"vulnerability_id", "IM_c", "Y_vals"}
	footprintColumns     = []string{"event_id", "areaperil_id", "intensity_bin_id", "probability"}
)

// table is a header-indexed CSV reader. Column lookup is by name so column
// order in the file does not matter.
type table struct {
	r    *csv.Reader
	cols map[string]int
	line int
}

func newTable(r io.Reader, required []string) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return &table{r: cr, cols: cols, line: 1}, nil
}

// next returns the next row, or io.EOF.
func (t *table) next() ([]string, error) {
	row, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read csv line %d: %w", t.line+1, err)
	}
	t.line++
	return row, nil
}

func (t *table) str(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) float(row []string, col string) (float64, error) {
	s := t.str(row, col)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d column %s: invalid number %q", t.line, col, s)
	}
	return v, nil
}

func (t *table) int(row []string, col string) (int, error) {
	s := t.str(row, col)
	v, err := strconv.Atoi(s)
	if err != nil {
		// Pandas writes integer columns with missing values as floats.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("line %d column %s: invalid integer %q", t.line, col, s)
		}
		v = int(f)
	}
	return v, nil
}

// ReadTracks parses a track catalogue. rmw_km, category and source are
// optional; an empty category is derived from vmax_ms.
func ReadTracks(r io.Reader) ([]domain.TrackSample, error) {
	t, err := newTable(r, trackColumns)
	if err != nil {
		return nil, fmt.Errorf("tracks: %w", err)
	}
	var out []domain.TrackSample
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("tracks: %w", err)
		}
		s, err := t.trackSample(row)
		if err != nil {
			return nil, fmt.Errorf("tracks: %w", err)
		}
		out = append(out, s)
	}
}

func (t *table) trackSample(row []string) (domain.TrackSample, error) {
	s := domain.TrackSample{
		EventKey: t.str(row, "event_id"),
		Source:   t.str(row, "source"),
	}
	if s.EventKey == "" {
		return s, fmt.Errorf("line %d column event_id: empty", t.line)
	}
	var err error
	if s.Year, err = t.int(row, "year"); err != nil {
		return s, err
	}
	if s.Month, err = t.int(row, "month"); err != nil {
		return s, err
	}
	if s.Timestep, err = t.int(row, "timestep"); err != nil {
		return s, err
	}
	if s.Lat, err = t.float(row, "lat"); err != nil {
		return s, err
	}
	if s.Lon, err = t.float(row, "lon"); err != nil {
		return s, err
	}
	if s.VmaxMs, err = t.float(row, "vmax_ms"); err != nil {
		return s, err
	}
	if t.str(row, "rmw_km") != "" {
		rmw, err := t.float(row, "rmw_km")
		if err != nil {
			return s, err
		}
		s.RmaxKm = &rmw
	}
	if t.str(row, "category") != "" {
		if s.Category, err = t.int(row, "category"); err != nil {
			return s, err
		}
	} else {
		s.Category = windfield.Category(s.VmaxMs)
	}
	return s, nil
}

// ReadBins parses a bin table. Ordering and partition checks are left to
// binning.NewTable.
func ReadBins(r io.Reader) ([]domain.Bin, error) {
	t, err := newTable(r, binColumns)
	if err != nil {
		return nil, fmt.Errorf("bins: %w", err)
	}
	var out []domain.Bin
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("bins: %w", err)
		}
		var b domain.Bin
		if b.Index, err = t.int(row, "bin_index"); err != nil {
			return nil, fmt.Errorf("bins: %w", err)
		}
		if b.From, err = t.float(row, "bin_from"); err != nil {
			return nil, fmt.Errorf("bins: %w", err)
		}
		if b.To, err = t.float(row, "bin_to"); err != nil {
			return nil, fmt.Errorf("bins: %w", err)
		}
		out = append(out, b)
	}
}

// ReadVulnerability parses vulnerability curves given as parallel
// comma-separated lists: IM_c in m/s and Y_vals in percent damage. Points are
// converted to mph and damage fractions.
func ReadVulnerability(r io.Reader) ([]domain.VulnerabilityCurve, error) {
	t, err := newTable(r, vulnerabilityColumns)
	if err != nil {
		return nil, fmt.Errorf("vulnerability: %w", err)
	}
	var out []domain.VulnerabilityCurve
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("vulnerability: %w", err)
		}
		c, err := t.curve(row)
		if err != nil {
			return nil, fmt.Errorf("vulnerability: %w", err)
		}
		out = append(out, c)
	}
}

func (t *table) curve(row []string) (domain.VulnerabilityCurve, error) {
	id, err := t.int(row, "vulnerability_id")
	if err != nil {
		return domain.VulnerabilityCurve{}, err
	}
	xs, err := parseList(t.str(row, "IM_c"))
	if err != nil {
		return domain.VulnerabilityCurve{}, fmt.Errorf("line %d column IM_c: %w", t.line, err)
	}
	ys, err := parseList(t.str(row, "Y_vals"))
	if err != nil {
		return domain.VulnerabilityCurve{}, fmt.Errorf("line %d column Y_vals: %w", t.line, err)
	}
	if len(xs) != len(ys) {
		return domain.VulnerabilityCurve{}, fmt.Errorf("line %d: vulnerability %d has %d intensities and %d damage values", t.line, id, len(xs), len(ys))
	}
	c := domain.VulnerabilityCurve{ID: id, Points: make([]domain.CurvePoint, len(xs))}
	for i := range xs {
		c.Points[i] = domain.CurvePoint{
			IntensityMph: geomath.MsToMph(xs[i]),
			Damage:       ys[i] / 100,
		}
	}
	return c, nil
}

func parseList(s string) ([]float64, error) {
	parts := strings.Split(strings.Trim(s, "[]"), ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadFootprint parses a footprint table written by WriteFootprint.
func ReadFootprint(r io.Reader) ([]domain.FootprintRecord, error) {
	t, err := newTable(r, footprintColumns)
	if err != nil {
		return nil, fmt.Errorf("footprint: %w", err)
	}
	var out []domain.FootprintRecord
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("footprint: %w", err)
		}
		var rec domain.FootprintRecord
		if rec.EventID, err = t.int(row, "event_id"); err != nil {
			return nil, fmt.Errorf("footprint: %w", err)
		}
		if rec.AreaPerilID, err = t.int(row, "areaperil_id"); err != nil {
			return nil, fmt.Errorf("footprint: %w", err)
		}
		if rec.IntensityBinID, err = t.int(row, "intensity_bin_id"); err != nil {
			return nil, fmt.Errorf("footprint: %w", err)
		}
		if rec.Probability, err = t.float(row, "probability"); err != nil {
			return nil, fmt.Errorf("footprint: %w", err)
		}
		out = append(out, rec)
	}
}

// ReadDictionary parses an area-peril dictionary written by WriteDictionary.
func ReadDictionary(r io.Reader) ([]domain.AreaPerilRow, error) {
	t, err := newTable(r, dictionaryHeader)
	if err != nil {
		return nil, fmt.Errorf("areaperil dictionary: %w", err)
	}
	var out []domain.AreaPerilRow
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("areaperil dictionary: %w", err)
		}
		rec := domain.AreaPerilRow{PerilID: t.str(row, "PERIL_ID")}
		if rec.CoverageType, err = t.int(row, "COVERAGE_TYPE"); err != nil {
			return nil, fmt.Errorf("areaperil dictionary: %w", err)
		}
		for k := range rec.Corners {
			n := strconv.Itoa(k + 1)
			if rec.Corners[k].Lon, err = t.float(row, "LON"+n); err != nil {
				return nil, fmt.Errorf("areaperil dictionary: %w", err)
			}
			if rec.Corners[k].Lat, err = t.float(row, "LAT"+n); err != nil {
				return nil, fmt.Errorf("areaperil dictionary: %w", err)
			}
		}
		if rec.AreaPerilID, err = t.int(row, "AREA_PERIL_ID"); err != nil {
			return nil, fmt.Errorf("areaperil dictionary: %w", err)
		}
		out = append(out, rec)
	}
}

// ReadEventIDs parses an events table written by WriteEvents.
func ReadEventIDs(r io.Reader) ([]int, error) {
	t, err := newTable(r, []string{"event_id"})
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	var out []int
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		id, err := t.int(row, "event_id")
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		out = append(out, id)
	}
}

// ReadOccurrences parses an occurrence table written by WriteOccurrences.
func ReadOccurrences(r io.Reader) ([]domain.Occurrence, error) {
	cols := []string{"event_id", "period_no", "occ_year", "occ_month", "occ_day"}
	t, err := newTable(r, cols)
	if err != nil {
		return nil, fmt.Errorf("occurrence: %w", err)
	}
	var out []domain.Occurrence
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("occurrence: %w", err)
		}
		var vals [5]int
		for i, c := range cols {
			if vals[i], err = t.int(row, c); err != nil {
				return nil, fmt.Errorf("occurrence: %w", err)
			}
		}
		out = append(out, domain.Occurrence{
			EventID: vals[0], PeriodNo: vals[1], OccYear: vals[2], OccMonth: vals[3], OccDay: vals[4],
		})
	}
}

// ReadManifest decodes a manifest written by WriteManifest.
func ReadManifest(r io.Reader) (domain.Manifest, error) {
	var m domain.Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return domain.Manifest{}, fmt.Errorf("manifest: %w", err)
	}
	return m, nil
}

// readFile opens path and applies parse to it.
func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ReadTracksFile reads a track catalogue from path.
func ReadTracksFile(path string) ([]domain.TrackSample, error) {
	return readFile(path, ReadTracks)
}

// ReadBinsFile reads a bin table from path.
func ReadBinsFile(path string) ([]domain.Bin, error) {
	return readFile(path, ReadBins)
}

// ReadFootprintFile reads a footprint table from path.
func ReadFootprintFile(path string) ([]domain.FootprintRecord, error) {
	return readFile(path, ReadFootprint)
}

// ReadDictionaryFile reads an area-peril dictionary from path.
func ReadDictionaryFile(path string) ([]domain.AreaPerilRow, error) {
	return readFile(path, ReadDictionary)
}

// ReadManifestFile reads a manifest from path.
func ReadManifestFile(path string) (domain.Manifest, error) {
	return readFile(path, ReadManifest)
}

// ReadEventIDsFile reads an events table from path.
func ReadEventIDsFile(path string) ([]int, error) {
	return readFile(path, ReadEventIDs)
}

// ReadOccurrencesFile reads an occurrence table from path.
func ReadOccurrencesFile(path string) ([]domain.Occurrence, error) {
	return readFile(path, ReadOccurrences)
}

// ReadVulnerabilityFile reads vulnerability curves from path.
func ReadVulnerabilityFile(path string) ([]domain.VulnerabilityCurve, error) {
	return readFile(path, ReadVulnerability)
}
