package csvio

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
)

// Output file names inside the run directory.
const (
	FootprintFile     = "footprint.csv"
	VulnerabilityFile = "vulnerability.csv"
	EventsFile        = "events.csv"
	OccurrenceFile    = "occurrence.csv"
	DictionaryFile    = "areaperil_dict.csv"
	GridFile          = "grid.geojson"
	ManifestFile      = "manifest.json"
)

var dictionaryHeader = []string{
	"PERIL_ID", "COVERAGE_TYPE",
	"LON1", "LAT1", "LON2", "LAT2", "LON3", "LAT3", "LON4", "LAT4",
	"AREA_PERIL_ID",
}

// DirSink writes a run's outputs as files into one directory.
type DirSink struct {
	dir    string
	logger *slog.Logger
}

// NewDirSink creates a sink writing into dir. The directory is created on
// first write.
func NewDirSink(dir string, logger *slog.Logger) *DirSink {
	return &DirSink{dir: dir, logger: logger}
}

// Name identifies the sink in logs.
func (s *DirSink) Name() string { return "files" }

// Dir returns the output directory.
func (s *DirSink) Dir() string { return s.dir }

// Write writes every output table, the grid GeoJSON, and the manifest. The
// vulnerability table is skipped when the run produced none. The manifest
// is written last so its presence marks a complete run.
func (s *DirSink) Write(ctx context.Context, out *domain.RunOutput) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	steps := []struct {
		name  string
		write func(io.Writer) error
		skip  bool
	}{
		{FootprintFile, func(w io.Writer) error { return WriteFootprint(w, out.Footprint) }, false},
		{VulnerabilityFile, func(w io.Writer) error { return WriteVulnerability(w, out.Vulnerability) }, out.Vulnerability == nil},
		{EventsFile, func(w io.Writer) error { return WriteEvents(w, out.Events) }, false},
		{OccurrenceFile, func(w io.Writer) error { return WriteOccurrences(w, out.Occurrences) }, false},
		{DictionaryFile, func(w io.Writer) error { return WriteDictionary(w, out.Dictionary) }, false},
		{GridFile, func(w io.Writer) error { _, err := w.Write(out.GridGeoJSON); return err }, len(out.GridGeoJSON) == 0},
		{ManifestFile, func(w io.Writer) error { return WriteManifest(w, out.Manifest) }, false},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeFile(step.name, step.write); err != nil {
			return err
		}
	}
	s.logger.Info("outputs written", "dir", s.dir, "footprint_records", len(out.Footprint))
	return nil
}

// writeFile writes to a temporary file and renames it into place.
func (s *DirSink) writeFile(name string, write func(io.Writer) error) error {
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	s.logger.Debug("file written", "path", path)
	return nil
}

func writeCSV(w io.Writer, header []string, n int, row func(i int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteFootprint writes event_id, areaperil_id, intensity_bin_id, probability.
func WriteFootprint(w io.Writer, recs []domain.FootprintRecord) error {
	return writeCSV(w, []string{"event_id", "areaperil_id", "intensity_bin_id", "probability"}, len(recs), func(i int) []string {
		r := recs[i]
		return []string{itoa(r.EventID), itoa(r.AreaPerilID), itoa(r.IntensityBinID), ftoa(r.Probability)}
	})
}

// WriteVulnerability writes vulnerability_id, intensity_bin_id, damage_bin_id, probability.
func WriteVulnerability(w io.Writer, recs []domain.VulnerabilityBinRecord) error {
	return writeCSV(w, []string{"vulnerability_id", "intensity_bin_id", "damage_bin_id", "probability"}, len(recs), func(i int) []string {
		r := recs[i]
		return []string{itoa(r.VulnerabilityID), itoa(r.IntensityBinID), itoa(r.DamageBinID), ftoa(r.Probability)}
	})
}

// WriteEvents writes the event_id column.
func WriteEvents(w io.Writer, events []domain.Event) error {
	return writeCSV(w, []string{"event_id"}, len(events), func(i int) []string {
		return []string{itoa(events[i].ID)}
	})
}

// WriteOccurrences writes the occurrence table.
func WriteOccurrences(w io.Writer, occ []domain.Occurrence) error {
	return writeCSV(w, []string{"event_id", "period_no", "occ_year", "occ_month", "occ_day"}, len(occ), func(i int) []string {
		o := occ[i]
		return []string{itoa(o.EventID), itoa(o.PeriodNo), itoa(o.OccYear), itoa(o.OccMonth), itoa(o.OccDay)}
	})
}

// WriteDictionary writes the area-peril dictionary with the four corners in ring order.
func WriteDictionary(w io.Writer, rows []domain.AreaPerilRow) error {
	return writeCSV(w, dictionaryHeader, len(rows), func(i int) []string {
		r := rows[i]
		rec := make([]string, 0, len(dictionaryHeader))
		rec = append(rec, r.PerilID, itoa(r.CoverageType))
		for _, c := range r.Corners {
			rec = append(rec, ftoa(c.Lon), ftoa(c.Lat))
		}
		return append(rec, itoa(r.AreaPerilID))
	})
}

// WriteManifest writes the manifest as indented JSON.
func WriteManifest(w io.Writer, m domain.Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// WriteTracks writes a track catalogue readable by ReadTracks. rmw_km is
// left empty for samples without Rmax.
func WriteTracks(w io.Writer, samples []domain.TrackSample) error {
	header := []string{"event_id", "year", "month", "timestep", "lat", "lon", "vmax_ms", "rmw_km", "category", "source"}
	return writeCSV(w, header, len(samples), func(i int) []string {
		s := samples[i]
		rmw := ""
		if s.RmaxKm != nil {
			rmw = ftoa(*s.RmaxKm)
		}
		return []string{
			s.EventKey, itoa(s.Year), itoa(s.Month), itoa(s.Timestep),
			ftoa(s.Lat), ftoa(s.Lon), ftoa(s.VmaxMs), rmw, itoa(s.Category), s.Source,
		}
	})
}

// WriteBins writes a bin table.
func WriteBins(w io.Writer, bins []domain.Bin) error {
	return writeCSV(w, binColumns, len(bins), func(i int) []string {
		b := bins[i]
		return []string{itoa(b.Index), ftoa(b.From), ftoa(b.To)}
	})
}

// WriteCurves writes vulnerability curves in the ReadVulnerability layout,
// converting intensities back to m/s and damage to percent.
func WriteCurves(w io.Writer, curves []domain.VulnerabilityCurve) error {
	return writeCSV(w, vulnerabilityColumns, len(curves), func(i int) []string {
		c := curves[i]
		xs := make([]string, len(c.Points))
		ys := make([]string, len(c.Points))
		for k, p := range c.Points {
			xs[k] = ftoa(geomath.MphToMs(p.IntensityMph))
			ys[k] = ftoa(p.Damage * 100)
		}
		return []string{itoa(c.ID), strings.Join(xs, ","), strings.Join(ys, ",")}
	})
}
