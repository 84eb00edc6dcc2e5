// Command validate checks the integrity of a footprint output directory: the
// footprint, event, occurrence, and area-peril tables must agree with each
// other and with the manifest, and every intensity bin id must exist in the
// bin table the run was built with.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -output-dir output \
//	  -intensity-bins data/intensity_bin_dict.csv
package main

import (
	"cmp"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-footprint/internal/adapter/csvio"
	"github.com/couchcryptid/storm-footprint/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// outputs is a loaded output directory.
type outputs struct {
	manifest    domain.Manifest
	footprint   []domain.FootprintRecord
	events      []int
	occurrences []domain.Occurrence
	dictionary  []domain.AreaPerilRow
	bins        []domain.Bin
}

func main() {
	outputDir := flag.String("output-dir", "", "footprint output directory")
	binsPath := flag.String("intensity-bins", "", "intensity bin table used for the run (optional)")
	flag.Parse()

	if *outputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*outputDir, *binsPath))
}

func run(dir, binsPath string) int {
	fmt.Println("=== Footprint Integrity Validation ===")
	fmt.Println()

	out, err := load(dir, binsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := validate(out)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Run %s: %d footprint records, %d events, %d area perils\n",
		out.manifest.RunID, len(out.footprint), len(out.events), len(out.dictionary))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func load(dir, binsPath string) (outputs, error) {
	var out outputs
	var err error
	if out.manifest, err = csvio.ReadManifestFile(filepath.Join(dir, csvio.ManifestFile)); err != nil {
		return out, err
	}
	if out.footprint, err = csvio.ReadFootprintFile(filepath.Join(dir, csvio.FootprintFile)); err != nil {
		return out, err
	}
	if out.events, err = csvio.ReadEventIDsFile(filepath.Join(dir, csvio.EventsFile)); err != nil {
		return out, err
	}
	if out.occurrences, err = csvio.ReadOccurrencesFile(filepath.Join(dir, csvio.OccurrenceFile)); err != nil {
		return out, err
	}
	if out.dictionary, err = csvio.ReadDictionaryFile(filepath.Join(dir, csvio.DictionaryFile)); err != nil {
		return out, err
	}
	if binsPath != "" {
		if out.bins, err = csvio.ReadBinsFile(binsPath); err != nil {
			return out, err
		}
	}
	return out, nil
}

func validate(out outputs) []*phase {
	return []*phase{
		validateManifest(out),
		validateFootprint(out),
		validateOccurrences(out),
		validateDictionary(out),
	}
}

// ── Phase 1: Manifest ──
// Validates that the manifest counts match the written tables.

func validateManifest(out outputs) *phase {
	p := &phase{name: "Phase 1: Manifest Counts"}
	c := out.manifest.Counts
	if out.manifest.RunID == "" {
		p.errorf("manifest has no run_id")
	}
	if c.FootprintRecords != len(out.footprint) {
		p.errorf("footprint_records: manifest %d, file %d", c.FootprintRecords, len(out.footprint))
	}
	if c.EventsSelected != len(out.events) {
		p.errorf("events_selected: manifest %d, file %d", c.EventsSelected, len(out.events))
	}
	if c.Cells != len(out.dictionary) {
		p.errorf("cells: manifest %d, dictionary %d", c.Cells, len(out.dictionary))
	}
	if g := out.manifest.Grid; g.Rows*g.Cols != len(out.dictionary) {
		p.errorf("grid %dx%d does not match %d dictionary rows", g.Rows, g.Cols, len(out.dictionary))
	}
	return p
}

// ── Phase 2: Footprint ──
// Validates ordering, uniqueness, probabilities, and foreign keys.

func validateFootprint(out outputs) *phase {
	p := &phase{name: "Phase 2: Footprint Integrity"}

	events := make(map[int]bool, len(out.events))
	for _, id := range out.events {
		events[id] = true
	}
	cells := make(map[int]bool, len(out.dictionary))
	for _, r := range out.dictionary {
		cells[r.AreaPerilID] = true
	}
	bins := make(map[int]bool, len(out.bins))
	for _, b := range out.bins {
		bins[b.Index] = true
	}

	for i, r := range out.footprint {
		line := i + 2
		if i > 0 {
			prev := out.footprint[i-1]
			order := cmp.Or(cmp.Compare(prev.EventID, r.EventID), cmp.Compare(prev.AreaPerilID, r.AreaPerilID))
			if order >= 0 {
				p.errorf("line %d: (%d, %d) is not after (%d, %d)", line, r.EventID, r.AreaPerilID, prev.EventID, prev.AreaPerilID)
			}
		}
		if r.Probability != 1 {
			p.errorf("line %d: probability %v, want 1", line, r.Probability)
		}
		if !events[r.EventID] {
			p.errorf("line %d: event %d not in events table", line, r.EventID)
		}
		if !cells[r.AreaPerilID] {
			p.errorf("line %d: areaperil %d not in dictionary", line, r.AreaPerilID)
		}
		if len(bins) > 0 && !bins[r.IntensityBinID] {
			p.errorf("line %d: intensity bin %d not in bin table", line, r.IntensityBinID)
		}
	}
	return p
}

// ── Phase 3: Occurrence ──
// Validates one occurrence per event with the period and day conventions.

func validateOccurrences(out outputs) *phase {
	p := &phase{name: "Phase 3: Occurrence Table"}
	if len(out.occurrences) != len(out.events) {
		p.errorf("occurrence has %d rows, events has %d", len(out.occurrences), len(out.events))
	}
	seen := make(map[int]bool, len(out.occurrences))
	for i, o := range out.occurrences {
		if seen[o.EventID] {
			p.errorf("line %d: duplicate event %d", i+2, o.EventID)
		}
		seen[o.EventID] = true
		if o.PeriodNo != o.OccYear {
			p.errorf("line %d: period_no %d differs from occ_year %d", i+2, o.PeriodNo, o.OccYear)
		}
		if o.OccDay != o.OccMonth {
			p.errorf("line %d: occ_day %d differs from occ_month %d", i+2, o.OccDay, o.OccMonth)
		}
	}
	for i, id := range out.events {
		if id != i+1 {
			p.errorf("events line %d: id %d, want %d", i+2, id, i+1)
		}
	}
	return p
}

// ── Phase 4: Dictionary ──
// Validates contiguous area-peril ids and well-formed cells.

func validateDictionary(out outputs) *phase {
	p := &phase{name: "Phase 4: Area-Peril Dictionary"}
	for i, r := range out.dictionary {
		if r.AreaPerilID != i+1 {
			p.errorf("line %d: areaperil %d, want %d", i+2, r.AreaPerilID, i+1)
		}
		if r.PerilID != out.manifest.PerilID {
			p.errorf("line %d: peril %q, manifest %q", i+2, r.PerilID, out.manifest.PerilID)
		}
		c := r.Corners
		// Corners run top-left, top-right, bottom-right, bottom-left.
		if c[0].Lat <= c[3].Lat || c[1].Lon <= c[0].Lon {
			p.errorf("line %d: corners out of order %v", i+2, c)
		}
	}
	return p
}
