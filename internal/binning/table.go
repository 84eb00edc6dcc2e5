// Package binning discretizes continuous intensity and damage values into
// half-open bins and builds the vulnerability bin table.
package binning

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidTable is returned when a bin table is not a contiguous,
// non-overlapping partition.
var ErrInvalidTable = errors.New("invalid bin table")

// Table is a validated bin partition with a sorted boundary array for
// O(log n) lookup.
type Table struct {
	name  string
	bins  []domain.Bin
	froms []float64
}

// NewTable validates bins and builds a lookup table. name identifies the table
// in error messages ("intensity", "damage"). bins may be given in any order;
// after sorting by From they must satisfy From < To, To[i] == From[i+1], and
// unique indices.
func NewTable(name string, bins []domain.Bin) (*Table, error) {
	if len(bins) == 0 {
		return nil, fmt.Errorf("%w: %s table is empty", ErrInvalidTable, name)
	}
	sorted := slices.Clone(bins)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	seen := make(map[int]struct{}, len(sorted))
	froms := make([]float64, len(sorted))
	for i, b := range sorted {
		if !isFinite(b.From) || !isFinite(b.To) {
			return nil, fmt.Errorf("%w: %s table bin %d has non-finite bounds [%v, %v)", ErrInvalidTable, name, b.Index, b.From, b.To)
		}
		if b.From >= b.To {
			return nil, fmt.Errorf("%w: %s table bin %d is empty or inverted [%v, %v)", ErrInvalidTable, name, b.Index, b.From, b.To)
		}
		if _, dup := seen[b.Index]; dup {
			return nil, fmt.Errorf("%w: %s table has duplicate bin index %d", ErrInvalidTable, name, b.Index)
		}
		seen[b.Index] = struct{}{}
		if i > 0 {
			prev := sorted[i-1]
			switch {
			case prev.To > b.From:
				return nil, fmt.Errorf("%w: %s table bins %d and %d overlap (%v > %v)", ErrInvalidTable, name, prev.Index, b.Index, prev.To, b.From)
			case prev.To < b.From:
				return nil, fmt.Errorf("%w: %s table has a gap between bins %d and %d (%v < %v)", ErrInvalidTable, name, prev.Index, b.Index, prev.To, b.From)
			}
		}
		froms[i] = b.From
	}
	return &Table{name: name, bins: sorted, froms: froms}, nil
}

// Name returns the table name given to NewTable.
func (t *Table) Name() string { return t.name }

// Bins returns the bins sorted by From.
func (t *Table) Bins() []domain.Bin { return slices.Clone(t.bins) }

// Len returns the number of bins.
func (t *Table) Len() int { return len(t.bins) }

// Min returns the lowest bin_from covered by the table.
func (t *Table) Min() float64 { return floats.Min(t.froms) }

// Max returns the highest bin_to covered by the table (exclusive).
func (t *Table) Max() float64 { return t.bins[len(t.bins)-1].To }

// Lookup returns the unique bin whose [From, To) range contains v. ok is false
// when v lies outside [Min, Max) or is NaN.
func (t *Table) Lookup(v float64) (domain.Bin, bool) {
	if math.IsNaN(v) || v < t.froms[0] {
		return domain.Bin{}, false
	}
	// Last bin whose From <= v.
	i := sort.Search(len(t.froms), func(i int) bool { return t.froms[i] > v }) - 1
	if b := t.bins[i]; b.Contains(v) {
		return b, true
	}
	return domain.Bin{}, false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
