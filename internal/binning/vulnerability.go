package binning

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/storm-footprint/internal/domain"
)

// VulnerabilityResult is the output of BinVulnerability.
type VulnerabilityResult struct {
	Records []domain.VulnerabilityBinRecord
	// Duplicates counts candidate rows discarded by the per-key deduplication.
	Duplicates int
	Unmatched  domain.UnmatchedSummary
}

// BinVulnerability maps every curve point to a damage bin and then to an
// intensity bin, and keeps at most one record per (vulnerability, intensity
// bin). Points that match no damage bin or no intensity bin are skipped.
//
// When several points of a curve land in the same intensity bin, candidates
// are stably sorted by (vulnerability id, intensity bin id) and the last one
// in curve order wins. This reproduces the legacy tie-break; it is an
// artifact of input ordering rather than a deliberate priority rule.
func BinVulnerability(curves []domain.VulnerabilityCurve, damage, intensity *Table) VulnerabilityResult {
	res := VulnerabilityResult{Unmatched: domain.UnmatchedSummary{Table: intensity.Name() + "/" + damage.Name()}}

	var candidates []domain.VulnerabilityBinRecord
	for _, c := range curves {
		for _, p := range c.Points {
			db, ok := damage.Lookup(p.Damage)
			if !ok {
				res.Unmatched.Add("vulnerability=%d damage=%g", c.ID, p.Damage)
				continue
			}
			ib, ok := intensity.Lookup(p.IntensityMph)
			if !ok {
				res.Unmatched.Add("vulnerability=%d intensity_mph=%g", c.ID, p.IntensityMph)
				continue
			}
			candidates = append(candidates, domain.VulnerabilityBinRecord{
				VulnerabilityID: c.ID,
				IntensityBinID:  ib.Index,
				DamageBinID:     db.Index,
				Probability:     1,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.VulnerabilityID != b.VulnerabilityID {
			return a.VulnerabilityID < b.VulnerabilityID
		}
		return a.IntensityBinID < b.IntensityBinID
	})

	records := make([]domain.VulnerabilityBinRecord, 0, len(candidates))
	for i, c := range candidates {
		if i+1 < len(candidates) && sameKey(c, candidates[i+1]) {
			res.Duplicates++
			continue
		}
		records = append(records, c)
	}
	res.Records = records
	return res
}

func sameKey(a, b domain.VulnerabilityBinRecord) bool {
	return a.VulnerabilityID == b.VulnerabilityID && a.IntensityBinID == b.IntensityBinID
}

// String renders a short description for logs.
func (r VulnerabilityResult) String() string {
	return fmt.Sprintf("%d records, %d duplicates dropped, %d unmatched", len(r.Records), r.Duplicates, r.Unmatched.Count)
}
