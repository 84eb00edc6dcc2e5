package footprint

import (
	"math"

	"github.com/couchcryptid/storm-footprint/internal/geomath"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
)

const (
	cutoffIterations  = 100
	cutoffMaxDoubling = 64
	// cutoffMargin widens the bisection result so rounding never drops a cell
	// whose wind speed equals the floor.
	cutoffMargin = 1e-9
)

// cutoffRadius returns the distance in km beyond which the profile of one
// sample stays below floorMph. Beyond rmax the profile decreases with r when
// b > 0, so cells farther than the cutoff cannot reach any bin.
//
// The result is 0 when Vmax itself is below the floor and +Inf when the
// profile is not known to be monotonic (b <= 0, rmax <= 0) or every speed
// is binnable (floorMph <= 0).
func cutoffRadius(vmaxMs, rmaxKm, b, floorMph float64) float64 {
	if floorMph <= 0 || b <= 0 || rmaxKm <= 0 {
		return math.Inf(1)
	}
	if geomath.MsToMph(vmaxMs) < floorMph {
		return 0
	}
	below := func(r float64) bool {
		vc, err := windfield.WindSpeed(vmaxMs, rmaxKm, r, b)
		return err == nil && geomath.MsToMph(vc) < floorMph
	}

	lo, hi := rmaxKm, 2*rmaxKm
	for i := 0; !below(hi); i++ {
		if i == cutoffMaxDoubling {
			return math.Inf(1)
		}
		lo, hi = hi, 2*hi
	}
	for i := 0; i < cutoffIterations && hi-lo > hi*1e-12; i++ {
		mid := lo + (hi-lo)/2
		if below(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi * (1 + cutoffMargin)
}
