// Package windfield evaluates the symmetric parametric (Holland-type)
// cyclone wind profile and its supporting regressions.
package windfield

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/storm-footprint/internal/domain"
)

var (
	// ErrZeroDistance is returned when the wind speed is requested at the storm center.
	ErrZeroDistance = errors.New("wind speed undefined at r = 0")
	// ErrNonFinite is returned when the profile evaluates to NaN or Inf.
	ErrNonFinite = errors.New("wind speed not finite")
	// ErrUnknownEstimator is returned by ParseEstimator for unrecognized names.
	ErrUnknownEstimator = errors.New("unknown rmax estimator")
)

// RmaxEstimator estimates the radius of maximum wind (km) from the maximum
// sustained wind speed (m/s) and latitude (degrees).
type RmaxEstimator interface {
	Name() string
	Rmax(vmaxMs, lat float64) float64
}

// Estimators are selected by value; the zero value is not usable.
var (
	// W04 is Willoughby and Rahn (2004), eq. 12.1.
	W04 RmaxEstimator = w04{}
	// W06 is Willoughby and Rahn (2006), eq. 7a.
	W06 RmaxEstimator = w06{}
	// Q11 is Quiring et al. (2011), expressed in km.
	Q11 RmaxEstimator = q11{}
)

type w04 struct{}

func (w04) Name() string { return "W04" }

func (w04) Rmax(vmaxMs, lat float64) float64 {
	return 46.29 * math.Exp(-0.0153*vmaxMs+0.0166*lat)
}

type w06 struct{}

func (w06) Name() string { return "W06" }

func (w06) Rmax(vmaxMs, lat float64) float64 {
	return 46.4 * math.Exp(-0.0155*vmaxMs+0.0169*lat)
}

type q11 struct{}

func (q11) Name() string { return "Q11" }

// Rmax ignores latitude. The regression is in nautical miles; 0.5399568 is the
// conversion factor applied to Vmax before evaluating it.
func (q11) Rmax(vmaxMs, _ float64) float64 {
	vm := vmaxMs * 0.5399568
	return (49.67 - 0.24*vm) * 1.852
}

// ParseEstimator returns the estimator with the given name (case-insensitive).
func ParseEstimator(name string) (RmaxEstimator, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "W04":
		return W04, nil
	case "W06":
		return W06, nil
	case "Q11":
		return Q11, nil
	default:
		return nil, fmt.Errorf("%w: %q (want W04, W06 or Q11)", ErrUnknownEstimator, name)
	}
}

// HollandB is the Powell et al. (2005) regression for the Holland shape parameter.
func HollandB(vmaxMs, lat float64) float64 {
	return 0.886 + 0.0177*vmaxMs - 0.0094*lat
}

// WindSpeed returns the symmetric wind speed at distance r from the storm
// center, in the units of vmax. r and rmax share a unit. r == 0 is an error
// and so is any non-finite result; neither is clamped.
func WindSpeed(vmax, rmax, r, b float64) (float64, error) {
	if r == 0 {
		return 0, ErrZeroDistance
	}
	y := math.Pow(rmax/r, b)
	x := 1 - y
	vc := vmax * math.Sqrt(y*math.Exp(x))
	if math.IsNaN(vc) || math.IsInf(vc, 0) {
		return 0, fmt.Errorf("%w: vmax=%v rmax=%v r=%v b=%v", ErrNonFinite, vmax, rmax, r, b)
	}
	return vc, nil
}

// MustWindSpeed is WindSpeed for callers that guarantee r > 0. It panics on error.
func MustWindSpeed(vmax, rmax, r, b float64) float64 {
	vc, err := WindSpeed(vmax, rmax, r, b)
	if err != nil {
		panic(err)
	}
	return vc
}

// InflowAngle returns the inflow angle (degrees) at distance r for a storm
// with radius of maximum wind rmax. The profile jumps from 25 to 10 at
// r = 1.2*rmax; that discontinuity is part of the published model.
func InflowAngle(r, rmax float64) float64 {
	switch {
	case r < rmax:
		return 10 * r / rmax
	case r >= 1.2*rmax:
		return 10
	default:
		return 75*r/rmax - 65
	}
}

// Category maps a wind speed in m/s to its Saffir-Simpson category.
func Category(vms float64) int {
	switch {
	case vms <= 33:
		return 0
	case vms <= 42:
		return 1
	case vms <= 49:
		return 2
	case vms <= 58:
		return 3
	case vms <= 70:
		return 4
	default:
		return 5
	}
}

// Enrich fills the wind-field parameters of each sample. Rmax is estimated
// when missing, or always when override is set. B is always recomputed from
// the Powell regression. The input slice is not modified.
func Enrich(samples []domain.TrackSample, est RmaxEstimator, override bool) []domain.TrackSample {
	out := make([]domain.TrackSample, len(samples))
	for i, s := range samples {
		if override || s.RmaxKm == nil {
			s.RmaxKm = domain.Float(est.Rmax(s.VmaxMs, s.Lat))
		}
		s.B = domain.Float(HollandB(s.VmaxMs, s.Lat))
		out[i] = s
	}
	return out
}
