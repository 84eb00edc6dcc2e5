// Package geomath holds the numeric primitives shared by the footprint
// pipeline: great-circle distance and unit conversions.
package geomath

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the fixed sphere radius used for haversine distances.
const EarthRadiusKm = 6372.795477598

const (
	metersPerMile         = 1609.344
	metersPerNauticalMile = 1852.0
	secondsPerHour        = 3600.0
)

// Distance returns the great-circle distance in km between two points given in
// decimal degrees. Out-of-range coordinates are not rejected.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := phi2 - phi1
	dlambda := (lon2 - lon1) * math.Pi / 180

	sinDphi := math.Sin(dphi / 2)
	sinDlambda := math.Sin(dlambda / 2)
	a := sinDphi*sinDphi + math.Cos(phi1)*math.Cos(phi2)*sinDlambda*sinDlambda
	// Rounding can push a just above 1 for antipodal points.
	if a > 1 {
		a = 1
	}
	return 2 * math.Asin(math.Sqrt(a)) * EarthRadiusKm
}

// Distances is the element-wise form of Distance over equal-length slices.
func Distances(lon1, lat1, lon2, lat2 []float64) ([]float64, error) {
	n := len(lon1)
	if len(lat1) != n || len(lon2) != n || len(lat2) != n {
		return nil, fmt.Errorf("distances: mismatched lengths %d/%d/%d/%d", len(lon1), len(lat1), len(lon2), len(lat2))
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = Distance(lon1[i], lat1[i], lon2[i], lat2[i])
	}
	return out, nil
}

// IntensityUnit names the unit of footprint intensities and intensity bin
// tables.
const IntensityUnit = "mph"

// MsToMph converts a velocity from m/s to statute miles per hour. Values are
// about 15% above a knots-based intensity (m/s * 3600/1852), so bin tables
// built on that scale need their bounds multiplied by 1852/1609.344.
func MsToMph(v float64) float64 {
	return v * secondsPerHour / metersPerMile
}

// MphToMs converts a velocity from statute miles per hour to m/s.
func MphToMs(v float64) float64 {
	return v * metersPerMile / secondsPerHour
}

// KnotsToMs converts a velocity from knots to m/s.
func KnotsToMs(v float64) float64 {
	return v * metersPerNauticalMile / secondsPerHour
}

// MsToKnots converts a velocity from m/s to knots.
func MsToKnots(v float64) float64 {
	return v * secondsPerHour / metersPerNauticalMile
}

// NauticalMilesToKm converts a distance from nautical miles to km.
func NauticalMilesToKm(n float64) float64 {
	return n * metersPerNauticalMile / 1000
}

// KmToNauticalMiles converts a distance from km to nautical miles.
func KmToNauticalMiles(km float64) float64 {
	return km * 1000 / metersPerNauticalMile
}

// AngularRadius returns the central angle in radians subtended by a
// great-circle distance in km.
func AngularRadius(km float64) float64 {
	return km / EarthRadiusKm
}
