package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSample is returned when a track sample is outside its coordinate
// or wind-speed domain.
var ErrInvalidSample = errors.New("invalid track sample")

// Point is a WGS-84 longitude/latitude pair in decimal degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// TrackSample is one storm position at one timestep.
type TrackSample struct {
	EventKey string  `json:"event_id"`
	Year     int     `json:"year"`
	Month    int     `json:"month"`
	Timestep int     `json:"timestep"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	VmaxMs   float64 `json:"vmax_ms"`
	Category int     `json:"category"`
	Source   string  `json:"source,omitempty"`

	// Wind-field parameters. Nil until supplied by the catalogue or estimated.
	RmaxKm *float64 `json:"rmw_km,omitempty"`
	B      *float64 `json:"b,omitempty"`
}

// Validate checks the coordinate and wind-speed domain of the sample.
func (s TrackSample) Validate() error {
	switch {
	case math.IsNaN(s.Lat) || s.Lat < -90 || s.Lat > 90:
		return fmt.Errorf("%w: event %s timestep %d: lat %v outside [-90, 90]", ErrInvalidSample, s.EventKey, s.Timestep, s.Lat)
	case math.IsNaN(s.Lon) || s.Lon < -180 || s.Lon > 180:
		return fmt.Errorf("%w: event %s timestep %d: lon %v outside [-180, 180]", ErrInvalidSample, s.EventKey, s.Timestep, s.Lon)
	case math.IsNaN(s.VmaxMs) || math.IsInf(s.VmaxMs, 0) || s.VmaxMs < 0:
		return fmt.Errorf("%w: event %s timestep %d: vmax_ms %v must be finite and >= 0", ErrInvalidSample, s.EventKey, s.Timestep, s.VmaxMs)
	}
	return nil
}

// ValidateSamples returns the first validation failure in samples.
func ValidateSamples(samples []TrackSample) error {
	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Event is the ordered set of samples sharing an event key, numbered for output.
type Event struct {
	ID      int           `json:"event_id"`
	Key     string        `json:"key"`
	Year    int           `json:"year"`
	Month   int           `json:"month"`
	Samples []TrackSample `json:"-"`
}

// Category returns the maximum category over the event's samples.
func (e Event) Category() int {
	maxCat := 0
	for i, s := range e.Samples {
		if i == 0 || s.Category > maxCat {
			maxCat = s.Category
		}
	}
	return maxCat
}

// Float returns a pointer to v, for optional sample fields.
func Float(v float64) *float64 {
	return &v
}
