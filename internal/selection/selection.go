// Package selection filters a track catalogue to the events relevant to a
// region of interest.
//
// Selection is event-level: once any sample of an event passes the distance
// test and the event's maximum category passes the category test, every
// sample of that event is retained.
package selection

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
)

// ErrInvalidCriteria is returned for thresholds that cannot select anything.
var ErrInvalidCriteria = errors.New("invalid selection criteria")

// Criteria are the selection thresholds.
type Criteria struct {
	// DistanceKm is the exclusive great-circle radius around the centroid.
	DistanceKm float64 `json:"distance_km"`
	// MinCategory is the inclusive lower bound on an event's maximum category.
	MinCategory int `json:"min_category"`
}

// Validate rejects a non-positive or non-finite distance and a negative category.
func (c Criteria) Validate() error {
	if math.IsNaN(c.DistanceKm) || math.IsInf(c.DistanceKm, 0) || c.DistanceKm <= 0 {
		return fmt.Errorf("%w: distance_km must be finite and > 0, got %v", ErrInvalidCriteria, c.DistanceKm)
	}
	if c.MinCategory < 0 || c.MinCategory > 5 {
		return fmt.Errorf("%w: min_category must be in [0, 5], got %d", ErrInvalidCriteria, c.MinCategory)
	}
	return nil
}

// Result holds the retained samples and the keys of the selected events.
type Result struct {
	Samples []domain.TrackSample
	// EventKeys lists selected events in first-appearance order.
	EventKeys []string
	// Considered is the number of distinct events in the input.
	Considered int
	// NearEvents is the number of events passing the distance test alone.
	NearEvents int
}

// Select returns the samples of every event with at least one sample strictly
// closer than c.DistanceKm to centroid and a maximum category of at least
// c.MinCategory. Retained samples keep their input order.
func Select(samples []domain.TrackSample, centroid domain.Point, c Criteria) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}

	lons := make([]float64, len(samples))
	lats := make([]float64, len(samples))
	centroidLons := make([]float64, len(samples))
	centroidLats := make([]float64, len(samples))
	for i, s := range samples {
		lons[i], lats[i] = s.Lon, s.Lat
		centroidLons[i], centroidLats[i] = centroid.Lon, centroid.Lat
	}
	dist, err := geomath.Distances(lons, lats, centroidLons, centroidLats)
	if err != nil {
		return Result{}, fmt.Errorf("select events: %w", err)
	}

	near := make(map[string]bool)
	for i, s := range samples {
		if dist[i] < c.DistanceKm {
			near[s.EventKey] = true
		}
	}

	events := GroupEvents(samples)
	keep := make(map[string]bool, len(near))
	res := Result{Considered: len(events), NearEvents: len(near)}
	for _, e := range events {
		if near[e.Key] && e.Category() >= c.MinCategory {
			keep[e.Key] = true
			res.EventKeys = append(res.EventKeys, e.Key)
		}
	}

	for _, s := range samples {
		if keep[s.EventKey] {
			res.Samples = append(res.Samples, s)
		}
	}
	return res, nil
}

// GroupEvents groups samples by event key in first-appearance order. Year and
// month come from the first sample of each event. IDs are left zero.
func GroupEvents(samples []domain.TrackSample) []domain.Event {
	index := make(map[string]int)
	var events []domain.Event
	for _, s := range samples {
		i, ok := index[s.EventKey]
		if !ok {
			i = len(events)
			index[s.EventKey] = i
			events = append(events, domain.Event{Key: s.EventKey, Year: s.Year, Month: s.Month})
		}
		events[i].Samples = append(events[i].Samples, s)
	}
	return events
}
