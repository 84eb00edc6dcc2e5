// Package catalog numbers the selected events and derives the event and
// occurrence tables consumed by the loss engine.
package catalog

import "github.com/couchcryptid/storm-footprint/internal/domain"

type eventKey struct {
	key   string
	year  int
	month int
}

// Number assigns 1-based integer ids to each distinct (event key, year, month)
// in first-appearance order and attaches the matching samples.
func Number(samples []domain.TrackSample) []domain.Event {
	index := make(map[eventKey]int)
	var events []domain.Event
	for _, s := range samples {
		k := eventKey{s.EventKey, s.Year, s.Month}
		i, ok := index[k]
		if !ok {
			i = len(events)
			index[k] = i
			events = append(events, domain.Event{
				ID:    i + 1,
				Key:   s.EventKey,
				Year:  s.Year,
				Month: s.Month,
			})
		}
		events[i].Samples = append(events[i].Samples, s)
	}
	return events
}

// Occurrences returns one occurrence per event. The period is the event year
// and the day column repeats the month, since tracks carry no day.
func Occurrences(events []domain.Event) []domain.Occurrence {
	out := make([]domain.Occurrence, len(events))
	for i, e := range events {
		out[i] = domain.Occurrence{
			EventID:  e.ID,
			PeriodNo: e.Year,
			OccYear:  e.Year,
			OccMonth: e.Month,
			OccDay:   e.Month,
		}
	}
	return out
}
