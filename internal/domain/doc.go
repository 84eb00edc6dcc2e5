// Package domain models tropical-cyclone track samples, grid cells, and the
// binned hazard and vulnerability tables consumed by a downstream loss engine.
//
// # Track Catalogue
//
// Each row of a track catalogue is one storm position at one timestep:
//
//	event_id, year, month, timestep, lat, lon, vmax_ms, rmw_km, category, source
//
// Rows sharing an event_id form one event. The catalogue key is a string
// (for synthetic STORM catalogues: file number + year + month + storm number).
// Events that survive selection are renumbered with sequential integer ids,
// 1-based in first-appearance order, because the loss engine keys on integers.
//
// Units:
//
//	vmax_ms   maximum sustained wind speed, m/s
//	rmw_km    radius of maximum wind, km (may be empty; estimated when missing)
//	category  Saffir-Simpson category 0-5 on m/s thresholds (derived when empty)
//
// # Area Perils
//
// A grid cell ("area peril") is a rectangle in a projected CRS. Its identifier
// is 1-based and assigned column by column from the top-left origin: every row
// of the first column, then every row of the second, and so on. Corner vertices
// are stored in geographic coordinates in ring order top-left, top-right,
// bottom-right, bottom-left.
//
// # Bins
//
// Intensity and damage bins are half-open ranges [from, to) with an integer
// index. A bin table must be a contiguous, non-overlapping partition: after
// sorting by from, to[i] == from[i+1]. A value on a shared boundary belongs to
// the upper bin. Values below the first from or at/above the last to match no
// bin and produce no output row.
//
// # Probabilities
//
// Footprint and vulnerability rows always carry probability 1. There is no
// intra-bin probability split.
package domain
