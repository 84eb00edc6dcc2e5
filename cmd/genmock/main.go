// Command genmock writes a synthetic, reproducible set of footprint inputs:
// a track catalogue, intensity and damage bin tables, vulnerability curves,
// and a region boundary. The tracks are random walks that cross the region,
// so a run over the generated data produces a non-empty footprint.
//
// Usage:
//
//	go run ./cmd/genmock -out data -events 200 -seed 7
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-footprint/internal/adapter/csvio"
	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Output file names, matching the config defaults.
const (
	tracksFile        = "tracks.csv"
	intensityBinsFile = "intensity_bin_dict.csv"
	damageBinsFile    = "damage_bin_dict.csv"
	vulnerabilityFile = "vulnerability.csv"
	regionFile        = "region.geojson"
)

type options struct {
	out       string
	events    int
	years     int
	steps     int
	seed      uint64
	centerLon float64
	centerLat float64
	halfSize  float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.out, "out", "data", "output directory")
	flag.IntVar(&o.events, "events", 100, "number of synthetic events")
	flag.IntVar(&o.years, "years", 50, "number of simulated years")
	flag.IntVar(&o.steps, "steps", 40, "timesteps per event (3-hourly)")
	flag.Uint64Var(&o.seed, "seed", 1, "random seed")
	flag.Float64Var(&o.centerLon, "lon", -61.5, "region centre longitude")
	flag.Float64Var(&o.centerLat, "lat", 16.25, "region centre latitude")
	flag.Float64Var(&o.halfSize, "half-size", 0.5, "region half width in degrees")
	flag.Parse()

	if o.events < 1 || o.years < 1 || o.steps < 2 || o.halfSize <= 0 {
		flag.Usage()
		return fmt.Errorf("events, years, and half-size must be positive and steps at least 2")
	}
	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	tracks := generateTracks(rng, o)

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{tracksFile, func(w io.Writer) error { return csvio.WriteTracks(w, tracks) }},
		{intensityBinsFile, func(w io.Writer) error { return csvio.WriteBins(w, intensityBins()) }},
		{damageBinsFile, func(w io.Writer) error { return csvio.WriteBins(w, damageBins()) }},
		{vulnerabilityFile, func(w io.Writer) error { return csvio.WriteCurves(w, curves()) }},
		{regionFile, func(w io.Writer) error { return writeRegion(w, o) }},
	}
	for _, f := range files {
		var buf bytes.Buffer
		if err := f.write(&buf); err != nil {
			return fmt.Errorf("render %s: %w", f.name, err)
		}
		path := filepath.Join(o.out, f.name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	log.Printf("total: %d samples over %d events", len(tracks), o.events)
	return nil
}

// generateTracks produces westward-moving tracks whose mid-life passes near
// the region centre. Intensity ramps up, peaks mid-track, and decays.
func generateTracks(rng *rand.Rand, o options) []domain.TrackSample {
	const stepKm = 60.0 // ~20 km/h over 3 h
	var out []domain.TrackSample
	for e := range o.events {
		year := rng.IntN(o.years)
		month := 6 + rng.IntN(6)
		key := fmt.Sprintf("%d-%d", year, e)

		heading := math.Pi + (rng.Float64()-0.5)*math.Pi/3 // roughly west
		peak := 25 + rng.Float64()*50
		// Start so that the mid-track position lands near the centre.
		offsetLat := (rng.Float64() - 0.5) * 6
		mid := float64(o.steps) / 2
		dLon, dLat := stepDegrees(stepKm, heading, o.centerLat)
		lon := o.centerLon - mid*dLon + (rng.Float64()-0.5)*2
		lat := o.centerLat - mid*dLat + offsetLat

		for step := range o.steps {
			life := float64(step) / float64(o.steps-1)
			vmax := peak * math.Sin(math.Pi*life)
			vmax = math.Round(max(vmax, 10)*10) / 10
			s := domain.TrackSample{
				EventKey: key,
				Year:     year,
				Month:    month,
				Timestep: step,
				Lat:      round4(clamp(lat, -89, 89)),
				Lon:      round4(wrapLon(lon)),
				VmaxMs:   vmax,
				Category: windfield.Category(vmax),
				Source:   "genmock",
			}
			// Half the catalogue carries observed radii so both Rmax paths run.
			if e%2 == 0 {
				rmw := round4(windfield.W06.Rmax(vmax, lat) * (0.8 + 0.4*rng.Float64()))
				s.RmaxKm = &rmw
			}
			out = append(out, s)

			heading += (rng.Float64() - 0.5) * 0.2
			dLon, dLat = stepDegrees(stepKm, heading, lat)
			lon += dLon
			lat += dLat
		}
	}
	return out
}

// stepDegrees converts a step of km along heading (radians, 0 = east) to
// degrees of longitude and latitude.
func stepDegrees(km, heading, lat float64) (dLon, dLat float64) {
	deg := geomath.KmToNauticalMiles(km) / 60
	dLat = deg * math.Sin(heading)
	dLon = deg * math.Cos(heading) / math.Cos(lat*math.Pi/180)
	return dLon, dLat
}

// intensityBins covers 0-300 mph in 5 mph steps.
func intensityBins() []domain.Bin {
	var bins []domain.Bin
	for i := range 60 {
		bins = append(bins, domain.Bin{Index: i + 1, From: float64(i * 5), To: float64((i + 1) * 5)})
	}
	return bins
}

// damageBins covers [0, 1] in 0.05 steps; the last bin is closed at 1.
func damageBins() []domain.Bin {
	var bins []domain.Bin
	for i := range 20 {
		to := float64(i+1) * 0.05
		if i == 19 {
			to = 1.0001
		}
		bins = append(bins, domain.Bin{Index: i + 1, From: float64(i) * 0.05, To: to})
	}
	return bins
}

// curves are logistic damage functions of wind speed for three building classes.
func curves() []domain.VulnerabilityCurve {
	classes := []struct {
		id        int
		midMs     float64
		steepness float64
	}{
		{1, 45, 0.15},
		{2, 55, 0.12},
		{3, 65, 0.10},
	}
	var out []domain.VulnerabilityCurve
	for _, c := range classes {
		vc := domain.VulnerabilityCurve{ID: c.id}
		for ms := 10.0; ms <= 90; ms += 5 {
			d := 1 / (1 + math.Exp(-c.steepness*(ms-c.midMs)))
			vc.Points = append(vc.Points, domain.CurvePoint{
				IntensityMph: geomath.MsToMph(ms),
				Damage:       math.Round(d*1000) / 1000,
			})
		}
		out = append(out, vc)
	}
	return out
}

func writeRegion(w io.Writer, o options) error {
	minX, maxX := o.centerLon-o.halfSize, o.centerLon+o.halfSize
	minY, maxY := o.centerLat-o.halfSize, o.centerLat+o.halfSize
	polygon, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
	if err != nil {
		return err
	}
	fc := geojson.FeatureCollection{Features: []*geojson.Feature{{
		ID:         "region",
		Geometry:   polygon,
		Properties: map[string]interface{}{"name": "synthetic region"},
	}}}
	data, err := json.Marshal(&fc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func wrapLon(lon float64) float64 {
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
