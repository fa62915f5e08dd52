// Command genmock generates a synthetic balloon observation fixture in the
// sensor-data API page format. Each mission ascends from its launch point
// while drifting, and a fraction of records carry nulls so downstream
// tests exercise missing-value handling.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/observations.json \
//	  -missions 3 -start 2024-04-26T00:00:00Z -hours 12
package main

import (
	"cmp"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

type page struct {
	Observations []domain.RawObservation `json:"observations"`
	HasNextPage  bool                    `json:"has_next_page"`
	NextSince    int64                   `json:"next_since"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the JSON fixture")
	missions := flag.Int("missions", 3, "number of balloon missions")
	start := flag.String("start", "2024-04-26T00:00:00Z", "first launch time, RFC3339")
	hours := flag.Float64("hours", 12, "length of the generated period in hours")
	interval := flag.Duration("interval", 15*time.Minute, "time between records of one mission")
	seed := flag.Uint64("seed", 7, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *missions < 1 || *hours <= 0 || *interval <= 0 {
		return fmt.Errorf("missions, hours and interval must be positive")
	}
	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	period := time.Duration(*hours * float64(time.Hour))

	var records []domain.RawObservation
	for m := range *missions {
		name := fmt.Sprintf("W-%d", 101+m)
		// Stagger launches across the first half of the period.
		launch := t0.Add(time.Duration(rng.Float64() * float64(period/2)))
		recs := mission(rng, name, launch, t0.Add(period), *interval)
		records = append(records, recs...)
		log.Printf("%s: %d records from %s", name, len(recs), launch.Format(time.RFC3339))
	}
	if len(records) == 0 {
		return fmt.Errorf("no records generated")
	}

	// A duplicate and a record without position, as the live API
	// occasionally serves them.
	dup := records[len(records)/3]
	nopos := records[len(records)/2]
	nopos.ID += "-nopos"
	nopos.Latitude = nil
	records = append(records, dup, nopos)

	slices.SortStableFunc(records, func(a, b domain.RawObservation) int {
		return cmp.Or(cmp.Compare(a.Timestamp, b.Timestamp), strings.Compare(a.ID, b.ID))
	})

	p := page{Observations: records, NextSince: int64(records[len(records)-1].Timestamp)}
	if err := writeJSON(*out, p); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d records to %s", len(records), *out)
	return nil
}

// mission simulates one ascent until end or the float ceiling.
func mission(rng *rand.Rand, name string, launch, end time.Time, interval time.Duration) []domain.RawObservation {
	lat := 35 + rng.Float64()*10
	lon := -110 + rng.Float64()*15
	alt := 300 + rng.Float64()*700
	u, v := rng.Float64()*30-10, rng.Float64()*16-8

	var recs []domain.RawObservation
	for i := 0; ; i++ {
		ts := launch.Add(time.Duration(i) * interval)
		if !ts.Before(end) {
			break
		}
		alt = math.Min(alt+300+rng.Float64()*150, 18000)
		temp := 15 - 0.0065*alt + rng.NormFloat64()
		u += rng.NormFloat64()
		v += rng.NormFloat64()

		rec := domain.RawObservation{
			ID:          fmt.Sprintf("%s-%03d", strings.ToLower(name), i),
			Timestamp:   float64(ts.Unix()),
			MissionName: name,
			Latitude:    ptr(round(lat, 4)),
			Longitude:   ptr(round(lon, 4)),
			Altitude:    ptr(round(alt, 1)),
			Pressure:    ptr(round(domain.PressureFromAltitude(alt), 2)),
			Temperature: ptr(round(temp, 2)),
			Humidity:    ptr(round(5+rng.Float64()*90, 1)),
			SpeedU:      ptr(round(u, 2)),
			SpeedV:      ptr(round(v, 2)),
		}
		switch {
		case rng.Float64() < 0.02:
			rec.Pressure, rec.Altitude = nil, nil
		case rng.Float64() < 0.1:
			rec.Pressure = nil
		case rng.Float64() < 0.15:
			rec.Humidity = nil
		}
		recs = append(recs, rec)

		lat += v * interval.Seconds() / 111_000
		lon += u * interval.Seconds() / (111_000 * math.Cos(lat*math.Pi/180))
	}
	return recs
}

func ptr(v float64) *float64 { return &v }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
