// Command genmock writes a synthetic BMD-style rainfall dataset: a station
// metadata table, one daily CSV per station and a Bangladesh outline. The
// output depends only on the flags, so fixtures can be regenerated at will.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	STATION_META_PATH=data/mock/station_metadata.csv \
//	DAILY_PATH=data/mock/daily \
//	BOUNDARY_PATH=data/mock/bangladesh.geojson \
//	  go run ./cmd/trends
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/couchcryptid/rainfall-trend-etl/internal/mockdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	def := mockdata.DefaultOptions()
	out := flag.String("out", "data/mock", "output directory")
	stations := flag.Int("stations", def.Stations, "number of stations (at most 32)")
	start := flag.Int("start", def.StartYear, "first year")
	end := flag.Int("end", def.EndYear, "last year")
	seed := flag.Uint64("seed", def.Seed, "random seed")
	missing := flag.Float64("missing-rate", def.MissingRate, "probability that a day is not observed")
	maxTrend := flag.Float64("max-trend", def.MaxTrend, "largest fractional change per year")
	flag.Parse()

	if *start > *end {
		flag.Usage()
		return fmt.Errorf("-start %d is after -end %d", *start, *end)
	}
	if *missing < 0 || *missing > 1 {
		return fmt.Errorf("-missing-rate must be in [0, 1], got %v", *missing)
	}

	ds, err := mockdata.New(mockdata.Options{
		Stations:    *stations,
		StartYear:   *start,
		EndYear:     *end,
		Seed:        *seed,
		MissingRate: *missing,
		MaxTrend:    *maxTrend,
	}).Write(*out)
	if err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}

	log.Printf("wrote %s", ds.MetaPath)
	log.Printf("wrote %d daily files (%d rows) to %s", len(ds.Stations), ds.Days, ds.DailyDir)
	log.Printf("wrote %s", ds.BoundaryPath)
	printStats(ds.Stations)
	return nil
}

func printStats(stations []mockdata.Station) {
	sorted := make([]mockdata.Station, len(stations))
	copy(sorted, stations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Trend > sorted[j].Trend })

	fmt.Println("\nGenerated trends (fraction of the mean per year):")
	for _, st := range sorted {
		fmt.Printf("  %-14s %+7.4f  scale %.2f\n", st.Name, st.Trend, st.Scale)
	}
}
