package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

// Resamples a 1-minute bar CSV onto a coarser interval. Output is sorted and
// gap-free within each bucket so it feeds straight back into the simulator
// with the matching bar interval configured.

func main() {
	var (
		input      = flag.String("in", "", "input 1m bar CSV")
		output     = flag.String("out", "", "output CSV path")
		intervalMs = flag.Int64("interval-ms", 300_000, "target bar interval in milliseconds")
	)
	flag.Parse()

	if *input == "" || *output == "" {
		log.Fatal("in and out are required")
	}
	if *intervalMs < 60_000 || *intervalMs%60_000 != 0 {
		log.Fatalf("interval-ms %d must be a whole number of minutes", *intervalMs)
	}

	bars, err := engine.LoadBarsCSV(*input)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}

	buckets := make(map[int64]*engine.Bar)
	for _, bar := range bars {
		ts := bar.TsMs - bar.TsMs%*intervalMs
		agg, ok := buckets[ts]
		if !ok {
			b := bar
			b.TsMs = ts
			buckets[ts] = &b
			continue
		}
		if bar.High.GreaterThan(agg.High) {
			agg.High = bar.High
		}
		if bar.Low.LessThan(agg.Low) {
			agg.Low = bar.Low
		}
		agg.Close = bar.Close
		agg.Volume = agg.Volume.Add(bar.Volume)
	}

	keys := make([]int64, 0, len(buckets))
	for ts := range buckets {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if err := writeBars(*output, buckets, keys); err != nil {
		log.Fatalf("write bars: %v", err)
	}
	fmt.Printf("aggregated %d 1m bars into %d %dms bars: %s\n",
		len(bars), len(keys), *intervalMs, *output)
}

func writeBars(path string, buckets map[int64]*engine.Bar, keys []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp_ms", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, ts := range keys {
		bar := buckets[ts]
		rec := []string{
			strconv.FormatInt(bar.TsMs, 10),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			bar.Volume.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}
