package scoring

import (
	"fmt"
	"sort"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

const (
	SourceReference = "reference"
	SourceLive      = "live"
)

// DisplayRange anchors a color scale: Low and High bound it, Mid is the
// median. Ascending is true when higher values mean more vulnerable.
type DisplayRange struct {
	Column    string  `json:"column"`
	Low       float64 `json:"low"`
	Mid       float64 `json:"mid"`
	High      float64 `json:"high"`
	Ascending bool    `json:"ascending"`
	Source    string  `json:"source"`
}

// DisplayRangeFor derives the color-scale anchors of a column.
//
// Raw variables use their national reference statistics: p5..p95, or
// min..max when the percentiles do not spread. Score columns use the live
// distribution of ds, which is the currently displayed view; an empty or
// degenerate distribution falls back to 0..100.
func DisplayRangeFor(column string, cat *refstats.Catalog, ds *territory.Dataset) (DisplayRange, error) {
	if territory.IsScoreColumn(column) {
		return liveRange(column, ds), nil
	}
	d, ok := cat.ByColumn(column)
	if !ok {
		return DisplayRange{}, fmt.Errorf("%w: column %q", ErrUnknownVariable, column)
	}
	r := DisplayRange{
		Column:    column,
		Low:       d.Stats.P5,
		Mid:       d.Stats.Median,
		High:      d.Stats.P95,
		Ascending: d.VulnerabilityIncreasing,
		Source:    SourceReference,
	}
	if r.High <= r.Low {
		r.Low, r.High = d.Stats.Min, d.Stats.Max
	}
	return r, nil
}

func liveRange(column string, ds *territory.Dataset) DisplayRange {
	r := DisplayRange{Column: column, Low: 0, Mid: 50, High: 100, Ascending: true, Source: SourceLive}
	if ds == nil {
		return r
	}
	values := ds.Values(column)
	if len(values) == 0 {
		return r
	}
	sort.Float64s(values)
	low := refstats.Percentile(values, 5)
	high := refstats.Percentile(values, 95)
	if high <= low {
		return r
	}
	r.Low = round2(low)
	r.Mid = round2(refstats.Percentile(values, 50))
	r.High = round2(high)
	return r
}
