// Package timezone infers a likely UTC offset from when an account is active.
package timezone

import (
	"fmt"
	"math"
	"sort"
)

const (
	// NightHours is the length of the assumed local sleep window.
	NightHours = 8

	// DefaultMinActiveHours is the number of distinct active hours needed
	// before an estimate is attempted.
	DefaultMinActiveHours = 6

	defaultPeakHours = 3
)

// Estimate is an inferred timezone.
type Estimate struct {
	LikelyOffset string  `json:"likely_offset"`
	OffsetHours  int     `json:"offset_hours"`
	Confidence   float64 `json:"confidence"`
	PeakHoursUTC []int   `json:"peak_hours_utc"`
}

// Estimator locates the quietest eight-hour window in a UTC hour histogram
// and treats it as local night.
type Estimator struct {
	MinActiveHours int
	PeakHours      int
}

// NewEstimator returns an Estimator. minActiveHours <= 0 selects the default.
func NewEstimator(minActiveHours int) *Estimator {
	if minActiveHours <= 0 {
		minActiveHours = DefaultMinActiveHours
	}
	return &Estimator{MinActiveHours: minActiveHours, PeakHours: defaultPeakHours}
}

// Estimate returns nil when activity is too sparse to localize.
func (e *Estimator) Estimate(hist [24]int) *Estimate {
	active, total := 0, 0
	for _, c := range hist {
		if c > 0 {
			active++
			total += c
		}
	}
	if active < e.MinActiveHours || total == 0 {
		return nil
	}

	start, night := 0, math.MaxInt
	for s := 0; s < 24; s++ {
		sum := 0
		for i := 0; i < NightHours; i++ {
			sum += hist[(s+i)%24]
		}
		if sum < night {
			start, night = s, sum
		}
	}

	// local = utc + offset, and the window start is local midnight
	offset := (24 - start) % 24
	if offset > 12 {
		offset -= 24
	}

	return &Estimate{
		LikelyOffset: formatOffset(offset),
		OffsetHours:  offset,
		Confidence:   confidence(hist, start, night, total),
		PeakHoursUTC: e.peaks(hist),
	}
}

// confidence is high when the night window is quiet and the remaining day
// hours are evenly used.
func confidence(hist [24]int, start, night, total int) float64 {
	day := make([]float64, 0, 24-NightHours)
	for i := NightHours; i < 24; i++ {
		day = append(day, float64(hist[(start+i)%24]))
	}
	mean := 0.0
	for _, c := range day {
		mean += c
	}
	mean /= float64(len(day))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, c := range day {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(day))
	cv := math.Sqrt(variance) / mean

	quiet := 1 - float64(night)/float64(total)
	return math.Max(0, math.Min(1, quiet/(1+cv)))
}

func (e *Estimator) peaks(hist [24]int) []int {
	hours := make([]int, 0, 24)
	for h, c := range hist {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return hist[hours[i]] > hist[hours[j]]
	})
	if len(hours) > e.PeakHours {
		hours = hours[:e.PeakHours]
	}
	return hours
}

func formatOffset(h int) string {
	if h < 0 {
		return fmt.Sprintf("UTC%d", h)
	}
	return fmt.Sprintf("UTC+%d", h)
}
