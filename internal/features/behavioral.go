package features

import (
	"math"
	"strings"
	"time"

	"github.com/kalambet/sentinel/internal/activity"
)

func extractBehavioral(v Vector, samples []activity.Sample) [24]int {
	var hours [24]int
	var posts, comments, weekend, dated int
	containers := make(map[string]int)
	var first, last time.Time

	for _, s := range samples {
		switch s.Kind {
		case activity.KindPost:
			posts++
		case activity.KindComment:
			comments++
		}
		if s.Container != "" {
			containers[strings.ToLower(s.Container)]++
		}

		// Undated items still count toward volume and communities but never
		// toward the hour histogram.
		if s.CreatedAt.IsZero() {
			continue
		}
		dated++
		ts := s.CreatedAt.UTC()
		hours[ts.Hour()]++
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if last.IsZero() || ts.After(last) {
			last = ts
		}
	}

	days := 1.0
	if dated > 0 {
		days = math.Max(last.Sub(first).Seconds()/secondsPerDay, 1)
	}

	mode, peak, spread := 0, 0, 0
	for h, c := range hours {
		if c > peak {
			mode, peak = h, c
		}
		if c > 0 {
			spread++
		}
	}
	total := float64(dated)

	v.set(PostsPerDayAvg, float64(posts)/days)
	v.set(CommentsPerDayAvg, float64(comments)/days)
	v.set(UniqueSubreddits, float64(len(containers)))
	v.set(SubredditEntropy, Entropy(countsOf(containers)))
	v.set(PostingHourEntropy, Entropy(hours[:]))
	v.set(PostingHourMode, float64(mode))
	v.set(ActiveHoursSpread, float64(spread))
	v.set(BurstScore, ratio(float64(peak), total))
	v.set(WeekendRatio, ratio(float64(weekend), total))
	return hours
}
