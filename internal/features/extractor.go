package features

import (
	"errors"
	"time"

	"github.com/kalambet/sentinel/internal/activity"
)

// ErrInsufficientSubject is returned when there is no account snapshot to
// extract from.
var ErrInsufficientSubject = errors.New("no account snapshot for subject")

// DefaultMinSamples is the activity count below which a vector is flagged
// as low-sample.
const DefaultMinSamples = 5

// Extractor computes feature vectors. The zero value is not usable; call
// NewExtractor.
type Extractor struct {
	minSamples int
	now        func() time.Time
}

// NewExtractor creates an Extractor. If minSamples <= 0 it defaults to
// DefaultMinSamples.
func NewExtractor(minSamples int) *Extractor {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Extractor{minSamples: minSamples, now: time.Now}
}

// WithClock returns a copy of e that reads the current time from now.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	cp := *e
	cp.now = now
	return &cp
}

// Extract builds the account, behavioral and linguistic feature groups.
// Zero activity degrades the activity-derived features to 0 instead of
// failing.
func (e *Extractor) Extract(snap *activity.AccountSnapshot, samples []activity.Sample) (Vector, error) {
	if snap == nil {
		return Vector{}, ErrInsufficientSubject
	}

	v := NewVector(nil)
	extractAccount(v, snap, e.now())
	v.HourHistogram = extractBehavioral(v, samples)
	extractLinguistic(v, samples)

	v.SampleCount = len(samples)
	v.LowSample = v.SampleCount < e.minSamples
	return v, nil
}
