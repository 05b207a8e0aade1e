// Package scoring turns feature vectors into bot probabilities with
// explainable contributing factors.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/kalambet/sentinel/internal/features"
	"github.com/kalambet/sentinel/internal/timezone"
)

// ModelVersion identifies the scoring model in records and stats.
const ModelVersion = "heuristic-v1"

// Factor is one feature's signed push toward bot (positive) or human
// (negative).
type Factor struct {
	Factor       string  `json:"factor"`
	Contribution float64 `json:"contribution"`
	Value        float64 `json:"value"`
}

// Record is an immutable scoring result.
type Record struct {
	SubjectID           string             `json:"subject_id"`
	BotProbability      float64            `json:"bot_probability"`
	Confidence          float64            `json:"confidence"`
	Classification      Classification     `json:"classification"`
	ContributingFactors []Factor           `json:"contributing_factors"`
	Timezone            *timezone.Estimate `json:"timezone_estimate,omitempty"`
	SampleCount         int                `json:"sample_count"`
	LowSample           bool               `json:"low_sample"`
	ModelVersion        string             `json:"model_version"`
	ComputedAt          time.Time          `json:"computed_at"`
}

// Scorer applies a weight table. It holds no mutable state.
type Scorer struct {
	table Table
	th    Thresholds
}

func NewScorer(table Table, th Thresholds) *Scorer {
	if th.ConfidenceScale <= 0 {
		th.ConfidenceScale = DefaultThresholds().ConfidenceScale
	}
	if th.TopFactors <= 0 {
		th.TopFactors = DefaultThresholds().TopFactors
	}
	return &Scorer{table: table, th: th}
}

// Thresholds returns the scorer's classification thresholds.
func (s *Scorer) Thresholds() Thresholds { return s.th }

// Score computes probability, confidence, classification and the top
// contributing factors. SubjectID, Timezone and ComputedAt are left for the
// caller.
func (s *Scorer) Score(v features.Vector, sampleCount int) Record {
	z := s.table.Bias
	factors := make([]Factor, 0, len(s.table.Weights))
	for _, w := range s.table.Weights {
		raw, ok := v.Get(w.Feature)
		if !ok {
			continue
		}
		c := w.Weight * (2*w.risk(raw) - 1)
		z += c
		factors = append(factors, Factor{Factor: w.Feature, Contribution: c, Value: raw})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		ai, aj := math.Abs(factors[i].Contribution), math.Abs(factors[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return factors[i].Factor < factors[j].Factor
	})
	if len(factors) > s.th.TopFactors {
		factors = factors[:s.th.TopFactors]
	}

	p := clampUnit(1 / (1 + math.Exp(-z)))
	conf := s.confidence(sampleCount, v.LowSample)

	return Record{
		BotProbability:      p,
		Confidence:          conf,
		Classification:      Classify(p, conf, sampleCount, s.th),
		ContributingFactors: factors,
		SampleCount:         sampleCount,
		LowSample:           v.LowSample,
		ModelVersion:        ModelVersion,
	}
}

func (s *Scorer) confidence(sampleCount int, lowSample bool) float64 {
	if sampleCount <= 0 {
		return 0
	}
	c := 1 - math.Exp(-float64(sampleCount)/s.th.ConfidenceScale)
	if lowSample && s.th.LowSampleCap > 0 {
		c = math.Min(c, s.th.LowSampleCap)
	}
	return clampUnit(c)
}

func clampUnit(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
