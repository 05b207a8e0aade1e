package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/kalambet/sentinel/internal/features"
)

// Direction states whether high or low raw values indicate automation.
type Direction string

const (
	HigherIsRisk Direction = "higher"
	LowerIsRisk  Direction = "lower"
)

// Weight calibrates one feature: raw values are clamped to [Min, Max],
// rescaled to [0,1] and inverted for LowerIsRisk features.
type Weight struct {
	Feature   string    `json:"feature"`
	Weight    float64   `json:"weight"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Direction Direction `json:"direction"`
}

// risk maps a raw value to [0,1], 1 being most bot-like.
func (w Weight) risk(raw float64) float64 {
	n := (raw - w.Min) / (w.Max - w.Min)
	switch {
	case math.IsNaN(n) || n < 0:
		n = 0
	case n > 1:
		n = 1
	}
	if w.Direction == LowerIsRisk {
		return 1 - n
	}
	return n
}

// Table is the full set of feature weights plus the logistic bias.
type Table struct {
	Bias    float64  `json:"bias"`
	Weights []Weight `json:"weights"`
}

// Validate checks ranges, directions and finiteness.
func (t Table) Validate() error {
	if math.IsNaN(t.Bias) || math.IsInf(t.Bias, 0) {
		return fmt.Errorf("bias must be finite")
	}
	seen := make(map[string]bool, len(t.Weights))
	for _, w := range t.Weights {
		switch {
		case w.Feature == "":
			return fmt.Errorf("weight with empty feature name")
		case seen[w.Feature]:
			return fmt.Errorf("duplicate weight for %s", w.Feature)
		case !(w.Max > w.Min):
			return fmt.Errorf("%s: max must be greater than min", w.Feature)
		case math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) || w.Weight < 0:
			return fmt.Errorf("%s: weight must be finite and non-negative", w.Feature)
		case w.Direction != HigherIsRisk && w.Direction != LowerIsRisk:
			return fmt.Errorf("%s: direction must be %q or %q", w.Feature, HigherIsRisk, LowerIsRisk)
		}
		seen[w.Feature] = true
	}
	return nil
}

// DefaultTable returns the hand-tuned starting weights. They are expected
// to be replaced via LoadTable once labelled feedback is available.
func DefaultTable() Table {
	return Table{
		Bias: 0,
		Weights: []Weight{
			{features.AccountAgeDays, 1.5, 7, 365, LowerIsRisk},
			{features.TotalKarma, 0.25, 0, 5000, HigherIsRisk},
			{features.KarmaPerDay, 1.2, 1, 200, HigherIsRisk},
			{features.PostKarmaRatio, 0.6, 0.3, 1, HigherIsRisk},
			{features.IsVerifiedEmail, 0.4, 0, 1, LowerIsRisk},
			{features.HasPremium, 0.3, 0, 1, LowerIsRisk},
			{features.TrophyCount, 0.4, 0, 10, LowerIsRisk},

			{features.PostsPerDayAvg, 0.6, 0.5, 20, HigherIsRisk},
			{features.CommentsPerDayAvg, 0.8, 2, 60, HigherIsRisk},
			{features.UniqueSubreddits, 0.4, 1, 20, LowerIsRisk},
			{features.SubredditEntropy, 1.2, 0.5, 3.5, LowerIsRisk},
			{features.PostingHourEntropy, 1.0, 1, 4, LowerIsRisk},
			{features.ActiveHoursSpread, 0.4, 4, 18, LowerIsRisk},
			{features.BurstScore, 1.0, 0.1, 0.6, HigherIsRisk},
			{features.WeekendRatio, 0.2, 0.1, 0.35, LowerIsRisk},

			{features.VocabularyRichness, 0.6, 0.3, 0.8, LowerIsRisk},
			{features.PhoneticErrorScore, 1.5, 0, 0.02, HigherIsRisk},
			{features.ArticleErrorRate, 0.8, 0, 0.3, HigherIsRisk},
			{features.FormalityScore, 0.6, 0.1, 0.8, HigherIsRisk},
			{features.EmojiDensity, 0.2, 0, 0.05, LowerIsRisk},
			{features.QuestionRatio, 0.2, 0, 0.3, LowerIsRisk},
		},
	}
}

// LoadTable reads a weights file in the JSON shape of Table.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading weights file: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parsing weights file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("invalid weights file %s: %w", path, err)
	}
	return t, nil
}

// Thresholds are the classification and confidence tuning constants.
type Thresholds struct {
	LikelyBot     float64
	Suspicious    float64
	MinConfidence float64

	// ConfidenceScale is k in 1 - exp(-samples/k).
	ConfidenceScale float64
	// LowSampleCap bounds confidence for low-sample vectors.
	LowSampleCap float64
	TopFactors   int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LikelyBot:       0.75,
		Suspicious:      0.40,
		MinConfidence:   0.25,
		ConfidenceScale: 20,
		LowSampleCap:    0.5,
		TopFactors:      5,
	}
}
