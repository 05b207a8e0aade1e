package scoring

import "fmt"

// Classification is the label assigned to a scored subject.
type Classification string

const (
	LikelyBot     Classification = "likely_bot"
	Suspicious    Classification = "suspicious"
	ProbablyHuman Classification = "probably_human"
	Unknown       Classification = "unknown"
)

// ParseClassification validates a label.
func ParseClassification(s string) (Classification, error) {
	c := Classification(s)
	switch c {
	case LikelyBot, Suspicious, ProbablyHuman, Unknown:
		return c, nil
	default:
		return "", fmt.Errorf("unknown classification %q", s)
	}
}

// Classify derives the label from probability, confidence and sample count.
func Classify(p, confidence float64, sampleCount int, th Thresholds) Classification {
	switch {
	case sampleCount <= 0 || confidence < th.MinConfidence:
		return Unknown
	case p >= th.LikelyBot:
		return LikelyBot
	case p >= th.Suspicious:
		return Suspicious
	default:
		return ProbablyHuman
	}
}
