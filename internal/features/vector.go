// Package features turns account metadata and authored activity into the
// named feature vector consumed by the scorer.
package features

import "sort"

// Account features.
const (
	AccountAgeDays  = "account_age_days"
	TotalKarma      = "total_karma"
	PostKarmaRatio  = "post_karma_ratio"
	KarmaPerDay     = "karma_per_day"
	IsVerifiedEmail = "is_verified_email"
	HasPremium      = "has_premium"
	TrophyCount     = "trophy_count"
)

// Behavioral features.
const (
	PostsPerDayAvg     = "posts_per_day_avg"
	CommentsPerDayAvg  = "comments_per_day_avg"
	UniqueSubreddits   = "unique_subreddits"
	SubredditEntropy   = "subreddit_entropy"
	PostingHourEntropy = "posting_hour_entropy"
	PostingHourMode    = "posting_hour_mode"
	ActiveHoursSpread  = "active_hours_spread"
	BurstScore         = "burst_score"
	WeekendRatio       = "weekend_ratio"
)

// Linguistic features.
const (
	AvgWordCount       = "avg_word_count"
	AvgWordLength      = "avg_word_length"
	AvgSentenceLength  = "avg_sentence_length"
	VocabularyRichness = "vocabulary_richness"
	PhoneticErrorScore = "phonetic_error_score"
	ArticleErrorRate   = "article_error_rate"
	FormalityScore     = "formality_score"
	EmojiDensity       = "emoji_density"
	QuestionRatio      = "question_ratio"
)

// Vector is the named feature set for one subject. Boolean features are
// stored as 0 or 1.
type Vector struct {
	Values map[string]float64

	// HourHistogram counts activity per UTC hour of day.
	HourHistogram [24]int

	// SampleCount is the number of posts and comments analyzed.
	SampleCount int

	// LowSample is set when SampleCount is below the extractor minimum.
	LowSample bool
}

// NewVector returns a vector with the given values and no activity.
func NewVector(values map[string]float64) Vector {
	if values == nil {
		values = make(map[string]float64)
	}
	return Vector{Values: values}
}

// Get returns the named feature and whether it is present.
func (v Vector) Get(name string) (float64, bool) {
	f, ok := v.Values[name]
	return f, ok
}

func (v Vector) set(name string, f float64) {
	v.Values[name] = f
}

// Names returns the feature names present in v in sorted order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v.Values))
	for k := range v.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
