package api

import (
	"time"

	"github.com/kalambet/sentinel/internal/batch"
	"github.com/kalambet/sentinel/internal/cache"
	"github.com/kalambet/sentinel/internal/scoring"
	"github.com/kalambet/sentinel/internal/timezone"
)

// ScoreResponse is the wire form of one scored account.
type ScoreResponse struct {
	Username            string                 `json:"username"`
	BotProbability      float64                `json:"bot_probability"`
	Confidence          float64                `json:"confidence"`
	Classification      scoring.Classification `json:"classification"`
	ContributingFactors []scoring.Factor       `json:"contributing_factors"`
	TimezoneEstimate    *timezone.Estimate     `json:"timezone_estimate"`
	SampleCount         int                    `json:"sample_count"`
	LowSample           bool                   `json:"low_sample"`
	ModelVersion        string                 `json:"model_version"`
	AnalyzedAt          time.Time              `json:"analyzed_at"`
	Cached              bool                   `json:"cached"`
	CacheExpiresAt      *time.Time             `json:"cache_expires_at,omitempty"`
}

func NewScoreResponse(res cache.Result) ScoreResponse {
	rec := res.Record
	factors := rec.ContributingFactors
	if factors == nil {
		factors = []scoring.Factor{}
	}
	out := ScoreResponse{
		Username:            rec.SubjectID,
		BotProbability:      rec.BotProbability,
		Confidence:          rec.Confidence,
		Classification:      rec.Classification,
		ContributingFactors: factors,
		TimezoneEstimate:    rec.Timezone,
		SampleCount:         rec.SampleCount,
		LowSample:           rec.LowSample,
		ModelVersion:        rec.ModelVersion,
		AnalyzedAt:          rec.ComputedAt,
		Cached:              res.Cached,
	}
	if !res.ExpiresAt.IsZero() {
		exp := res.ExpiresAt
		out.CacheExpiresAt = &exp
	}
	return out
}

type BatchRequest struct {
	Usernames    []string `json:"usernames"`
	ForceRefresh bool     `json:"force_refresh"`
}

type BatchItem struct {
	Username string         `json:"username"`
	Status   batch.Status   `json:"status"`
	Score    *ScoreResponse `json:"score,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type BatchResponse struct {
	Results          []BatchItem `json:"results"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
}

func NewBatchResponse(resp batch.Response) BatchResponse {
	out := BatchResponse{
		Results:          make([]BatchItem, len(resp.Items)),
		ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
	}
	for i, it := range resp.Items {
		item := BatchItem{Username: it.SubjectID, Status: it.Status, Error: it.Error}
		if it.Result != nil {
			sr := NewScoreResponse(*it.Result)
			item.Score = &sr
		}
		out.Results[i] = item
	}
	return out
}

type FeedbackRequest struct {
	Username     string `json:"username"`
	FeedbackType string `json:"feedback_type"`
	Notes        string `json:"notes,omitempty"`
}

type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
