// Package metrics computes the learning dashboard numbers. Pure read-side
// aggregation; nothing here mutates state.
package metrics

import (
	"fmt"
	"time"

	"github.com/zentiam/assistd/internal/storage"
)

type Summary struct {
	TotalFeedback    int     `json:"total_feedback"`
	Positive         int     `json:"positive"`
	Negative         int     `json:"negative"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
	PendingReviews   int     `json:"pending_reviews"`
}

type TrendPoint struct {
	Date     string `json:"date"`
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
}

type UnansweredQuestion struct {
	Question string    `json:"question"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Report is the full learning-metrics payload.
type Report struct {
	Summary                Summary              `json:"summary"`
	TrendData              []TrendPoint         `json:"trend_data"`
	TopUnansweredQuestions []UnansweredQuestion `json:"top_unanswered_questions"`
}

type Aggregator struct {
	db *storage.Store
}

func NewAggregator(db *storage.Store) *Aggregator {
	return &Aggregator{db: db}
}

// Report aggregates feedback over the trailing `days` window ending at `now`.
// The satisfaction rate is 0, not NaN, when there is no rated feedback.
func (a *Aggregator) Report(days, topN int, now time.Time) (Report, error) {
	if days <= 0 {
		days = 7
	}
	if topN <= 0 {
		topN = 10
	}

	since := now.UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	total, positive, negative, err := a.db.FeedbackCounts(since)
	if err != nil {
		return Report{}, fmt.Errorf("counting feedback: %w", err)
	}

	rate := 0.0
	if positive+negative > 0 {
		rate = float64(positive) / float64(positive+negative)
	}

	pending, err := a.db.CountLearningItems(storage.LearningPending)
	if err != nil {
		return Report{}, fmt.Errorf("counting pending reviews: %w", err)
	}

	trend, err := a.db.FeedbackTrend(days, now)
	if err != nil {
		return Report{}, fmt.Errorf("loading trend: %w", err)
	}
	trendData := make([]TrendPoint, len(trend))
	for i, p := range trend {
		trendData[i] = TrendPoint{Date: p.Date, Positive: p.Positive, Negative: p.Negative}
	}

	top, err := a.db.TopUnansweredQuestions(topN)
	if err != nil {
		return Report{}, fmt.Errorf("ranking unanswered questions: %w", err)
	}
	topData := make([]UnansweredQuestion, len(top))
	for i, q := range top {
		topData[i] = UnansweredQuestion{Question: q.Question, Count: q.Count, LastSeen: q.LastSeen}
	}

	return Report{
		Summary: Summary{
			TotalFeedback:    total,
			Positive:         positive,
			Negative:         negative,
			SatisfactionRate: rate,
			PendingReviews:   pending,
		},
		TrendData:              trendData,
		TopUnansweredQuestions: topData,
	}, nil
}
