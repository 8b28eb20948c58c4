// Package answer selects a response for a visitor question from the current
// knowledge snapshot. Matching runs in priority order: administrator-approved
// answers by exact pattern, then by tag overlap, then raw document chunks by
// term overlap, then a fixed fallback.
package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/storage"
)

// Response sources recorded in message metadata.
const (
	SourceApproved = "approved_answer"
	SourceChunk    = "knowledge_chunk"
	SourceFallback = "fallback"
)

// Fallback is returned when nothing clears its acceptance threshold.
const Fallback = "I don't have a good answer for that yet, but our team does. " +
	"Leave your email or phone number and we'll follow up with the details."

// Result is the outcome of one answer lookup.
type Result struct {
	Text     string
	Matched  bool
	Source   string
	AnswerID string // set when an approved answer matched
}

// Provider scores chunks against a question with an external embedding
// model. Optional; the engine degrades to lexical scoring when it is absent
// or failing.
type Provider interface {
	ScoreChunks(ctx context.Context, question string, chunks []string) ([]float64, error)
}

// Config carries the acceptance thresholds. A score equal to a threshold
// accepts.
type Config struct {
	TagThreshold    float64
	ChunkThreshold  float64
	ProviderTimeout time.Duration
}

type Engine struct {
	cfg      Config
	provider Provider
	log      *slog.Logger
}

func NewEngine(cfg Config, provider Provider, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, provider: provider, log: logger}
}

// Answer resolves a question against one snapshot. It never fails: malformed
// or empty input short-circuits to the fallback.
func (e *Engine) Answer(ctx context.Context, snap *knowledge.Snapshot, question string) Result {
	fallback := Result{Text: Fallback, Matched: false, Source: SourceFallback}
	if snap == nil {
		return fallback
	}

	normalized := knowledge.NormalizeQuestion(question)
	if normalized == "" {
		return fallback
	}

	// Step 1: an exact pattern hit is administrator-verified truth and wins
	// outright.
	if a, ok := snap.AnswerByPattern(normalized); ok {
		return Result{Text: a.Answer, Matched: true, Source: SourceApproved, AnswerID: a.ID}
	}

	qTerms := knowledge.Terms(question)
	if len(qTerms) == 0 {
		return fallback
	}

	// Step 2: tag overlap against approved answers.
	if r, ok := e.matchByTags(snap, qTerms); ok {
		return r
	}

	// Step 3: document chunks, unverified content behind a lower threshold.
	if r, ok := e.matchByChunks(ctx, snap, question, qTerms); ok {
		return r
	}

	return fallback
}

func (e *Engine) matchByTags(snap *knowledge.Snapshot, qTerms []string) (Result, bool) {
	best := -1
	bestScore := 0.0
	for i := range snap.Answers {
		score := overlap(qTerms, snap.AnswerTerms(i))
		if score < e.cfg.TagThreshold {
			continue
		}
		if best < 0 || score > bestScore ||
			(score == bestScore && outranks(snap.Answers[i], snap.Answers[best])) {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Result{}, false
	}
	a := snap.Answers[best]
	return Result{Text: a.Answer, Matched: true, Source: SourceApproved, AnswerID: a.ID}, true
}

// outranks breaks score ties: the more-used answer first, then the more
// recently created one.
func outranks(a, b storage.ApprovedAnswer) bool {
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (e *Engine) matchByChunks(ctx context.Context, snap *knowledge.Snapshot, question string, qTerms []string) (Result, bool) {
	if len(snap.Chunks) == 0 {
		return Result{}, false
	}

	scores := e.chunkScores(ctx, snap, question, qTerms)

	best := -1
	bestScore := 0.0
	for i, score := range scores {
		if score < e.cfg.ChunkThreshold {
			continue
		}
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Result{}, false
	}
	return Result{Text: strings.TrimSpace(snap.Chunks[best].Body), Matched: true, Source: SourceChunk}, true
}

// chunkScores asks the embedding provider when one is configured and falls
// back to lexical term overlap on any provider failure. The chat must always
// terminate with some reply, so provider errors never propagate.
func (e *Engine) chunkScores(ctx context.Context, snap *knowledge.Snapshot, question string, qTerms []string) []float64 {
	if e.provider != nil {
		timeout := e.cfg.ProviderTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		bodies := make([]string, len(snap.Chunks))
		for i, c := range snap.Chunks {
			bodies[i] = c.Body
		}
		scores, err := e.provider.ScoreChunks(pctx, question, bodies)
		if err == nil && len(scores) == len(snap.Chunks) {
			return scores
		}
		e.log.Warn("embedding provider failed, degrading to lexical scoring", "error", err)
	}

	scores := make([]float64, len(snap.Chunks))
	for i := range snap.Chunks {
		scores[i] = overlap(qTerms, snap.ChunkTerms(i))
	}
	return scores
}

// overlap scores how much of the question the candidate terms cover, as the
// fraction of question terms present in the candidate.
func overlap(qTerms, candidate []string) float64 {
	if len(qTerms) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(candidate))
	for _, t := range candidate {
		set[t] = struct{}{}
	}
	hits := 0
	for _, t := range qTerms {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(qTerms))
}
