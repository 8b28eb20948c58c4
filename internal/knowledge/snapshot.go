package knowledge

import (
	"github.com/zentiam/assistd/internal/storage"
)

// Snapshot is an immutable view of the knowledge base at one version.
// Readers hold a snapshot for the duration of a request; mutations publish
// a new snapshot instead of changing this one.
type Snapshot struct {
	Version int64
	Answers []storage.ApprovedAnswer
	Chunks  []storage.Chunk

	patternIndex map[string]int
	answerTerms  [][]string
	chunkTerms   [][]string
}

// NewSnapshot indexes loaded rows into an immutable snapshot.
func NewSnapshot(version int64, answers []storage.ApprovedAnswer, chunks []storage.Chunk) *Snapshot {
	s := &Snapshot{
		Version:      version,
		Answers:      answers,
		Chunks:       chunks,
		patternIndex: make(map[string]int, len(answers)),
		answerTerms:  make([][]string, len(answers)),
		chunkTerms:   make([][]string, len(chunks)),
	}
	for i, a := range answers {
		s.patternIndex[NormalizeQuestion(a.Pattern)] = i
		terms := Terms(a.Pattern)
		for _, tag := range a.Tags {
			terms = append(terms, Terms(tag)...)
		}
		s.answerTerms[i] = terms
	}
	for i, c := range chunks {
		s.chunkTerms[i] = Terms(c.Body)
	}
	return s
}

// AnswerByPattern returns the answer whose normalized pattern equals the
// normalized question, if any.
func (s *Snapshot) AnswerByPattern(normalized string) (storage.ApprovedAnswer, bool) {
	i, ok := s.patternIndex[normalized]
	if !ok {
		return storage.ApprovedAnswer{}, false
	}
	return s.Answers[i], true
}

// AnswerTerms returns the precomputed matchable terms (pattern words plus
// context tags) of the i-th answer.
func (s *Snapshot) AnswerTerms(i int) []string {
	return s.answerTerms[i]
}

// ChunkTerms returns the precomputed term set of the i-th chunk.
func (s *Snapshot) ChunkTerms(i int) []string {
	return s.chunkTerms[i]
}
