package knowledge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zentiam/assistd/internal/storage"
)

// Upload validation failures. The HTTP layer maps these to 400 responses.
var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyDocument   = errors.New("document contains no extractable text")
	ErrMissingFields   = errors.New("pattern and answer are required")
)

// Store owns the knowledge base: ingested documents and approved answers.
// It publishes immutable snapshots through an atomic pointer so answer
// lookups never block on a mutation in progress.
type Store struct {
	db  *storage.Store
	log *slog.Logger

	maxUploadBytes int64

	mu       sync.Mutex // serializes mutations and snapshot rebuilds
	snapshot atomic.Pointer[Snapshot]
}

// NewStore loads the current snapshot from the database.
func NewStore(db *storage.Store, logger *slog.Logger, maxUploadBytes int64) (*Store, error) {
	s := &Store{db: db, log: logger, maxUploadBytes: maxUploadBytes}
	if err := s.Reload(); err != nil {
		return nil, fmt.Errorf("loading initial snapshot: %w", err)
	}
	return s, nil
}

// Current returns the latest published snapshot. Lock-free.
func (s *Store) Current() *Snapshot {
	return s.snapshot.Load()
}

// MaxUploadBytes reports the upload size cap; zero means unlimited. The HTTP
// layer uses it to bound request bodies before they are buffered.
func (s *Store) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Reload rebuilds the in-memory snapshot from the database. Callers that
// mutate knowledge through the storage layer directly (the learning queue's
// approve transaction) call this afterwards to publish their change.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload()
}

func (s *Store) reload() error {
	version, err := s.db.CurrentSnapshotVersion()
	if err != nil {
		return fmt.Errorf("reading snapshot version: %w", err)
	}
	answers, err := s.db.LoadActiveAnswers()
	if err != nil {
		return fmt.Errorf("loading approved answers: %w", err)
	}
	chunks, err := s.db.LoadChunks()
	if err != nil {
		return fmt.Errorf("loading chunks: %w", err)
	}

	// A stale rebuild must never replace a newer snapshot.
	if cur := s.snapshot.Load(); cur != nil && cur.Version > version {
		return nil
	}
	s.snapshot.Store(NewSnapshot(version, answers, chunks))
	s.log.Debug("knowledge snapshot published", "version", version, "answers", len(answers), "chunks", len(chunks))
	return nil
}

// Ingest validates, extracts, chunks, and stores an uploaded document, then
// publishes the new snapshot. Either the whole document lands and the version
// advances, or the previous snapshot stays authoritative.
func (s *Store) Ingest(filename string, data []byte) (int64, error) {
	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return 0, ErrFileTooLarge
	}
	text, err := ExtractText(filename, data)
	if err != nil {
		return 0, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyDocument
	}

	return s.IngestText(filename, "upload", text)
}

// IngestText stores already-extracted text as a knowledge document. The
// crawler uses this for fetched pages.
func (s *Store) IngestText(filename, source, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := storage.KnowledgeDocument{
		ID:         uuid.NewString(),
		Filename:   filename,
		Source:     source,
		Content:    text,
		UploadedAt: time.Now().UTC(),
	}
	chunks := splitChunks(text)
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
	}

	version, err := s.db.InsertDocument(doc, chunks)
	if err != nil {
		return 0, fmt.Errorf("storing document: %w", err)
	}
	if err := s.reload(); err != nil {
		return 0, err
	}
	s.log.Info("document ingested", "filename", filename, "source", source, "chunks", len(chunks), "version", version)
	return version, nil
}

// UpsertApprovedAnswer writes an answer keyed by its normalized pattern and
// publishes the new snapshot. Returns the snapshot version and the answer id.
func (s *Store) UpsertApprovedAnswer(pattern, answer string, tags []string) (int64, string, error) {
	normalized := NormalizeQuestion(pattern)
	if normalized == "" || strings.TrimSpace(answer) == "" {
		return 0, "", ErrMissingFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version, id, err := s.db.UpsertApprovedAnswer(storage.ApprovedAnswer{
		ID:      uuid.NewString(),
		Pattern: normalized,
		Answer:  answer,
		Tags:    tags,
	})
	if err != nil {
		return 0, "", fmt.Errorf("storing approved answer: %w", err)
	}
	if err := s.reload(); err != nil {
		return 0, "", err
	}
	return version, id, nil
}

// UpdateApprovedAnswer overwrites an answer's fields by id.
func (s *Store) UpdateApprovedAnswer(a storage.ApprovedAnswer) (int64, error) {
	a.Pattern = NormalizeQuestion(a.Pattern)

	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.db.UpdateApprovedAnswer(a)
	if err != nil {
		return 0, err
	}
	if err := s.reload(); err != nil {
		return 0, err
	}
	return version, nil
}

// DeleteApprovedAnswer removes an answer and publishes the new snapshot.
func (s *Store) DeleteApprovedAnswer(id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.db.DeleteApprovedAnswer(id)
	if err != nil {
		return 0, err
	}
	if err := s.reload(); err != nil {
		return 0, err
	}
	return version, nil
}

// NoteAnswerUsed bumps an answer's usage counter without blocking the
// response path. Counts are advisory, so a lost increment is acceptable.
func (s *Store) NoteAnswerUsed(id string) {
	go func() {
		if err := s.db.IncrementAnswerUsage(id); err != nil {
			s.log.Warn("recording answer usage", "answer_id", id, "error", err)
		}
	}()
}

// Baseline answers seeded on init so a fresh install handles small talk.
var baselineAnswers = []struct {
	pattern string
	answer  string
	tags    []string
}{
	{
		pattern: "hello",
		answer:  "Hi there! I can answer questions about our services, pricing, and how to get started. What would you like to know?",
		tags:    []string{"greeting", "hi", "hey"},
	},
	{
		pattern: "what services do you offer",
		answer:  "We help businesses adopt AI: strategy assessments, custom automation, and team training. Ask me about any of them for details.",
		tags:    []string{"services", "offerings", "consulting", "help"},
	},
	{
		pattern: "how do i get in touch",
		answer:  "You can reach the team through the contact form on this site, or leave your email here and we will follow up.",
		tags:    []string{"contact", "email", "reach", "touch"},
	},
}

// SeedBaseline inserts the starter answers once. Idempotent: a store that
// already has answers is left alone.
func (s *Store) SeedBaseline() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap := s.snapshot.Load(); snap != nil && len(snap.Answers) > 0 {
		return nil
	}

	for _, b := range baselineAnswers {
		if _, _, err := s.db.UpsertApprovedAnswer(storage.ApprovedAnswer{
			ID:      uuid.NewString(),
			Pattern: NormalizeQuestion(b.pattern),
			Answer:  b.answer,
			Tags:    b.tags,
		}); err != nil {
			return fmt.Errorf("seeding answer %q: %w", b.pattern, err)
		}
	}
	if err := s.reload(); err != nil {
		return err
	}
	s.log.Info("baseline answers seeded", "count", len(baselineAnswers))
	return nil
}
