package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a mutation would violate a state invariant,
// e.g. resolving a learning-queue item that already reached a terminal state.
var ErrConflict = errors.New("conflict")

// Session statuses.
const (
	SessionActive = "active"
	SessionClosed = "closed"
)

// Message senders.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Feedback ratings.
const (
	RatingPositive = "positive"
	RatingNegative = "negative"
)

// Learning-queue item ratings and statuses.
const (
	LearningRatingNegative   = "negative"
	LearningRatingUnanswered = "unanswered"

	LearningPending   = "pending"
	LearningApproved  = "approved"
	LearningDismissed = "dismissed"
)

type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	UserName  string
	UserEmail string
	UserPhone string

	Messages   []Message
	Answered   []string // normalized questions with a confident answer
	Unanswered []string // normalized questions that fell through to the fallback
}

// SessionSummary is the listing view of a session without full message bodies.
type SessionSummary struct {
	ID              string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Status          string
	UserName        string
	UserEmail       string
	UserPhone       string
	MessageCount    int
	AnsweredCount   int
	UnansweredCount int
}

type Message struct {
	Seq       int
	Sender    string
	Body      string
	Metadata  map[string]string
	CreatedAt time.Time
}

type KnowledgeDocument struct {
	ID         string
	Filename   string
	Source     string
	Content    string
	UploadedAt time.Time
}

type Chunk struct {
	ID          string
	DocumentID  string
	Ord         int
	StartOffset int
	Body        string
}

type ApprovedAnswer struct {
	ID         string
	Pattern    string // normalized question pattern, unique among active answers
	Answer     string
	Tags       []string
	UsageCount int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type LearningItem struct {
	ID                 string
	SessionID          string
	UserQuestion       string
	NormalizedQuestion string
	BotResponse        string
	DetailedFeedback   string
	Rating             string
	Status             string
	CreatedAt          time.Time
	ResolvedAt         time.Time // zero until the item reaches a terminal state
}

type FeedbackEvent struct {
	ID           string
	SessionID    string
	MessageSeq   int
	Rating       string
	Comment      string
	UserQuestion string // normalized question the rated response answered
	CreatedAt    time.Time
}

// TrendPoint is one day of feedback counts.
type TrendPoint struct {
	Date     string
	Positive int
	Negative int
}

// UnansweredQuestion is a ranked entry in the knowledge-gap report.
type UnansweredQuestion struct {
	Question string
	Count    int
	LastSeen time.Time
}

// SyncCursor marks the last session exported to the spreadsheet.
// Sessions strictly after (LastSyncedAt, LastSessionID) are pending export.
type SyncCursor struct {
	LastSyncedAt  time.Time
	LastSessionID string
	TotalSynced   int
	LastSyncAt    time.Time
	LastError     string
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
