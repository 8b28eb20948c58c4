package api

import (
	"time"

	"github.com/zentiam/assistd/internal/storage"
)

// JSON views of storage records. The storage models stay tag-free; the wire
// shape is decided here.

type messageView struct {
	Seq       int               `json:"seq"`
	Sender    string            `json:"sender"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type contactView struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type sessionView struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Status     string        `json:"status"`
	Contact    contactView   `json:"contact"`
	Messages   []messageView `json:"messages"`
	Answered   []string      `json:"answered_questions"`
	Unanswered []string      `json:"unanswered_questions"`
}

type sessionSummaryView struct {
	ID              string      `json:"id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Status          string      `json:"status"`
	Contact         contactView `json:"contact"`
	MessageCount    int         `json:"message_count"`
	AnsweredCount   int         `json:"answered_count"`
	UnansweredCount int         `json:"unanswered_count"`
}

type learningItemView struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	UserQuestion     string    `json:"user_question"`
	BotResponse      string    `json:"bot_response"`
	DetailedFeedback string    `json:"detailed_feedback,omitempty"`
	Rating           string    `json:"rating"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

type answerView struct {
	ID         string    `json:"id"`
	Pattern    string    `json:"question_pattern"`
	Answer     string    `json:"approved_answer"`
	Tags       []string  `json:"context_tags"`
	Active     bool      `json:"is_active"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type documentView struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Source     string    `json:"source"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type feedbackView struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	MessageSeq   int       `json:"message_seq"`
	Rating       string    `json:"rating"`
	Comment      string    `json:"comment,omitempty"`
	UserQuestion string    `json:"user_question,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toSessionView(s storage.Session) sessionView {
	msgs := make([]messageView, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = messageView{
			Seq:       m.Seq,
			Sender:    m.Sender,
			Body:      m.Body,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		}
	}
	answered := s.Answered
	if answered == nil {
		answered = []string{}
	}
	unanswered := s.Unanswered
	if unanswered == nil {
		unanswered = []string{}
	}
	return sessionView{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		Status:     s.Status,
		Contact:    contactView{Name: s.UserName, Email: s.UserEmail, Phone: s.UserPhone},
		Messages:   msgs,
		Answered:   answered,
		Unanswered: unanswered,
	}
}

func toSummaryViews(summaries []storage.SessionSummary) []sessionSummaryView {
	out := make([]sessionSummaryView, len(summaries))
	for i, s := range summaries {
		out[i] = sessionSummaryView{
			ID:              s.ID,
			CreatedAt:       s.CreatedAt,
			UpdatedAt:       s.UpdatedAt,
			Status:          s.Status,
			Contact:         contactView{Name: s.UserName, Email: s.UserEmail, Phone: s.UserPhone},
			MessageCount:    s.MessageCount,
			AnsweredCount:   s.AnsweredCount,
			UnansweredCount: s.UnansweredCount,
		}
	}
	return out
}

func toLearningItemViews(items []storage.LearningItem) []learningItemView {
	out := make([]learningItemView, len(items))
	for i, it := range items {
		out[i] = learningItemView{
			ID:               it.ID,
			SessionID:        it.SessionID,
			UserQuestion:     it.UserQuestion,
			BotResponse:      it.BotResponse,
			DetailedFeedback: it.DetailedFeedback,
			Rating:           it.Rating,
			Status:           it.Status,
			CreatedAt:        it.CreatedAt,
		}
	}
	return out
}

func toAnswerViews(answers []storage.ApprovedAnswer) []answerView {
	out := make([]answerView, len(answers))
	for i, a := range answers {
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}
		out[i] = answerView{
			ID:         a.ID,
			Pattern:    a.Pattern,
			Answer:     a.Answer,
			Tags:       tags,
			Active:     a.Active,
			UsageCount: a.UsageCount,
			CreatedAt:  a.CreatedAt,
			UpdatedAt:  a.UpdatedAt,
		}
	}
	return out
}

func toDocumentViews(docs []storage.KnowledgeDocument) []documentView {
	out := make([]documentView, len(docs))
	for i, d := range docs {
		out[i] = documentView{
			ID:         d.ID,
			Filename:   d.Filename,
			Source:     d.Source,
			UploadedAt: d.UploadedAt,
		}
	}
	return out
}

func toFeedbackViews(events []storage.FeedbackEvent) []feedbackView {
	out := make([]feedbackView, len(events))
	for i, ev := range events {
		out[i] = feedbackView{
			ID:           ev.ID,
			SessionID:    ev.SessionID,
			MessageSeq:   ev.MessageSeq,
			Rating:       ev.Rating,
			Comment:      ev.Comment,
			UserQuestion: ev.UserQuestion,
			CreatedAt:    ev.CreatedAt,
		}
	}
	return out
}
