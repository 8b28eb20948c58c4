// Package chat orchestrates one conversational turn: record the visitor's
// message, classify it, answer from the current knowledge snapshot, and file
// the outcome for the learning loop.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zentiam/assistd/internal/answer"
	"github.com/zentiam/assistd/internal/intent"
	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/learning"
	"github.com/zentiam/assistd/internal/session"
	"github.com/zentiam/assistd/internal/storage"
)

// Request validation failures, mapped to 400 by the HTTP layer.
var (
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrMessageTooLong = errors.New("message too long")
)

const maxMessageBytes = 4096

// Follow-up copy appended to replies during the contact-capture flow.
const (
	contactClosing = "Thanks, we have your details. The team will follow up shortly."

	askNameCopy  = "By the way, who am I speaking with?"
	askEmailCopy = "Could you share your email so the team can follow up?"
	askPhoneCopy = "Could you share a phone number so the team can reach you?"
)

// Reply is the outcome of one handled turn.
type Reply struct {
	Text       string
	MessageSeq int
	Matched    bool
	Source     string
	Intent     string
	Sentiment  string
}

type Pipeline struct {
	sessions *session.Manager
	store    *knowledge.Store
	engine   *answer.Engine
	queue    *learning.Queue
	log      *slog.Logger
}

func NewPipeline(sessions *session.Manager, store *knowledge.Store, engine *answer.Engine, queue *learning.Queue, logger *slog.Logger) *Pipeline {
	return &Pipeline{sessions: sessions, store: store, engine: engine, queue: queue, log: logger}
}

// Handle runs the full answer pipeline for one visitor message. An unknown
// session is ErrNotFound; a malformed message is a validation error. A failed
// match is never an error for the visitor, only a fallback reply.
func (p *Pipeline) Handle(ctx context.Context, sessionID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	if len(message) > maxMessageBytes {
		return Reply{}, ErrMessageTooLong
	}

	msgIntent := intent.Detect(message)
	sentiment := intent.Sentiment(message)

	if _, err := p.sessions.Append(sessionID, storage.SenderUser, message, map[string]string{
		"intent":    msgIntent,
		"sentiment": sentiment,
	}); err != nil {
		return Reply{}, err
	}

	contact, contactAdded, err := p.sessions.CaptureContact(sessionID, message)
	if err != nil {
		return Reply{}, fmt.Errorf("capturing contact: %w", err)
	}

	snap := p.store.Current()
	res := p.engine.Answer(ctx, snap, message)

	replyText := res.Text
	switch {
	case contactAdded && contact.Complete():
		replyText += " " + contactClosing
	case wantsFollowUp(res.Matched, msgIntent, sentiment) && !contact.Complete():
		replyText += " " + askCopy(contact.NextMissing())
	}

	bot, err := p.sessions.Append(sessionID, storage.SenderBot, replyText, map[string]string{
		"source": res.Source,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("appending reply: %w", err)
	}

	normalized := knowledge.NormalizeQuestion(message)
	if err := p.sessions.RecordOutcome(sessionID, normalized, res.Matched); err != nil {
		return Reply{}, fmt.Errorf("recording outcome: %w", err)
	}

	if res.AnswerID != "" {
		p.store.NoteAnswerUsed(res.AnswerID)
	}

	if !res.Matched {
		if _, err := p.queue.Enqueue(sessionID, message, res.Text, "", storage.LearningRatingUnanswered); err != nil {
			// The visitor still gets their reply; the gap is only logged.
			p.log.Error("enqueueing unanswered question", "session_id", sessionID, "error", err)
		}
	}

	p.log.Debug("chat turn handled",
		"session_id", sessionID, "matched", res.Matched, "source", res.Source,
		"intent", msgIntent, "sentiment", sentiment)

	return Reply{
		Text:       replyText,
		MessageSeq: bot.Seq,
		Matched:    res.Matched,
		Source:     res.Source,
		Intent:     msgIntent,
		Sentiment:  sentiment,
	}, nil
}

// wantsFollowUp decides when the bot should ask for contact details: the
// visitor sounds frustrated or signals buying intent. The fallback reply
// already solicits contact on its own, so a miss does not double-ask.
func wantsFollowUp(matched bool, msgIntent, sentiment string) bool {
	if !matched {
		return false
	}
	return sentiment == intent.Frustrated || msgIntent == intent.ReadyToConvert
}

func askCopy(field string) string {
	switch field {
	case "name":
		return askNameCopy
	case "email":
		return askEmailCopy
	case "phone":
		return askPhoneCopy
	default:
		return ""
	}
}
