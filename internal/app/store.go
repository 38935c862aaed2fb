package app

import (
	"context"
	"time"

	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

// EventType discriminates change notifications pushed to subscribers.
type EventType string

const (
	EventSessionUpdated    EventType = "sessionUpdated"
	EventParticipantJoined EventType = "participantJoined"
	EventAnswerRecorded    EventType = "answerRecorded"
)

// Event is one change notification. Session carries the snapshot as of the
// write that produced the event; per-session ordering matches write order.
type Event struct {
	Type        EventType           `json:"type"`
	Session     *domain.Session     `json:"session,omitempty"`
	Participant *domain.Participant `json:"participant,omitempty"`
	QuestionID  string              `json:"questionId,omitempty"`
}

// SessionUpdate names the fields a phase transition writes. Nil fields are
// left untouched; ClearQuestionStartTime unsets the timestamp explicitly.
type SessionUpdate struct {
	Status                 *domain.Status
	CurrentQuestionIndex   *int
	QuestionStartTime      *time.Time
	ClearQuestionStartTime bool
}

// SessionStore is the durable-store collaborator boundary: keyed records
// plus change notifications. Implementations must provide read-your-writes
// consistency and per-session ordering of events.
type SessionStore interface {
	CreateSession(ctx context.Context, session domain.Session, questions []domain.Question) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (domain.Session, error)
	UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) (domain.Session, error)

	GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)

	AddParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)

	// RecordAnswer is the exactly-once primitive: a single atomic
	// create-if-absent on the (participantID, questionID) key that also
	// increments the participant's total score in the same step. Returns
	// domain.ErrDuplicateSubmission when a record already exists.
	RecordAnswer(ctx context.Context, sessionID string, record domain.AnswerRecord) error
	GetAnswers(ctx context.Context, sessionID string) ([]domain.AnswerRecord, error)
	GetAnswersForQuestion(ctx context.Context, sessionID, questionID string) ([]domain.AnswerRecord, error)

	// Subscribe returns a change-notification channel for one session.
	// The caller must invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}

// QuizRepository loads trivia content sessions are seeded from
// (cache over a backing loader).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizContent, error)
}
