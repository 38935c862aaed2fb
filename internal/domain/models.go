package domain

import "time"

// Status is the session lifecycle state. It only moves forward through
// draft < lobby < active < completed; re-entering lobby from draft is the
// one idempotent exception.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusLobby     Status = "lobby"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session is the single host-owned record replicated to every observer
// through the store's change notifications.
type Session struct {
	ID                   string     `json:"id"`
	JoinCode             string     `json:"joinCode"` // 6 ASCII digits
	Title                string     `json:"title"`
	OwnerID              string     `json:"ownerId"`
	Status               Status     `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"` // -1 while no question is active
	QuestionStartTime    *time.Time `json:"questionStartTime,omitempty"`
	QuestionCount        int        `json:"questionCount"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Question is immutable once the session leaves draft.
type Question struct {
	ID                 string   `json:"id"`
	SessionID          string   `json:"sessionId"`
	Text               string   `json:"text"`
	Options            []string `json:"options"` // length >= 2
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	TimeLimit          int      `json:"timeLimit"` // seconds, > 0
	Points             int      `json:"points"`    // base reward, > 0
	Order              int      `json:"order"`
}

// CorrectAnswer returns the option text marked correct, or "" when the
// index is out of range.
func (q Question) CorrectAnswer() string {
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectOptionIndex]
}

// Participant is append-only: created on join, never removed during a session.
type Participant struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Name       string    `json:"name"`
	TotalScore int       `json:"totalScore"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// AnswerRecord is the exactly-once ledger entry for one (participant, question)
// pair. PointsEarned > 0 implies IsCorrect.
type AnswerRecord struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	IsCorrect     bool      `json:"isCorrect"`
	PointsEarned  int       `json:"pointsEarned"`
	TimeSpent     float64   `json:"timeSpent"` // seconds, clamped to [0, timeLimit]
	SubmittedAt   time.Time `json:"submittedAt"`
}

// LeaderboardEntry is derived on demand, never persisted.
type LeaderboardEntry struct {
	Rank            int     `json:"rank"` // 1-based, dense across ties
	ParticipantID   string  `json:"participantId"`
	ParticipantName string  `json:"participantName"`
	Score           int     `json:"score"`
	TotalTime       float64 `json:"totalTime"` // cumulative seconds across answered questions
}

// QuestionResults aggregates the ledger for a single question. It is a
// snapshot of whatever records exist at read time, not a barrier.
type QuestionResults struct {
	QuestionID string `json:"questionId"`
	Correct    int    `json:"correct"`
	Incorrect  int    `json:"incorrect"`
	Total      int    `json:"total"`
}

// QuizContent is the trivia material a session is seeded from.
type QuizContent struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}
