package app

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

// TriviaService contains the core session use cases: the host-driven phase
// controller, the participant registry, the answer ledger orchestration, and
// the read-side aggregations.
type TriviaService struct {
	store   SessionStore
	quizzes QuizRepository
	clock   clockwork.Clock

	codeMu sync.Mutex
	rnd    *rand.Rand
}

func NewTriviaService(store SessionStore, quizzes QuizRepository) *TriviaService {
	return NewTriviaServiceWithClock(store, quizzes, clockwork.NewRealClock())
}

// NewTriviaServiceWithClock injects a clock for deterministic timestamps in tests.
func NewTriviaServiceWithClock(store SessionStore, quizzes QuizRepository, clock clockwork.Clock) *TriviaService {
	return &TriviaService{
		store:   store,
		quizzes: quizzes,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateSession seeds a new draft session from quiz content. The join code is
// 6 random ASCII digits; collisions are an external concern.
func (s *TriviaService) CreateSession(ctx context.Context, quizID, ownerID string) (domain.Session, error) {
	content, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:                   uuid.NewString(),
		JoinCode:             s.newJoinCode(),
		Title:                content.Title,
		OwnerID:              ownerID,
		Status:               domain.StatusDraft,
		CurrentQuestionIndex: -1,
		QuestionCount:        len(content.Questions),
		CreatedAt:            s.clock.Now(),
	}

	questions := make([]domain.Question, len(content.Questions))
	copy(questions, content.Questions)
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		questions[i].SessionID = session.ID
	}

	if err := s.store.CreateSession(ctx, session, questions); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	log.Info().
		Str("session_id", session.ID).
		Str("quiz_id", quizID).
		Str("join_code", session.JoinCode).
		Int("questions", session.QuestionCount).
		Msg("session created")
	return session, nil
}

// OpenLobby moves draft -> lobby. Requires at least one question. Re-opening
// an already open lobby is a no-op success so a double-start is harmless.
func (s *TriviaService) OpenLobby(ctx context.Context, sessionID, actorID string) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	switch session.Status {
	case domain.StatusLobby:
		return session, nil
	case domain.StatusDraft:
		if session.QuestionCount < 1 {
			return domain.Session{}, fmt.Errorf("%w: cannot open lobby without questions", domain.ErrPrecondition)
		}
		status := domain.StatusLobby
		return s.store.UpdateSession(ctx, sessionID, SessionUpdate{Status: &status})
	default:
		return domain.Session{}, fmt.Errorf("%w: lobby cannot be opened from %s", domain.ErrPrecondition, session.Status)
	}
}

// StartSession moves lobby -> active at question 0 and records the shared
// question start timestamp all observers derive their countdown from.
func (s *TriviaService) StartSession(ctx context.Context, sessionID, actorID string) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusActive && session.CurrentQuestionIndex == 0 {
		return session, nil // retried start is a no-op
	}
	if session.Status != domain.StatusLobby {
		return domain.Session{}, fmt.Errorf("%w: cannot start from %s", domain.ErrPrecondition, session.Status)
	}

	index := 0
	status := domain.StatusActive
	now := s.clock.Now()
	updated, err := s.store.UpdateSession(ctx, sessionID, SessionUpdate{
		Status:               &status,
		CurrentQuestionIndex: &index,
		QuestionStartTime:    &now,
	})
	if err != nil {
		return domain.Session{}, err
	}
	log.Info().Str("session_id", sessionID).Msg("session started")
	return updated, nil
}

// AdvancePhase moves an active session to the next question, or to completed
// from the last one. Unless override is set, the current question's timer
// must have elapsed on the host's clock. The index never decreases.
func (s *TriviaService) AdvancePhase(ctx context.Context, sessionID, actorID string, override bool) (domain.Session, error) {
	session, err := s.hostSession(ctx, sessionID, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusCompleted {
		return session, nil // retried final advance is a no-op
	}
	if session.Status != domain.StatusActive {
		return domain.Session{}, fmt.Errorf("%w: cannot advance from %s", domain.ErrPrecondition, session.Status)
	}

	if !override {
		question, err := s.questionAt(ctx, sessionID, session.CurrentQuestionIndex)
		if err != nil {
			return domain.Session{}, err
		}
		if session.QuestionStartTime != nil {
			limit := time.Duration(question.TimeLimit) * time.Second
			state := domain.DeriveTimer(*session.QuestionStartTime, limit, s.clock.Now())
			if state.Phase == domain.PhaseQuestion {
				return domain.Session{}, fmt.Errorf("%w: question timer has not elapsed", domain.ErrPrecondition)
			}
		}
	}

	if session.CurrentQuestionIndex >= session.QuestionCount-1 {
		status := domain.StatusCompleted
		updated, err := s.store.UpdateSession(ctx, sessionID, SessionUpdate{
			Status:                 &status,
			ClearQuestionStartTime: true,
		})
		if err != nil {
			return domain.Session{}, err
		}
		log.Info().Str("session_id", sessionID).Msg("session completed")
		return updated, nil
	}

	next := session.CurrentQuestionIndex + 1
	now := s.clock.Now()
	updated, err := s.store.UpdateSession(ctx, sessionID, SessionUpdate{
		CurrentQuestionIndex: &next,
		QuestionStartTime:    &now,
	})
	if err != nil {
		return domain.Session{}, err
	}
	log.Info().Str("session_id", sessionID).Int("question_index", next).Msg("advanced to next question")
	return updated, nil
}

// Join registers a new participant. Identity is the generated id; the same
// person joining again simply becomes a new participant. Only lobby and
// active sessions accept joins.
func (s *TriviaService) Join(ctx context.Context, sessionID, name string) (domain.Participant, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if session.Status != domain.StatusLobby && session.Status != domain.StatusActive {
		return domain.Participant{}, fmt.Errorf("%w: session is not accepting participants", domain.ErrPrecondition)
	}
	participant := domain.Participant{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		JoinedAt:  s.clock.Now(),
	}
	if err := s.store.AddParticipant(ctx, participant); err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

// JoinByCode resolves the 6-digit join code and joins the session.
func (s *TriviaService) JoinByCode(ctx context.Context, code, name string) (domain.Participant, error) {
	session, err := s.store.GetSessionByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.Join(ctx, session.ID, name)
}

// SubmitAnswer scores and records one answer. The store's conditional create
// is the exactly-once authority; the current-question check here is the
// authoritative cutoff for late arrivals, independent of any client-local
// countdown.
func (s *TriviaService) SubmitAnswer(ctx context.Context, sessionID, participantID, questionID, answer string) (domain.AnswerRecord, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	if session.Status != domain.StatusActive || session.CurrentQuestionIndex < 0 || session.QuestionStartTime == nil {
		return domain.AnswerRecord{}, fmt.Errorf("%w: no question is accepting answers", domain.ErrStaleSubmission)
	}
	current, err := s.questionAt(ctx, sessionID, session.CurrentQuestionIndex)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	if current.ID != questionID {
		return domain.AnswerRecord{}, fmt.Errorf("%w: current question is %s", domain.ErrStaleSubmission, current.ID)
	}

	now := s.clock.Now()
	limit := time.Duration(current.TimeLimit) * time.Second
	state := domain.DeriveTimer(*session.QuestionStartTime, limit, now)
	spent := state.Elapsed
	if spent > limit {
		spent = limit
	}

	isCorrect := answer == current.CorrectAnswer()
	points := 0
	if isCorrect {
		points = current.Points
	}

	record := domain.AnswerRecord{
		ParticipantID: participantID,
		QuestionID:    questionID,
		Answer:        answer,
		IsCorrect:     isCorrect,
		PointsEarned:  points,
		TimeSpent:     spent.Seconds(),
		SubmittedAt:   now,
	}
	if err := s.store.RecordAnswer(ctx, sessionID, record); err != nil {
		return domain.AnswerRecord{}, err
	}
	return record, nil
}

// QuestionResults scans the ledger for one question and returns aggregate
// counts. Safe to call concurrently with ongoing submissions; the result is
// a snapshot of whatever records exist at read time.
func (s *TriviaService) QuestionResults(ctx context.Context, sessionID, questionID string) (domain.QuestionResults, error) {
	records, err := s.store.GetAnswersForQuestion(ctx, sessionID, questionID)
	if err != nil {
		return domain.QuestionResults{}, err
	}
	results := domain.QuestionResults{QuestionID: questionID}
	for _, record := range records {
		if record.IsCorrect {
			results.Correct++
		} else {
			results.Incorrect++
		}
	}
	results.Total = results.Correct + results.Incorrect
	return results, nil
}

// Session returns the current session snapshot.
func (s *TriviaService) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// Questions returns the session's questions in play order.
func (s *TriviaService) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	return s.store.GetQuestions(ctx, sessionID)
}

// Subscribe returns the session's change-notification stream.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *TriviaService) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	return s.store.Subscribe(ctx, sessionID)
}

func (s *TriviaService) hostSession(ctx context.Context, sessionID, actorID string) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.OwnerID != actorID {
		return domain.Session{}, domain.ErrNotOwner
	}
	return session, nil
}

func (s *TriviaService) questionAt(ctx context.Context, sessionID string, index int) (domain.Question, error) {
	questions, err := s.store.GetQuestions(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	if index < 0 || index >= len(questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[index], nil
}

func (s *TriviaService) newJoinCode() string {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	return fmt.Sprintf("%06d", 100000+s.rnd.Intn(900000))
}
