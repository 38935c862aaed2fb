package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ChitkulLakshya/quizwhiz/internal/app"
	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore. A single
// mutex per store gives the conditional-create discipline; change events fan
// out to in-process subscribers the same way they would arrive from a
// document store's notification stream.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	byCode   map[string]string
}

type sessionState struct {
	session      domain.Session
	questions    []domain.Question
	participants map[string]*domain.Participant
	answers      map[string]domain.AnswerRecord // keyed participantID|questionID
	subscribers  map[chan app.Event]struct{}
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionState),
		byCode:   make(map[string]string),
	}
}

func answerKey(participantID, questionID string) string {
	return participantID + "|" + questionID
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := &sessionState{
		session:      session,
		questions:    append([]domain.Question(nil), questions...),
		participants: make(map[string]*domain.Participant),
		answers:      make(map[string]domain.AnswerRecord),
		subscribers:  make(map[chan app.Event]struct{}),
	}
	s.sessions[session.ID] = state
	s.byCode[session.JoinCode] = session.ID
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return state.session, nil
}

func (s *SessionStore) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.byCode[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[sessionID].session, nil
}

func (s *SessionStore) UpdateSession(ctx context.Context, sessionID string, update app.SessionUpdate) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if update.Status != nil {
		state.session.Status = *update.Status
	}
	if update.CurrentQuestionIndex != nil {
		state.session.CurrentQuestionIndex = *update.CurrentQuestionIndex
	}
	if update.QuestionStartTime != nil {
		t := *update.QuestionStartTime
		state.session.QuestionStartTime = &t
	}
	if update.ClearQuestionStartTime {
		state.session.QuestionStartTime = nil
	}
	snapshot := state.session
	state.broadcastLocked(app.Event{Type: app.EventSessionUpdated, Session: &snapshot})
	return snapshot, nil
}

func (s *SessionStore) GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]domain.Question(nil), state.questions...), nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[participant.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	p := participant
	state.participants[p.ID] = &p
	snapshot := state.session
	state.broadcastLocked(app.Event{Type: app.EventParticipantJoined, Session: &snapshot, Participant: &participant})
	return nil
}

func (s *SessionStore) GetParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	participants := make([]domain.Participant, 0, len(state.participants))
	for _, p := range state.participants {
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].ID < participants[j].ID
	})
	return participants, nil
}

// RecordAnswer holds the store lock across the existence check, the record
// write, and the score increment, so all three are one atomic step.
func (s *SessionStore) RecordAnswer(ctx context.Context, sessionID string, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	participant, ok := state.participants[record.ParticipantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	key := answerKey(record.ParticipantID, record.QuestionID)
	if _, exists := state.answers[key]; exists {
		return domain.ErrDuplicateSubmission
	}
	state.answers[key] = record
	participant.TotalScore += record.PointsEarned
	snapshot := state.session
	state.broadcastLocked(app.Event{Type: app.EventAnswerRecorded, Session: &snapshot, QuestionID: record.QuestionID})
	return nil
}

func (s *SessionStore) GetAnswers(ctx context.Context, sessionID string) ([]domain.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	records := make([]domain.AnswerRecord, 0, len(state.answers))
	for _, record := range state.answers {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return answerKey(records[i].ParticipantID, records[i].QuestionID) < answerKey(records[j].ParticipantID, records[j].QuestionID)
	})
	return records, nil
}

func (s *SessionStore) GetAnswersForQuestion(ctx context.Context, sessionID, questionID string) ([]domain.AnswerRecord, error) {
	records, err := s.GetAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	filtered := records[:0]
	for _, record := range records {
		if record.QuestionID == questionID {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

func (s *SessionStore) Subscribe(ctx context.Context, sessionID string) (<-chan app.Event, func(), error) {
	s.mu.Lock()
	state, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrSessionNotFound
	}
	ch := make(chan app.Event, 8)
	state.subscribers[ch] = struct{}{}
	snapshot := state.session
	s.mu.Unlock()

	ch <- app.Event{Type: app.EventSessionUpdated, Session: &snapshot}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := state.subscribers[ch]; ok {
			delete(state.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// broadcastLocked drops the oldest queued event for a slow subscriber rather
// than blocking every other observer behind it.
func (st *sessionState) broadcastLocked(event app.Event) {
	for ch := range st.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}
