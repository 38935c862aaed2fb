package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ChitkulLakshya/quizwhiz/internal/app"
	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	session := testSession()
	if err := store.CreateSession(ctx, session, testQuestions(session.ID)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != session.ID || got.Status != domain.StatusDraft || got.CurrentQuestionIndex != -1 {
		t.Fatalf("unexpected session: %+v", got)
	}

	byCode, err := store.GetSessionByCode(ctx, session.JoinCode)
	if err != nil || byCode.ID != session.ID {
		t.Fatalf("get by code: %v %+v", err, byCode)
	}

	questions, err := store.GetQuestions(ctx, session.ID)
	if err != nil || len(questions) != 1 || questions[0].CorrectAnswer() != "Paris" {
		t.Fatalf("questions round trip: %v %+v", err, questions)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateSessionPersists(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	session := testSession()
	_ = store.CreateSession(ctx, session, testQuestions(session.ID))

	status := domain.StatusActive
	index := 0
	now := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := store.UpdateSession(ctx, session.ID, app.SessionUpdate{
		Status:               &status,
		CurrentQuestionIndex: &index,
		QuestionStartTime:    &now,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusActive || got.CurrentQuestionIndex != 0 {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.QuestionStartTime == nil || !got.QuestionStartTime.Equal(now) {
		t.Fatalf("start time not persisted: %v", got.QuestionStartTime)
	}
}

func TestRecordAnswerConditionalCreate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	session := testSession()
	_ = store.CreateSession(ctx, session, testQuestions(session.ID))
	_ = store.AddParticipant(ctx, domain.Participant{ID: "p1", SessionID: session.ID, Name: "Alice"})

	record := domain.AnswerRecord{
		ParticipantID: "p1",
		QuestionID:    "q1",
		Answer:        "Paris",
		IsCorrect:     true,
		PointsEarned:  100,
		TimeSpent:     5,
	}
	if err := store.RecordAnswer(ctx, session.ID, record); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := store.RecordAnswer(ctx, session.ID, record); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	participants, err := store.GetParticipants(ctx, session.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 1 || participants[0].TotalScore != 100 {
		t.Fatalf("expected score 100 credited once, got %+v", participants)
	}

	answers, err := store.GetAnswersForQuestion(ctx, session.ID, "q1")
	if err != nil || len(answers) != 1 {
		t.Fatalf("expected one record, got %v %+v", err, answers)
	}
	if answers[0].Answer != "Paris" || !answers[0].IsCorrect {
		t.Fatalf("record mangled: %+v", answers[0])
	}
}

func TestRecordAnswerRequiresJoin(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	session := testSession()
	_ = store.CreateSession(ctx, session, testQuestions(session.ID))

	err := store.RecordAnswer(ctx, session.ID, domain.AnswerRecord{ParticipantID: "ghost", QuestionID: "q1"})
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	session := testSession()
	_ = store.CreateSession(ctx, session, testQuestions(session.ID))

	events, cancel, err := store.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := readEvent(t, events)
	if initial.Session == nil || initial.Session.Status != domain.StatusDraft {
		t.Fatalf("expected draft snapshot first, got %+v", initial)
	}

	status := domain.StatusLobby
	if _, err := store.UpdateSession(ctx, session.ID, app.SessionUpdate{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}
	update := readEvent(t, events)
	if update.Type != app.EventSessionUpdated || update.Session.Status != domain.StatusLobby {
		t.Fatalf("expected lobby event, got %+v", update)
	}
}

func readEvent(t *testing.T, events <-chan app.Event) app.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return app.Event{}
	}
}

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionStore(client, time.Minute), mr
}

func testSession() domain.Session {
	return domain.Session{
		ID:                   "s1",
		JoinCode:             "123456",
		Title:                "Capitals",
		OwnerID:              "host-1",
		Status:               domain.StatusDraft,
		CurrentQuestionIndex: -1,
		QuestionCount:        1,
		CreatedAt:            time.Now().UTC(),
	}
}

func testQuestions(sessionID string) []domain.Question {
	return []domain.Question{
		{
			ID:                 "q1",
			SessionID:          sessionID,
			Text:               "What is the capital of France?",
			Options:            []string{"Berlin", "Paris"},
			CorrectOptionIndex: 1,
			TimeLimit:          20,
			Points:             100,
			Order:              0,
		},
	}
}
