package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ChitkulLakshya/quizwhiz/internal/app"
	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

// recordAnswer is the exactly-once primitive: a single server-side step that
// creates the (participant, question) record only if absent and, when it was
// created, bumps the participant's score. Closes the double-click/reconnect
// race without any caller-side read-then-write.
//
// KEYS[1] answers hash, KEYS[2] scores hash
// ARGV[1] answer field, ARGV[2] record JSON, ARGV[3] participant id, ARGV[4] points
var recordAnswer = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
  redis.call('HINCRBY', KEYS[2], ARGV[3], ARGV[4])
  return 1
end
return 0
`)

// SessionStore keeps each session as a JSON document plus participant,
// score, and answer hashes, and fans writes out to subscribers over Redis
// pub/sub. Phase transitions are single-writer (the host), so session-doc
// updates are plain read-modify-write.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) sessionKey(id string) string      { return "trivia:session:" + id }
func (s *SessionStore) codeKey(code string) string       { return "trivia:code:" + code }
func (s *SessionStore) questionsKey(id string) string    { return "trivia:session:" + id + ":questions" }
func (s *SessionStore) participantsKey(id string) string { return "trivia:session:" + id + ":participants" }
func (s *SessionStore) scoresKey(id string) string       { return "trivia:session:" + id + ":scores" }
func (s *SessionStore) answersKey(id string) string      { return "trivia:session:" + id + ":answers" }
func (s *SessionStore) eventsChannel(id string) string   { return "trivia:session:" + id + ":events" }

func answerField(participantID, questionID string) string {
	return participantID + "|" + questionID
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session, questions []domain.Question) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return err
	}
	qs, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), doc, s.ttl)
	pipe.Set(ctx, s.codeKey(session.JoinCode), session.ID, s.ttl)
	pipe.Set(ctx, s.questionsKey(session.ID), qs, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *SessionStore) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	sessionID, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return s.GetSession(ctx, sessionID)
}

func (s *SessionStore) UpdateSession(ctx context.Context, sessionID string, update app.SessionUpdate) (domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.CurrentQuestionIndex != nil {
		session.CurrentQuestionIndex = *update.CurrentQuestionIndex
	}
	if update.QuestionStartTime != nil {
		t := *update.QuestionStartTime
		session.QuestionStartTime = &t
	}
	if update.ClearQuestionStartTime {
		session.QuestionStartTime = nil
	}
	doc, err := json.Marshal(session)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.client.Set(ctx, s.sessionKey(sessionID), doc, s.ttl).Err(); err != nil {
		return domain.Session{}, err
	}
	s.publish(ctx, sessionID, app.Event{Type: app.EventSessionUpdated, Session: &session})
	return session, nil
}

func (s *SessionStore) GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	data, err := s.client.Get(ctx, s.questionsKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, participant domain.Participant) error {
	exists, err := s.client.Exists(ctx, s.sessionKey(participant.SessionID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}
	doc, err := json.Marshal(participant)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.participantsKey(participant.SessionID), participant.ID, doc)
	pipe.HSetNX(ctx, s.scoresKey(participant.SessionID), participant.ID, 0)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.participantsKey(participant.SessionID), s.ttl)
		pipe.Expire(ctx, s.scoresKey(participant.SessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	session, err := s.GetSession(ctx, participant.SessionID)
	if err != nil {
		return err
	}
	s.publish(ctx, participant.SessionID, app.Event{Type: app.EventParticipantJoined, Session: &session, Participant: &participant})
	return nil
}

func (s *SessionStore) GetParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	raw, err := s.client.HGetAll(ctx, s.participantsKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	scores, err := s.client.HGetAll(ctx, s.scoresKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	participants := make([]domain.Participant, 0, len(raw))
	for id, doc := range raw {
		var participant domain.Participant
		if err := json.Unmarshal([]byte(doc), &participant); err != nil {
			return nil, err
		}
		// The scores hash is the authoritative running sum; the stored
		// document keeps its join-time value.
		if scoreStr, ok := scores[id]; ok {
			if score, err := strconv.Atoi(scoreStr); err == nil {
				participant.TotalScore = score
			}
		}
		participants = append(participants, participant)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].ID < participants[j].ID
	})
	return participants, nil
}

func (s *SessionStore) RecordAnswer(ctx context.Context, sessionID string, record domain.AnswerRecord) error {
	joined, err := s.client.HExists(ctx, s.participantsKey(sessionID), record.ParticipantID).Result()
	if err != nil {
		return err
	}
	if !joined {
		return domain.ErrParticipantNotFound
	}
	doc, err := json.Marshal(record)
	if err != nil {
		return err
	}
	created, err := recordAnswer.Run(ctx, s.client,
		[]string{s.answersKey(sessionID), s.scoresKey(sessionID)},
		answerField(record.ParticipantID, record.QuestionID), doc, record.ParticipantID, record.PointsEarned,
	).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return domain.ErrDuplicateSubmission
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, s.answersKey(sessionID), s.ttl)
	}
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.publish(ctx, sessionID, app.Event{Type: app.EventAnswerRecorded, Session: &session, QuestionID: record.QuestionID})
	return nil
}

func (s *SessionStore) GetAnswers(ctx context.Context, sessionID string) ([]domain.AnswerRecord, error) {
	raw, err := s.client.HGetAll(ctx, s.answersKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	records := make([]domain.AnswerRecord, 0, len(fields))
	for _, field := range fields {
		var record domain.AnswerRecord
		if err := json.Unmarshal([]byte(raw[field]), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
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
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	pubsub := s.client.Subscribe(ctx, s.eventsChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan app.Event, 8)
	out <- app.Event{Type: app.EventSessionUpdated, Session: &session}

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event app.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("dropping malformed session event")
				continue
			}
			select {
			case out <- event:
			default:
				// drop the oldest queued event rather than stalling
				select {
				case <-out:
				default:
				}
				out <- event
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func (s *SessionStore) publish(ctx context.Context, sessionID string, event app.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("marshal session event")
		return
	}
	if err := s.client.Publish(ctx, s.eventsChannel(sessionID), payload).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("publish session event")
	}
}
