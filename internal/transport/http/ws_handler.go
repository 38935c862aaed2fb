package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ChitkulLakshya/quizwhiz/internal/app"
	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

type WSHandler struct {
	service  *app.TriviaService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.TriviaService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type advancePayload struct {
	Override bool `json:"override"`
}

type resultsPayload struct {
	QuestionID string `json:"questionId"`
}

// questionView hides the correct option from participant clients.
type questionView struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Points    int      `json:"points"`
	Order     int      `json:"order"`
}

type joinedPayload struct {
	Participant domain.Participant `json:"participant"`
	Session     domain.Session     `json:"session"`
	Questions   []questionView     `json:"questions"`
}

// ServeWS upgrades the request and wires the connection into the session use
// cases. Hosts drive phase transitions; participants join and answer. Both
// receive the session's change notifications; countdown display is each
// client's own derivation from questionStartTime.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	sessionID := r.URL.Query().Get("sessionId")
	switch role {
	case "host":
		if sessionID == "" || r.URL.Query().Get("ownerId") == "" {
			http.Error(w, "missing sessionId or ownerId", http.StatusBadRequest)
			return
		}
	case "player":
		if (sessionID == "" && r.URL.Query().Get("code") == "") || r.URL.Query().Get("name") == "" {
			http.Error(w, "missing sessionId/code or name", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "role must be host or player", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var participant domain.Participant
	if role == "player" {
		name := r.URL.Query().Get("name")
		if sessionID != "" {
			participant, err = h.service.Join(ctx, sessionID, name)
		} else {
			participant, err = h.service.JoinByCode(ctx, r.URL.Query().Get("code"), name)
		}
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
			return
		}
		sessionID = participant.SessionID
	}

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- eventMessage(event):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if role == "player" {
		if msg, err := h.joinedMessage(ctx, participant); err == nil {
			send <- msg
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if role == "host" {
			h.handleHostMessage(ctx, send, sessionID, r.URL.Query().Get("ownerId"), inbound)
		} else {
			h.handlePlayerMessage(ctx, send, sessionID, participant.ID, inbound)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleHostMessage(ctx context.Context, send chan<- outboundMessage[any], sessionID, ownerID string, inbound inboundMessage) {
	switch inbound.Type {
	case "openLobby":
		h.hostTransition(send, func() (domain.Session, error) {
			return h.service.OpenLobby(ctx, sessionID, ownerID)
		})
	case "start":
		h.hostTransition(send, func() (domain.Session, error) {
			return h.service.StartSession(ctx, sessionID, ownerID)
		})
	case "advance":
		var payload advancePayload
		_ = json.Unmarshal(inbound.Payload, &payload)
		h.hostTransition(send, func() (domain.Session, error) {
			return h.service.AdvancePhase(ctx, sessionID, ownerID, payload.Override)
		})
	case "results":
		var payload resultsPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "badRequest", Message: "invalid results payload"}}
			return
		}
		results, err := h.service.QuestionResults(ctx, sessionID, payload.QuestionID)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorBody(err)}
			return
		}
		send <- outboundMessage[any]{Type: "questionResults", Payload: results}
	case "leaderboard":
		entries, err := h.service.Leaderboard(ctx, sessionID)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorBody(err)}
			return
		}
		send <- outboundMessage[any]{Type: "leaderboard", Payload: entries}
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "badRequest", Message: "unsupported message type"}}
	}
}

func (h *WSHandler) handlePlayerMessage(ctx context.Context, send chan<- outboundMessage[any], sessionID, participantID string, inbound inboundMessage) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "badRequest", Message: "invalid answer payload"}}
			return
		}
		record, err := h.service.SubmitAnswer(ctx, sessionID, participantID, payload.QuestionID, payload.Answer)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorBody(err)}
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: record}
	case "leaderboard":
		entries, err := h.service.Leaderboard(ctx, sessionID)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorBody(err)}
			return
		}
		send <- outboundMessage[any]{Type: "leaderboard", Payload: entries}
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "badRequest", Message: "unsupported message type"}}
	}
}

func (h *WSHandler) hostTransition(send chan<- outboundMessage[any], transition func() (domain.Session, error)) {
	session, err := transition()
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorBody(err)}
		return
	}
	send <- outboundMessage[any]{Type: "session", Payload: session}
}

func (h *WSHandler) joinedMessage(ctx context.Context, participant domain.Participant) (outboundMessage[any], error) {
	session, err := h.service.Session(ctx, participant.SessionID)
	if err != nil {
		return outboundMessage[any]{}, err
	}
	questions, err := h.service.Questions(ctx, participant.SessionID)
	if err != nil {
		return outboundMessage[any]{}, err
	}
	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, questionView{
			ID:        q.ID,
			Text:      q.Text,
			Options:   q.Options,
			TimeLimit: q.TimeLimit,
			Points:    q.Points,
			Order:     q.Order,
		})
	}
	return outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		Participant: participant,
		Session:     session,
		Questions:   views,
	}}, nil
}

func eventMessage(event app.Event) outboundMessage[any] {
	switch event.Type {
	case app.EventParticipantJoined:
		return outboundMessage[any]{Type: "participant", Payload: event}
	case app.EventAnswerRecorded:
		return outboundMessage[any]{Type: "answerRecorded", Payload: event}
	default:
		return outboundMessage[any]{Type: "session", Payload: event.Session}
	}
}

func errorBody(err error) errorPayload {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrPrecondition):
		code = "precondition"
	case errors.Is(err, domain.ErrNotOwner):
		code = "unauthorized"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		code = "duplicate"
	case errors.Is(err, domain.ErrStaleSubmission):
		code = "stale"
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		code = "notFound"
	}
	return errorPayload{Code: code, Message: err.Error()}
}
