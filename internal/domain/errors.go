package domain

import "errors"

var (
	// ErrPrecondition is returned when an illegal transition is attempted,
	// e.g. starting a session with zero questions. State is unchanged.
	ErrPrecondition = errors.New("transition precondition not met")
	// ErrNotOwner is returned when a non-owner attempts a host action.
	ErrNotOwner = errors.New("host action requires the session owner")
	// ErrDuplicateSubmission is returned on a second answer for the same
	// (participant, question) pair; the first record stands.
	ErrDuplicateSubmission = errors.New("answer already recorded for this question")
	// ErrStaleSubmission is returned when a submission targets a question
	// that is no longer current at accept time.
	ErrStaleSubmission = errors.New("submission targets a question that is no longer current")
	// ErrSessionNotFound is returned when no session exists for the given id or code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is unknown to the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound is returned when a participant id has not joined the session.
	ErrParticipantNotFound = errors.New("participant not found in session")
)
