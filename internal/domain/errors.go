package domain

import "errors"

var (
	// ErrNotAuthenticated is returned when the controller is asked to
	// load without a user identity.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrNoSession is returned when an operation requires an active
	// quiz session and none exists.
	ErrNoSession = errors.New("quiz session not loaded")
	// ErrMalformedResponse indicates a backend payload missing
	// expected fields; treated as a load/fetch failure.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrQuestionSetNotFound indicates the question content could not
	// be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
)
