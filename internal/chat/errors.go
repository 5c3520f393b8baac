package chat

import "errors"

// Sentinel errors for turn processing.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidTurn indicates a turn with neither text nor attachment.
	ErrInvalidTurn = errors.New("invalid turn")

	// ErrStorage indicates a persistence call failed. Messages written before
	// the failure remain stored.
	ErrStorage = errors.New("storage failure")

	// ErrGeneration indicates the response generator failed. The user message
	// (and any context message) of the turn remain stored without a reply.
	ErrGeneration = errors.New("generation failure")

	// ErrTitling indicates title derivation or the rename failed.
	// It is logged, never returned from ProcessTurn.
	ErrTitling = errors.New("titling failure")
)
