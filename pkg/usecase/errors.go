package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// ErrLLMNotConfigured is returned by AnswerQuery when no LLM client was given.
	ErrLLMNotConfigured = goerr.New("LLM client is not configured")

	// ErrEmptyQuery is returned when a query has no text.
	ErrEmptyQuery = goerr.New("query is empty")

	// ErrDocumentTooLarge is recorded when a document exceeds the read limit.
	ErrDocumentTooLarge = goerr.New("document is too large")
)
