package chunker

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrMalformedDocument is returned when a document lacks the mandatory
	// course title header or carries an inconsistent lesson roster.
	ErrMalformedDocument = goerr.New("malformed course document")
)
