package memory

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrNotFound is returned when a requested course does not exist
	ErrNotFound = goerr.New("not found")
)
