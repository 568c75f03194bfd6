package course

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrUnknownTool is returned when the model requests a tool that is not registered.
	ErrUnknownTool = goerr.New("unknown tool")

	// ErrInvalidArgument is returned when a tool call carries a missing or mistyped argument.
	ErrInvalidArgument = goerr.New("invalid tool argument")
)

// ErrToolExecution marks a tool failure that is reported to the model as text.
var ErrToolExecution = goerr.New("tool execution failed")
