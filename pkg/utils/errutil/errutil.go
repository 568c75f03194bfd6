package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
)

// Handle logs the error with its goerr values and stack, and returns it unchanged.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	return err
}

// errorResponse is the JSON body of an HTTP error.
type errorResponse struct {
	Detail string `json:"detail"`
}

// HandleHTTP logs the error and writes a JSON error response. The client
// sees only msg; the error and its values stay in the log.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int, msg string) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)

	if statusCode >= http.StatusInternalServerError {
		var ge *goerr.Error
		if errors.As(err, &ge) {
			logger.Error("HTTP error",
				"status", statusCode,
				"error", err.Error(),
				"values", ge.Values(),
				"stack", ge.Stacks(),
			)
		} else {
			logger.Error("HTTP error", "status", statusCode, "error", err.Error())
		}
	} else {
		logger.Warn("HTTP client error", "status", statusCode, "error", err.Error())
	}

	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	data, _ := json.Marshal(errorResponse{Detail: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data) //nolint:errcheck // header already committed
}
