package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/agent/orchestrator"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
)

// AnswerQuery answers a question about the course materials within a
// conversation. An empty sessionID starts a new session; its id is returned
// in the answer.
func (uc *UseCases) AnswerQuery(ctx context.Context, query string, sessionID string) (*model.Answer, error) {
	if uc.orchestrator == nil {
		return nil, goerr.Wrap(ErrLLMNotConfigured, "cannot answer query")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, goerr.Wrap(ErrEmptyQuery, "cannot answer query")
	}

	sid := model.SessionID(sessionID)
	if sid == "" {
		sid = model.NewSessionID()
	}

	logger := logging.From(ctx).With(model.SessionIDKey, string(sid))
	ctx = logging.With(ctx, logger)

	var history []model.Turn
	if uc.maxHistory > 0 {
		h, err := uc.sessions.GetHistory(ctx, sid, 2*uc.maxHistory)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get session history", goerr.V(model.SessionIDKey, sid))
		}
		history = h
	}

	result, err := uc.orchestrator.Run(ctx, orchestrator.Request{
		Query:   query,
		History: history,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to answer query", goerr.V(model.SessionIDKey, sid))
	}

	logger.Info("answered query",
		"model_calls", result.ModelCalls,
		"tool_calls", result.ToolCalls,
		"forced", result.Forced,
		"sources", len(result.Sources))

	if err := uc.sessions.Append(ctx, sid,
		model.Turn{Role: model.RoleUser, Content: query},
		model.Turn{Role: model.RoleAssistant, Content: result.Answer},
	); err != nil {
		// the answer is still valid without history
		logger.Warn("failed to record session history", "error", err.Error())
	}

	return &model.Answer{
		Text:      result.Answer,
		Sources:   result.Sources,
		SessionID: string(sid),
	}, nil
}

// ClearSession drops the history of a session.
func (uc *UseCases) ClearSession(ctx context.Context, sessionID string) error {
	if err := uc.sessions.Clear(ctx, model.SessionID(sessionID)); err != nil {
		return goerr.Wrap(err, "failed to clear session", goerr.V(model.SessionIDKey, sessionID))
	}
	return nil
}
