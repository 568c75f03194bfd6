package orchestrator

import "github.com/secmon-lab/syllabus/pkg/domain/model"

func (o *Orchestrator) BuildSystemPrompt(history []model.Turn) (string, error) {
	return o.buildSystemPrompt(history)
}

const FinalRoundHint = finalRoundHint
