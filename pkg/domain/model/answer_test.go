package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

func TestMergeSources(t *testing.T) {
	a := model.Source{Title: "A - Lesson 1", Link: "https://example.com/a/1"}
	b := model.Source{Title: "B - Lesson 2"}

	merged := model.MergeSources(nil, a, b, a)
	gt.Array(t, merged).Length(2).Required()
	gt.Value(t, merged[0]).Equal(a)
	gt.Value(t, merged[1]).Equal(b)

	merged = model.MergeSources(merged, model.Source{Title: "A - Lesson 1"})
	gt.Array(t, merged).Length(3)
}

func TestFormatTranscript(t *testing.T) {
	turns := []model.Turn{
		{Role: model.RoleUser, Content: "What is MCP?"},
		{Role: model.RoleAssistant, Content: "A protocol."},
	}
	gt.Value(t, model.FormatTranscript(turns)).Equal("User: What is MCP?\nAssistant: A protocol.")
	gt.Value(t, model.FormatTranscript(nil)).Equal("")
}

func TestNewSessionID(t *testing.T) {
	id := model.NewSessionID()
	gt.Value(t, len(id)).Equal(36)
	gt.Value(t, id).NotEqual(model.NewSessionID())
}
