package openai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/model"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "You plan.",
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: "Project knowledge"},
			{Role: model.RoleUser, Text: ""},
			{Role: model.RoleUser, Text: "hello"},
			{Role: model.RoleAssistant, Text: "hi"},
		},
	})
	assert.Len(t, msgs, 4)
}

func TestClassify_PlainErrorStaysPermanent(t *testing.T) {
	assert.False(t, core.IsTransient(classify(errors.New("bad request"))))
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.Model = "gpt-test"
	})
	assert.Equal(t, model.Info{Name: "gpt-test", Provider: "openai"}, m.Info())
}
