package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/filechat/backend/internal/config"
)

type fakeChatModel struct {
	reply     string
	err       error
	input     []*schema.Message
	maxTokens *int
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.maxTokens = model.GetCommonOptions(nil, opts...).MaxTokens
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestServiceCompletePassesPromptVerbatim(t *testing.T) {
	fake := &fakeChatModel{reply: "Revenue grew 10% in Q1."}
	cfg := config.CompletionConfig{Provider: config.ProviderGemini, Model: "gemini-2.0-flash", MaxTokens: 1000}

	svc, err := newServiceWithModel(context.Background(), fake, cfg)
	require.NoError(t, err)

	userPrompt := "Summarize this {literally}\n\nFile content:\nQ1 revenue grew 10%."
	reply, err := svc.Complete(context.Background(), userPrompt)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 10% in Q1.", reply)

	require.Len(t, fake.input, 1)
	assert.Equal(t, schema.User, fake.input[0].Role)
	assert.Equal(t, userPrompt, fake.input[0].Content)
	require.NotNil(t, fake.maxTokens)
	assert.Equal(t, 1000, *fake.maxTokens)
}

func TestServiceCompleteWrapsModelErrors(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("quota exhausted")}
	svc, err := newServiceWithModel(context.Background(), fake, config.CompletionConfig{MaxTokens: 1000})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), "hi")
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Contains(t, err.Error(), "quota exhausted")
}
