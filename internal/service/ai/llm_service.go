package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/config"
)

// Service completes prompts through an eino chain backed by a provider SDK.
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.CompletionConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.CompletionConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, chatModel, cfg)
}

func newServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.CompletionConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// Complete runs the chain once with the configured output cap.
func (s *Service) Complete(ctx context.Context, userPrompt string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	response, err := s.chain.Invoke(ctx,
		map[string]any{"prompt": userPrompt},
		compose.WithChatModelOption(model.WithMaxTokens(s.cfg.MaxTokens)),
	)
	if err != nil {
		return "", &BackendError{Reason: "completion failed", Err: err}
	}
	if response == nil {
		return "", &BackendError{Reason: "completion failed", Err: errEmptyChoices}
	}

	logrus.WithFields(logrus.Fields{
		"provider": s.cfg.Provider,
		"model":    s.cfg.Model,
		"length":   len(response.Content),
	}).Debug("[ai] generated response")
	return response.Content, nil
}
