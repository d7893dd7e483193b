package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/config"
)

// Completer turns a prompt into reply text with one blocking backend call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var errEmptyChoices = errors.New("response contains no choices")

// BackendError is the single failure class of a completion call. Its text is
// shown to the end user as the bot reply.
type BackendError struct {
	StatusCode int
	Body       string
	Reason     string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Error: %d - %s", e.StatusCode, e.Body)
	}
	if e.Err == nil {
		return "Error: " + e.Reason
	}
	return fmt.Sprintf("Error: %s: %v", e.Reason, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Reply calls the completer and renders any failure as reply text, so the
// caller always gets something to append to the transcript.
func Reply(ctx context.Context, c Completer, prompt string) string {
	reply, err := c.Complete(ctx, prompt)
	if err != nil {
		logrus.WithError(err).Warn("[ai] completion failed")
		return err.Error()
	}
	return reply
}

// NewCompleter builds the completer selected by COMPLETION_DRIVER.
func NewCompleter(ctx context.Context, cfg config.CompletionConfig) (Completer, error) {
	switch cfg.Driver {
	case config.DriverHTTP:
		return NewHTTPClient(cfg, nil), nil
	case config.DriverEino:
		return NewService(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported completion driver: %s", cfg.Driver)
	}
}
