package coach

import (
	"context"
	"fmt"

	"github.com/nroy/coachd/internal/llm"
)

// Answer runs one simulator turn: the bundle (profile plus recorded
// background) goes into the system message, the question is asked as the
// user, and the model's reply comes back verbatim. No retry beyond what the
// client itself does; a failure aborts the turn with no side effects.
func (c *Coach) Answer(ctx context.Context, username, profileName, question string) (string, error) {
	if question == "" {
		return "", fmt.Errorf("question must not be empty")
	}

	bundle, err := c.profiles.GetBundle(ctx, username, profileName)
	if err != nil {
		return "", err
	}

	reply, err := c.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt(bundle)},
		{Role: llm.RoleUser, Content: question},
	})
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	return reply, nil
}

// ModelName reports which model the coach answers with, for interaction
// records.
func (c *Coach) ModelName() string { return c.client.Model() }
