package cv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nroy/coachd/internal/llm"
	"github.com/nroy/coachd/internal/profile"
)

const extractionSystemPrompt = `You extract structured career data from CV text.
Respond with a single JSON object and nothing else. Use exactly these keys:
  "name": full name (string)
  "title": current or most recent job title (string)
  "location": city/country (string)
  "experience": past roles, one entry per role (array of strings)
  "skills": technical skills (array of strings)
  "softSkills": soft skills (array of strings)
  "learning": topics currently being learned (array of strings)
  "certifications": certifications held (array of strings)
  "goals": career goals if stated (string)
Omit keys you cannot determine. Do not invent information.`

// ChatClient is the slice of the model client that autofill needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Autofill asks the model to pull profile fields out of CV text. A response
// that is not valid JSON yields a zero Extracted and an error; callers keep
// the raw CV text either way.
func Autofill(ctx context.Context, client ChatClient, cvText string) (profile.Extracted, error) {
	reply, err := client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: extractionSystemPrompt},
		{Role: llm.RoleUser, Content: cvText},
	})
	if err != nil {
		return profile.Extracted{}, fmt.Errorf("extraction request: %w", err)
	}

	var ex profile.Extracted
	if err := json.Unmarshal([]byte(llm.CleanJSON(reply)), &ex); err != nil {
		return profile.Extracted{}, fmt.Errorf("extraction response is not valid JSON: %w", err)
	}
	return ex, nil
}
