package coach

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nroy/coachd/internal/llm"
	"github.com/nroy/coachd/internal/profile"
)

// questionPrompt asks the model for count getting-to-know-you questions as a
// bare JSON array of strings. Already-asked questions are embedded so the
// model avoids repeats; a heuristic, not a guarantee.
func questionPrompt(b profile.Bundle, count int, asked []string) string {
	var sb strings.Builder
	sb.WriteString("You are an interview coach running a short get-to-know-me exercise.\n")
	fmt.Fprintf(&sb, "Generate exactly %d interview questions that would help fill gaps in the candidate's profile below.\n", count)
	sb.WriteString("Respond with a single JSON array of strings and nothing else.\n\n")
	sb.WriteString("Candidate profile:\n")
	sb.WriteString(bundleJSON(b))
	if len(asked) > 0 {
		sb.WriteString("\n\nDo not repeat any of these already-asked questions:\n")
		for _, q := range asked {
			sb.WriteString("- ")
			sb.WriteString(q)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// answerSystemPrompt puts the whole bundle, profile and recorded background
// answers alike, in front of the model so simulator answers are grounded in
// everything known about the candidate.
func answerSystemPrompt(b profile.Bundle) string {
	var sb strings.Builder
	sb.WriteString("You are the candidate described below, answering an interview question in the first person.\n")
	sb.WriteString("Answer naturally and concretely, drawing only on the profile and background answers provided. Do not invent employers, dates, or credentials.\n\n")
	sb.WriteString("Candidate profile and background:\n")
	sb.WriteString(bundleJSON(b))
	return sb.String()
}

func bundleJSON(b profile.Bundle) string {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parseQuestionList decodes the model's question batch. Fences are tolerated;
// anything that is not a JSON array of non-empty strings is an error.
func parseQuestionList(reply string, want int) ([]string, error) {
	var questions []string
	if err := json.Unmarshal([]byte(llm.CleanJSON(reply)), &questions); err != nil {
		return nil, fmt.Errorf("question list is not valid JSON: %w", err)
	}
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no questions")
	}
	if want > 0 && len(out) > want {
		out = out[:want]
	}
	return out, nil
}
