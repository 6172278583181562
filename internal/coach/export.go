package coach

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Export writes one simulator exchange to a timestamp-named Markdown file
// under dir and returns the filename. Nothing is written on failure.
func Export(dir, username, profileName, question, answer string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("export directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	name := fmt.Sprintf("interview_%s.md", now.UTC().Format("20060102_150405"))
	content := fmt.Sprintf(`# Interview Practice

- **User:** %s
- **Profile:** %s
- **Date:** %s

## Question

%s

## Answer

%s
`, username, profileName, now.UTC().Format(time.RFC3339), question, answer)

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing export file: %w", err)
	}
	return name, nil
}
