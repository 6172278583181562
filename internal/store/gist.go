package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nroy/coachd/internal/profile"
)

const githubAPIBaseURL = "https://api.github.com"

// Gist stores the profile document as one file inside a GitHub Gist. Reads
// use GET /gists/{id}; writes PATCH the gist, replacing the entire file
// content.
type Gist struct {
	id         string
	token      string
	filename   string
	baseURL    string
	httpClient *http.Client
}

func NewGist(id, token, filename string) *Gist {
	return &Gist{
		id:       id,
		token:    token,
		filename: filename,
		baseURL:  githubAPIBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewGistWithBaseURL creates a Gist backend against a custom API base URL (for testing).
func NewGistWithBaseURL(id, token, filename, baseURL string) *Gist {
	g := NewGist(id, token, filename)
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

func (g *Gist) Name() string { return "gist" }

type gistFile struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

type gistPayload struct {
	Files map[string]gistFile `json:"files"`
}

func (g *Gist) Load(ctx context.Context) (profile.Document, error) {
	body, err := g.do(ctx, http.MethodGet, "/gists/"+g.id, nil)
	if err != nil {
		return nil, err
	}

	var payload gistPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing gist response: %w", err)
	}

	f, ok := payload.Files[g.filename]
	if !ok || f.Content == "" {
		return profile.Document{}, nil
	}
	if f.Truncated {
		return nil, fmt.Errorf("gist file %s is truncated; document too large for the gist API", g.filename)
	}

	var doc profile.Document
	if err := json.Unmarshal([]byte(f.Content), &doc); err != nil {
		return nil, fmt.Errorf("parsing profile document from gist: %w", err)
	}
	if doc == nil {
		doc = profile.Document{}
	}
	return doc, nil
}

func (g *Gist) Save(ctx context.Context, doc profile.Document) error {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}

	payload := gistPayload{
		Files: map[string]gistFile{
			g.filename: {Content: string(content)},
		},
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling gist request: %w", err)
	}

	_, err = g.do(ctx, http.MethodPatch, "/gists/"+g.id, reqBody)
	return err
}

func (g *Gist) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gist API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
