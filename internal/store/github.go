package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nroy/coachd/internal/profile"
)

// GitHub stores the profile document as a committed file in a repository via
// the Contents API. Reads GET the file and remember its blob SHA; writes PUT
// the file with that SHA as an optimistic-concurrency token. A SHA mismatch
// (someone else committed in between) fails the save, and the Ranked store
// falls back to the next backend.
type GitHub struct {
	repo       string // "owner/name"
	path       string
	token      string
	baseURL    string
	httpClient *http.Client

	mu  sync.Mutex
	sha string // blob SHA from the last successful load/save
}

func NewGitHub(repo, path, token string) *GitHub {
	return &GitHub{
		repo:    repo,
		path:    path,
		token:   token,
		baseURL: githubAPIBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewGitHubWithBaseURL creates a GitHub backend against a custom API base URL (for testing).
func NewGitHubWithBaseURL(repo, path, token, baseURL string) *GitHub {
	g := NewGitHub(repo, path, token)
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL, g.repo, g.path)
}

type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (g *GitHub) Load(ctx context.Context) (profile.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	g.setHeaders(req, false)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// File not committed yet: empty store, and the next save creates it.
		g.sha = ""
		return profile.Document{}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contents API returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed contentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing contents response: %w", err)
	}

	// The API returns base64 with embedded newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(parsed.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding file content: %w", err)
	}

	var doc profile.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing profile document: %w", err)
	}
	if doc == nil {
		doc = profile.Document{}
	}

	g.sha = parsed.SHA
	return doc, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (g *GitHub) Save(ctx context.Context, doc profile.Document) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}

	payload := putRequest{
		Message: fmt.Sprintf("update %s (%s)", g.path, time.Now().UTC().Format(time.RFC3339)),
		Content: base64.StdEncoding.EncodeToString(raw),
		SHA:     g.sha,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(), bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	g.setHeaders(req, true)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	// 409/422 indicate the SHA precondition failed: the file changed under us.
	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("concurrent update detected (HTTP %d): %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("contents API returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed putResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("parsing put response: %w", err)
	}
	g.sha = parsed.Content.SHA
	return nil
}

func (g *GitHub) setHeaders(req *http.Request, withBody bool) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if withBody {
		req.Header.Set("Content-Type", "application/json")
	}
}
