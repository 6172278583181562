package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/nroy/coachd/internal/auth"
	"github.com/nroy/coachd/internal/coach"
	"github.com/nroy/coachd/internal/llm"
	"github.com/nroy/coachd/internal/profile"
	"github.com/nroy/coachd/internal/storage"
)

// memStore is an in-memory profile.DocumentStore.
type memStore struct {
	doc profile.Document
}

func (m *memStore) Load(ctx context.Context) (profile.Document, error) {
	if m.doc == nil {
		return profile.Document{}, nil
	}
	return m.doc, nil
}

func (m *memStore) Save(ctx context.Context, doc profile.Document) error {
	m.doc = doc
	return nil
}

type step struct {
	reply string
	err   error
}

type scriptedClient struct {
	steps []step
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if len(c.steps) == 0 {
		return "", fmt.Errorf("unexpected model call")
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return s.reply, s.err
}

func (c *scriptedClient) Model() string { return "test-model" }

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	client *scriptedClient
	store  *storage.Store
	export string
}

func newTestEnv(t *testing.T, steps ...step) *testEnv {
	t.Helper()

	mgr := profile.NewManager(&memStore{}, profile.Profile{})
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := &scriptedClient{steps: steps}
	verifier := auth.NewVerifier(map[string]string{"alice": "pw"}, mgr, db)
	exportDir := t.TempDir()
	server := NewServer(verifier, mgr, coach.New(client, mgr), client, db, exportDir)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, client: client, store: db, export: exportDir}
}

// do issues a JSON request and decodes the JSON response body.
func (e *testEnv) do(method, path, token string, body any) (int, map[string]any) {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		e.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		e.t.Fatalf("%s %s: decoding response: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

func (e *testEnv) login(username, password string) string {
	e.t.Helper()
	code, body := e.do(http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if code != http.StatusOK {
		e.t.Fatalf("login = %d: %v", code, body)
	}
	return body["token"].(string)
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.do(http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if code != http.StatusUnauthorized {
		t.Errorf("wrong password: code = %d, want 401", code)
	}

	code, body := e.do(http.MethodPost, "/login", "", map[string]string{"username": "Alice", "password": "pw"})
	if code != http.StatusOK {
		t.Fatalf("code = %d: %v", code, body)
	}
	if body["username"] != "alice" {
		t.Errorf("username = %v, want normalized alice", body["username"])
	}
	if body["admin"] != true {
		t.Errorf("admin = %v, want true for static user", body["admin"])
	}
	if body["token"] == "" {
		t.Error("no token issued")
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.do(http.MethodGet, "/profiles", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("no token: code = %d, want 401", code)
	}
	code, _ = e.do(http.MethodGet, "/profiles", "bogus-token", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("bad token: code = %d, want 401", code)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	e := newTestEnv(t)
	token := e.login("alice", "pw")

	if code, _ := e.do(http.MethodPost, "/logout", token, nil); code != http.StatusOK {
		t.Fatalf("logout = %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/profiles", token, nil); code != http.StatusUnauthorized {
		t.Errorf("token survived logout: code = %d, want 401", code)
	}
}

func TestProfileLifecycle(t *testing.T) {
	e := newTestEnv(t)
	token := e.login("alice", "pw")

	code, body := e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})
	if code != http.StatusCreated {
		t.Fatalf("create = %d: %v", code, body)
	}

	code, _ = e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})
	if code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", code)
	}

	code, body = e.do(http.MethodGet, "/profiles", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	names := body["profiles"].([]any)
	if len(names) != 1 || names[0] != "Default" {
		t.Errorf("profiles = %v, want [Default]", names)
	}

	code, body = e.do(http.MethodPatch, "/profiles/Default", token, map[string]any{
		"name":   "Alice Smith",
		"skills": []string{"Go", "SQL"},
	})
	if code != http.StatusOK {
		t.Fatalf("patch = %d: %v", code, body)
	}
	p := body["profile"].(map[string]any)
	if p["name"] != "Alice Smith" {
		t.Errorf("name = %v", p["name"])
	}

	code, _ = e.do(http.MethodGet, "/profiles/Nope", token, nil)
	if code != http.StatusNotFound {
		t.Errorf("missing profile = %d, want 404", code)
	}
}

func uploadCV(t *testing.T, e *testEnv, token, profileName, filename string, data []byte) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/profiles/"+profileName+"/cv", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestUploadCV_TxtRejectedProfileUnchanged(t *testing.T) {
	e := newTestEnv(t)
	token := e.login("alice", "pw")
	e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})

	code, body := uploadCV(t, e, token, "Default", "resume.txt", []byte("plain text cv"))
	if code != http.StatusBadRequest {
		t.Fatalf("txt upload = %d, want 400: %v", code, body)
	}
	errObj := body["error"].(map[string]any)
	if errObj["type"] != "extraction_error" {
		t.Errorf("error type = %v, want extraction_error", errObj["type"])
	}

	_, body = e.do(http.MethodGet, "/profiles/Default", token, nil)
	p := body["profile"].(map[string]any)
	if _, ok := p["cvText"]; ok {
		t.Errorf("profile gained cvText from a rejected upload: %v", p)
	}
}

func TestGuidedSessionFlow(t *testing.T) {
	e := newTestEnv(t, step{reply: `["q1", "q2", "q3"]`})
	token := e.login("alice", "pw")
	e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})

	code, body := e.do(http.MethodPost, "/session/start", token, map[string]any{"profile": "Default"})
	if code != http.StatusOK {
		t.Fatalf("start = %d: %v", code, body)
	}
	if body["question"] != "q1" {
		t.Errorf("first question = %v", body["question"])
	}

	for i, answer := range []string{"a1", "a2", "a3"} {
		code, body = e.do(http.MethodPost, "/session/answer", token, map[string]string{"answer": answer})
		if code != http.StatusOK {
			t.Fatalf("answer %d = %d: %v", i+1, code, body)
		}
	}
	if body["done"] != true {
		t.Errorf("final answer: done = %v, want true", body["done"])
	}

	code, body = e.do(http.MethodGet, "/profiles/Default/history", token, nil)
	if code != http.StatusOK {
		t.Fatal(code)
	}
	history := body["history"].([]any)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	first := history[0].(map[string]any)
	if first["question"] != "q1" || first["answer"] != "a1" {
		t.Errorf("history[0] = %v", first)
	}
}

func TestSessionStart_ModelFailure(t *testing.T) {
	e := newTestEnv(t, step{reply: "not json"})
	token := e.login("alice", "pw")
	e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})

	code, _ := e.do(http.MethodPost, "/session/start", token, map[string]any{"profile": "Default"})
	if code != http.StatusBadGateway {
		t.Errorf("start with malformed question list = %d, want 502", code)
	}

	_, body := e.do(http.MethodGet, "/session", token, nil)
	if body["state"] != string(coach.StateIdle) {
		t.Errorf("state = %v, want idle after aborted start", body["state"])
	}
}

func TestHistoryEditAndDelete(t *testing.T) {
	e := newTestEnv(t, step{reply: `["q1", "q2"]`})
	token := e.login("alice", "pw")
	e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})
	e.do(http.MethodPost, "/session/start", token, map[string]any{"profile": "Default", "questions": 2})
	e.do(http.MethodPost, "/session/answer", token, map[string]string{"answer": "a1"})
	e.do(http.MethodPost, "/session/answer", token, map[string]string{"answer": "a2"})

	code, _ := e.do(http.MethodPut, "/profiles/Default/history/1", token, map[string]string{"answer": "revised"})
	if code != http.StatusOK {
		t.Fatalf("edit = %d", code)
	}
	code, _ = e.do(http.MethodDelete, "/profiles/Default/history/0", token, nil)
	if code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}

	_, body := e.do(http.MethodGet, "/profiles/Default/history", token, nil)
	history := body["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	entry := history[0].(map[string]any)
	if entry["question"] != "q2" || entry["answer"] != "revised" {
		t.Errorf("history[0] = %v", entry)
	}

	code, _ = e.do(http.MethodDelete, "/profiles/Default/history/9", token, nil)
	if code != http.StatusBadRequest {
		t.Errorf("out-of-range delete = %d, want 400", code)
	}
}

func TestAsk_RecordsInteractionAndExports(t *testing.T) {
	e := newTestEnv(t, step{reply: "I thrive under deadlines."})
	token := e.login("alice", "pw")
	e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})

	code, body := e.do(http.MethodPost, "/ask", token, map[string]any{
		"profile":  "Default",
		"question": "How do you handle pressure?",
		"export":   true,
	})
	if code != http.StatusOK {
		t.Fatalf("ask = %d: %v", code, body)
	}
	if body["answer"] != "I thrive under deadlines." {
		t.Errorf("answer = %v", body["answer"])
	}

	exportFile, _ := body["exportFile"].(string)
	if exportFile == "" {
		t.Fatal("no export file reported")
	}
	if _, err := os.Stat(e.export + "/" + exportFile); err != nil {
		t.Errorf("export file missing: %v", err)
	}

	id, _ := body["interactionId"].(string)
	if id == "" {
		t.Fatal("no interaction recorded")
	}
	code, body = e.do(http.MethodGet, "/interactions/"+id, token, nil)
	if code != http.StatusOK {
		t.Fatalf("get interaction = %d", code)
	}
	if body["question"] != "How do you handle pressure?" {
		t.Errorf("interaction question = %v", body["question"])
	}
	if body["exportFile"] != exportFile {
		t.Errorf("interaction exportFile = %v, want %v", body["exportFile"], exportFile)
	}

	code, body = e.do(http.MethodGet, "/interactions", token, nil)
	if code != http.StatusOK {
		t.Fatal(code)
	}
	if list := body["interactions"].([]any); len(list) != 1 {
		t.Errorf("interactions = %v, want one entry", list)
	}
}

func TestAsk_ModelFailureWritesNothing(t *testing.T) {
	e := newTestEnv(t, step{err: fmt.Errorf("model down")})
	token := e.login("alice", "pw")
	e.do(http.MethodPost, "/profiles", token, map[string]string{"name": "Default"})

	code, _ := e.do(http.MethodPost, "/ask", token, map[string]any{
		"profile":  "Default",
		"question": "q",
		"export":   true,
	})
	if code != http.StatusBadGateway {
		t.Fatalf("ask = %d, want 502", code)
	}

	entries, err := os.ReadDir(e.export)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("export dir has %d files, want none on failure", len(entries))
	}

	_, body := e.do(http.MethodGet, "/interactions", token, nil)
	if list := body["interactions"].([]any); len(list) != 0 {
		t.Errorf("interactions = %v, want none on failure", list)
	}
}

func TestSignupApprovalFlow(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(http.MethodPost, "/signup", "", map[string]string{"username": "Carol", "password": "pw2"})
	if code != http.StatusAccepted {
		t.Fatalf("signup = %d: %v", code, body)
	}

	// Not yet approved: login fails.
	code, _ = e.do(http.MethodPost, "/login", "", map[string]string{"username": "carol", "password": "pw2"})
	if code != http.StatusUnauthorized {
		t.Errorf("pending signup login = %d, want 401", code)
	}

	admin := e.login("alice", "pw")
	code, body = e.do(http.MethodGet, "/admin/signups", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("list signups = %d", code)
	}
	if list := body["signups"].([]any); len(list) != 1 {
		t.Fatalf("signups = %v, want one pending", list)
	}

	code, _ = e.do(http.MethodPost, "/admin/signups/carol/approve", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("approve = %d", code)
	}

	carol := e.login("carol", "pw2")

	// Approved users are not admins.
	code, _ = e.do(http.MethodGet, "/admin/signups", carol, nil)
	if code != http.StatusForbidden {
		t.Errorf("non-admin signup list = %d, want 403", code)
	}
}
