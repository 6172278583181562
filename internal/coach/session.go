// Package coach holds the interview domain logic: the guided get-to-know-me
// session, the interview simulator, and the export artifact writer.
package coach

import (
	"context"
	"fmt"
	"sync"

	"github.com/nroy/coachd/internal/llm"
	"github.com/nroy/coachd/internal/profile"
)

// ChatClient is the slice of the model client the coach needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
	Model() string
}

// Coach binds the model client to the profile manager.
type Coach struct {
	client   ChatClient
	profiles *profile.Manager
}

func New(client ChatClient, profiles *profile.Manager) *Coach {
	return &Coach{client: client, profiles: profiles}
}

// State of a guided session.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_answer"
	StateComplete State = "complete"
)

// DefaultQuestionCount matches the classic three-question exercise.
const DefaultQuestionCount = 3

// SessionOptions controls how questions are fetched.
type SessionOptions struct {
	// Questions is the total number of questions to ask (default 3).
	Questions int
	// Single fetches one question per model call instead of a batch,
	// embedding already-asked questions so the model avoids repeats.
	Single bool
}

// Session is one in-flight guided Q&A exercise. Answers accumulate in a
// session-local buffer and reach the profile's history only on completion
// or explicit exit; a partial pair is never persisted.
type Session struct {
	coach       *Coach
	username    string
	profileName string
	single      bool
	total       int

	mu      sync.Mutex
	state   State
	current string
	queue   []string
	asked   []string
	buffer  []profile.QAEntry
}

// StartSession fetches the first question (or the whole batch) and returns a
// session in the awaiting state. A model failure or malformed question list
// leaves nothing behind.
func (c *Coach) StartSession(ctx context.Context, username, profileName string, opts SessionOptions) (*Session, error) {
	if opts.Questions <= 0 {
		opts.Questions = DefaultQuestionCount
	}

	bundle, err := c.profiles.GetBundle(ctx, username, profileName)
	if err != nil {
		return nil, err
	}

	s := &Session{
		coach:       c,
		username:    profile.Normalize(username),
		profileName: profileName,
		single:      opts.Single,
		total:       opts.Questions,
		state:       StateIdle,
	}

	fetch := opts.Questions
	if opts.Single {
		fetch = 1
	}
	questions, err := s.fetchQuestions(ctx, bundle, fetch, nil)
	if err != nil {
		return nil, err
	}

	s.current = questions[0]
	s.queue = questions[1:]
	s.asked = []string{s.current}
	s.state = StateAwaiting
	return s, nil
}

func (s *Session) fetchQuestions(ctx context.Context, b profile.Bundle, count int, asked []string) ([]string, error) {
	reply, err := s.coachClient().Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: questionPrompt(b, count, asked)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching questions: %w", err)
	}
	return parseQuestionList(reply, count)
}

func (s *Session) coachClient() ChatClient { return s.coach.client }

// State reports the session's current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Question returns the question currently awaiting an answer, or "" once the
// session is complete.
func (s *Session) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaiting {
		return ""
	}
	return s.current
}

// Answered reports how many pairs the session has buffered so far.
func (s *Session) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// SubmitResult describes the session after one answer.
type SubmitResult struct {
	// Next is the next question, empty when Done.
	Next string
	// Done is true once the target question count is reached; the buffer
	// has been flushed into the profile history.
	Done bool
	// Added is the history length after flushing (only set when Done).
	Added int
	// Warning carries soft-cap or degraded-storage notices.
	Warning string
}

// Submit records an answer to the current question and advances the session.
// In single mode a failure to fetch the next question rolls the answer back
// out of the buffer so the same submit can be retried.
func (s *Session) Submit(ctx context.Context, answer string) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaiting {
		return SubmitResult{}, fmt.Errorf("no question awaiting an answer (state %s)", s.state)
	}
	if answer == "" {
		return SubmitResult{}, fmt.Errorf("answer must not be empty")
	}

	s.buffer = append(s.buffer, profile.QAEntry{Question: s.current, Answer: answer})

	if len(s.buffer) >= s.total {
		return s.finishLocked(ctx)
	}

	if s.single {
		bundle, err := s.coach.profiles.GetBundle(ctx, s.username, s.profileName)
		if err != nil {
			s.buffer = s.buffer[:len(s.buffer)-1]
			return SubmitResult{}, err
		}
		questions, err := s.fetchQuestions(ctx, bundle, 1, s.asked)
		if err != nil {
			s.buffer = s.buffer[:len(s.buffer)-1]
			return SubmitResult{}, err
		}
		s.queue = questions
	}

	if len(s.queue) == 0 {
		return s.finishLocked(ctx)
	}
	s.current = s.queue[0]
	s.queue = s.queue[1:]
	s.asked = append(s.asked, s.current)
	return SubmitResult{Next: s.current}, nil
}

// Exit flushes whatever complete pairs are buffered and ends the session.
// Exiting with an empty buffer is a no-op completion.
func (s *Session) Exit(ctx context.Context) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateComplete {
		return SubmitResult{Done: true}, nil
	}
	if len(s.buffer) == 0 {
		s.state = StateComplete
		s.current = ""
		return SubmitResult{Done: true}, nil
	}
	return s.finishLocked(ctx)
}

// finishLocked persists the buffer and marks the session complete. A persist
// error keeps the session awaiting so the flush can be retried.
func (s *Session) finishLocked(ctx context.Context) (SubmitResult, error) {
	total, warning, err := s.coach.profiles.AppendHistory(ctx, s.username, s.profileName, s.buffer)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("saving session answers: %w", err)
	}
	s.buffer = nil
	s.current = ""
	s.queue = nil
	s.state = StateComplete
	return SubmitResult{Done: true, Added: total, Warning: warning}, nil
}
