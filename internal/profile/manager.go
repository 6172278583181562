package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DocumentStore defines the whole-document storage operations the Manager
// needs. Implemented by store.Ranked.
type DocumentStore interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}

// DegradedSaveError reports that the primary backend rejected a save but the
// document was preserved in a local backup. Callers treat it as a success
// with a user-visible warning; in-memory edits are never lost.
type DegradedSaveError struct {
	Cause      error
	BackupPath string
}

func (e *DegradedSaveError) Error() string {
	return fmt.Sprintf("primary store unavailable (%v); document written to backup %s", e.Cause, e.BackupPath)
}

func (e *DegradedSaveError) Unwrap() error { return e.Cause }

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached, structured access to the profile document held in
// the backing store. All mutations follow the store's contract: load the
// whole document, mutate in memory, save the whole document.
type Manager struct {
	store    DocumentStore
	defaults Profile
	clock    Clock
	ttl      time.Duration

	mu       sync.RWMutex
	cached   Document
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL. defaults is the
// deployment-configured identity seeded into newly created profiles.
func NewManager(store DocumentStore, defaults Profile) *Manager {
	return &Manager{
		store:    store,
		defaults: defaults,
		clock:    realClock{},
		ttl:      60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store DocumentStore, defaults Profile, clock Clock, ttl time.Duration) *Manager {
	m := NewManager(store, defaults)
	m.clock = clock
	m.ttl = ttl
	return m
}

// Normalize trims and lowercases a username so every lookup path agrees on
// the identifying key.
func Normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// docLocked returns the current document, reloading from the store when the
// cache has expired. Callers must hold mu.
func (m *Manager) docLocked(ctx context.Context) (Document, error) {
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return m.cached, nil
	}
	doc, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading profile document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	m.cached = doc
	m.cachedAt = m.clock.Now()
	return doc, nil
}

// persistLocked saves the document. A degraded save (primary backend down,
// backup written) is reported as a warning string, not an error.
func (m *Manager) persistLocked(ctx context.Context, doc Document) (string, error) {
	err := m.store.Save(ctx, doc)
	if err == nil {
		return "", nil
	}
	var degraded *DegradedSaveError
	if errors.As(err, &degraded) {
		return degraded.Error(), nil
	}
	return "", fmt.Errorf("saving profile document: %w", err)
}

func (m *Manager) bundleLocked(doc Document, username, name string) (*Bundle, error) {
	profiles, ok := doc[Normalize(username)]
	if !ok {
		return nil, ErrNotFound
	}
	b, ok := profiles[name]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// ListProfiles returns the user's profile names in sorted order. A user with
// no profiles yet gets an empty list, not an error.
func (m *Manager) ListProfiles(ctx context.Context, username string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc[Normalize(username)]))
	for name := range doc[Normalize(username)] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateProfile creates an empty bundle seeded with the default identity.
func (m *Manager) CreateProfile(ctx context.Context, username, name string) (Bundle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return Bundle{}, "", err
	}

	user := Normalize(username)
	if doc[user] == nil {
		doc[user] = map[string]*Bundle{}
	}
	if _, exists := doc[user][name]; exists {
		return Bundle{}, "", fmt.Errorf("profile %q: %w", name, ErrExists)
	}

	b := NewBundle(m.defaults)
	doc[user][name] = b

	warn, err := m.persistLocked(ctx, doc)
	if err != nil {
		delete(doc[user], name)
		return Bundle{}, "", err
	}
	return CopyBundle(b), warn, nil
}

// GetBundle returns a deep copy of the named bundle.
func (m *Manager) GetBundle(ctx context.Context, username, name string) (Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return Bundle{}, err
	}
	b, err := m.bundleLocked(doc, username, name)
	if err != nil {
		return Bundle{}, err
	}
	return CopyBundle(b), nil
}

// FieldPatch carries profile field updates. Nil fields are left untouched;
// present fields overwrite wholesale.
type FieldPatch struct {
	Name           *string   `json:"name"`
	Title          *string   `json:"title"`
	Location       *string   `json:"location"`
	Experience     *[]string `json:"experience"`
	Skills         *[]string `json:"skills"`
	SoftSkills     *[]string `json:"softSkills"`
	Learning       *[]string `json:"learning"`
	Certifications *[]string `json:"certifications"`
	Goals          *string   `json:"goals"`
}

// UpdateFields applies a patch to the named profile and persists the document.
func (m *Manager) UpdateFields(ctx context.Context, username, name string, patch FieldPatch) (Bundle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return Bundle{}, "", err
	}
	b, err := m.bundleLocked(doc, username, name)
	if err != nil {
		return Bundle{}, "", err
	}

	p := &b.Profile
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	if patch.Experience != nil {
		p.Experience = copyStrings(*patch.Experience)
	}
	if patch.Skills != nil {
		p.Skills = copyStrings(*patch.Skills)
	}
	if patch.SoftSkills != nil {
		p.SoftSkills = copyStrings(*patch.SoftSkills)
	}
	if patch.Learning != nil {
		p.Learning = copyStrings(*patch.Learning)
	}
	if patch.Certifications != nil {
		p.Certifications = copyStrings(*patch.Certifications)
	}
	if patch.Goals != nil {
		p.Goals = *patch.Goals
	}

	warn, err := m.persistLocked(ctx, doc)
	if err != nil {
		return Bundle{}, "", err
	}
	return CopyBundle(b), warn, nil
}

// ApplyCV stores the raw CV text and merges the extracted fields into the
// profile. The merge is additive; existing values survive omitted fields.
func (m *Manager) ApplyCV(ctx context.Context, username, name, cvText string, ex Extracted) (Bundle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return Bundle{}, "", err
	}
	b, err := m.bundleLocked(doc, username, name)
	if err != nil {
		return Bundle{}, "", err
	}

	b.Profile.CVText = cvText
	Merge(&b.Profile, ex)

	warn, err := m.persistLocked(ctx, doc)
	if err != nil {
		return Bundle{}, "", err
	}
	return CopyBundle(b), warn, nil
}

// AppendHistory appends complete Q&A entries to the profile's advanced
// history and persists. Entries past the soft cap are accepted with a warning.
func (m *Manager) AppendHistory(ctx context.Context, username, name string, entries []QAEntry) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return 0, "", err
	}
	b, err := m.bundleLocked(doc, username, name)
	if err != nil {
		return 0, "", err
	}

	for _, e := range entries {
		if e.Question == "" || e.Answer == "" {
			return len(b.Advanced), "", fmt.Errorf("refusing to record incomplete Q&A entry")
		}
	}
	b.Advanced = append(b.Advanced, entries...)

	var warnings []string
	if len(b.Advanced) > SoftCap {
		warnings = append(warnings, fmt.Sprintf("history holds %d entries (soft cap %d); consider pruning", len(b.Advanced), SoftCap))
	}

	warn, err := m.persistLocked(ctx, doc)
	if err != nil {
		b.Advanced = b.Advanced[:len(b.Advanced)-len(entries)]
		return len(b.Advanced), "", err
	}
	if warn != "" {
		warnings = append(warnings, warn)
	}
	return len(b.Advanced), strings.Join(warnings, "; "), nil
}

// History returns a copy of the profile's advanced Q&A history.
func (m *Manager) History(ctx context.Context, username, name string) ([]QAEntry, error) {
	b, err := m.GetBundle(ctx, username, name)
	if err != nil {
		return nil, err
	}
	if b.Advanced == nil {
		return []QAEntry{}, nil
	}
	return b.Advanced, nil
}

// EditHistory replaces the answer at index.
func (m *Manager) EditHistory(ctx context.Context, username, name string, index int, answer string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return "", err
	}
	b, err := m.bundleLocked(doc, username, name)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(b.Advanced) {
		return "", ErrBadIndex
	}

	prev := b.Advanced[index].Answer
	b.Advanced[index].Answer = answer

	warn, err := m.persistLocked(ctx, doc)
	if err != nil {
		b.Advanced[index].Answer = prev
		return "", err
	}
	return warn, nil
}

// DeleteHistory removes the entry at index, preserving order of the rest.
func (m *Manager) DeleteHistory(ctx context.Context, username, name string, index int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return "", err
	}
	b, err := m.bundleLocked(doc, username, name)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(b.Advanced) {
		return "", ErrBadIndex
	}

	removed := b.Advanced[index]
	b.Advanced = append(b.Advanced[:index], b.Advanced[index+1:]...)

	warn, err := m.persistLocked(ctx, doc)
	if err != nil {
		b.Advanced = append(b.Advanced[:index], append([]QAEntry{removed}, b.Advanced[index:]...)...)
		return "", err
	}
	return warn, nil
}

// StoredSettings returns the user's dynamic settings record, if any profile
// carries one. Profiles are scanned in name order for determinism.
func (m *Manager) StoredSettings(ctx context.Context, username string) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.docLocked(ctx)
	if err != nil {
		return Settings{}, false, err
	}

	profiles := doc[Normalize(username)]
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s := profiles[name].Settings; s != nil {
			return *s, true, nil
		}
	}
	return Settings{}, false, nil
}

// Invalidate drops the cached document so the next access reloads from the
// backing store.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}
