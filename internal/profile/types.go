package profile

import "errors"

var (
	// ErrNotFound is returned when a user or profile does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a profile that already exists.
	ErrExists = errors.New("already exists")
	// ErrBadIndex is returned for out-of-range history indexes.
	ErrBadIndex = errors.New("history index out of range")
)

// SoftCap is the advisory limit on advanced Q&A entries per profile.
// Exceeding it produces a warning, never a rejection.
const SoftCap = 50

// Profile holds the structured CV fields for one profile.
type Profile struct {
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Location       string   `json:"location"`
	Experience     []string `json:"experience"`
	Skills         []string `json:"skills"`
	SoftSkills     []string `json:"softSkills"`
	Learning       []string `json:"learning"`
	Certifications []string `json:"certifications"`
	Goals          string   `json:"goals"`
	CVText         string   `json:"cvText,omitempty"`
}

// QAEntry is one recorded question/answer pair. Only complete pairs are
// ever persisted.
type QAEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Settings is the optional per-user record holding a dynamically stored
// password and role flags. When present it takes precedence over the static
// credential table.
type Settings struct {
	Password string `json:"password,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
}

// Bundle is the unit of persistence: profile fields plus the accumulated
// Q&A history, and optionally a settings record.
type Bundle struct {
	Profile  Profile   `json:"profile"`
	Advanced []QAEntry `json:"advanced"`
	Settings *Settings `json:"settings,omitempty"`
}

// Document is the whole persisted store: username → profile name → bundle.
type Document map[string]map[string]*Bundle

// NewBundle returns an empty bundle seeded with the given default identity.
func NewBundle(defaults Profile) *Bundle {
	p := defaults
	p.Experience = []string{}
	p.Skills = []string{}
	p.SoftSkills = []string{}
	p.Learning = []string{}
	p.Certifications = []string{}
	return &Bundle{
		Profile:  p,
		Advanced: []QAEntry{},
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyProfile(p Profile) Profile {
	cp := p
	cp.Experience = copyStrings(p.Experience)
	cp.Skills = copyStrings(p.Skills)
	cp.SoftSkills = copyStrings(p.SoftSkills)
	cp.Learning = copyStrings(p.Learning)
	cp.Certifications = copyStrings(p.Certifications)
	return cp
}

// CopyBundle returns a deep copy so callers can never mutate cached state.
func CopyBundle(b *Bundle) Bundle {
	if b == nil {
		return Bundle{}
	}
	cp := Bundle{Profile: copyProfile(b.Profile)}
	if b.Advanced != nil {
		cp.Advanced = make([]QAEntry, len(b.Advanced))
		copy(cp.Advanced, b.Advanced)
	}
	if b.Settings != nil {
		s := *b.Settings
		cp.Settings = &s
	}
	return cp
}
