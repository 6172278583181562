// Package auth verifies flat username/password credentials against the
// configured user table, per-profile settings records, and approved
// self-service signups.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/nroy/coachd/internal/profile"
	"github.com/nroy/coachd/internal/storage"
)

// ErrInvalidCredentials is returned for any unknown user or wrong password.
// Callers must not distinguish the two cases.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Identity is the result of a successful credential check.
type Identity struct {
	Username string
	Admin    bool
}

// SettingsSource yields the dynamic settings record stored in a user's
// profile document, if any.
type SettingsSource interface {
	StoredSettings(ctx context.Context, username string) (profile.Settings, bool, error)
}

// SignupSource yields self-service signup records.
type SignupSource interface {
	GetSignup(username string) (storage.Signup, error)
}

// Verifier checks credentials in order: dynamic profile settings first,
// then the static table, then approved signups. Statically configured
// users are operator-provisioned and act as admins; signup-created users
// are not.
type Verifier struct {
	static   map[string]string
	settings SettingsSource
	signups  SignupSource
}

// NewVerifier builds a verifier over a static username/password table.
// settings and signups may be nil when the corresponding source is not
// available.
func NewVerifier(static map[string]string, settings SettingsSource, signups SignupSource) *Verifier {
	users := make(map[string]string, len(static))
	for name, pass := range static {
		users[profile.Normalize(name)] = pass
	}
	return &Verifier{static: users, settings: settings, signups: signups}
}

// Verify checks a username/password pair and returns the caller's identity.
// Usernames are case-insensitive.
func (v *Verifier) Verify(ctx context.Context, username, password string) (Identity, error) {
	username = profile.Normalize(username)
	if username == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if v.settings != nil {
		s, ok, err := v.settings.StoredSettings(ctx, username)
		if err != nil {
			return Identity{}, err
		}
		if ok && s.Password != "" {
			if !equal(password, s.Password) {
				return Identity{}, ErrInvalidCredentials
			}
			return Identity{Username: username, Admin: s.Admin}, nil
		}
	}

	if pass, ok := v.static[username]; ok {
		if !equal(password, pass) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{Username: username, Admin: true}, nil
	}

	if v.signups != nil {
		sg, err := v.signups.GetSignup(username)
		if err == nil && sg.Status == storage.SignupApproved {
			if !equal(password, sg.Password) {
				return Identity{}, ErrInvalidCredentials
			}
			return Identity{Username: username}, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Identity{}, err
		}
	}

	return Identity{}, ErrInvalidCredentials
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
