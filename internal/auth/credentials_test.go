package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/nroy/coachd/internal/profile"
	"github.com/nroy/coachd/internal/storage"
)

type fakeSettings struct {
	records map[string]profile.Settings
}

func (f fakeSettings) StoredSettings(ctx context.Context, username string) (profile.Settings, bool, error) {
	s, ok := f.records[username]
	return s, ok, nil
}

type fakeSignups struct {
	records map[string]storage.Signup
}

func (f fakeSignups) GetSignup(username string) (storage.Signup, error) {
	sg, ok := f.records[username]
	if !ok {
		return storage.Signup{}, storage.ErrNotFound
	}
	return sg, nil
}

func TestVerify_StaticTable(t *testing.T) {
	v := NewVerifier(map[string]string{"Alice": "s3cret"}, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{"exact match", "alice", "s3cret", false},
		{"case-insensitive username", "ALICE", "s3cret", false},
		{"whitespace trimmed", "  alice  ", "s3cret", false},
		{"wrong password", "alice", "nope", true},
		{"unknown user", "bob", "s3cret", true},
		{"empty password", "alice", "", true},
		{"empty username", "", "s3cret", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(ctx, tt.username, tt.password)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("err = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if id.Username != "alice" {
				t.Errorf("Username = %q, want alice", id.Username)
			}
			if !id.Admin {
				t.Error("static users should be admins")
			}
		})
	}
}

func TestVerify_DynamicSettingsShadowStatic(t *testing.T) {
	settings := fakeSettings{records: map[string]profile.Settings{
		"alice": {Password: "dynamic-pw", Admin: false},
	}}
	v := NewVerifier(map[string]string{"alice": "static-pw"}, settings, nil)
	ctx := context.Background()

	// The stored record wins; the static password no longer works.
	if _, err := v.Verify(ctx, "alice", "static-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("static password accepted despite dynamic record: err = %v", err)
	}

	id, err := v.Verify(ctx, "alice", "dynamic-pw")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.Admin {
		t.Error("Admin = true, want flag from the settings record")
	}
}

func TestVerify_ApprovedSignup(t *testing.T) {
	signups := fakeSignups{records: map[string]storage.Signup{
		"carol": {Username: "carol", Password: "pw1", Status: storage.SignupApproved},
		"dave":  {Username: "dave", Password: "pw2", Status: storage.SignupPending},
	}}
	v := NewVerifier(nil, nil, signups)
	ctx := context.Background()

	id, err := v.Verify(ctx, "carol", "pw1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.Admin {
		t.Error("signup-created users must not be admins")
	}

	// Pending signups cannot log in yet.
	if _, err := v.Verify(ctx, "dave", "pw2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("pending signup accepted: err = %v", err)
	}
}

func TestVerify_UnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	v := NewVerifier(map[string]string{"alice": "s3cret"}, nil, nil)
	ctx := context.Background()

	_, errWrong := v.Verify(ctx, "alice", "bad")
	_, errUnknown := v.Verify(ctx, "mallory", "bad")
	if errWrong.Error() != errUnknown.Error() {
		t.Errorf("errors differ: %q vs %q", errWrong, errUnknown)
	}
}
