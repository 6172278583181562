package store

import (
	"context"
	"os"

	"github.com/nroy/coachd/internal/profile"
)

// Local stores the profile document as a JSON file on disk. A missing file
// is an empty store, not an error.
type Local struct {
	path string
}

func NewLocal(path string) *Local {
	return &Local{path: path}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Load(ctx context.Context) (profile.Document, error) {
	doc, err := readDocument(l.path)
	if os.IsNotExist(err) {
		return profile.Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (l *Local) Save(ctx context.Context, doc profile.Document) error {
	return writeDocument(l.path, doc)
}
