package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one simulator exchange: the question asked, the generated
// answer, and the export artifact if one was written.
type Interaction struct {
	ID         string
	CreatedAt  time.Time
	Username   string
	Profile    string
	Question   string
	Answer     string
	Model      string
	ExportFile string
}

// Signup statuses.
const (
	SignupPending  = "pending"
	SignupApproved = "approved"
	SignupRejected = "rejected"
)

// Signup is a self-service account request awaiting admin review.
type Signup struct {
	Username    string
	Password    string
	Status      string // "pending", "approved", "rejected"
	RequestedAt time.Time
	ReviewedAt  time.Time
}
