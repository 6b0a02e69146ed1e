// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued session tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry
}

// User represents an account. Passwords are never stored in plaintext.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	PwdHash   []byte    // Argon2id(password, Salt)
	Salt      []byte    // per-user salt
	CreatedAt time.Time
}

// Poll is a question with an ordered set of options.
type Poll struct {
	ID          uuid.UUID
	Title       string
	Description *string    // nil when absent
	OwnerID     *uuid.UUID // nil for legacy/unowned polls
	IsPublic    bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the poll has an expiry strictly before now.
func (p Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// OwnedBy reports whether the poll has an owner equal to id.
func (p Poll) OwnedBy(id uuid.UUID) bool {
	return p.OwnerID != nil && *p.OwnerID == id
}

// PollOption is one selectable choice; Position is unique within a poll.
type PollOption struct {
	ID       uuid.UUID
	PollID   uuid.UUID
	Text     string
	Position int
}

// Vote is a single selection attributed to a user or to an anonymous fingerprint.
// Exactly one of VoterID and Fingerprint is set.
type Vote struct {
	ID          uuid.UUID
	PollID      uuid.UUID
	OptionID    uuid.UUID
	VoterID     *uuid.UUID
	Fingerprint *string
	CreatedAt   time.Time
}

// OptionCount is a row of the poll_option_counts view.
type OptionCount struct {
	PollID    uuid.UUID
	OptionID  uuid.UUID
	VoteCount int64
}

// PollDraft is a normalized poll submission.
type PollDraft struct {
	Title       string
	Description *string
	Options     []string // display order; index is the stored position
}

// PollDetail is the detail read model: poll, ordered options and counts.
type PollDetail struct {
	Poll    Poll
	Options []PollOption
	Counts  map[uuid.UUID]int64 // option id -> votes
}

// TotalVotes sums all option counts.
func (d PollDetail) TotalVotes() int64 {
	var n int64
	for _, c := range d.Counts {
		n += c
	}
	return n
}

// PollSummary is a row of the poll list read model.
type PollSummary struct {
	ID          uuid.UUID
	Title       string
	Description *string
	OwnerID     *uuid.UUID
	IsPublic    bool
	ExpiresAt   *time.Time
	TotalVotes  int64
	CreatedAt   time.Time
}
