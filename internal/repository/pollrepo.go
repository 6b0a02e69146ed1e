package repository

import (
	"context"

	"github.com/and161185/pollboard/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PollRepository provides access to polls and their options.
// Lookups of missing rows return errs.ErrNotFound.
type PollRepository interface {
	// Create inserts the poll row only.
	Create(ctx context.Context, p *model.Poll) error
	// InsertOptions inserts options at positions 0..n-1 and returns the stored rows.
	InsertOptions(ctx context.Context, pollID uuid.UUID, texts []string) ([]model.PollOption, error)
	// Get loads a poll by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Poll, error)
	// GetOption loads an option only if it belongs to pollID.
	GetOption(ctx context.Context, pollID, optionID uuid.UUID) (*model.PollOption, error)
	// Options lists a poll's options by position.
	Options(ctx context.Context, pollID uuid.UUID) ([]model.PollOption, error)
	// Counts reads the poll_option_counts view for a poll.
	Counts(ctx context.Context, pollID uuid.UUID) ([]model.OptionCount, error)
	// List returns public polls plus private polls owned by viewer (uuid.Nil: public only).
	List(ctx context.Context, viewer uuid.UUID) ([]model.PollSummary, error)
	// Replace updates title/description and replaces all options atomically.
	Replace(ctx context.Context, pollID uuid.UUID, d model.PollDraft) error
	// Delete removes votes, options and the poll atomically.
	Delete(ctx context.Context, pollID uuid.UUID) error
	// Visibility reports the poll's is_public flag.
	Visibility(ctx context.Context, pollID uuid.UUID) (bool, error)
}

// VoteRepository provides duplicate-vote lookups and vote insertion.
type VoteRepository interface {
	// FindByVoter returns the vote cast by an authenticated user, or errs.ErrNotFound.
	FindByVoter(ctx context.Context, pollID, voterID uuid.UUID) (*model.Vote, error)
	// FindByFingerprint returns the anonymous vote for a fingerprint, or errs.ErrNotFound.
	FindByFingerprint(ctx context.Context, pollID uuid.UUID, fingerprint string) (*model.Vote, error)
	// Insert stores a vote; a uniqueness violation yields errs.ErrAlreadyExists.
	Insert(ctx context.Context, v *model.Vote) error
}
