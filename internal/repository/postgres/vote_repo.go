package postgres

import (
	"context"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
	"github.com/gofrs/uuid/v5"
)

// VoteRepo implements VoteRepository using PostgreSQL.
type VoteRepo struct{ db *DB }

// NewVoteRepo constructs a vote repository.
func NewVoteRepo(db *DB) *VoteRepo { return &VoteRepo{db: db} }

const selVote = `
SELECT id, poll_id, option_id, voter_id, voter_fingerprint, created_at
FROM votes `

// FindByVoter returns the vote cast by an authenticated user on a poll.
func (r *VoteRepo) FindByVoter(ctx context.Context, pollID, voterID uuid.UUID) (*model.Vote, error) {
	return r.findOne(ctx, selVote+`WHERE poll_id=$1 AND voter_id=$2 LIMIT 1`, pollID, voterID)
}

// FindByFingerprint returns the anonymous vote recorded for a fingerprint.
func (r *VoteRepo) FindByFingerprint(ctx context.Context, pollID uuid.UUID, fingerprint string) (*model.Vote, error) {
	return r.findOne(ctx, selVote+`WHERE poll_id=$1 AND voter_id IS NULL AND voter_fingerprint=$2 LIMIT 1`, pollID, fingerprint)
}

func (r *VoteRepo) findOne(ctx context.Context, q string, args ...any) (*model.Vote, error) {
	var v model.Vote
	if err := r.db.Pool.QueryRow(ctx, q, args...).
		Scan(&v.ID, &v.PollID, &v.OptionID, &v.VoterID, &v.Fingerprint, &v.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// Insert stores the vote. When VoterID is set the fingerprint column stays NULL.
func (r *VoteRepo) Insert(ctx context.Context, v *model.Vote) error {
	const q = `
INSERT INTO votes (id, poll_id, option_id, voter_id, voter_fingerprint)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	fp := v.Fingerprint
	if v.VoterID != nil {
		fp = nil
	}
	err := r.db.Pool.QueryRow(ctx, q, v.ID, v.PollID, v.OptionID, v.VoterID, fp).Scan(&v.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	v.Fingerprint = fp
	return nil
}
