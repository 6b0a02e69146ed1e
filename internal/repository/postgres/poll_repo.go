package postgres

import (
	"context"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PollRepo implements PollRepository using PostgreSQL.
type PollRepo struct{ db *DB }

// NewPollRepo constructs a poll repository.
func NewPollRepo(db *DB) *PollRepo { return &PollRepo{db: db} }

// Create inserts the poll row and fills CreatedAt.
func (r *PollRepo) Create(ctx context.Context, p *model.Poll) error {
	const q = `
INSERT INTO polls (id, title, description, owner_id, is_public, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, q, p.ID, p.Title, p.Description, p.OwnerID, p.IsPublic, p.ExpiresAt).
		Scan(&p.CreatedAt)
}

const insOption = `INSERT INTO poll_options (id, poll_id, option_text, position) VALUES ($1,$2,$3,$4)`

// InsertOptions stores texts at positions 0..n-1 in one transaction.
func (r *PollRepo) InsertOptions(ctx context.Context, pollID uuid.UUID, texts []string) ([]model.PollOption, error) {
	var out []model.PollOption
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = insertOptions(ctx, tx, pollID, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertOptions(ctx context.Context, tx pgx.Tx, pollID uuid.UUID, texts []string) ([]model.PollOption, error) {
	out := make([]model.PollOption, 0, len(texts))
	for i, text := range texts {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		if _, err = tx.Exec(ctx, insOption, id, pollID, text, i); err != nil {
			return nil, err
		}
		out = append(out, model.PollOption{ID: id, PollID: pollID, Text: text, Position: i})
	}
	return out, nil
}

// Get loads a poll by id.
func (r *PollRepo) Get(ctx context.Context, id uuid.UUID) (*model.Poll, error) {
	const q = `
SELECT id, title, description, owner_id, is_public, expires_at, created_at
FROM polls WHERE id=$1`
	var p model.Poll
	if err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &p.IsPublic, &p.ExpiresAt, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetOption loads an option filtered by both its id and its poll.
func (r *PollRepo) GetOption(ctx context.Context, pollID, optionID uuid.UUID) (*model.PollOption, error) {
	const q = `
SELECT id, poll_id, option_text, position
FROM poll_options WHERE id=$1 AND poll_id=$2`
	var o model.PollOption
	if err := r.db.Pool.QueryRow(ctx, q, optionID, pollID).
		Scan(&o.ID, &o.PollID, &o.Text, &o.Position); err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// Options lists a poll's options in display order.
func (r *PollRepo) Options(ctx context.Context, pollID uuid.UUID) ([]model.PollOption, error) {
	const q = `
SELECT id, poll_id, option_text, position
FROM poll_options WHERE poll_id=$1
ORDER BY position ASC`
	rows, err := r.db.Pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PollOption
	for rows.Next() {
		var o model.PollOption
		if err = rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Position); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Counts reads per-option vote counts for a poll.
func (r *PollRepo) Counts(ctx context.Context, pollID uuid.UUID) ([]model.OptionCount, error) {
	const q = `
SELECT poll_id, option_id, vote_count
FROM poll_option_counts WHERE poll_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OptionCount
	for rows.Next() {
		var c model.OptionCount
		if err = rows.Scan(&c.PollID, &c.OptionID, &c.VoteCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns public polls and the viewer's private polls, newest first.
// A nil viewer sees public polls only.
func (r *PollRepo) List(ctx context.Context, viewer uuid.UUID) ([]model.PollSummary, error) {
	const q = `
SELECT p.id, p.title, p.description, p.owner_id, p.is_public, p.expires_at, p.created_at,
       COALESCE(SUM(c.vote_count), 0)
FROM polls p
LEFT JOIN poll_option_counts c ON c.poll_id = p.id
WHERE p.is_public OR p.owner_id = $1
GROUP BY p.id
ORDER BY p.created_at DESC`
	var owner *uuid.UUID
	if viewer != uuid.Nil {
		owner = &viewer
	}
	rows, err := r.db.Pool.Query(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PollSummary
	for rows.Next() {
		var s model.PollSummary
		if err = rows.Scan(&s.ID, &s.Title, &s.Description, &s.OwnerID, &s.IsPublic,
			&s.ExpiresAt, &s.CreatedAt, &s.TotalVotes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Replace updates title and description and swaps the whole option set
// atomically. Votes on removed options go with them (FK cascade).
func (r *PollRepo) Replace(ctx context.Context, pollID uuid.UUID, d model.PollDraft) error {
	const upd = `UPDATE polls SET title=$2, description=$3 WHERE id=$1`
	const del = `DELETE FROM poll_options WHERE poll_id=$1`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upd, pollID, d.Title, d.Description)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		if _, err = tx.Exec(ctx, del, pollID); err != nil {
			return err
		}
		_, err = insertOptions(ctx, tx, pollID, d.Options)
		return err
	})
}

// Delete removes votes, options and the poll in one transaction.
func (r *PollRepo) Delete(ctx context.Context, pollID uuid.UUID) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE poll_id=$1`, pollID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM poll_options WHERE poll_id=$1`, pollID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM polls WHERE id=$1`, pollID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// Visibility reports the is_public flag of a poll.
func (r *PollRepo) Visibility(ctx context.Context, pollID uuid.UUID) (bool, error) {
	var public bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT is_public FROM polls WHERE id=$1`, pollID).Scan(&public); err != nil {
		return false, notFound(err)
	}
	return public, nil
}
