package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
	"github.com/and161185/pollboard/internal/repository"
	"github.com/and161185/pollboard/internal/revalidate"
	"github.com/and161185/pollboard/internal/validate"
)

// PollService defines poll commands and read models.
type PollService interface {
	// Create validates and stores a new poll owned by in.OwnerID.
	Create(ctx context.Context, in CreatePollInput) (uuid.UUID, error)
	// Update replaces title, description and options of an owned poll.
	Update(ctx context.Context, in UpdatePollInput) error
	// Delete removes an owned poll with its options and votes.
	Delete(ctx context.Context, pollID, requesterID uuid.UUID) error
	// Vote records a single vote per user or per anonymous fingerprint.
	Vote(ctx context.Context, in VoteInput) error
	// Get returns the detail read model.
	Get(ctx context.Context, pollID uuid.UUID) (model.PollDetail, error)
	// List returns public polls plus the viewer's own private ones.
	List(ctx context.Context, viewerID uuid.UUID) ([]model.PollSummary, error)
	// Visibility reports whether a poll is public.
	Visibility(ctx context.Context, pollID uuid.UUID) (bool, error)
}

// CreatePollInput is the raw create submission.
type CreatePollInput struct {
	Title       string
	Description string
	Options     []string
	OwnerID     uuid.UUID
	IsPublic    bool
	ExpiresAt   *time.Time
}

// UpdatePollInput is the raw update submission.
type UpdatePollInput struct {
	PollID      uuid.UUID
	Title       string
	Description string
	Options     []string
	RequesterID uuid.UUID
}

// VoteInput identifies the voter by VoterID or, when that is nil, by Fingerprint.
type VoteInput struct {
	PollID      uuid.UUID
	OptionID    uuid.UUID
	VoterID     uuid.UUID
	Fingerprint string
}

// Invalidator drops cached views for the given paths.
type Invalidator interface {
	Invalidate(paths ...string)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(...string) {}

// PollServiceImpl implements PollService over poll and vote repositories.
// Nil repositories mean the store is not configured.
type PollServiceImpl struct {
	polls repository.PollRepository
	votes repository.VoteRepository

	views        Invalidator
	now          func() time.Time
	log          *zap.Logger
	unownedEdits bool
}

// PollOption customizes PollServiceImpl.
type PollOption func(*PollServiceImpl)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) PollOption {
	return func(s *PollServiceImpl) { s.now = now }
}

// WithInvalidator sets the view cache to invalidate after successful commands.
func WithInvalidator(v Invalidator) PollOption {
	return func(s *PollServiceImpl) { s.views = v }
}

// WithLogger sets the logger for failures that are not surfaced verbatim.
func WithLogger(l *zap.Logger) PollOption {
	return func(s *PollServiceImpl) { s.log = l }
}

// WithUnownedEdits lets any requester update or delete polls without an owner.
func WithUnownedEdits(allow bool) PollOption {
	return func(s *PollServiceImpl) { s.unownedEdits = allow }
}

// NewPollService constructs PollService. Pass nil repositories when the store
// is not configured; every operation then fails with errs.ErrStoreUnavailable.
func NewPollService(polls repository.PollRepository, votes repository.VoteRepository, opts ...PollOption) *PollServiceImpl {
	s := &PollServiceImpl{
		polls: polls,
		votes: votes,
		views: nopInvalidator{},
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *PollServiceImpl) available() bool { return s.polls != nil && s.votes != nil }

// Create validates the draft, inserts the poll then its options. If the
// options cannot be stored the poll row is deleted again.
func (s *PollServiceImpl) Create(ctx context.Context, in CreatePollInput) (uuid.UUID, error) {
	if !s.available() {
		return uuid.Nil, errs.ErrStoreUnavailable
	}
	if in.OwnerID == uuid.Nil {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	d, err := validate.PollLines(in.Title, in.Description, in.Options)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, s.unexpected("new poll id", err)
	}
	owner := in.OwnerID
	p := &model.Poll{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		OwnerID:     &owner,
		IsPublic:    in.IsPublic,
		ExpiresAt:   in.ExpiresAt,
	}
	if err := s.polls.Create(ctx, p); err != nil {
		return uuid.Nil, errs.Store(err, "Failed to create poll")
	}
	if _, err := s.polls.InsertOptions(ctx, id, d.Options); err != nil {
		// the request may already be gone; the cleanup must still run
		if derr := s.polls.Delete(context.WithoutCancel(ctx), id); derr != nil {
			s.log.Warn("orphan poll left after option insert failure",
				zap.String("poll_id", id.String()), zap.Error(derr))
		}
		return uuid.Nil, errs.Store(err, "Failed to create poll options")
	}

	s.views.Invalidate(revalidate.PollsPath, revalidate.PollPath(id))
	return id, nil
}

// Update checks ownership then replaces the poll content atomically.
func (s *PollServiceImpl) Update(ctx context.Context, in UpdatePollInput) error {
	if !s.available() {
		return errs.ErrStoreUnavailable
	}
	if in.PollID == uuid.Nil {
		return errs.ErrMissingPollID
	}
	d, err := validate.PollLines(in.Title, in.Description, in.Options)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, in.PollID, in.RequesterID); err != nil {
		return err
	}
	if err := s.polls.Replace(ctx, in.PollID, d); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrPollNotFound
		}
		return errs.Store(err, "Failed to update poll")
	}

	s.views.Invalidate(revalidate.PollsPath, revalidate.PollPath(in.PollID))
	return nil
}

// Delete checks ownership then removes the poll.
func (s *PollServiceImpl) Delete(ctx context.Context, pollID, requesterID uuid.UUID) error {
	if !s.available() {
		return errs.ErrStoreUnavailable
	}
	if pollID == uuid.Nil {
		return errs.ErrMissingPollID
	}
	if err := s.authorize(ctx, pollID, requesterID); err != nil {
		return err
	}
	if err := s.polls.Delete(ctx, pollID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrPollNotFound
		}
		return errs.Store(err, "Failed to delete poll")
	}

	s.views.Invalidate(revalidate.PollsPath, revalidate.PollPath(pollID))
	return nil
}

// authorize loads the poll and enforces ownership. Unowned polls are editable
// only when WithUnownedEdits(true) is set.
func (s *PollServiceImpl) authorize(ctx context.Context, pollID, requesterID uuid.UUID) error {
	p, err := s.polls.Get(ctx, pollID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrPollNotFound
		}
		return errs.Store(err, "Failed to load poll")
	}
	if p.OwnerID == nil {
		if s.unownedEdits {
			return nil
		}
		return errs.ErrNotAuthorized
	}
	if !p.OwnedBy(requesterID) {
		return errs.ErrNotAuthorized
	}
	return nil
}

// Vote runs the vote checks in order: poll state, option, identity, duplicate.
func (s *PollServiceImpl) Vote(ctx context.Context, in VoteInput) error {
	if !s.available() {
		return errs.ErrStoreUnavailable
	}
	if in.PollID == uuid.Nil {
		return errs.ErrMissingPollID
	}
	if in.OptionID == uuid.Nil {
		return errs.ErrMissingOption
	}

	p, err := s.polls.Get(ctx, in.PollID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrPollNotFound
		}
		return errs.Store(err, "Failed to load poll")
	}
	if !p.IsPublic {
		return errs.ErrPollNotVotable
	}
	if p.Expired(s.now()) {
		return errs.ErrPollExpired
	}

	if _, err := s.polls.GetOption(ctx, in.PollID, in.OptionID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrInvalidOption
		}
		return errs.Store(err, "Failed to load option")
	}

	v := &model.Vote{PollID: in.PollID, OptionID: in.OptionID}
	var existing *model.Vote
	switch {
	case in.VoterID != uuid.Nil:
		voter := in.VoterID
		v.VoterID = &voter
		existing, err = s.votes.FindByVoter(ctx, in.PollID, voter)
	case in.Fingerprint != "":
		fp := in.Fingerprint
		v.Fingerprint = &fp
		existing, err = s.votes.FindByFingerprint(ctx, in.PollID, fp)
	default:
		return errs.ErrIdentityRequired
	}
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return errs.Store(err, "Failed to check existing vote")
	}
	if existing != nil {
		return errs.ErrAlreadyVoted
	}

	if v.ID, err = uuid.NewV4(); err != nil {
		return s.unexpected("new vote id", err)
	}
	if err := s.votes.Insert(ctx, v); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return errs.ErrAlreadyVoted
		}
		return errs.Store(err, "Failed to record vote")
	}

	s.views.Invalidate(revalidate.PollPath(in.PollID))
	return nil
}

// Get assembles the poll, its ordered options and per-option counts.
func (s *PollServiceImpl) Get(ctx context.Context, pollID uuid.UUID) (model.PollDetail, error) {
	if !s.available() {
		return model.PollDetail{}, errs.ErrStoreUnavailable
	}
	if pollID == uuid.Nil {
		return model.PollDetail{}, errs.ErrMissingPollID
	}
	p, err := s.polls.Get(ctx, pollID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.PollDetail{}, errs.ErrPollNotFound
		}
		return model.PollDetail{}, errs.Store(err, "Failed to load poll")
	}
	opts, err := s.polls.Options(ctx, pollID)
	if err != nil {
		return model.PollDetail{}, errs.Store(err, "Failed to load options")
	}
	counts, err := s.polls.Counts(ctx, pollID)
	if err != nil {
		return model.PollDetail{}, errs.Store(err, "Failed to load results")
	}

	d := model.PollDetail{Poll: *p, Options: opts, Counts: make(map[uuid.UUID]int64, len(opts))}
	for _, o := range opts {
		d.Counts[o.ID] = 0
	}
	for _, c := range counts {
		d.Counts[c.OptionID] = c.VoteCount
	}
	return d, nil
}

// List returns the poll list read model.
func (s *PollServiceImpl) List(ctx context.Context, viewerID uuid.UUID) ([]model.PollSummary, error) {
	if !s.available() {
		return nil, errs.ErrStoreUnavailable
	}
	out, err := s.polls.List(ctx, viewerID)
	if err != nil {
		return nil, errs.Store(err, "Failed to load polls")
	}
	return out, nil
}

// Visibility reports the poll's public flag.
func (s *PollServiceImpl) Visibility(ctx context.Context, pollID uuid.UUID) (bool, error) {
	if !s.available() {
		return false, errs.ErrStoreUnavailable
	}
	pub, err := s.polls.Visibility(ctx, pollID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, errs.ErrPollNotFound
	}
	return pub, err
}

func (s *PollServiceImpl) unexpected(op string, err error) error {
	s.log.Error("unexpected failure", zap.String("op", op), zap.Error(err))
	return errs.ErrUnexpected
}
