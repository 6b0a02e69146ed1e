package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
	"github.com/and161185/pollboard/internal/revalidate"
	"github.com/and161185/pollboard/internal/service"
)

type createPollRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Options     []string   `json:"options"`
	UserID      *string    `json:"userId"`
	IsPublic    *bool      `json:"isPublic"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

type updatePollRequest struct {
	UserID      *string  `json:"userId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

type deletePollRequest struct {
	UserID *string `json:"userId"`
}

type voteRequest struct {
	OptionID    string  `json:"optionId"`
	UserID      *string `json:"userId"`
	Fingerprint string  `json:"fingerprint"`
}

type pollSummaryResponse struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	IsPublic    bool       `json:"isPublic"`
	IsOwner     bool       `json:"isOwner"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	TotalVotes  int64      `json:"totalVotes"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type optionResponse struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Position int       `json:"position"`
	Votes    int64     `json:"votes"`
}

type pollDetailResponse struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	Description *string          `json:"description,omitempty"`
	IsPublic    bool             `json:"isPublic"`
	IsOwner     bool             `json:"isOwner"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	Options     []optionResponse `json:"options"`
	TotalVotes  int64            `json:"totalVotes"`
	ShareURL    string           `json:"shareUrl"`
}

type editPollResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Options     []string  `json:"options"`
	OptionsText string    `json:"optionsText"`
}

func (s *Server) createPoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := requester(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}

	id, err := s.polls.Create(r.Context(), service.CreatePollInput{
		Title:       req.Title,
		Description: req.Description,
		Options:     req.Options,
		OwnerID:     owner,
		IsPublic:    public,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", revalidate.PollPath(id))
	s.writeJSON(w, http.StatusCreated, successBody{Success: "Poll created successfully", PollID: id.String()})
}

func (s *Server) updatePoll(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updatePollRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	who, err := requester(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.polls.Update(r.Context(), service.UpdatePollInput{
		PollID:      id,
		Title:       req.Title,
		Description: req.Description,
		Options:     req.Options,
		RequesterID: who,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, successBody{Success: "Changes saved"})
}

func (s *Server) deletePoll(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req deletePollRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	who, err := requester(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.polls.Delete(r.Context(), id, who); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	voter, err := requester(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var optionID uuid.UUID
	if raw := strings.TrimSpace(req.OptionID); raw != "" {
		if optionID, err = uuid.FromString(raw); err != nil {
			s.writeError(w, r, errs.ErrInvalidOption)
			return
		}
	}

	err = s.polls.Vote(r.Context(), service.VoteInput{
		PollID:      id,
		OptionID:    optionID,
		VoterID:     voter,
		Fingerprint: strings.TrimSpace(req.Fingerprint),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, successBody{Success: "Your vote has been recorded"})
}

func (s *Server) listPolls(w http.ResponseWriter, r *http.Request) {
	viewer, _ := UserIDFromCtx(r.Context())
	if s.notModified(w, r, revalidate.PollsPath, viewer.String()) {
		return
	}
	list, err := s.polls.List(r.Context(), viewer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]pollSummaryResponse, 0, len(list))
	for _, p := range list {
		out = append(out, pollSummaryResponse{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			IsPublic:    p.IsPublic,
			IsOwner:     viewer != uuid.Nil && p.OwnerID != nil && *p.OwnerID == viewer,
			ExpiresAt:   p.ExpiresAt,
			TotalVotes:  p.TotalVotes,
			CreatedAt:   p.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"polls": out})
}

func (s *Server) getPoll(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	viewer, _ := UserIDFromCtx(r.Context())
	if s.notModified(w, r, revalidate.PollPath(id), viewer.String()) {
		return
	}
	d, err := s.polls.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.detailResponse(r, d, viewer))
}

func (s *Server) detailResponse(r *http.Request, d model.PollDetail, viewer uuid.UUID) pollDetailResponse {
	opts := make([]optionResponse, 0, len(d.Options))
	for _, o := range d.Options {
		opts = append(opts, optionResponse{ID: o.ID, Text: o.Text, Position: o.Position, Votes: d.Counts[o.ID]})
	}
	return pollDetailResponse{
		ID:          d.Poll.ID,
		Title:       d.Poll.Title,
		Description: d.Poll.Description,
		IsPublic:    d.Poll.IsPublic,
		IsOwner:     viewer != uuid.Nil && d.Poll.OwnedBy(viewer),
		ExpiresAt:   d.Poll.ExpiresAt,
		CreatedAt:   d.Poll.CreatedAt,
		Options:     opts,
		TotalVotes:  d.TotalVotes(),
		ShareURL:    s.shareURL(r, d.Poll.ID),
	}
}

// editPoll returns the editable form of a poll for its owner.
func (s *Server) editPoll(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	viewer, _ := UserIDFromCtx(r.Context())
	d, err := s.polls.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if d.Poll.OwnerID == nil && !s.opts.AllowUnownedEdits || d.Poll.OwnerID != nil && !d.Poll.OwnedBy(viewer) {
		s.writeError(w, r, errs.ErrNotAuthorized)
		return
	}

	texts := make([]string, 0, len(d.Options))
	for _, o := range d.Options {
		texts = append(texts, o.Text)
	}
	resp := editPollResponse{ID: id, Title: d.Poll.Title, Options: texts, OptionsText: strings.Join(texts, "\n")}
	if d.Poll.Description != nil {
		resp.Description = *d.Poll.Description
	}
	s.writeJSON(w, http.StatusOK, resp)
}
