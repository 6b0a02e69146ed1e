package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/model"
	"github.com/and161185/pollboard/internal/revalidate"
	"github.com/and161185/pollboard/internal/service"
)

type fakeAuth struct {
	tokens   map[string]uuid.UUID
	loginErr error
	lastIP   string
	ips      []string
	id       uuid.UUID
}

func (f *fakeAuth) Register(_ context.Context, username, password string) (uuid.UUID, error) {
	if username == "" || password == "" {
		return uuid.Nil, errs.ErrMissingCredentials
	}
	if username == "taken" {
		return uuid.Nil, errs.ErrUsernameTaken
	}
	return f.id, nil
}

func (f *fakeAuth) LoginWithIP(_ context.Context, _, _ string, ip string) (model.Tokens, model.User, error) {
	f.lastIP = ip
	f.ips = append(f.ips, ip)
	if f.loginErr != nil {
		return model.Tokens{}, model.User{}, f.loginErr
	}
	return model.Tokens{AccessToken: "good", ExpiresAt: time.Now().Add(time.Hour)}, model.User{ID: f.id}, nil
}

func (f *fakeAuth) Authenticate(token string) (uuid.UUID, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return uuid.Nil, errs.ErrUnauthenticated
}

type fakePolls struct {
	detail   map[uuid.UUID]model.PollDetail
	list     []model.PollSummary
	err      error
	gets     int
	lastList uuid.UUID

	created service.CreatePollInput
	updated service.UpdatePollInput
	voted   service.VoteInput
	deleted struct{ poll, by uuid.UUID }
}

func (f *fakePolls) Create(_ context.Context, in service.CreatePollInput) (uuid.UUID, error) {
	f.created = in
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if in.OwnerID == uuid.Nil {
		return uuid.Nil, errs.ErrUnauthenticated
	}
	return uuid.Must(uuid.NewV4()), nil
}

func (f *fakePolls) Update(_ context.Context, in service.UpdatePollInput) error {
	f.updated = in
	return f.err
}

func (f *fakePolls) Delete(_ context.Context, pollID, requesterID uuid.UUID) error {
	f.deleted.poll, f.deleted.by = pollID, requesterID
	return f.err
}

func (f *fakePolls) Vote(_ context.Context, in service.VoteInput) error {
	f.voted = in
	return f.err
}

func (f *fakePolls) Get(_ context.Context, pollID uuid.UUID) (model.PollDetail, error) {
	f.gets++
	d, ok := f.detail[pollID]
	if !ok {
		return model.PollDetail{}, errs.ErrPollNotFound
	}
	return d, nil
}

func (f *fakePolls) List(_ context.Context, viewerID uuid.UUID) ([]model.PollSummary, error) {
	f.lastList = viewerID
	return f.list, f.err
}

func (f *fakePolls) Visibility(_ context.Context, pollID uuid.UUID) (bool, error) {
	d, ok := f.detail[pollID]
	if !ok {
		return false, errs.ErrPollNotFound
	}
	return d.Poll.IsPublic, nil
}

type harness struct {
	auth  *fakeAuth
	polls *fakePolls
	views *revalidate.Ledger
	srv   *Server
	h     http.Handler
	user  uuid.UUID
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	user := uuid.Must(uuid.NewV4())
	h := &harness{
		auth:  &fakeAuth{tokens: map[string]uuid.UUID{"good": user}, id: user},
		polls: &fakePolls{detail: map[uuid.UUID]model.PollDetail{}},
		views: revalidate.NewLedger(),
		user:  user,
	}
	h.srv = New(h.auth, h.polls, h.views, zaptest.NewLogger(t), opts)
	h.h = h.srv.Handler()
	return h
}

// addPoll registers a poll with two options in the fake service.
func (h *harness) addPoll(owner *uuid.UUID, public bool) model.PollDetail {
	id := uuid.Must(uuid.NewV4())
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	d := model.PollDetail{
		Poll: model.Poll{ID: id, Title: "Lunch?", OwnerID: owner, IsPublic: public, CreatedAt: time.Now()},
		Options: []model.PollOption{
			{ID: a, PollID: id, Text: "Pizza", Position: 0},
			{ID: b, PollID: id, Text: "Sushi", Position: 1},
		},
		Counts: map[uuid.UUID]int64{a: 2, b: 1},
	}
	h.polls.detail[id] = d
	return d
}

type reqOpt func(*http.Request)

func withBearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookie(tok string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: tokenCookie, Value: tok}) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withRemote(addr string) reqOpt {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func (h *harness) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func summaryOf(d model.PollDetail) model.PollSummary {
	return model.PollSummary{
		ID:          d.Poll.ID,
		Title:       d.Poll.Title,
		Description: d.Poll.Description,
		OwnerID:     d.Poll.OwnerID,
		IsPublic:    d.Poll.IsPublic,
		ExpiresAt:   d.Poll.ExpiresAt,
		TotalVotes:  d.TotalVotes(),
		CreatedAt:   d.Poll.CreatedAt,
	}
}
