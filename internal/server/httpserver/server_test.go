package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/internal/revalidate"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), "body: %s", rec.Body.String())
	return m
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	rec := h.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestGuard_Redirects(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	owner := h.user
	public := h.addPoll(&owner, true)
	private := h.addPoll(&owner, false)

	tests := []struct {
		name     string
		path     string
		opts     []reqOpt
		code     int
		location string
	}{
		{"list needs session", "/polls", nil, http.StatusSeeOther, "/auth/login"},
		{"public detail is open", revalidate.PollPath(public.Poll.ID), nil, http.StatusOK, ""},
		{"private detail needs session", revalidate.PollPath(private.Poll.ID), nil, http.StatusSeeOther, "/auth/login"},
		{"unknown detail needs session", revalidate.PollPath(uuid.Must(uuid.NewV4())), nil, http.StatusSeeOther, "/auth/login"},
		{"edit of public poll needs session", revalidate.PollPath(public.Poll.ID) + "/edit", nil, http.StatusSeeOther, "/auth/login"},
		{"login page open to anonymous", "/auth/login", nil, http.StatusOK, ""},
		{"login page redirects session", "/auth/login", []reqOpt{withBearer("good")}, http.StatusSeeOther, "/polls"},
		{"register page redirects cookie session", "/auth/register", []reqOpt{withCookie("good")}, http.StatusSeeOther, "/polls"},
		{"list with session", "/polls", []reqOpt{withBearer("good")}, http.StatusOK, ""},
		{"private detail with session", revalidate.PollPath(private.Poll.ID), []reqOpt{withBearer("good")}, http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(http.MethodGet, tc.path, "", tc.opts...)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			require.Equal(t, tc.location, rec.Header().Get("Location"))
		})
	}
}

func TestSession_InvalidCookieIsCleared(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	rec := h.do(http.MethodGet, "/polls", "", withCookie("forged"))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared, "expected token cookie to be cleared")
}

func TestListPolls_UsesViewer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	owner := h.user
	d := h.addPoll(&owner, false)
	h.polls.list = append(h.polls.list, summaryOf(d))

	rec := h.do(http.MethodGet, "/polls", "", withBearer("good"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, h.user, h.polls.lastList)

	var out struct {
		Polls []pollSummaryResponse `json:"polls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Polls, 1)
	require.True(t, out.Polls[0].IsOwner)
	require.Equal(t, int64(3), out.Polls[0].TotalVotes)
}

func TestGetPoll_DetailAndShareURL(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{PublicURL: "https://polls.example.com/"})
	d := h.addPoll(nil, true)

	rec := h.do(http.MethodGet, revalidate.PollPath(d.Poll.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out pollDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "https://polls.example.com/polls/"+d.Poll.ID.String(), out.ShareURL)
	require.Equal(t, int64(3), out.TotalVotes)
	require.False(t, out.IsOwner)
	require.Len(t, out.Options, 2)
	require.Equal(t, "Pizza", out.Options[0].Text)
	require.Equal(t, int64(2), out.Options[0].Votes)
}

func TestGetPoll_ShareURLFromRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	d := h.addPoll(nil, true)

	rec := h.do(http.MethodGet, revalidate.PollPath(d.Poll.ID), "", withHeader("X-Forwarded-Proto", "https"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://example.com/polls/"+d.Poll.ID.String(), decodeBody(t, rec)["shareUrl"])
}

func TestGetPoll_ConditionalRevalidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	d := h.addPoll(nil, true)
	path := revalidate.PollPath(d.Poll.ID)

	first := h.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, first.Code)
	tag := first.Header().Get("ETag")
	require.NotEmpty(t, tag)

	second := h.do(http.MethodGet, path, "", withHeader("If-None-Match", tag))
	require.Equal(t, http.StatusNotModified, second.Code)
	require.Equal(t, 1, h.polls.gets, "304 must not load the poll")

	h.views.Invalidate(path)
	third := h.do(http.MethodGet, path, "", withHeader("If-None-Match", tag))
	require.Equal(t, http.StatusOK, third.Code)
	require.NotEqual(t, tag, third.Header().Get("ETag"))
}

func TestListPolls_ETagVariesByViewer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	other := uuid.Must(uuid.NewV4())
	h.auth.tokens["other"] = other

	a := h.do(http.MethodGet, "/polls", "", withBearer("good"))
	b := h.do(http.MethodGet, "/polls", "", withBearer("other"))
	require.NotEqual(t, a.Header().Get("ETag"), b.Header().Get("ETag"))

	// a detail change also refreshes the list
	h.views.Invalidate(revalidate.PollPath(uuid.Must(uuid.NewV4())))
	c := h.do(http.MethodGet, "/polls", "", withBearer("good"), withHeader("If-None-Match", a.Header().Get("ETag")))
	require.Equal(t, http.StatusOK, c.Code)
}

func TestCreatePoll(t *testing.T) {
	t.Parallel()

	t.Run("session owner and public default", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec := h.do(http.MethodPost, "/polls", `{"title":"Lunch?","options":["Pizza","Sushi"]}`, withBearer("good"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		require.Equal(t, "Poll created successfully", body["success"])
		require.NotEmpty(t, body["pollId"])
		require.Equal(t, "/polls/"+body["pollId"].(string), rec.Header().Get("Location"))
		require.Equal(t, h.user, h.polls.created.OwnerID)
		require.True(t, h.polls.created.IsPublic)
	})

	t.Run("private and matching userId", func(t *testing.T) {
		h := newHarness(t, Options{})
		body := `{"title":"T","options":["a","b"],"isPublic":false,"userId":"` + h.user.String() + `"}`
		rec := h.do(http.MethodPost, "/polls", body, withBearer("good"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.False(t, h.polls.created.IsPublic)
	})

	t.Run("anonymous", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec := h.do(http.MethodPost, "/polls", `{"title":"T","options":["a","b"]}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, errs.ErrUnauthenticated.Error(), decodeBody(t, rec)["error"])
	})

	t.Run("body userId ignored without session", func(t *testing.T) {
		h := newHarness(t, Options{})
		body := `{"title":"T","options":["a","b"],"userId":"` + h.user.String() + `"}`
		rec := h.do(http.MethodPost, "/polls", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, uuid.Nil, h.polls.created.OwnerID)
	})

	t.Run("mismatched userId", func(t *testing.T) {
		h := newHarness(t, Options{})
		body := `{"title":"T","options":["a","b"],"userId":"` + uuid.Must(uuid.NewV4()).String() + `"}`
		rec := h.do(http.MethodPost, "/polls", body, withBearer("good"))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "Not authorized", decodeBody(t, rec)["error"])
	})

	t.Run("unknown field", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec := h.do(http.MethodPost, "/polls", `{"title":"T","options":["a","b"],"owner":"x"}`, withBearer("good"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Invalid request body", decodeBody(t, rec)["error"])
	})

	t.Run("validation error", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.polls.err = errs.ErrInsufficientOptions
		rec := h.do(http.MethodPost, "/polls", `{"title":"T","options":["a"]}`, withBearer("good"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Please provide at least two options", decodeBody(t, rec)["error"])
	})
}

func TestUpdatePoll(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	id := uuid.Must(uuid.NewV4())

	rec := h.do(http.MethodPut, revalidate.PollPath(id), `{"title":"New","description":"d","options":["x","y"]}`, withCookie("good"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Changes saved", decodeBody(t, rec)["success"])
	require.Equal(t, id, h.polls.updated.PollID)
	require.Equal(t, h.user, h.polls.updated.RequesterID)
	require.Equal(t, []string{"x", "y"}, h.polls.updated.Options)

	h.polls.err = errs.ErrNotAuthorized
	rec = h.do(http.MethodPut, revalidate.PollPath(id), `{"title":"New","options":["x","y"]}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, uuid.Nil, h.polls.updated.RequesterID)
}

func TestPollID_Malformed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	rec := h.do(http.MethodPut, "/polls/not-a-uuid", `{"title":"T","options":["a","b"]}`, withBearer("good"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Poll not found", decodeBody(t, rec)["error"])
}

func TestDeletePoll(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	id := uuid.Must(uuid.NewV4())

	rec := h.do(http.MethodDelete, revalidate.PollPath(id), "", withBearer("good"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, id, h.polls.deleted.poll)
	require.Equal(t, h.user, h.polls.deleted.by)

	rec = h.do(http.MethodDelete, revalidate.PollPath(id), `{"userId":"`+h.user.String()+`"}`, withBearer("good"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	h.polls.err = errs.ErrPollNotFound
	rec = h.do(http.MethodDelete, revalidate.PollPath(id), "", withBearer("good"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVote(t *testing.T) {
	t.Parallel()
	pollID := uuid.Must(uuid.NewV4())
	optionID := uuid.Must(uuid.NewV4())
	path := revalidate.PollPath(pollID) + "/vote"

	t.Run("authenticated", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec := h.do(http.MethodPost, path, `{"optionId":"`+optionID.String()+`"}`, withBearer("good"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Equal(t, "Your vote has been recorded", decodeBody(t, rec)["success"])
		require.Equal(t, h.user, h.polls.voted.VoterID)
		require.Equal(t, optionID, h.polls.voted.OptionID)
		require.Equal(t, pollID, h.polls.voted.PollID)
	})

	t.Run("anonymous fingerprint", func(t *testing.T) {
		h := newHarness(t, Options{})
		body := `{"optionId":"` + optionID.String() + `","fingerprint":" fp-1 ","userId":"` + h.user.String() + `"}`
		rec := h.do(http.MethodPost, path, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Equal(t, uuid.Nil, h.polls.voted.VoterID)
		require.Equal(t, "fp-1", h.polls.voted.Fingerprint)
	})

	t.Run("missing option reaches service", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.polls.err = errs.ErrMissingOption
		rec := h.do(http.MethodPost, path, `{"optionId":""}`, withBearer("good"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, uuid.Nil, h.polls.voted.OptionID)
		require.Equal(t, pollID, h.polls.voted.PollID)
	})

	t.Run("malformed option", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec := h.do(http.MethodPost, path, `{"optionId":"7"}`, withBearer("good"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Invalid option selected", decodeBody(t, rec)["error"])
		require.Equal(t, uuid.Nil, h.polls.voted.PollID, "service must not be called")
	})

	t.Run("duplicate", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.polls.err = errs.ErrAlreadyVoted
		rec := h.do(http.MethodPost, path, `{"optionId":"`+optionID.String()+`"}`, withBearer("good"))
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "You have already voted on this poll", decodeBody(t, rec)["error"])
	})
}

func TestEditPoll(t *testing.T) {
	t.Parallel()

	t.Run("owner", func(t *testing.T) {
		h := newHarness(t, Options{})
		owner := h.user
		d := h.addPoll(&owner, false)
		rec := h.do(http.MethodGet, revalidate.PollPath(d.Poll.ID)+"/edit", "", withBearer("good"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		require.Equal(t, "Pizza\nSushi", body["optionsText"])
		require.Equal(t, "Lunch?", body["title"])
	})

	t.Run("not owner", func(t *testing.T) {
		h := newHarness(t, Options{})
		other := uuid.Must(uuid.NewV4())
		d := h.addPoll(&other, true)
		rec := h.do(http.MethodGet, revalidate.PollPath(d.Poll.ID)+"/edit", "", withBearer("good"))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unowned", func(t *testing.T) {
		h := newHarness(t, Options{})
		d := h.addPoll(nil, true)
		rec := h.do(http.MethodGet, revalidate.PollPath(d.Poll.ID)+"/edit", "", withBearer("good"))
		require.Equal(t, http.StatusForbidden, rec.Code)

		legacy := newHarness(t, Options{AllowUnownedEdits: true})
		d = legacy.addPoll(nil, true)
		rec = legacy.do(http.MethodGet, revalidate.PollPath(d.Poll.ID)+"/edit", "", withBearer("good"))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("register", func(t *testing.T) {
		h := newHarness(t, Options{})
		rec := h.do(http.MethodPost, "/auth/register", `{"username":"alice","password":"pw"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, h.user.String(), decodeBody(t, rec)["userId"])

		rec = h.do(http.MethodPost, "/auth/register", `{"username":"taken","password":"pw"}`)
		require.Equal(t, http.StatusConflict, rec.Code)

		rec = h.do(http.MethodPost, "/auth/register", `{"username":"","password":""}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("login sets cookie", func(t *testing.T) {
		h := newHarness(t, Options{SecureCookies: true})
		rec := h.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw"}`,
			withRemote("203.0.113.7:40100"))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "203.0.113.7", h.auth.lastIP)
		require.Equal(t, "good", decodeBody(t, rec)["accessToken"])

		var found *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == tokenCookie {
				found = c
			}
		}
		require.NotNil(t, found)
		require.Equal(t, "good", found.Value)
		require.True(t, found.HttpOnly)
		require.True(t, found.Secure)
		require.Equal(t, http.SameSiteLaxMode, found.SameSite)
	})

	t.Run("login failures", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.auth.loginErr = errs.ErrUnauthorized
		rec := h.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"bad"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Empty(t, rec.Result().Cookies())

		h.auth.loginErr = errs.ErrRateLimited
		rec = h.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"bad"}`)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("logout", func(t *testing.T) {
		h := newHarness(t, Options{CookieDomain: "example.com"})
		rec := h.do(http.MethodPost, "/auth/logout", "", withCookie("good"))
		require.Equal(t, http.StatusNoContent, rec.Code)
		cs := rec.Result().Cookies()
		require.Len(t, cs, 1)
		require.Equal(t, tokenCookie, cs[0].Name)
		require.Less(t, cs[0].MaxAge, 0)
		require.Equal(t, "example.com", cs[0].Domain)
	})
}

func TestRecover(t *testing.T) {
	t.Parallel()
	h := Recover(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "Unexpected error"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{errs.ErrMissingTitle, http.StatusBadRequest, "Title is required"},
		{errs.ErrIdentityRequired, http.StatusBadRequest, errs.ErrIdentityRequired.Error()},
		{errs.ErrPollNotVotable, http.StatusForbidden, "This poll is not available for voting"},
		{errs.ErrPollExpired, http.StatusGone, "This poll has expired"},
		{errs.ErrStoreUnavailable, http.StatusInternalServerError, errs.ErrStoreUnavailable.Error()},
		{errs.Store(errors.New("connection refused"), "x"), http.StatusInternalServerError, "connection refused"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "Unexpected error"},
	}
	for _, tc := range tests {
		code, msg := statusFor(tc.err)
		require.Equal(t, tc.code, code, tc.err.Error())
		require.Equal(t, tc.msg, msg)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	r.Header.Set("X-Forwarded-For", "198.51.100.3")
	require.Equal(t, "192.0.2.1", clientIP(r))

	r.RemoteAddr = "198.51.100.4"
	require.Equal(t, "198.51.100.4", clientIP(r))
}

func TestLogin_ForwardedForIgnoredByDefault(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	h.auth.loginErr = errs.ErrUnauthorized

	for _, xff := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3, 10.9.9.9"} {
		rec := h.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`,
			withRemote("203.0.113.9:51000"), withHeader("X-Forwarded-For", xff))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	require.Equal(t, []string{"203.0.113.9", "203.0.113.9", "203.0.113.9"}, h.auth.ips)
}

func TestLogin_TrustProxyUsesForwardedFor(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{TrustProxy: true})

	rec := h.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"pw"}`,
		withRemote("10.0.0.5:51000"), withHeader("X-Forwarded-For", "203.0.113.7, 10.0.0.5"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "203.0.113.7", h.auth.lastIP)
}
