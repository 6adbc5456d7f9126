package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/members-area/internal/config"
	"github.com/iliyamo/members-area/internal/form"
	"github.com/iliyamo/members-area/internal/handler"
	"github.com/iliyamo/members-area/internal/logger"
	"github.com/iliyamo/members-area/internal/middleware"
	"github.com/iliyamo/members-area/internal/model"
	"github.com/iliyamo/members-area/internal/queue"
	"github.com/iliyamo/members-area/internal/router"
	"github.com/iliyamo/members-area/internal/session"
	"github.com/iliyamo/members-area/internal/utils"
	"github.com/iliyamo/members-area/internal/view"
)

// memStore is an in-memory model.UserStore.
type memStore struct {
	mu    sync.Mutex
	users []model.User
	seq   int
}

func (s *memStore) Create(_ context.Context, name, email, hash string, role model.Role) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return model.User{}, model.ErrEmailExists
		}
	}
	s.seq++
	now := time.Now().UTC()
	u := model.User{ID: "u-" + string(rune('0'+s.seq)), Name: name, Email: email, PasswordHash: hash, Role: role, CreatedAt: now, UpdatedAt: now}
	s.users = append(s.users, u)
	return u, nil
}

func (s *memStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (s *memStore) GetByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (s *memStore) List(context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.User(nil), s.users...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) UpdateRole(_ context.Context, id string, role model.Role) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].Role = role
			return s.users[i], nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// recorder keeps published events.
type recorder struct {
	mu     sync.Mutex
	events []queue.AccountEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.AccountEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type app struct {
	logs   *bytes.Buffer
	e      *echo.Echo
	store  *memStore
	mr     *miniredis.Miniredis
	events *recorder
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newApp(t *testing.T, limiter echo.MiddlewareFunc) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		BcryptCost: bcrypt.MinCost,
		Session:    config.SessionConfig{TTL: time.Hour, CookieName: "sid", Prefix: "sess"},
	}
	sessions := session.NewManager(rdb, cfg.Session)
	store := &memStore{}
	events := &recorder{}
	forms := form.NewValidator()

	logs := &bytes.Buffer{}
	h := handler.New(handler.Deps{Cfg: cfg, Users: store, Sessions: sessions, Forms: forms, Events: events, Log: logger.NewWithWriter(logs, 0)})

	renderer, err := view.NewRenderer()
	require.NoError(t, err)

	e := echo.New()
	e.Renderer = renderer
	e.HTTPErrorHandler = h.HTTPErrorHandler
	if limiter == nil {
		limiter = passThrough
	}
	router.RegisterRoutes(e)
	router.RegisterPages(e, h, sessions, limiter)

	return &app{logs: logs, e: e, store: store, mr: mr, events: events}
}

func (a *app) do(method, path string, values url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if values != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// seed stores a user with the given password and role.
func (a *app) seed(t *testing.T, name, email, password string, role model.Role) model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	u, err := a.store.Create(context.Background(), name, email, hash, role)
	require.NoError(t, err)
	return u
}

func (a *app) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := a.do(http.MethodPost, "/login", url.Values{"email": {email}, "password": {password}}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	c := sessionCookie(rec)
	require.NotNil(t, c)
	return c
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" && c.Value != "" {
			return c
		}
	}
	return nil
}

func sessionKeys(mr *miniredis.Miniredis) []string {
	var keys []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "sess:") && !strings.HasPrefix(k, "sess:user:") {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestSignup_CreatesUserAndSession(t *testing.T) {
	a := newApp(t, nil)

	rec := a.do(http.MethodPost, "/signup", url.Values{"name": {" Ann "}, "email": {"ann@x.com"}, "password": {"abcde"}}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/members", rec.Header().Get(echo.HeaderLocation))

	u, err := a.store.GetByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.NotEqual(t, "abcde", u.PasswordHash)

	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)

	members := a.do(http.MethodGet, "/members", nil, c)
	assert.Equal(t, http.StatusOK, members.Code)
	assert.Contains(t, members.Body.String(), "Hello, Ann.")
	assert.Contains(t, members.Body.String(), "/static/img/img")

	assert.Equal(t, []string{queue.UserRegistered}, a.events.types())
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name    string
		values  url.Values
		wantMsg string
	}{
		{name: "blank name", values: url.Values{"name": {"  "}, "email": {"ann@x.com"}, "password": {"abcde"}}, wantMsg: `&#34;name&#34; is required`},
		{name: "bad email", values: url.Values{"name": {"Ann"}, "email": {"ann"}, "password": {"abcde"}}, wantMsg: `&#34;email&#34; must be a valid email`},
		{name: "short password", values: url.Values{"name": {"Ann"}, "email": {"ann@x.com"}, "password": {"abc"}}, wantMsg: `&#34;password&#34; length must be at least 5 characters long`},
		{name: "multibyte password over 72 bytes", values: url.Values{"name": {"Ann"}, "email": {"ann@x.com"}, "password": {strings.Repeat("é", 40)}}, wantMsg: `&#34;password&#34; length must be at most 72 bytes long`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newApp(t, nil)

			rec := a.do(http.MethodPost, "/signup", tt.values, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Zero(t, a.store.count())
			assert.Nil(t, sessionCookie(rec))
			assert.Empty(t, sessionKeys(a.mr))
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)

	rec := a.do(http.MethodPost, "/signup", url.Values{"name": {"Other"}, "email": {"ann@x.com"}, "password": {"zzzzz"}}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), handler.MsgEmailTaken)
	assert.Equal(t, 1, a.store.count())
	assert.Nil(t, sessionCookie(rec))
	assert.Empty(t, sessionKeys(a.mr))
	assert.Empty(t, a.events.types())
}

func TestLogin_Success(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)

	rec := a.do(http.MethodPost, "/login", url.Values{"email": {" ann@x.com "}, "password": {"abcde"}}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/members", rec.Header().Get(echo.HeaderLocation))
	assert.NotNil(t, sessionCookie(rec))
	assert.Len(t, sessionKeys(a.mr), 1)
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)

	wrongPassword := a.do(http.MethodPost, "/login", url.Values{"email": {"ann@x.com"}, "password": {"wrong"}}, nil)
	unknownEmail := a.do(http.MethodPost, "/login", url.Values{"email": {"bob@x.com"}, "password": {"wrong"}}, nil)

	for _, rec := range []*httptest.ResponseRecorder{wrongPassword, unknownEmail} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), handler.MsgInvalidCredentials)
		assert.Nil(t, sessionCookie(rec))
	}
	assert.Equal(t,
		strings.ReplaceAll(wrongPassword.Body.String(), "ann@x.com", "EMAIL"),
		strings.ReplaceAll(unknownEmail.Body.String(), "bob@x.com", "EMAIL"))
	assert.Empty(t, sessionKeys(a.mr))
}

func TestLogin_BadShape(t *testing.T) {
	a := newApp(t, nil)

	rec := a.do(http.MethodPost, "/login", url.Values{"email": {"not-an-email"}, "password": {"abcde"}}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be a valid email")
	assert.NotContains(t, rec.Body.String(), handler.MsgInvalidCredentials)
}

func TestLogin_CorruptStoredHash(t *testing.T) {
	a := newApp(t, nil)
	_, err := a.store.Create(context.Background(), "Ann", "ann@x.com", "not-a-bcrypt-hash", model.RoleUser)
	require.NoError(t, err)

	rec := a.do(http.MethodPost, "/login", url.Values{"email": {"ann@x.com"}, "password": {"abcde"}}, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, sessionCookie(rec))
}

func TestLogin_ReplacesExistingSession(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	first := a.login(t, "ann@x.com", "abcde")

	rec := a.do(http.MethodPost, "/login", url.Values{"email": {"ann@x.com"}, "password": {"abcde"}}, first)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	assert.Equal(t, http.StatusSeeOther, a.do(http.MethodGet, "/members", nil, first).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/members", nil, sessionCookie(rec)).Code)
}

func TestGuards_Anonymous(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)

	for _, path := range []string{"/members", "/admin", "/promote/u-1", "/demote/u-1"} {
		t.Run(path, func(t *testing.T) {
			rec := a.do(http.MethodGet, path, nil, nil)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, middleware.LoginPath, rec.Header().Get(echo.HeaderLocation))
			assert.NotContains(t, rec.Body.String(), "members only")
		})
	}

	u, _ := a.store.GetByID(context.Background(), "u-1")
	assert.Equal(t, model.RoleUser, u.Role)
}

func TestGuards_MemberIsForbiddenFromAdmin(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	c := a.login(t, "ann@x.com", "abcde")

	for _, path := range []string{"/admin", "/promote/u-1"} {
		rec := a.do(http.MethodGet, path, nil, c)

		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "You do not have access to this page.")
	}

	u, _ := a.store.GetByID(context.Background(), "u-1")
	assert.Equal(t, model.RoleUser, u.Role)
}

func TestAdmin_ListsAllUsers(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	a.seed(t, "Bob", "bob@x.com", "abcde", model.RoleAdmin)
	c := a.login(t, "bob@x.com", "abcde")

	rec := a.do(http.MethodGet, "/admin", nil, c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ann@x.com")
	assert.Contains(t, rec.Body.String(), "bob@x.com")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestPromote_TakesEffectOnLiveSession(t *testing.T) {
	a := newApp(t, nil)
	ann := a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	bob := a.seed(t, "Bob", "bob@x.com", "abcde", model.RoleAdmin)
	annCookie := a.login(t, "ann@x.com", "abcde")
	bobCookie := a.login(t, "bob@x.com", "abcde")

	require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/admin", nil, annCookie).Code)

	rec := a.do(http.MethodGet, "/promote/"+ann.ID, nil, bobCookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get(echo.HeaderLocation))

	u, _ := a.store.GetByID(context.Background(), ann.ID)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/admin", nil, annCookie).Code)

	require.Len(t, a.events.events, 1)
	assert.Equal(t, queue.UserRoleChanged, a.events.events[0].Type)
	assert.Equal(t, bob.ID, a.events.events[0].ActorID)
}

func TestDemote_RevokesAdminImmediately(t *testing.T) {
	a := newApp(t, nil)
	ann := a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleAdmin)
	a.seed(t, "Bob", "bob@x.com", "abcde", model.RoleAdmin)
	annCookie := a.login(t, "ann@x.com", "abcde")
	bobCookie := a.login(t, "bob@x.com", "abcde")

	require.Equal(t, http.StatusSeeOther, a.do(http.MethodGet, "/demote/"+ann.ID, nil, bobCookie).Code)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/admin", nil, annCookie).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/members", nil, annCookie).Code)
}

func TestPromote_UnknownID(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Bob", "bob@x.com", "abcde", model.RoleAdmin)
	c := a.login(t, "bob@x.com", "abcde")

	rec := a.do(http.MethodGet, "/promote/missing", nil, c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotContains(t, rec.Body.String(), "user not found")
	assert.Empty(t, a.events.types())
}

func TestLogout(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	c := a.login(t, "ann@x.com", "abcde")

	rec := a.do(http.MethodGet, "/logout", nil, c)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	assert.Contains(t, rec.Header().Get(echo.HeaderSetCookie), "Max-Age=0")
	assert.Empty(t, sessionKeys(a.mr))

	again := a.do(http.MethodGet, "/members", nil, c)
	assert.Equal(t, http.StatusSeeOther, again.Code)
	assert.Equal(t, "/login", again.Header().Get(echo.HeaderLocation))
}

func TestLogout_WithoutSession(t *testing.T) {
	a := newApp(t, nil)

	rec := a.do(http.MethodGet, "/logout", nil, nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestSession_ExpiresAfterTTL(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	c := a.login(t, "ann@x.com", "abcde")

	a.mr.FastForward(59 * time.Minute)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/members", nil, c).Code)

	a.mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusSeeOther, a.do(http.MethodGet, "/members", nil, c).Code)
}

func TestSessionStoreDown(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)
	c := a.login(t, "ann@x.com", "abcde")

	a.mr.SetError("ERR session store failure")

	rec := a.do(http.MethodGet, "/members", nil, c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
}

func TestHomeAndForms(t *testing.T) {
	a := newApp(t, nil)
	a.seed(t, "Ann", "ann@x.com", "abcde", model.RoleUser)

	assert.Contains(t, a.do(http.MethodGet, "/", nil, nil).Body.String(), "Welcome")
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/signup", nil, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/login", nil, nil).Code)

	c := a.login(t, "ann@x.com", "abcde")
	assert.Contains(t, a.do(http.MethodGet, "/", nil, c).Body.String(), "Hello, Ann!")
}

func TestNotFoundAndHealth(t *testing.T) {
	a := newApp(t, nil)

	rec := a.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")

	health := a.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, "ok", health.Body.String())

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/static/img/img1.svg", nil, nil).Code)
}

func TestLogin_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := middleware.NewTokenBucket(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}, rdb, logger.Nop())
	a := newApp(t, limiter)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = a.do(http.MethodPost, "/login", url.Values{"email": {"ann@x.com"}, "password": {"wrong"}}, nil)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "Too many attempts")

	// other routes are not limited
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/login", nil, nil).Code)
}

func TestAuditPublishFailureIsLogged(t *testing.T) {
	a := newApp(t, nil)
	a.events.err = errors.New("broker down")
	a.seed(t, "Bob", "bob@x.com", "abcde", model.RoleAdmin)
	c := a.login(t, "bob@x.com", "abcde")

	signup := a.do(http.MethodPost, "/signup", url.Values{"name": {"Ann"}, "email": {"ann@x.com"}, "password": {"abcde"}}, nil)
	require.Equal(t, http.StatusSeeOther, signup.Code)

	ann, err := a.store.GetByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	promote := a.do(http.MethodGet, "/promote/"+ann.ID, nil, c)
	require.Equal(t, http.StatusSeeOther, promote.Code)

	assert.Equal(t, []string{queue.UserRegistered, queue.UserRoleChanged}, a.events.types())
	assert.Equal(t, 2, strings.Count(a.logs.String(), "publish account event failed"))
	assert.Contains(t, a.logs.String(), "broker down")
}
