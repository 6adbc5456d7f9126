// Package session keeps the server-side mapping from an opaque cookie token
// to the identity snapshot of the user who logged in.  Redis is the source of
// truth: a token is valid exactly as long as its key exists.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/members-area/internal/config"
	"github.com/iliyamo/members-area/internal/model"
	"github.com/iliyamo/members-area/internal/utils"
)

var (
	// ErrAbsent means the token was empty, unknown or expired.
	ErrAbsent = errors.New("session absent")
	// ErrUnavailable wraps failures talking to the session store.
	ErrUnavailable = errors.New("session store unavailable")
)

// Manager creates, resolves and destroys sessions.  Expiry is a fixed TTL
// from the last write; resolving a session never extends it.
type Manager struct {
	rdb      redis.Cmdable
	cfg      config.SessionConfig
	newToken func() (string, error)
}

// NewManager returns a Manager storing sessions in rdb.
func NewManager(rdb redis.Cmdable, cfg config.SessionConfig) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "sess"
	}
	return &Manager{rdb: rdb, cfg: cfg, newToken: utils.NewSessionToken}
}

// TTL is the lifetime of a session and of its cookie.
func (m *Manager) TTL() time.Duration { return m.cfg.TTL }

// CookieName is the name of the cookie that carries the token.
func (m *Manager) CookieName() string { return m.cfg.CookieName }

func (m *Manager) key(hashed string) string { return m.cfg.Prefix + ":" + hashed }

func (m *Manager) userKey(userID string) string { return m.cfg.Prefix + ":user:" + userID }

// Create mints a token for u and stores its snapshot.  The returned token is
// what goes into the cookie; only its hash is used as the Redis key.
func (m *Manager) Create(ctx context.Context, u model.User) (string, error) {
	token, err := m.newToken()
	if err != nil {
		return "", fmt.Errorf("mint session token: %w", err)
	}
	payload, err := json.Marshal(u.Snapshot())
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	hashed := utils.HashToken(token)
	_, err = m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, m.key(hashed), payload, m.cfg.TTL)
		p.SAdd(ctx, m.userKey(u.ID), hashed)
		p.Expire(ctx, m.userKey(u.ID), m.cfg.TTL)
		return nil
	})
	if err != nil {
		return "", errors.Join(ErrUnavailable, fmt.Errorf("store session: %w", err))
	}
	return token, nil
}

// Resolve returns the snapshot held by token, or ErrAbsent.
func (m *Manager) Resolve(ctx context.Context, token string) (model.Snapshot, error) {
	if token == "" {
		return model.Snapshot{}, ErrAbsent
	}
	hashed := utils.HashToken(token)
	b, err := m.rdb.Get(ctx, m.key(hashed)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Snapshot{}, ErrAbsent
		}
		return model.Snapshot{}, errors.Join(ErrUnavailable, fmt.Errorf("get session: %w", err))
	}
	var s model.Snapshot
	if err := json.Unmarshal(b, &s); err != nil || s.ID == "" {
		// An unreadable record cannot identify anyone.
		_ = m.rdb.Del(ctx, m.key(hashed)).Err()
		return model.Snapshot{}, ErrAbsent
	}
	return s, nil
}

// Destroy removes the session behind token.  Unknown tokens are not an error.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hashed := utils.HashToken(token)
	s, err := m.Resolve(ctx, token)
	if err != nil && !errors.Is(err, ErrAbsent) {
		return err
	}
	_, err = m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, m.key(hashed))
		if s.ID != "" {
			p.SRem(ctx, m.userKey(s.ID), hashed)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrUnavailable, fmt.Errorf("delete session: %w", err))
	}
	return nil
}

// UpdateIdentity rewrites the snapshot of every live session of u, keeping
// each session's remaining TTL.  Sessions that already expired are dropped
// from the user index.
func (m *Manager) UpdateIdentity(ctx context.Context, u model.User) error {
	hashes, err := m.rdb.SMembers(ctx, m.userKey(u.ID)).Result()
	if err != nil {
		return errors.Join(ErrUnavailable, fmt.Errorf("list user sessions: %w", err))
	}
	payload, err := json.Marshal(u.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	for _, hashed := range hashes {
		err := m.rdb.SetArgs(ctx, m.key(hashed), payload, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
		switch {
		case errors.Is(err, redis.Nil):
			_ = m.rdb.SRem(ctx, m.userKey(u.ID), hashed).Err()
		case err != nil:
			return errors.Join(ErrUnavailable, fmt.Errorf("rewrite session: %w", err))
		}
	}
	return nil
}

// Cookie returns the cookie that hands token to the browser.  Its lifetime
// matches the session TTL.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL / time.Second),
		Expires:  time.Now().Add(m.cfg.TTL),
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie clears the session cookie in the browser.
func (m *Manager) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
