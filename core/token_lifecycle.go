package core

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TokenState is the cached access token. A zero IssuedAt means no token has
// been obtained, or the last one was invalidated.
type TokenState struct {
	AccessToken string
	IssuedAt    time.Time
}

// IsFresh reports whether the token can still be used at now. The window is
// half open: a token issued at T is fresh for now in [T, T+window).
func (s TokenState) IsFresh(now time.Time, window time.Duration) bool {
	if s.IssuedAt.IsZero() || strings.TrimSpace(s.AccessToken) == "" {
		return false
	}
	return now.Sub(s.IssuedAt) < window
}

// RefreshResult reports one completed exchange.
type RefreshResult struct {
	IssuedAt        time.Time
	ExpiresAt       time.Time
	ValidityWindow  time.Duration
	ProviderExpires time.Duration
}

// TokenManager owns the access token for the whole process. Refreshes are
// serialized: concurrent callers that all observe a stale token trigger a
// single exchange and then share its result.
type TokenManager struct {
	mu        sync.Mutex
	exchanger TokenExchanger
	window    time.Duration
	now       func() time.Time
	state     TokenState
	observer  *Observer
}

type TokenManagerOption func(*TokenManager)

func WithTokenClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithTokenValidity(window time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if window > 0 {
			m.window = window
		}
	}
}

func WithTokenObserver(observer *Observer) TokenManagerOption {
	return func(m *TokenManager) {
		m.observer = observer
	}
}

func NewTokenManager(exchanger TokenExchanger, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		exchanger: exchanger,
		window:    DefaultTokenValidity,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// EnsureValid returns a fresh token, refreshing first when the cached one is
// missing or older than the validity window. On failure the state stays
// stale and the error is an AUTH_ERROR.
func (m *TokenManager) EnsureValid(ctx context.Context) (string, error) {
	if m == nil {
		return "", NewAuthError(nil, 0)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.IsFresh(m.now(), m.window) {
		return m.state.AccessToken, nil
	}
	if _, err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.state.AccessToken, nil
}

// Refresh forces an exchange regardless of freshness. A failed exchange
// keeps the current token, fresh or not.
func (m *TokenManager) Refresh(ctx context.Context) (RefreshResult, error) {
	if m == nil {
		return RefreshResult{}, NewAuthError(nil, 0)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// Invalidate marks the cached token stale so the next call refreshes.
func (m *TokenManager) Invalidate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IssuedAt = time.Time{}
}

// State returns a copy of the cached token state.
func (m *TokenManager) State() TokenState {
	if m == nil {
		return TokenState{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// refreshLocked replaces the state only on success.
func (m *TokenManager) refreshLocked(ctx context.Context) (RefreshResult, error) {
	if m.exchanger == nil {
		return RefreshResult{}, NewAuthError(nil, 0)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	issued, err := m.exchanger.Exchange(ctx)
	if err != nil {
		if IsAuthError(err) {
			return RefreshResult{}, err
		}
		return RefreshResult{}, NewAuthError(err, 0)
	}
	if strings.TrimSpace(issued.AccessToken) == "" {
		return RefreshResult{}, NewAuthError(nil, 0).WithMetadata(map[string]any{"reason": "missing access_token"})
	}

	issuedAt := m.now()
	m.state = TokenState{AccessToken: issued.AccessToken, IssuedAt: issuedAt}
	m.observer.Debug(ctx, "access token refreshed", map[string]any{
		"issued_at":        issuedAt.UTC().Format(time.RFC3339),
		"validity_seconds": int64(m.window / time.Second),
	})
	return RefreshResult{
		IssuedAt:        issuedAt,
		ExpiresAt:       issuedAt.Add(m.window),
		ValidityWindow:  m.window,
		ProviderExpires: issued.ExpiresIn,
	}, nil
}
