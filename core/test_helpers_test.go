package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingExchanger struct {
	calls atomic.Int64
	delay time.Duration
	err   error
	token string
}

func (e *countingExchanger) Exchange(ctx context.Context) (IssuedToken, error) {
	n := e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return IssuedToken{}, ctx.Err()
		}
	}
	if e.err != nil {
		return IssuedToken{}, e.err
	}
	token := e.token
	if token == "" {
		token = fmt.Sprintf("access-%d", n)
	}
	return IssuedToken{AccessToken: token, TokenType: "Bearer", ExpiresIn: time.Hour}, nil
}

type memorySink struct {
	mu      sync.Mutex
	entries []ActivityEntry
	err     error
}

func (s *memorySink) Record(_ context.Context, entry ActivityEntry) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) snapshot() []ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActivityEntry(nil), s.entries...)
}

var errSinkDown = errors.New("sink down")

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return normalizeRawConfig(cloneFields(l.values))
}
