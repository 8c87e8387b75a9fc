package operations

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-crmbridge/core"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	err         error
	ensured     int
	invalidated int
	refreshed   int
}

func (f *fakeTokens) EnsureValid(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	if f.err != nil {
		return "", f.err
	}
	if f.token == "" {
		return "token-1", nil
	}
	return f.token, nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeTokens) Refresh(context.Context) (core.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	if f.err != nil {
		return core.RefreshResult{}, f.err
	}
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return core.RefreshResult{
		IssuedAt:       issued,
		ExpiresAt:      issued.Add(time.Hour),
		ValidityWindow: time.Hour,
	}, nil
}

type reply struct {
	status int
	body   string
}

// fakeCRM answers by "METHOD path" and records every request it sees.
type fakeCRM struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []core.RequestDescriptor
	tokens   []string
	err      error
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{replies: map[string]reply{}}
}

func (f *fakeCRM) on(method, path string, status int, body string) *fakeCRM {
	f.replies[method+" "+path] = reply{status: status, body: body}
	return f
}

func (f *fakeCRM) Send(_ context.Context, req core.RequestDescriptor, token string) (core.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return core.RawResponse{}, f.err
	}
	r, ok := f.replies[req.NormalizedMethod()+" "+req.Path]
	if !ok {
		return core.RawResponse{StatusCode: http.StatusNotFound, Body: []byte(`{"code":"INVALID_URL_PATTERN"}`)}, nil
	}
	return core.RawResponse{StatusCode: r.status, Body: []byte(r.body)}, nil
}

func (f *fakeCRM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeCRM) request(i int) core.RequestDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeCRM) bodyJSON(i int) string {
	raw, _ := json.Marshal(f.request(i).Body)
	return string(raw)
}

func records(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = `{"id":"` + strings.Repeat("1", i+1) + `"}`
	}
	return `{"data":[` + strings.Join(items, ",") + `],"info":{"more_records":false}}`
}

func intRef(v int) *int {
	return &v
}

type recordingSink struct {
	mu      sync.Mutex
	entries []core.ActivityEntry
}

func (s *recordingSink) Record(_ context.Context, entry core.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}
