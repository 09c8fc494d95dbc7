package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliberation/internal/config"
	"deliberation/internal/db"
	"deliberation/internal/events"
	"deliberation/internal/migrate"
	"deliberation/internal/repo"
)

type delivery struct {
	Header http.Header
	Body   webhookEvent
}

type sink struct {
	mu     sync.Mutex
	status int
	got    []delivery
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != 0 && s.status != http.StatusOK {
		w.WriteHeader(s.status)
		return
	}
	s.got = append(s.got, delivery{Header: r.Header.Clone(), Body: evt})
}

func (s *sink) deliveries() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery(nil), s.got...)
}

func (s *sink) setStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func appendEvent(t *testing.T, r repo.Repo, evtType, entityID string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, events.Writer{}.Append(ctx, tx, evtType, "project", entityID, "tester", events.EventPayload{"n": 1}))
	require.NoError(t, tx.Commit())
}

func TestDispatcherDeliversFilteredEvents(t *testing.T) {
	r := newRepo(t)
	s := &sink{}
	server := httptest.NewServer(s)
	defer server.Close()

	appendEvent(t, r, events.TypeProjectCompleted, "before-start")
	d := NewDispatcher(r, []config.WebhookConfig{{
		URL:    server.URL,
		Secret: "shh",
		Events: []string{events.TypeProjectCompleted},
	}}, nil)
	require.NotNil(t, d)
	ctx := context.Background()
	d.DispatchOnce(ctx)
	assert.Empty(t, s.deliveries(), "events before start are not replayed")

	appendEvent(t, r, events.TypeMetricsApplied, "project-1")
	appendEvent(t, r, events.TypeProjectCompleted, "project-1")
	d.DispatchOnce(ctx)

	got := s.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeProjectCompleted, got[0].Body.Type)
	assert.Equal(t, "project-1", got[0].Body.EntityID)
	assert.JSONEq(t, `{"n":1}`, string(got[0].Body.Payload))
	assert.Equal(t, "shh", got[0].Header.Get("X-Deliberation-Secret"))
	assert.Equal(t, events.TypeProjectCompleted, got[0].Header.Get("X-Deliberation-Event"))

	d.DispatchOnce(ctx)
	assert.Len(t, s.deliveries(), 1, "delivered events are not resent")
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	r := newRepo(t)
	s := &sink{status: http.StatusInternalServerError}
	server := httptest.NewServer(s)
	defer server.Close()

	d := NewDispatcher(r, []config.WebhookConfig{{URL: server.URL}}, nil)
	ctx := context.Background()
	d.DispatchOnce(ctx)

	appendEvent(t, r, events.TypeProjectCompleted, "project-2")
	d.DispatchOnce(ctx)
	assert.Empty(t, s.deliveries())

	s.setStatus(http.StatusOK)
	d.DispatchOnce(ctx)
	require.Len(t, s.deliveries(), 1)
	assert.Equal(t, "project-2", s.deliveries()[0].Body.EntityID)
}

func TestNewDispatcherSkipsInactiveHooks(t *testing.T) {
	off := false
	assert.Nil(t, NewDispatcher(repo.Repo{}, nil, nil))
	assert.Nil(t, NewDispatcher(repo.Repo{}, []config.WebhookConfig{{URL: "http://example.test", Enabled: &off}, {URL: " "}}, nil))
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{" "}).match("anything"))
	f := newEventFilter([]string{"project.completed"})
	assert.True(t, f.match("project.completed"))
	assert.False(t, f.match("metrics.applied"))
}
