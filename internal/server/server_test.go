package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/visingers/visingers-sync/pkg/polling"
	"github.com/visingers/visingers-sync/pkg/storage"
)

type fakeStore struct {
	stats   storage.Stats
	changes []storage.Change
	err     error
	limit   int
}

func (f *fakeStore) GetStats(context.Context) (storage.Stats, error) { return f.stats, f.err }

func (f *fakeStore) ListRecentChanges(_ context.Context, limit int) ([]storage.Change, error) {
	f.limit = limit
	return f.changes, f.err
}

type fakeScheduler struct{ last *polling.Status }

func (f fakeScheduler) Last() *polling.Status { return f.last }
func (f fakeScheduler) Running() bool         { return false }
func (f fakeScheduler) Passes() int           { return 4 }

func get(t *testing.T, h http.Handler, target string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	sched := fakeScheduler{last: &polling.Status{
		StartedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Success:   true,
		Result:    &polling.PassResult{RunID: "run-1", Outcomes: map[polling.Outcome]int{polling.OutcomeCreated: 2}},
	}}
	h := New(&fakeStore{}, sched, "", "").Handler()

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.EqualValues(t, 4, gjson.Get(body, "passes").Int())
	assert.Equal(t, "run-1", gjson.Get(body, "last.result.runId").Str)
	assert.EqualValues(t, 2, gjson.Get(body, "last.result.outcomes.created").Int())
}

func TestStatsAndChanges(t *testing.T) {
	store := &fakeStore{
		stats:   storage.Stats{Profiles: 3, Voicebanks: 5},
		changes: []storage.Change{{RunID: "r", CreatorLogin: "alice", RepositoryName: "alice-voice", ChangeType: storage.ChangeAdded}},
	}
	h := New(store, nil, "", "").Handler()

	rec := get(t, h, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, gjson.Get(rec.Body.String(), "profiles").Int())

	rec = get(t, h, "/api/changes?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, store.limit)
	assert.Equal(t, "added", gjson.Get(rec.Body.String(), "0.changeType").Str)

	rec = get(t, h, "/api/changes?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gjson.Get(rec.Body.String(), "running").Bool())
}

func TestStoreErrors(t *testing.T) {
	h := New(&fakeStore{err: errors.New("db down")}, nil, "", "").Handler()
	rec := get(t, h, "/api/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	h := New(&fakeStore{}, nil, "admin", "pw").Handler()

	rec := get(t, h, "/api/stats")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = get(t, h, "/api/stats", "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, h, "/api/stats", "admin", "pw")
	assert.Equal(t, http.StatusOK, rec.Code)
}
