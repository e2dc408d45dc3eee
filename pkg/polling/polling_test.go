package polling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visingers/visingers-sync/pkg/censor"
	"github.com/visingers/visingers-sync/pkg/platforms"
	"github.com/visingers/visingers-sync/pkg/platforms/github"
	"github.com/visingers/visingers-sync/pkg/platforms/memory"
	"github.com/visingers/visingers-sync/pkg/profile"
	"github.com/visingers/visingers-sync/pkg/storage"
)

// countingStore records every write that reaches the database.
type countingStore struct {
	*storage.DB
	writes atomic.Int32
}

func (s *countingStore) UpdateStars(ctx context.Context, id int64, stars int) error {
	s.writes.Add(1)
	return s.DB.UpdateStars(ctx, id, stars)
}

func (s *countingStore) SaveProfile(ctx context.Context, p *storage.Profile, runID string) (storage.Change, error) {
	s.writes.Add(1)
	return s.DB.SaveProfile(ctx, p, runID)
}

func (s *countingStore) DeleteMissingProfiles(ctx context.Context, keep []storage.ProfileKey, runID string) ([]storage.Change, error) {
	changes, err := s.DB.DeleteMissingProfiles(ctx, keep, runID)
	s.writes.Add(int32(len(changes)))
	return changes, err
}

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func readmeFor(heading, voicebank string) string {
	return "# " + heading + "\n" +
		"Hello from " + heading + "\n" +
		"# Info\n- age: 20\n" +
		"# " + voicebank + "\n" +
		"A voicebank.\n- Languages: en, japanese\n- Type: utau\n" +
		"# Videos\nhttps://www.youtube.com/watch?v=AbCdEfGhIjK\n"
}

func str(s string) *string { return &s }

type fixture struct {
	hub   *memory.Hub
	store *countingStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "visingers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &fixture{hub: memory.New(), store: &countingStore{DB: db}}
}

func (f *fixture) put(owner, name, heading string, pushed time.Time, topics ...string) platforms.Repository {
	text := readmeFor(heading, heading+" Natural")
	return f.putReadme(owner, name, text, pushed, topics...)
}

func (f *fixture) putReadme(owner, name, text string, pushed time.Time, topics ...string) platforms.Repository {
	repo := platforms.Repository{
		Owner:         owner,
		Name:          name,
		Topics:        append([]string{DefaultTopic}, topics...),
		Stars:         1,
		DefaultBranch: "main",
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
		PushedAt:      pushed,
	}
	entries := []platforms.Entry{
		{Name: "README.md", Type: platforms.EntryBlob, Path: "README.md", Size: int64(len(text)), Text: str(text)},
		{Name: "image.png", Type: platforms.EntryBlob, Path: "image.png", Size: 2048},
	}
	releases := []platforms.Release{
		{Name: "v1.0", Assets: []platforms.Asset{{Name: name + ".zip", URL: "https://dl/" + name + "/v1.0.zip"}}},
	}
	f.hub.Put(repo, entries, releases)
	return repo
}

func (f *fixture) config() Config {
	return Config{Hub: f.hub, Store: f.store, WipeGuard: 10}
}

func (f *fixture) profile(t *testing.T, owner, name string) *storage.Profile {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), storage.ProfileKey{CreatorLogin: owner, RepositoryName: name})
	require.NoError(t, err)
	return p
}

func TestPassCreatesProfiles(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime, "visingers-kawaii", "en", "utau", "alice")
	f.put("bob", "bob-voice", "Bob", baseTime)
	f.put("carol", "visingers-template", "Template", baseTime)
	f.putReadme("dave", "dave-voice", "no heading here", baseTime)
	f.hub.PutUser(platforms.User{Login: "alice", DisplayName: "Alice A."})
	f.hub.PutDirectory("alice", "alice-voice", "gallery", []platforms.DirEntry{
		{Name: "one.png", DownloadURL: "https://raw/one.png"},
		{Name: "notes.txt", DownloadURL: "https://raw/notes.txt"},
	})
	// Add a gallery tree entry to alice's repository.
	repo := f.put("alice", "alice-voice", "Alice", baseTime, "visingers-kawaii", "en", "utau", "alice")
	tree, err := f.hub.FetchTree(context.Background(), "alice", "alice-voice")
	require.NoError(t, err)
	releases, err := f.hub.ListReleases(context.Background(), "alice", "alice-voice")
	require.NoError(t, err)
	f.hub.Put(repo, append(tree, platforms.Entry{Name: "gallery", Type: platforms.EntryTree, Path: "gallery"}), releases)

	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Discovered)
	assert.Equal(t, 2, res.Count(OutcomeCreated))
	assert.Equal(t, 1, res.Count(OutcomeTemplate))
	assert.Equal(t, 1, res.Count(OutcomeRejected))
	require.Len(t, res.Errors, 1)
	var perr *ParseError
	require.True(t, errors.As(res.Errors[0], &perr))
	assert.ErrorIs(t, perr, profile.ErrNoSections)

	p := f.profile(t, "alice", "alice-voice")
	require.NotNil(t, p)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "Alice A.", p.Creator.DisplayName)
	assert.Equal(t, "https://raw.githubusercontent.com/alice/alice-voice/main/image.png", p.AvatarURL)
	assert.Equal(t, []string{"https://raw/one.png"}, p.ImageURLs)
	assert.Equal(t, []string{"AbCdEfGhIjK"}, p.VideoIDs)
	require.Len(t, p.Tags, 1)
	assert.Equal(t, "kawaii", p.Tags[0].Name)
	require.Len(t, p.Voicebanks, 1)
	assert.Equal(t, "Alice Natural", p.Voicebanks[0].Name)
	assert.Equal(t, "https://dl/alice-voice/v1.0.zip", p.Voicebanks[0].URL)

	assert.Nil(t, f.profile(t, "dave", "dave-voice"))
}

func TestPassIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	f.put("bob", "bob-voice", "Bob", baseTime)

	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.store.writes.Load())
	trees := f.hub.Calls(memory.OpTree)

	f.store.writes.Store(0)
	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.store.writes.Load())
	assert.Equal(t, 2, res.Count(OutcomeUnchanged))
	assert.Equal(t, trees, f.hub.Calls(memory.OpTree))
	assert.Empty(t, res.Changes)
}

func TestStaleCandidateOnlyRefreshesStars(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	// Same activity time: new content and stars must not trigger a re-parse.
	repo := f.put("alice", "alice-voice", "Renamed", baseTime)
	repo.Stars = 99
	tree, _ := f.hub.FetchTree(context.Background(), "alice", "alice-voice")
	f.hub.Put(repo, tree, nil)
	trees := f.hub.Calls(memory.OpTree)

	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(OutcomeRefreshed))
	assert.Equal(t, trees, f.hub.Calls(memory.OpTree))

	p := f.profile(t, "alice", "alice-voice")
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 99, p.Stars)
}

func TestNewerActivityUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime, "visingers-kawaii")
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	before := f.profile(t, "alice", "alice-voice")

	f.put("alice", "alice-voice", "Alice Two", baseTime.Add(time.Hour), "cute")
	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(OutcomeUpdated))
	require.Len(t, res.Changes, 1)
	assert.Equal(t, storage.ChangeUpdated, res.Changes[0].ChangeType)

	after := f.profile(t, "alice", "alice-voice")
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "Alice Two", after.Name)
	assert.Equal(t, baseTime.Add(time.Hour), after.LastActivity)
	require.Len(t, after.Tags, 1)
	assert.Equal(t, "cute", after.Tags[0].Name)
	require.Len(t, after.Voicebanks, 1)
	assert.Equal(t, "Alice Two Natural", after.Voicebanks[0].Name)
}

func TestRemovedRepositoryIsDeleted(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	f.put("bob", "bob-voice", "Bob", baseTime)
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	f.hub.Remove("bob", "bob-voice")
	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, storage.ChangeRemoved, res.Changes[0].ChangeType)
	assert.Nil(t, f.profile(t, "bob", "bob-voice"))

	stats, err := f.store.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Profiles)
	assert.Equal(t, 1, stats.Voicebanks)
}

func TestParseFailureKeepsExistingProfile(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	// Newer activity but the voicebank no longer resolves.
	text := "# Alice\nhi\n# Info\n# Alice Natural\n- Languages: klingon\n- Type: utau\n"
	f.putReadme("alice", "alice-voice", text, baseTime.Add(time.Hour))

	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(OutcomeRejected))
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], profile.ErrNoVoicebanks)

	p := f.profile(t, "alice", "alice-voice")
	require.NotNil(t, p)
	assert.Equal(t, baseTime, p.LastActivity)
	assert.Len(t, p.Voicebanks, 1)
}

func TestDiscoveryFailureAbortsPass(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	f.hub.Fail(memory.OpSearch, "", errors.New("rate limited"))
	res, err := PollRepositories(context.Background(), f.config())
	assert.Nil(t, res)
	var derr *DiscoveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 1, derr.Page)
	assert.NotNil(t, f.profile(t, "alice", "alice-voice"))
}

func TestDiscoveryPaginatesAndDeduplicates(t *testing.T) {
	f := newFixture(t)
	f.hub.PageSize = 2
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		f.put("owner", name, "Singer "+name, baseTime)
	}
	found, err := Discover(context.Background(), f.hub, DefaultTopic)
	require.NoError(t, err)
	assert.False(t, found.Truncated)
	repos := found.Repositories
	require.Len(t, repos, 5)
	assert.Equal(t, "a", repos[0].Name)
	assert.Equal(t, "e", repos[4].Name)
	assert.Equal(t, 3, f.hub.Calls(memory.OpSearch))
}

func TestDiscoveryStopsAtSearchLimit(t *testing.T) {
	f := newFixture(t)
	f.hub.PageSize = 2
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		f.put("owner", name, "Singer "+name, baseTime)
	}
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	f.hub.SearchLimit = 4
	found, err := Discover(context.Background(), f.hub, DefaultTopic)
	require.NoError(t, err)
	assert.True(t, found.Truncated)
	assert.Equal(t, 6, found.Total)
	assert.Len(t, found.Repositories, 4)

	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, res.SweepSkipped)
	assert.Equal(t, 4, res.Discovered)
	assert.Empty(t, res.Changes)
	assert.NotNil(t, f.profile(t, "owner", "e"))
	assert.NotNil(t, f.profile(t, "owner", "f"))
}

func TestDiscoveryAgainstGitHubResultCap(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page*github.PAGE_SIZE > github.SEARCH_RESULT_LIMIT {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message": "Only the first 1000 search results are available"}`)
			return
		}
		items := make([]string, 0, github.PAGE_SIZE)
		for i := 0; i < github.PAGE_SIZE; i++ {
			items = append(items, fmt.Sprintf(`{"name": "repo-%d-%d", "owner": {"login": "owner"}, "topics": ["visingers"]}`, page, i))
		}
		fmt.Fprintf(w, `{"total_count": 1500, "items": [%s]}`, strings.Join(items, ","))
	}))
	defer srv.Close()
	hub := github.NewClient("secret", github.WithBaseURLs(srv.URL, srv.URL+"/graphql"), github.WithRetryMax(0))

	found, err := Discover(context.Background(), hub, DefaultTopic)
	require.NoError(t, err)
	assert.True(t, found.Truncated)
	assert.Equal(t, 1500, found.Total)
	assert.Len(t, found.Repositories, github.SEARCH_RESULT_LIMIT)
	assert.Equal(t, int32(github.SEARCH_RESULT_LIMIT/github.PAGE_SIZE), requests.Load())
}

func TestDefaultCensorMasksReadme(t *testing.T) {
	f := newFixture(t)
	text := "# Alice\nWhat the fuck\n# Info\n- age: 20\n# Alice Soft\nSoft.\n- Languages: en\n- Type: utau\n"
	f.putReadme("alice", "alice-voice", text, baseTime)

	cfg := f.config()
	cfg.Censor = censor.Default()
	res, err := PollRepositories(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(OutcomeCreated))

	p := f.profile(t, "alice", "alice-voice")
	require.NotNil(t, p)
	en, ok := p.Details.Get("en")
	require.True(t, ok)
	assert.NotContains(t, en.Description, "fuck")
	assert.Contains(t, en.Description, "****")
}

func TestWipeGuard(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	f.put("bob", "bob-voice", "Bob", baseTime)
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	f.hub.Remove("alice", "alice-voice")
	f.hub.Remove("bob", "bob-voice")

	cfg := f.config()
	cfg.WipeGuard = 1
	res, err := PollRepositories(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, res.SweepSkipped)
	assert.NotNil(t, f.profile(t, "alice", "alice-voice"))

	cfg.WipeGuard = 0
	res, err = PollRepositories(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, res.SweepSkipped)
	assert.Len(t, res.Changes, 2)
}

func TestFetchErrorIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	f.put("bob", "bob-voice", "Bob", baseTime)
	f.hub.Fail(memory.OpTree, "alice/alice-voice", errors.New("boom"))

	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(OutcomeFailed))
	assert.Equal(t, 1, res.Count(OutcomeCreated))
	var ferr *FetchError
	require.True(t, errors.As(res.Errors[0], &ferr))
	assert.Equal(t, "tree", ferr.Op)
	assert.Nil(t, f.profile(t, "alice", "alice-voice"))
	assert.NotNil(t, f.profile(t, "bob", "bob-voice"))
}

func TestStoredCreatorIsReused(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-one", "Alice", baseTime)
	f.put("alice", "alice-two", "Alicia", baseTime)

	res, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count(OutcomeCreated))
	assert.Equal(t, 1, f.hub.Calls(memory.OpUser))
}

func TestCreatorNameDefaultsToLogin(t *testing.T) {
	f := newFixture(t)
	f.put("bob", "bob-voice", "Bob", baseTime)

	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)

	p := f.profile(t, "bob", "bob-voice")
	require.NotNil(t, p)
	assert.Equal(t, "bob", p.Creator.DisplayName)
}

func TestConcurrentPassSerializesWrites(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		f.put("owner-"+name, name, "Singer "+name, baseTime, "visingers-shared")
	}
	cfg := f.config()
	cfg.Concurrency = 4
	res, err := PollRepositories(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Count(OutcomeCreated))

	stats, err := f.store.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tags)
}

func TestCancelledPassFinishesCurrentRepository(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)
	f.put("bob", "bob-voice", "Bob", baseTime)
	f.put("carol", "carol-voice", "Carol", baseTime)
	_, err := PollRepositories(context.Background(), f.config())
	require.NoError(t, err)
	f.hub.Remove("carol", "carol-voice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := f.config()
	var once sync.Once
	cfg.OnRepositoryDone = func(platforms.Repository, Outcome, error) { once.Do(cancel) }

	res, err := PollRepositories(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Count(OutcomeUnchanged))
	assert.Equal(t, 1, res.Count(OutcomeSkipped))
	assert.True(t, res.SweepSkipped)
	assert.NotNil(t, f.profile(t, "carol", "carol-voice"))
}

func TestIsTemplate(t *testing.T) {
	assert.True(t, IsTemplate("visingers-template"))
	assert.True(t, IsTemplate("My-Template-Repo"))
	assert.False(t, IsTemplate("alice-voice"))
}

func TestNewSchedulerRunsPasses(t *testing.T) {
	f := newFixture(t)
	f.put("alice", "alice-voice", "Alice", baseTime)

	cfg := f.config()
	cfg.RunID = "fixed"
	s := NewScheduler(time.Hour, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Passes() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	last := s.Last()
	require.NotNil(t, last)
	assert.True(t, last.Success)
	require.NotNil(t, last.Result)
	assert.NotEqual(t, "fixed", last.Result.RunID)
	assert.Equal(t, 1, last.Result.Count(OutcomeCreated))
	assert.NotNil(t, f.profile(t, "alice", "alice-voice"))
}
