package polling

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/visingers/visingers-sync/pkg/censor"
	"github.com/visingers/visingers-sync/pkg/platforms"
	"github.com/visingers/visingers-sync/pkg/profile"
	"github.com/visingers/visingers-sync/pkg/resolve"
	"github.com/visingers/visingers-sync/pkg/storage"
)

const (
	DefaultTopic = "visingers"

	templateMarker = "template"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Store is the part of storage.DB a pass reads and writes.
type Store interface {
	LoadReference(ctx context.Context) (storage.Reference, error)
	LookupProfile(ctx context.Context, key storage.ProfileKey) (*storage.ProfileRef, error)
	GetCreator(ctx context.Context, login string) (*storage.Creator, error)
	FindTags(ctx context.Context, names []string) ([]storage.Tag, error)
	UpdateStars(ctx context.Context, id int64, stars int) error
	SaveProfile(ctx context.Context, p *storage.Profile, runID string) (storage.Change, error)
	ListProfileKeys(ctx context.Context) ([]storage.ProfileRef, error)
	DeleteMissingProfiles(ctx context.Context, keep []storage.ProfileKey, runID string) ([]storage.Change, error)
}

// Config holds everything PollRepositories needs for one pass.
type Config struct {
	Hub         platforms.Hub
	Store       Store
	Topic       string        // defaults to DefaultTopic
	Censor      censor.Censor // optional
	Concurrency int           // defaults to 1
	// WipeGuard skips the deletion sweep when discovery returns nothing
	// while the store holds more than this many profiles. 0 disables it.
	WipeGuard int
	RunID     string // generated when empty
	Log       Logger // optional; nil = no logging

	// OnRepositoryDone is called once per discovered repository, from
	// worker goroutines. Nil = no callback.
	OnRepositoryDone func(repo platforms.Repository, outcome Outcome, err error)
}

// Outcome is what a pass did with one repository.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeRefreshed Outcome = "refreshed" // star count only
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeTemplate  Outcome = "template"
	OutcomeRejected  Outcome = "rejected" // did not parse into a profile
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped" // pass cancelled before it started
)

// PassResult holds the outcome of one pass.
type PassResult struct {
	RunID      string           `json:"runId"`
	Topic      string           `json:"topic"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Discovered int              `json:"discovered"`
	Outcomes   map[Outcome]int  `json:"outcomes"`
	Changes    []storage.Change `json:"-"`
	Errors     []error          `json:"-"`
	// Truncated is set when discovery hit the platform's search result
	// limit. Repositories past it are neither reconciled nor deleted.
	Truncated bool `json:"truncated"`
	// SweepSkipped is set when the deletion sweep did not run.
	SweepSkipped bool `json:"sweepSkipped"`
}

// Count returns how many repositories ended with o.
func (r *PassResult) Count(o Outcome) int { return r.Outcomes[o] }

// PollRepositories runs one pass: discover, reconcile every candidate, then
// delete the stored profiles that are no longer discovered.
//
// Each repository is saved in its own transaction and store writes are
// serialized, so a failure only affects the repository it happened on. A
// failing deletion sweep is returned as the pass error. When ctx is
// cancelled no further repository is started, the one in progress is
// finished and the sweep is skipped.
func PollRepositories(ctx context.Context, cfg Config) (*PassResult, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	cen := cfg.Censor
	if cen == nil {
		cen = censor.Nop{}
	}

	result := &PassResult{
		RunID:     runID,
		Topic:     topic,
		StartedAt: time.Now().UTC(),
		Outcomes:  make(map[Outcome]int),
	}

	ref, err := cfg.Store.LoadReference(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load reference data", Err: err}
	}

	found, err := Discover(ctx, cfg.Hub, topic)
	if err != nil {
		log.Errorf("Discovery failed, abandoning pass %s: %v", runID, err)
		return nil, err
	}
	repos := found.Repositories
	result.Discovered = len(repos)
	result.Truncated = found.Truncated
	if found.Truncated {
		log.Warnf("Topic %q has %d repositories but search only serves the first %d; skipping deletion sweep this pass", topic, found.Total, len(repos))
	}
	log.Infof("Pass %s: %d repositories carry topic %q", runID, len(repos), topic)

	r := &reconciler{
		hub:    cfg.Hub,
		store:  cfg.Store,
		ref:    ref,
		censor: cen,
		topic:  topic,
		runID:  runID,
		log:    log,
	}

	var resMu sync.Mutex
	record := func(repo platforms.Repository, o Outcome, change *storage.Change, err error) {
		resMu.Lock()
		result.Outcomes[o]++
		if change != nil {
			result.Changes = append(result.Changes, *change)
		}
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
		resMu.Unlock()
		if cfg.OnRepositoryDone != nil {
			cfg.OnRepositoryDone(repo, o, err)
		}
	}

	p := pool.New().WithMaxGoroutines(concurrency)
	for _, repo := range repos {
		p.Go(func() {
			if ctx.Err() != nil {
				record(repo, OutcomeSkipped, nil, nil)
				return
			}
			// The current repository is finished even if ctx is cancelled.
			o, change, err := r.process(context.WithoutCancel(ctx), repo)
			record(repo, o, change, err)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		result.SweepSkipped = true
		result.FinishedAt = time.Now().UTC()
		log.Warnf("Pass %s cancelled, skipping deletion sweep", runID)
		return result, err
	}

	if found.Truncated {
		result.SweepSkipped = true
		result.FinishedAt = time.Now().UTC()
		return result, nil
	}

	if len(repos) == 0 && cfg.WipeGuard > 0 {
		stored, err := cfg.Store.ListProfileKeys(ctx)
		if err != nil {
			return result, &PersistenceError{Op: "count profiles", Err: err}
		}
		if len(stored) > cfg.WipeGuard {
			log.Errorf("Discovery returned 0 repositories, but the store has %d profiles. Skipping deletion to prevent data loss.", len(stored))
			result.SweepSkipped = true
			result.FinishedAt = time.Now().UTC()
			return result, nil
		}
	}

	keep := make([]storage.ProfileKey, 0, len(repos))
	for _, repo := range repos {
		keep = append(keep, storage.ProfileKey{CreatorLogin: repo.Owner, RepositoryName: repo.Name})
	}
	removed, err := cfg.Store.DeleteMissingProfiles(ctx, keep, runID)
	if err != nil {
		result.FinishedAt = time.Now().UTC()
		return result, &PersistenceError{Op: "delete missing profiles", Err: err}
	}
	for _, c := range removed {
		log.Infof("Removed %s/%s", c.CreatorLogin, c.RepositoryName)
	}
	result.Changes = append(result.Changes, removed...)
	result.FinishedAt = time.Now().UTC()

	log.Infof("Pass %s done in %s: %d created, %d updated, %d refreshed, %d removed, %d rejected, %d failed",
		runID, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
		result.Count(OutcomeCreated), result.Count(OutcomeUpdated), result.Count(OutcomeRefreshed),
		len(removed), result.Count(OutcomeRejected), result.Count(OutcomeFailed))
	return result, nil
}

type reconciler struct {
	hub    platforms.Hub
	store  Store
	ref    storage.Reference
	censor censor.Censor
	topic  string
	runID  string
	log    Logger

	// writeMu serializes store writes across workers.
	writeMu sync.Mutex
}

// process decides between create, full update, stars-only refresh and skip
// for one repository.
func (r *reconciler) process(ctx context.Context, repo platforms.Repository) (Outcome, *storage.Change, error) {
	full := repo.FullName()
	if IsTemplate(repo.Name) {
		r.log.Debugf("Skipping template repository %s", full)
		return OutcomeTemplate, nil, nil
	}

	key := storage.ProfileKey{CreatorLogin: repo.Owner, RepositoryName: repo.Name}
	existing, err := r.store.LookupProfile(ctx, key)
	if err != nil {
		return r.fail(&PersistenceError{Repository: full, Op: "lookup profile", Err: err})
	}

	if existing != nil && !repo.LastActivity().After(existing.LastActivity) {
		if existing.Stars == repo.Stars {
			return OutcomeUnchanged, nil, nil
		}
		r.writeMu.Lock()
		err := r.store.UpdateStars(ctx, existing.ID, repo.Stars)
		r.writeMu.Unlock()
		if err != nil {
			return r.fail(&PersistenceError{Repository: full, Op: "update stars", Err: err})
		}
		r.log.Debugf("Stars of %s: %d -> %d", full, existing.Stars, repo.Stars)
		return OutcomeRefreshed, nil, nil
	}

	creator, err := r.creator(ctx, repo)
	if err != nil {
		return r.fail(err)
	}

	content, err := FetchContent(ctx, r.hub, repo.Owner, repo.Name)
	if err != nil {
		return r.fail(err)
	}

	built, err := profile.Build(profile.Input{
		Repository:  repo,
		Creator:     creator,
		Entries:     content.Entries,
		Releases:    content.Releases,
		Reference:   r.ref,
		Censor:      r.censor,
		MarkerTopic: r.topic,
	})
	if err != nil {
		perr := &ParseError{Repository: full, Err: err}
		r.log.Infof("Ignoring %s: %v", full, err)
		return OutcomeRejected, nil, perr
	}
	p := built.Profile

	if g := built.Files.Gallery; g != nil {
		dir, err := r.hub.ListDirectory(ctx, repo.Owner, repo.Name, g.Path)
		if err != nil {
			return r.fail(&FetchError{Repository: full, Op: "gallery", Err: err})
		}
		p.ImageURLs = profile.GalleryImages(dir)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	known, err := r.store.FindTags(ctx, built.TagNames)
	if err != nil {
		return r.fail(&PersistenceError{Repository: full, Op: "find tags", Err: err})
	}
	p.Tags = resolve.Tags(built.TagNames, known)

	change, err := r.store.SaveProfile(ctx, p, r.runID)
	if err != nil {
		return r.fail(&PersistenceError{Repository: full, Op: "save profile", Err: err})
	}

	if change.ChangeType == storage.ChangeAdded {
		r.log.Infof("Added %s (%d voicebanks)", full, len(p.Voicebanks))
		return OutcomeCreated, &change, nil
	}
	r.log.Infof("Updated %s (%d voicebanks)", full, len(p.Voicebanks))
	return OutcomeUpdated, &change, nil
}

// creator returns the stored creator, asking the platform only for unknown
// logins.
func (r *reconciler) creator(ctx context.Context, repo platforms.Repository) (storage.Creator, error) {
	stored, err := r.store.GetCreator(ctx, repo.Owner)
	if err != nil {
		return storage.Creator{}, &PersistenceError{Repository: repo.FullName(), Op: "lookup creator", Err: err}
	}
	if stored != nil {
		return *stored, nil
	}
	u, err := r.hub.GetUser(ctx, repo.Owner)
	if err != nil {
		return storage.Creator{}, &FetchError{Repository: repo.FullName(), Op: "user", Err: err}
	}
	c := storage.Creator{Login: repo.Owner, DisplayName: u.DisplayName}
	c.DisplayName = c.Name()
	return c, nil
}

func (r *reconciler) fail(err error) (Outcome, *storage.Change, error) {
	r.log.Warnf("%v", err)
	return OutcomeFailed, nil, err
}

// IsTemplate reports whether a repository is a profile template rather
// than a profile.
func IsTemplate(name string) bool {
	return strings.Contains(strings.ToLower(name), templateMarker)
}
