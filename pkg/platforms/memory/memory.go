// Package memory is an in-memory platforms.Hub with deterministic data. It
// backs the package tests and dry runs of the sync against fixtures.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/visingers/visingers-sync/pkg/platforms"
)

// Operation names used by Fail and Calls.
const (
	OpSearch    = "search"
	OpTree      = "tree"
	OpReleases  = "releases"
	OpUser      = "user"
	OpDirectory = "directory"
)

// Hub serves the repositories added to it. It is safe for concurrent use.
type Hub struct {
	PageSize int
	// SearchLimit caps how many search results can be paged through.
	// Pages past it fail the way GitHub answers them. 0 disables the cap.
	SearchLimit int

	mu       sync.Mutex
	repos    []platforms.Repository
	trees    map[string][]platforms.Entry
	releases map[string][]platforms.Release
	users    map[string]platforms.User
	dirs     map[string][]platforms.DirEntry
	failures map[string]error
	calls    map[string]int
}

func New() *Hub {
	return &Hub{
		PageSize: 100,
		trees:    make(map[string][]platforms.Entry),
		releases: make(map[string][]platforms.Release),
		users:    make(map[string]platforms.User),
		dirs:     make(map[string][]platforms.DirEntry),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Put adds or replaces a repository together with its tree and releases.
func (h *Hub) Put(repo platforms.Repository, entries []platforms.Entry, releases []platforms.Release) {
	h.mu.Lock()
	defer h.mu.Unlock()
	replaced := false
	for i, r := range h.repos {
		if r.FullName() == repo.FullName() {
			h.repos[i] = repo
			replaced = true
		}
	}
	if !replaced {
		h.repos = append(h.repos, repo)
	}
	h.trees[repo.FullName()] = entries
	h.releases[repo.FullName()] = releases
}

// Remove drops a repository from search results.
func (h *Hub) Remove(owner, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	full := owner + "/" + name
	kept := h.repos[:0]
	for _, r := range h.repos {
		if r.FullName() != full {
			kept = append(kept, r)
		}
	}
	h.repos = kept
}

func (h *Hub) PutUser(u platforms.User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[u.Login] = u
}

func (h *Hub) PutDirectory(owner, name, path string, entries []platforms.DirEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirs[owner+"/"+name+"/"+path] = entries
}

// Fail makes op return err. key is owner/name for per-repository
// operations, the login for OpUser and ignored for OpSearch. A nil err
// clears the failure.
func (h *Hub) Fail(op, key string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.failures, op+":"+key)
		return
	}
	h.failures[op+":"+key] = err
}

// Calls returns how many times op was invoked.
func (h *Hub) Calls(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[op]
}

func (h *Hub) enter(op, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[op]++
	return h.failures[op+":"+key]
}

func (h *Hub) SearchRepositories(ctx context.Context, topic string, page int) (platforms.SearchPage, error) {
	if err := h.enter(OpSearch, ""); err != nil {
		return platforms.SearchPage{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var matching []platforms.Repository
	for _, r := range h.repos {
		for _, t := range r.Topics {
			if t == topic {
				matching = append(matching, r)
				break
			}
		}
	}
	size := h.PageSize
	if size <= 0 {
		size = 100
	}
	start := (page - 1) * size
	if h.SearchLimit > 0 && start >= h.SearchLimit {
		return platforms.SearchPage{}, fmt.Errorf("page %d: returned 422: Only the first %d search results are available", page, h.SearchLimit)
	}
	out := platforms.SearchPage{TotalCount: len(matching), Limit: h.SearchLimit}
	if page < 1 || start >= len(matching) {
		return out, nil
	}
	end := start + size
	if end > len(matching) {
		end = len(matching)
	}
	out.Items = append([]platforms.Repository(nil), matching[start:end]...)
	return out, nil
}

func (h *Hub) FetchTree(ctx context.Context, owner, name string) ([]platforms.Entry, error) {
	if err := h.enter(OpTree, owner+"/"+name); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, ok := h.trees[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("repository %s/%s not found", owner, name)
	}
	return entries, nil
}

func (h *Hub) ListReleases(ctx context.Context, owner, name string) ([]platforms.Release, error) {
	if err := h.enter(OpReleases, owner+"/"+name); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases[owner+"/"+name], nil
}

func (h *Hub) GetUser(ctx context.Context, login string) (platforms.User, error) {
	if err := h.enter(OpUser, login); err != nil {
		return platforms.User{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if u, ok := h.users[login]; ok {
		return u, nil
	}
	return platforms.User{Login: login}, nil
}

func (h *Hub) ListDirectory(ctx context.Context, owner, name, path string) ([]platforms.DirEntry, error) {
	if err := h.enter(OpDirectory, owner+"/"+name); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirs[owner+"/"+name+"/"+path], nil
}
