package platforms

import (
	"context"
	"time"
)

// Repository is one search hit: a candidate for the directory.
type Repository struct {
	Owner         string
	Name          string
	Topics        []string
	Homepage      string
	Stars         int
	DefaultBranch string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PushedAt      time.Time
}

// FullName returns owner/name.
func (r Repository) FullName() string { return r.Owner + "/" + r.Name }

// LastActivity is the later of the push time and the metadata update time.
func (r Repository) LastActivity() time.Time {
	if r.PushedAt.After(r.UpdatedAt) {
		return r.PushedAt
	}
	return r.UpdatedAt
}

// SearchPage is one page of a repository search. Limit is the number of
// results the platform will page through at most, whatever TotalCount says;
// 0 means no limit.
type SearchPage struct {
	TotalCount int
	Limit      int
	Items      []Repository
}

const (
	EntryBlob = "blob"
	EntryTree = "tree"
)

// Entry is a top-level tree entry. Text is nil for trees and for blobs the
// platform withholds (binary or oversized); Size is always set for blobs.
type Entry struct {
	Name string
	Type string
	Path string
	Size int64
	Text *string
}

type Asset struct {
	Name string
	Size int64
	URL  string
}

type Release struct {
	Name   string
	Assets []Asset
}

type User struct {
	Login       string
	DisplayName string
}

type DirEntry struct {
	Name        string
	DownloadURL string
}

// Hub abstracts the code-hosting platform operations the sync relies on.
type Hub interface {
	// SearchRepositories returns one page (1-based) of repositories carrying
	// topic, most recently updated first.
	SearchRepositories(ctx context.Context, topic string, page int) (SearchPage, error)
	FetchTree(ctx context.Context, owner, name string) ([]Entry, error)
	ListReleases(ctx context.Context, owner, name string) ([]Release, error)
	GetUser(ctx context.Context, login string) (User, error)
	ListDirectory(ctx context.Context, owner, name, path string) ([]DirEntry, error)
}
