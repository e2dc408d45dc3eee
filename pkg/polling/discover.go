package polling

import (
	"context"

	"github.com/visingers/visingers-sync/pkg/platforms"
)

// Discovery is the result of a topic search.
type Discovery struct {
	Repositories []platforms.Repository
	// Total is the match count the platform reported.
	Total int
	// Truncated is set when Total exceeds the platform's search result
	// limit, so Repositories holds only the first Limit matches.
	Truncated bool
}

// Discover returns every repository carrying topic, most recently updated
// first, de-duplicated by owner/name. Pages are read until the reported
// total or the platform's result limit is exhausted, or a page comes back
// empty. Any page failure is returned as a *DiscoveryError.
func Discover(ctx context.Context, hub platforms.Hub, topic string) (*Discovery, error) {
	seen := make(map[string]bool)
	out := &Discovery{}
	read := 0
	for page := 1; ; page++ {
		res, err := hub.SearchRepositories(ctx, topic, page)
		if err != nil {
			return nil, &DiscoveryError{Topic: topic, Page: page, Err: err}
		}
		for _, r := range res.Items {
			if seen[r.FullName()] {
				continue
			}
			seen[r.FullName()] = true
			out.Repositories = append(out.Repositories, r)
		}
		read += len(res.Items)
		out.Total = res.TotalCount

		want := res.TotalCount
		if res.Limit > 0 && want > res.Limit {
			want = res.Limit
			out.Truncated = true
		}
		if len(res.Items) == 0 || read >= want {
			break
		}
	}
	return out, nil
}

// Content is the file tree and release list of one repository.
type Content struct {
	Entries  []platforms.Entry
	Releases []platforms.Release
}

// FetchContent reads the tree (one request, blob text inlined) and the
// release list of a repository.
func FetchContent(ctx context.Context, hub platforms.Hub, owner, name string) (Content, error) {
	full := owner + "/" + name
	entries, err := hub.FetchTree(ctx, owner, name)
	if err != nil {
		return Content{}, &FetchError{Repository: full, Op: "tree", Err: err}
	}
	releases, err := hub.ListReleases(ctx, owner, name)
	if err != nil {
		return Content{}, &FetchError{Repository: full, Op: "releases", Err: err}
	}
	return Content{Entries: entries, Releases: releases}, nil
}
