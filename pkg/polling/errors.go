package polling

import "fmt"

// DiscoveryError means a search page could not be read. The pass is
// abandoned so nothing is reconciled against a partial candidate set.
type DiscoveryError struct {
	Topic string
	Page  int
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering topic %q: page %d: %v", e.Topic, e.Page, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FetchError is a failed tree, release, user or directory call for one
// repository. The repository is skipped for this pass.
type FetchError struct {
	Repository string
	Op         string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetching %s: %v", e.Repository, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError marks a repository that does not qualify as a profile. Err
// wraps one of the profile.Err sentinels.
type ParseError struct {
	Repository string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Repository, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError is a failed store read or write.
type PersistenceError struct {
	Repository string // empty for pass-level operations
	Op         string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Repository == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: store: %s: %v", e.Repository, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
