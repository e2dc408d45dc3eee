package resolve

import (
	"strings"

	"github.com/visingers/visingers-sync/pkg/storage"
)

// TagContext carries the terms a topic must not duplicate.
type TagContext struct {
	MarkerTopic  string
	Reference    storage.Reference
	CreatorLogin string
	CreatorName  string
	Heading      string
}

// TagNames filters repository topics down to free-form tag names: the
// marker topic, languages, types, the creator and the profile heading (or
// any of its words) are dropped, the "<marker>-" prefix is stripped and
// duplicates are removed.
func TagNames(topics []string, tc TagContext) []string {
	marker := strings.ToLower(tc.MarkerTopic)
	prefix := marker + "-"

	excluded := map[string]bool{
		strings.ToLower(tc.CreatorLogin): true,
		strings.ToLower(tc.CreatorName):  true,
		strings.ToLower(tc.Heading):      true,
	}
	for _, w := range strings.Fields(strings.ToLower(tc.Heading)) {
		excluded[w] = true
	}
	for _, l := range tc.Reference.Languages {
		excluded[strings.ToLower(l.Code)] = true
		excluded[strings.ToLower(l.FullName)] = true
	}
	for _, t := range tc.Reference.Types {
		excluded[strings.ToLower(t.Name)] = true
	}

	seen := make(map[string]bool)
	var names []string
	for _, topic := range topics {
		topic = strings.ToLower(topic)
		if topic == marker {
			continue
		}
		topic = strings.ReplaceAll(topic, prefix, "")
		if topic == "" || excluded[topic] || seen[topic] {
			continue
		}
		seen[topic] = true
		names = append(names, topic)
	}
	return names
}

// Tags reuses the existing tags that match names and returns new, unsaved
// tags (ID 0) for the rest, keeping the order of names.
func Tags(names []string, existing []storage.Tag) []storage.Tag {
	byName := make(map[string]storage.Tag, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}
	out := make([]storage.Tag, 0, len(names))
	for _, n := range names {
		if t, ok := byName[n]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, storage.Tag{Name: n})
	}
	return out
}
