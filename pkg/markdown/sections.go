// Package markdown splits loosely formatted profile documents into named
// sections and extracts the profile fields from them.
package markdown

import (
	"strings"
)

const (
	headingMarker    = "#"
	annotationMarker = "[!"
)

// Section is a heading and the raw lines under it, in document order.
type Section struct {
	Name  string
	Lines []string
}

// SplitLines splits text on CR and LF, dropping empty lines.
func SplitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return r == '\r' || r == '\n' })
}

// ParseSections groups lines under the preceding heading. Lines before the
// first heading are discarded.
func ParseSections(lines []string) []Section {
	var (
		sections []Section
		current  *Section
	)
	for _, line := range lines {
		if strings.HasPrefix(line, headingMarker) {
			sections = append(sections, Section{Name: headingName(line)})
			current = &sections[len(sections)-1]
			continue
		}
		if current != nil {
			current.Lines = append(current.Lines, line)
		}
	}
	return sections
}

// headingName strips the heading markers and any trailing badge or alert
// annotation such as "[![stars](...)](...)".
func headingName(line string) string {
	name := strings.TrimLeft(line, headingMarker)
	if i := strings.Index(name, annotationMarker); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
