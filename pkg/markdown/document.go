package markdown

import (
	"regexp"
	"strings"
)

const (
	SectionVideos     = "videos"
	SectionGroups     = "groups"
	SectionTermsOfUse = "terms of use"

	listMarker  = "-"
	imageMarker = "!"
	linkMarker  = "["
	separator   = ":"
)

var youtubeRegex = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com/watch\?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// IsReserved reports whether a section name is one of the fixed, non
// voicebank sections.
func IsReserved(name string) bool {
	switch strings.ToLower(name) {
	case SectionVideos, SectionGroups, SectionTermsOfUse:
		return true
	}
	return false
}

// Document is the profile data extracted from one markdown file.
type Document struct {
	Sections []Section

	// Heading is the name of the first section, the profile display name.
	Heading     string
	Description string
	GeneralInfo []string
	TermsOfUse  []string
	VideoIDs    []string

	// Voicebanks are the candidate voicebank sections.
	Voicebanks []Section
	// TermsIndex is the position of the terms of use section, or -1.
	TermsIndex int
}

// Parse splits text into sections and builds a Document. It returns false
// when the text has no heading at all.
//
// termsFallback is the position of the terms of use section in the primary
// document; translations whose localized heading does not match the
// reserved name use the section at that position instead. Pass -1 for the
// primary document.
func Parse(text string, termsFallback int) (*Document, bool) {
	sections := ParseSections(SplitLines(text))
	if len(sections) == 0 {
		return nil, false
	}

	doc := &Document{
		Sections:    sections,
		Heading:     sections[0].Name,
		Description: Description(sections[0].Lines),
		TermsIndex:  -1,
	}

	if len(sections) > 1 && !IsReserved(sections[1].Name) {
		doc.GeneralInfo = ListItems(sections[1].Lines)
	}

	for i, s := range sections {
		switch strings.ToLower(s.Name) {
		case SectionVideos:
			if doc.VideoIDs == nil {
				doc.VideoIDs = VideoIDs(s.Lines)
			}
		case SectionTermsOfUse:
			if doc.TermsIndex < 0 {
				doc.TermsIndex = i
				doc.TermsOfUse = ListItems(s.Lines)
			}
		}
		if i >= 2 && !IsReserved(s.Name) {
			doc.Voicebanks = append(doc.Voicebanks, s)
		}
	}

	if doc.TermsIndex < 0 && termsFallback >= 0 && termsFallback < len(sections) {
		doc.TermsOfUse = ListItems(sections[termsFallback].Lines)
	}
	return doc, true
}

// Section returns the first section whose name matches name case-insensitively.
func (d *Document) Section(name string) (Section, bool) {
	for _, s := range d.Sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Section{}, false
}

// Description joins the lines that are neither image embeds nor links.
func Description(lines []string) string {
	var kept []string
	for _, l := range lines {
		if strings.HasPrefix(l, imageMarker) || strings.HasPrefix(l, linkMarker) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// Prose joins the lines that are not list items.
func Prose(lines []string) string {
	var kept []string
	for _, l := range lines {
		if strings.HasPrefix(l, listMarker) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// ListItems returns the "- key: value" lines with the list marker trimmed.
func ListItems(lines []string) []string {
	items := []string{}
	for _, l := range lines {
		if strings.HasPrefix(l, listMarker) && strings.Contains(l, separator) {
			items = append(items, strings.Trim(l, "- "))
		}
	}
	return items
}

// VideoIDs extracts every YouTube video id, keeping order and duplicates.
func VideoIDs(lines []string) []string {
	ids := []string{}
	for _, l := range lines {
		for _, m := range youtubeRegex.FindAllStringSubmatch(l, -1) {
			ids = append(ids, m[1])
		}
	}
	return ids
}
