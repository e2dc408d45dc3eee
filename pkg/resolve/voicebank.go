// Package resolve maps parsed sections and repository topics onto the
// canonical reference data.
package resolve

import (
	"strings"
	"unicode"

	"github.com/visingers/visingers-sync/pkg/markdown"
	"github.com/visingers/visingers-sync/pkg/platforms"
	"github.com/visingers/visingers-sync/pkg/storage"
)

const (
	languagesPrefix = "- Languages:"
	typePrefix      = "- Type:"
)

var (
	archiveExtensions = []string{".zip"}
	sampleExtensions  = []string{".mp3", ".wav"}
)

// Voicebank resolves one candidate section. It returns false when the
// declared type or every declared language is unknown, or when no release
// with an archive can be matched. single is true when the repository has
// exactly one voicebank section.
func Voicebank(section markdown.Section, ref storage.Reference, releases []platforms.Release, single bool) (storage.Voicebank, bool) {
	declaredLangs, declaredType := declarations(section.Lines)

	langs := Languages(ref, declaredLangs)
	vbType, ok := Type(ref, declaredType)
	if !ok || len(langs) == 0 {
		return storage.Voicebank{}, false
	}

	release, ok := SelectRelease(releases, section.Name, single)
	if !ok {
		return storage.Voicebank{}, false
	}
	archive, ok := firstAsset(release.Assets, archiveExtensions)
	if !ok {
		return storage.Voicebank{}, false
	}

	vb := storage.Voicebank{
		Name:       section.Name,
		URL:        archive.URL,
		Type:       vbType,
		Languages:  langs,
		SampleURLs: []string{},
	}
	vb.Description.Set("en", markdown.Prose(section.Lines))
	for _, a := range release.Assets {
		if hasExtension(a.Name, sampleExtensions) {
			vb.SampleURLs = append(vb.SampleURLs, a.URL)
		}
	}
	return vb, true
}

// declarations reads the "- Languages:" and "- Type:" lines of a section.
func declarations(lines []string) (langs []string, vbType string) {
	langFound, typeFound := false, false
	for _, l := range lines {
		if !langFound && strings.HasPrefix(l, languagesPrefix) {
			langFound = true
			for _, part := range strings.Split(strings.TrimPrefix(l, languagesPrefix), ",") {
				if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
					langs = append(langs, part)
				}
			}
		}
		if !typeFound && strings.HasPrefix(l, typePrefix) {
			typeFound = true
			vbType = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(l, typePrefix)))
		}
	}
	return langs, vbType
}

// Languages returns the canonical languages whose code or full name was
// declared, in canonical order.
func Languages(ref storage.Reference, declared []string) []storage.Language {
	want := make(map[string]bool, len(declared))
	for _, d := range declared {
		want[d] = true
	}
	var out []storage.Language
	for _, l := range ref.Languages {
		if want[l.Code] || want[l.FullName] {
			out = append(out, l)
		}
	}
	return out
}

// Type returns the canonical type named declared.
func Type(ref storage.Reference, declared string) (storage.VoicebankType, bool) {
	for _, t := range ref.Types {
		if t.Name == declared {
			return t, true
		}
	}
	return storage.VoicebankType{}, false
}

// SelectRelease picks the release for a voicebank heading. Among releases
// whose name starts with heading, the one whose remaining digits compare
// greatest as a string wins; ties keep the earlier release. When nothing
// matches and single is set, the same rule is applied to all releases using
// their full names.
func SelectRelease(releases []platforms.Release, heading string, single bool) (platforms.Release, bool) {
	var (
		best    platforms.Release
		bestKey string
		found   bool
	)
	for _, r := range releases {
		if !strings.HasPrefix(r.Name, heading) {
			continue
		}
		key := digits(strings.ReplaceAll(r.Name, heading, ""))
		if !found || key > bestKey {
			best, bestKey, found = r, key, true
		}
	}
	if found || !single {
		return best, found
	}

	for _, r := range releases {
		key := digits(r.Name)
		if !found || key > bestKey {
			best, bestKey, found = r, key, true
		}
	}
	return best, found
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func firstAsset(assets []platforms.Asset, exts []string) (platforms.Asset, bool) {
	for _, a := range assets {
		if hasExtension(a.Name, exts) {
			return a, true
		}
	}
	return platforms.Asset{}, false
}

func hasExtension(name string, exts []string) bool {
	name = strings.ToLower(name)
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}
