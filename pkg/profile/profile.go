// Package profile assembles a storage.Profile from the files and releases of
// one repository.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/visingers/visingers-sync/pkg/censor"
	"github.com/visingers/visingers-sync/pkg/markdown"
	"github.com/visingers/visingers-sync/pkg/platforms"
	"github.com/visingers/visingers-sync/pkg/resolve"
	"github.com/visingers/visingers-sync/pkg/storage"
)

const (
	// MaxReadmeSize and MaxImageSize are exclusive byte ceilings.
	MaxReadmeSize = 2_000_000
	MaxImageSize  = 20_000_000

	RawContentURL = "https://raw.githubusercontent.com"
	PrimaryLang   = "en"

	readmeName  = "readme.md"
	galleryName = "gallery"
)

var imageNames = []string{"image.png", "image.jpg"}

var (
	ErrNoReadme       = errors.New("README.md is missing or its text was withheld")
	ErrReadmeTooLarge = errors.New("README.md exceeds the size limit")
	ErrNoImage        = errors.New("image.png or image.jpg is missing")
	ErrImageTooLarge  = errors.New("image exceeds the size limit")
	ErrNoSections     = errors.New("README.md has no sections")
	ErrNoVoicebanks   = errors.New("no voicebank section could be resolved")
)

// Files are the tree entries a profile is built from.
type Files struct {
	Readme       platforms.Entry
	Image        platforms.Entry
	Gallery      *platforms.Entry
	Translations []Translation
}

// Translation is a readme.<lang>.md document.
type Translation struct {
	Lang string
	Text string
}

// Inspect locates the profile files in a tree and applies the size guards.
// Nothing is parsed when it fails.
func Inspect(entries []platforms.Entry) (*Files, error) {
	var (
		files         Files
		readme, image bool
	)
	for _, e := range entries {
		name := strings.ToLower(e.Name)
		switch {
		case !readme && name == readmeName:
			files.Readme, readme = e, true
		case !image && contains(imageNames, name):
			files.Image, image = e, true
		case files.Gallery == nil && name == galleryName && e.Type == platforms.EntryTree:
			g := e
			files.Gallery = &g
		}
		if lang, ok := TranslationLang(e.Name); ok && e.Text != nil {
			files.Translations = append(files.Translations, Translation{Lang: lang, Text: *e.Text})
		}
	}

	switch {
	case !readme || files.Readme.Text == nil:
		return nil, ErrNoReadme
	case files.Readme.Size >= MaxReadmeSize:
		return nil, ErrReadmeTooLarge
	case !image:
		return nil, ErrNoImage
	case files.Image.Size >= MaxImageSize:
		return nil, ErrImageTooLarge
	}
	return &files, nil
}

// TranslationLang reports the language of a readme.<lang>.md file name.
// The primary language is never reported.
func TranslationLang(name string) (string, bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 || !strings.EqualFold(parts[0], "readme") || !strings.EqualFold(parts[2], "md") {
		return "", false
	}
	lang := strings.ToLower(parts[1])
	if lang == "" || lang == PrimaryLang {
		return "", false
	}
	return lang, true
}

// Input is everything Build needs besides the tree.
type Input struct {
	Repository platforms.Repository
	Creator    storage.Creator
	Entries    []platforms.Entry
	Releases   []platforms.Release
	Reference  storage.Reference
	Censor     censor.Censor
	// MarkerTopic is stripped from topics when deriving tag names.
	MarkerTopic string
}

// Result is a built profile. Tags and ImageURLs are left empty: the caller
// resolves TagNames against the store and lists Files.Gallery.
type Result struct {
	Profile  *storage.Profile
	Files    *Files
	TagNames []string
}

// Build parses the repository documents into a profile. The returned error
// wraps one of the Err sentinels when the repository does not qualify.
func Build(in Input) (*Result, error) {
	files, err := Inspect(in.Entries)
	if err != nil {
		return nil, err
	}
	c := in.Censor
	if c == nil {
		c = censor.Nop{}
	}

	doc, ok := markdown.Parse(c.CensorText(*files.Readme.Text), -1)
	if !ok {
		return nil, ErrNoSections
	}

	single := len(doc.Voicebanks) == 1
	voicebanks := []storage.Voicebank{}
	for _, s := range doc.Voicebanks {
		if vb, ok := resolve.Voicebank(s, in.Reference, in.Releases, single); ok {
			voicebanks = append(voicebanks, vb)
		}
	}
	if len(doc.Voicebanks) > 0 && len(voicebanks) == 0 {
		return nil, fmt.Errorf("%w: %d section(s) dropped", ErrNoVoicebanks, len(doc.Voicebanks))
	}

	repo := in.Repository
	p := &storage.Profile{
		Creator:        in.Creator,
		RepositoryName: repo.Name,
		Name:           doc.Heading,
		AvatarURL:      AvatarURL(repo, files.Image.Path),
		SiteURL:        repo.Homepage,
		Stars:          repo.Stars,
		CreatedAt:      repo.CreatedAt,
		LastActivity:   repo.LastActivity(),
		Voicebanks:     voicebanks,
		Tags:           []storage.Tag{},
		ImageURLs:      []string{},
		VideoIDs:       orEmpty(doc.VideoIDs),
	}
	p.Details.Set(PrimaryLang, details(doc))

	for _, tr := range files.Translations {
		ApplyTranslation(p, tr.Lang, c.CensorText(tr.Text), doc.TermsIndex)
	}

	names := resolve.TagNames(repo.Topics, resolve.TagContext{
		MarkerTopic:  in.MarkerTopic,
		Reference:    in.Reference,
		CreatorLogin: in.Creator.Login,
		CreatorName:  in.Creator.Name(),
		Heading:      doc.Heading,
	})

	return &Result{Profile: p, Files: files, TagNames: names}, nil
}

// ApplyTranslation adds the lang entry to the profile details and localizes
// the description of every voicebank with a same-named section. termsIndex
// is the position of the terms of use section in the primary document. It
// returns false when text has no sections.
func ApplyTranslation(p *storage.Profile, lang, text string, termsIndex int) bool {
	if lang == PrimaryLang {
		return false
	}
	doc, ok := markdown.Parse(text, termsIndex)
	if !ok {
		return false
	}
	p.Details.Set(lang, details(doc))
	for i := range p.Voicebanks {
		if s, ok := doc.Section(p.Voicebanks[i].Name); ok {
			p.Voicebanks[i].Description.Set(lang, markdown.Prose(s.Lines))
		}
	}
	return true
}

// AvatarURL is the raw content URL of path on the default branch.
func AvatarURL(repo platforms.Repository, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", RawContentURL, repo.Owner, repo.Name, repo.DefaultBranch, path)
}

// GalleryImages keeps the .png and .jpg files of a gallery listing.
func GalleryImages(entries []platforms.DirEntry) []string {
	urls := []string{}
	for _, e := range entries {
		name := strings.ToLower(e.Name)
		if (strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".jpg")) && e.DownloadURL != "" {
			urls = append(urls, e.DownloadURL)
		}
	}
	return urls
}

func details(doc *markdown.Document) storage.Details {
	return storage.Details{
		Description: doc.Description,
		GeneralInfo: orEmpty(doc.GeneralInfo),
		TermsOfUse:  orEmpty(doc.TermsOfUse),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
