// Package censor masks profanity in user-supplied markdown.
package censor

import (
	"strings"
	"sync"

	goaway "github.com/TwiN/go-away"
)

// Censor rewrites text before it is parsed.
type Censor interface {
	CensorText(text string) string
}

// Nop leaves text untouched.
type Nop struct{}

func (Nop) CensorText(text string) string { return text }

// Profanity replaces every character of a profane match with an asterisk.
// It uses the built-in go-away dictionary, optionally extended with extra
// words.
type Profanity struct {
	detector *goaway.ProfanityDetector
}

// New builds a Profanity censor over the default dictionary plus extra.
// Extra words are lower-cased; blank and duplicate entries are ignored.
func New(extra ...string) *Profanity {
	words := make([]string, 0, len(goaway.DefaultProfanities)+len(extra))
	seen := make(map[string]bool, cap(words))
	for _, w := range append(append([]string(nil), goaway.DefaultProfanities...), extra...) {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	detector := goaway.NewProfanityDetector().
		WithCustomDictionary(words, goaway.DefaultFalsePositives, goaway.DefaultFalseNegatives)
	return &Profanity{detector: detector}
}

func (p *Profanity) CensorText(text string) string {
	if p == nil || p.detector == nil {
		return text
	}
	return p.detector.Censor(text)
}

var (
	defaultOnce sync.Once
	defaultCen  *Profanity
)

// Default returns a shared censor over the built-in dictionary.
func Default() *Profanity {
	defaultOnce.Do(func() { defaultCen = New() })
	return defaultCen
}
