package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSections(t *testing.T) {
	lines := []string{
		"preamble is dropped",
		"# Alice [![stars](https://img.shields.io/x)](https://example.com)",
		"Hello",
		"## Info",
		"- age: 20",
		"# Empty",
	}
	got := ParseSections(lines)
	require.Len(t, got, 3)
	assert.Equal(t, Section{Name: "Alice", Lines: []string{"Hello"}}, got[0])
	assert.Equal(t, Section{Name: "Info", Lines: []string{"- age: 20"}}, got[1])
	assert.Equal(t, "Empty", got[2].Name)
	assert.Empty(t, got[2].Lines)
}

func TestSplitLinesDropsBlankLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitLines("a\r\n\r\nb\nc\n"))
}

func TestParseExampleDocument(t *testing.T) {
	text := strings.Join([]string{"# Alice", "Hello world", "# Info", "- age: 20", "# Videos", "https://youtu.be/AbCdEfGhIjK"}, "\n")
	doc, ok := Parse(text, -1)
	require.True(t, ok)
	assert.Equal(t, "Alice", doc.Heading)
	assert.Equal(t, "Hello world", doc.Description)
	assert.Equal(t, []string{"age: 20"}, doc.GeneralInfo)
	assert.Equal(t, []string{"AbCdEfGhIjK"}, doc.VideoIDs)
	assert.Empty(t, doc.Voicebanks)
	assert.Equal(t, -1, doc.TermsIndex)
}

func TestParseNoSections(t *testing.T) {
	_, ok := Parse("just some text\nwithout headings", -1)
	assert.False(t, ok)
}

func TestParseFullDocument(t *testing.T) {
	text := `# Alice
![banner](banner.png)
[site](https://example.com)
Line one
Line two
# General
- Age: 17
- no separator here
Not a list: item
# Alice Natural
Soft voice.
- Languages: en, Japanese
- Type: UTAU
# Terms of Use
- Commercial: ask first
# Videos
Watch https://www.youtube.com/watch?v=AbCdEfGhIjK and youtu.be/ZZZZZZZZZZZ
again https://youtu.be/AbCdEfGhIjK
# Groups
- Band: none
# Alice Power
Strong voice.`

	doc, ok := Parse(text, -1)
	require.True(t, ok)
	assert.Equal(t, "Line one\nLine two", doc.Description)
	assert.Equal(t, []string{"Age: 17"}, doc.GeneralInfo)
	assert.Equal(t, []string{"Commercial: ask first"}, doc.TermsOfUse)
	assert.Equal(t, 3, doc.TermsIndex)
	assert.Equal(t, []string{"AbCdEfGhIjK", "ZZZZZZZZZZZ", "AbCdEfGhIjK"}, doc.VideoIDs)

	require.Len(t, doc.Voicebanks, 2)
	assert.Equal(t, "Alice Natural", doc.Voicebanks[0].Name)
	assert.Equal(t, "Alice Power", doc.Voicebanks[1].Name)
}

func TestReservedSecondSectionIsNotGeneralInfo(t *testing.T) {
	doc, ok := Parse("# Alice\nhi\n# VIDEOS\n- a: b\n", -1)
	require.True(t, ok)
	assert.Nil(t, doc.GeneralInfo)
	assert.Empty(t, doc.Voicebanks)
}

func TestTranslationTermsFallback(t *testing.T) {
	text := "# Алиса\nПривет\n# Инфо\n- возраст: 20\n# Алиса Натурал\nмягкий\n# Условия\n- Коммерция: спросить\n"
	doc, ok := Parse(text, 3)
	require.True(t, ok)
	assert.Equal(t, []string{"Коммерция: спросить"}, doc.TermsOfUse)

	doc, ok = Parse(text, 9)
	require.True(t, ok)
	assert.Nil(t, doc.TermsOfUse)
}

func TestProse(t *testing.T) {
	assert.Equal(t, "a\nc", Prose([]string{"a", "- b: x", "c"}))
}

func TestSectionLookup(t *testing.T) {
	doc, ok := Parse("# A\nx\n# B\ny\n# Alice Natural\nz", -1)
	require.True(t, ok)
	s, found := doc.Section("alice natural")
	require.True(t, found)
	assert.Equal(t, []string{"z"}, s.Lines)
	_, found = doc.Section("missing")
	assert.False(t, found)
}
