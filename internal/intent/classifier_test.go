package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier_Classify(t *testing.T) {
	c := NewKeywordClassifier(DefaultKeywordTable())

	tests := []struct {
		name string
		text string
		want Tags
	}{
		{"three independent matches", "When did the burning discharge start?", Tags{TagOnset, TagQuality, TagDischarge}},
		{"onset and quality in table order", "When did the burning start?", Tags{TagOnset, TagQuality}},
		{"case insensitive", "ANY DISCHARGE?", Tags{TagDischarge}},
		{"stem match", "Could you be pregnant?", Tags{TagPregnancy}},
		{"flank", "Any pain in your flank?", Tags{TagFlankPain}},
		{"nothing matches", "How are you?", Tags{TagMisc}},
		{"empty text", "", Tags{TagMisc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestKeywordClassifier_NoDuplicates(t *testing.T) {
	c := NewKeywordClassifier(DefaultKeywordTable())
	// "when" and "start" both imply onset.
	got := c.Classify("When did it start? When exactly?")
	assert.Equal(t, Tags{TagOnset}, got)
}

func TestKeywordClassifier_CustomTable(t *testing.T) {
	table := NewKeywordTable([]KeywordRule{
		{Keyword: "  SMOK ", Tag: "hx_smoking"},
		{Keyword: "", Tag: TagOnset},
		{Keyword: "fever", Tag: ""},
	})
	require.Len(t, table.Rules(), 1)
	assert.Equal(t, KeywordRule{Keyword: "smok", Tag: "smoking"}, table.Rules()[0])

	c := NewKeywordClassifier(table)
	assert.Equal(t, Tags{"smoking"}, c.Classify("Do you smoke?"))
	assert.Equal(t, Tags{TagMisc}, c.Classify("When did it start?"))
}

func TestKeywordTable_Vocabulary(t *testing.T) {
	got := DefaultKeywordTable().Vocabulary()
	assert.Equal(t, Tags{TagOnset, TagQuality, TagDischarge, TagFlankPain, TagPregnancy, TagMisc}, got)
	assert.Equal(t, Tags{TagMisc}, KeywordTable{}.Vocabulary())
}

func TestLoadKeywordTable(t *testing.T) {
	src := `
keywords:
  - {keyword: smok, tag: smoking}
  - {keyword: When, tag: hx_onset}
`
	table, err := LoadKeywordTable(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []KeywordRule{
		{Keyword: "smok", Tag: "smoking"},
		{Keyword: "when", Tag: TagOnset},
	}, table.Rules())
}

func TestLoadKeywordTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"no rules", "keywords: []\n"},
		{"blank rules", "keywords:\n  - {keyword: '', tag: onset}\n"},
		{"not yaml", "keywords: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadKeywordTable(strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want TopicTag
	}{
		{"hx_onset", TagOnset},
		{"HX_Flank_Pain", TagFlankPain},
		{" pregnancy ", TagPregnancy},
		{"flank-pain", TagFlankPain},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTag(tt.in), tt.in)
	}
	assert.Equal(t, "hx_flank_pain", AuthoredKey(TagFlankPain))
}

func TestTags(t *testing.T) {
	tags := TagsFromStrings([]string{"onset", "", "onset", "quality"})
	assert.Equal(t, Tags{TagOnset, TagQuality}, tags)
	assert.True(t, tags.Contains(TagQuality))
	assert.False(t, tags.Contains(TagMisc))
	assert.Equal(t, []string{"onset", "quality"}, tags.Strings())
}
