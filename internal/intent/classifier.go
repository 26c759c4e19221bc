package intent

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classifier maps a free-text student utterance to topic tags.
// Implementations must never return an empty set.
type Classifier interface {
	Classify(text string) Tags
}

// KeywordRule binds a lower-case keyword to the tag it implies.
type KeywordRule struct {
	Keyword string   `yaml:"keyword"`
	Tag     TopicTag `yaml:"tag"`
}

// KeywordTable is an ordered, immutable list of keyword rules. Build one with
// NewKeywordTable or DefaultKeywordTable; the zero value matches nothing.
type KeywordTable struct {
	rules []KeywordRule
}

// NewKeywordTable copies rules into a table. Keywords are lower-cased and
// blank rules are dropped.
func NewKeywordTable(rules []KeywordRule) KeywordTable {
	out := make([]KeywordRule, 0, len(rules))
	for _, r := range rules {
		kw := strings.ToLower(strings.TrimSpace(r.Keyword))
		if kw == "" || r.Tag == "" {
			continue
		}
		out = append(out, KeywordRule{Keyword: kw, Tag: NormalizeTag(string(r.Tag))})
	}
	return KeywordTable{rules: out}
}

// DefaultKeywordTable returns the built-in history-taking vocabulary.
func DefaultKeywordTable() KeywordTable {
	return NewKeywordTable([]KeywordRule{
		{Keyword: "when", Tag: TagOnset},
		{Keyword: "start", Tag: TagOnset},
		{Keyword: "burn", Tag: TagQuality},
		{Keyword: "discharge", Tag: TagDischarge},
		{Keyword: "flank", Tag: TagFlankPain},
		{Keyword: "pregnan", Tag: TagPregnancy},
	})
}

// Rules returns a copy of the table's rules.
func (kt KeywordTable) Rules() []KeywordRule {
	out := make([]KeywordRule, len(kt.rules))
	copy(out, kt.rules)
	return out
}

// Vocabulary returns the distinct tags the table can emit, in rule order,
// followed by TagMisc.
func (kt KeywordTable) Vocabulary() Tags {
	var out Tags
	for _, r := range kt.rules {
		out = out.add(r.Tag)
	}
	return out.add(TagMisc)
}

// keywordFile is the on-disk shape of a keyword table override.
type keywordFile struct {
	Keywords []KeywordRule `yaml:"keywords"`
}

// LoadKeywordTable reads a YAML keyword table of the form
//
//	keywords:
//	  - {keyword: when, tag: onset}
//	  - {keyword: smok, tag: smoking}
func LoadKeywordTable(r io.Reader) (KeywordTable, error) {
	var f keywordFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return KeywordTable{}, fmt.Errorf("keyword table is empty")
		}
		return KeywordTable{}, fmt.Errorf("decode keyword table: %w", err)
	}
	kt := NewKeywordTable(f.Keywords)
	if len(kt.rules) == 0 {
		return KeywordTable{}, fmt.Errorf("keyword table has no usable rules")
	}
	return kt, nil
}

// KeywordClassifier tags text by case-insensitive substring matching against
// a KeywordTable.
type KeywordClassifier struct {
	table KeywordTable
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier creates a classifier over table.
func NewKeywordClassifier(table KeywordTable) *KeywordClassifier {
	return &KeywordClassifier{table: table}
}

// Classify returns every tag whose keyword occurs in text, in table order,
// or exactly {misc} when nothing matches.
func (c *KeywordClassifier) Classify(text string) Tags {
	lower := strings.ToLower(text)
	var tags Tags
	for _, r := range c.table.rules {
		if strings.Contains(lower, r.Keyword) {
			tags = tags.add(r.Tag)
		}
	}
	if len(tags) == 0 {
		return Tags{TagMisc}
	}
	return tags
}
