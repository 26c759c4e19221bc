package intent

import "strings"

// TopicTag is a controlled-vocabulary label for a clinical-history subject.
type TopicTag string

const (
	TagOnset     TopicTag = "onset"
	TagQuality   TopicTag = "quality"
	TagDischarge TopicTag = "discharge"
	TagFlankPain TopicTag = "flank-pain"
	TagPregnancy TopicTag = "pregnancy"

	// TagMisc is emitted when no keyword matches.
	TagMisc TopicTag = "misc"
)

// authoredPrefix is the prefix case authors put on reveal keys ("hx_onset").
const authoredPrefix = "hx_"

// NormalizeTag maps an authored reveal key to its topic tag.
// "hx_flank_pain", "flank_pain" and "Flank-Pain" all become "flank-pain".
func NormalizeTag(key string) TopicTag {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.TrimPrefix(k, authoredPrefix)
	k = strings.ReplaceAll(k, "_", "-")
	return TopicTag(k)
}

// AuthoredKey is the inverse of NormalizeTag: "flank-pain" -> "hx_flank_pain".
func AuthoredKey(tag TopicTag) string {
	return authoredPrefix + strings.ReplaceAll(string(tag), "-", "_")
}

// Tags is an ordered, duplicate-free set of topic tags. Order is the order in
// which the classifier emitted them.
type Tags []TopicTag

// Contains reports whether t is in the set.
func (ts Tags) Contains(t TopicTag) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// Strings returns the tags as plain strings, preserving order.
func (ts Tags) Strings() []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// TagsFromStrings rebuilds a Tags value from persisted strings, dropping
// blanks and duplicates.
func TagsFromStrings(ss []string) Tags {
	out := make(Tags, 0, len(ss))
	for _, s := range ss {
		if s == "" {
			continue
		}
		t := TopicTag(s)
		if !out.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// add appends t unless it is already present.
func (ts Tags) add(t TopicTag) Tags {
	if ts.Contains(t) {
		return ts
	}
	return append(ts, t)
}
