package casedoc

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/medisim/internal/intent"
)

var generatedID = regexp.MustCompile(`^[a-z0-9-]+-[0-9a-f]{6}$`)

func TestBuild_GeneratesSlugID(t *testing.T) {
	// Scenario: builder with title "Chest Pain" and no id.
	raw, err := Build(Payload{Title: "Chest Pain", RubricID: "r1"})
	require.NoError(t, err)

	c, err := Load(raw)
	require.NoError(t, err)
	assert.Regexp(t, `^chest-pain-[0-9a-f]{6}$`, c.ID)
	assert.Equal(t, "Chest Pain", c.Title)
	assert.Equal(t, "r1", c.RubricID)
}

func TestBuild_IDsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for range 20 {
		id := NewCaseID("Chest Pain")
		assert.Regexp(t, generatedID, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestBuild_KeepsSuppliedID(t *testing.T) {
	raw, err := Build(Payload{ID: "case_cp_001", Title: "Chest Pain", RubricID: "r1"})
	require.NoError(t, err)

	c, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, "case_cp_001", c.ID)
}

func TestBuild_DropsBlankRows(t *testing.T) {
	p := Payload{
		Title:      "Dysuria",
		RubricID:   "rubric_uti_v1",
		Difficulty: "Easy",
		Objectives: []string{"", "  Take a history ", ""},
		Reveals:    map[string]string{"hx_onset": "Three days ago.", "": "orphan", "hx_quality": " "},
		Orders: OrdersPayload{
			Allowed: []string{"Urinalysis", ""},
			Results: map[string]string{"Urinalysis": "Nitrites positive", "": ""},
		},
	}
	p.Patient.Demographics.Age = "24"
	p.Expected.Differentials.ShouldInclude = []string{"Acute uncomplicated cystitis", ""}

	raw, err := Build(p)
	require.NoError(t, err)

	c, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Take a history"}, c.Objectives)
	assert.Equal(t, map[intent.TopicTag]string{intent.TagOnset: "Three days ago."}, c.Reveals)
	assert.Equal(t, []string{"Urinalysis"}, c.OrdersAllowed)
	assert.Equal(t, map[string]string{"Urinalysis": "Nitrites positive"}, c.OrderResults)
	assert.Equal(t, []string{"Acute uncomplicated cystitis"}, c.Expected.Differentials.ShouldInclude)
	assert.Equal(t, "24", c.Patient.Demographics.Age)
	assert.Equal(t, Unknown, c.Patient.Demographics.Sex)
	assert.Empty(t, c.Warnings)
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		field   string
	}{
		{"missing title", Payload{RubricID: "r1"}, "title"},
		{"blank title", Payload{Title: "   ", RubricID: "r1"}, "title"},
		{"missing rubric", Payload{Title: "X"}, "rubric_id"},
		{"bad difficulty", Payload{Title: "X", RubricID: "r1", Difficulty: "Trivial"}, "difficulty"},
		{"bad version", Payload{Title: "X", RubricID: "r1", Version: "one"}, "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestBuildJSON(t *testing.T) {
	data := []byte(`{
		"title": "Dysuria and frequency",
		"specialty": "Family Medicine",
		"difficulty": "Easy",
		"rubric_id": "rubric_uti_v1",
		"patient": {
			"demographics": {"age": 24, "sex": "female"},
			"baseline_vitals": {"temp_c": 37.4, "hr": "88", "bp": "112/70"}
		},
		"qa_reveals": {"hx_onset": "It started about three days ago."},
		"orders": {"allowed": ["Urinalysis"], "results": {"Urinalysis": "Nitrites positive"}}
	}`)

	raw, err := BuildJSON(data)
	require.NoError(t, err)

	c, err := Load(raw)
	require.NoError(t, err)
	assert.Regexp(t, `^dysuria-and-frequency-[0-9a-f]{6}$`, c.ID)
	assert.Equal(t, "24", c.Patient.Demographics.Age)
	assert.Equal(t, "37.4", c.Patient.Vitals.Temperature)
	assert.Equal(t, "88", c.Patient.Vitals.HeartRate)
	assert.Equal(t, Unknown, c.Patient.Vitals.RespiratoryRate)
	assert.Equal(t, "It started about three days ago.", c.Reveals[intent.TagOnset])
}

func TestBuildJSON_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{title:`},
		{"not an object", `["title"]`},
		{"missing rubric", `{"title": "X"}`},
		{"unknown field", `{"title": "X", "rubric_id": "r", "rubric": "r"}`},
		{"objectives not strings", `{"title": "X", "rubric_id": "r", "objectives": [1, 2]}`},
		{"results not a dict", `{"title": "X", "rubric_id": "r", "orders": {"results": ["a"]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildJSON([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Chest Pain", "chest-pain"},
		{"  Dysuria & frequency (young adult) ", "dysuria-frequency-young-adult"},
		{"!!!", "case"},
		{"", "case"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"v1.0.0", "1.0.0", 0},
		{"1.2", "1.2.0", 0},
		{"1.0.0", "1.1.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"", "0.0.1", -1},
		{"garbage", "0.0.1", -1},
		{"", "garbage", 0},
	}
	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
