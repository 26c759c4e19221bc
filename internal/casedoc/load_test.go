package casedoc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/medisim/internal/intent"
)

func loadFixture(t *testing.T) *Case {
	t.Helper()
	raw, err := os.ReadFile("testdata/case_uti_001.yaml")
	require.NoError(t, err)
	c, err := Load(raw)
	require.NoError(t, err)
	return c
}

func TestLoad_SampleCase(t *testing.T) {
	c := loadFixture(t)

	assert.Equal(t, "case_uti_001", c.ID)
	assert.Equal(t, "Dysuria and frequency in a young adult", c.Title)
	assert.Equal(t, "Family Medicine", c.Specialty)
	assert.Equal(t, "Easy", c.Difficulty)
	assert.Equal(t, "1.0.0", c.Version)
	assert.Equal(t, "rubric_uti_v1", c.RubricID)
	assert.Equal(t, []string{"Elicit key history for lower urinary tract symptoms"}, c.Objectives)

	assert.Equal(t, "24", c.Patient.Demographics.Age)
	assert.Equal(t, "female", c.Patient.Demographics.Sex)
	assert.Equal(t, Unknown, c.Patient.Demographics.Name)
	assert.Equal(t, "37.4", c.Patient.Vitals.Temperature)
	assert.Equal(t, "112/70", c.Patient.Vitals.BloodPressure)
	assert.Equal(t, "Burning urination and frequency", c.Patient.Story.ChiefComplaint)

	assert.Len(t, c.Reveals, 5)
	assert.Equal(t, "It started about three days ago.", c.Reveals[intent.TagOnset])
	assert.Equal(t, "No, the pain is more in the lower belly.", c.Reveals[intent.TagFlankPain])

	assert.Equal(t, []string{"Urinalysis", "Urine culture", "Pregnancy test"}, c.OrdersAllowed)
	assert.Equal(t, "Leukocyte esterase positive, nitrites positive, WBCs 10-20/hpf", c.OrderResults["Urinalysis"])

	assert.Equal(t, []string{"Acute uncomplicated cystitis"}, c.Expected.Differentials.ShouldInclude)
	assert.Equal(t, []string{"Vaginitis", "Urethritis"}, c.Expected.Differentials.ReasonableAlternatives)
	assert.Equal(t, "Acute uncomplicated cystitis", c.Expected.FinalDx)
	assert.Len(t, c.Expected.InitialPlan, 2)
	assert.Empty(t, c.Warnings)
}

func TestLoad_MissingSectionsDefault(t *testing.T) {
	// Scenario: title present, no qa_reveals, no orders.
	c, err := Load([]byte("title: X\n"))
	require.NoError(t, err)

	assert.Equal(t, "X", c.Title)
	assert.NotNil(t, c.Reveals)
	assert.Empty(t, c.Reveals)
	assert.NotNil(t, c.OrdersAllowed)
	assert.Empty(t, c.OrdersAllowed)
	assert.NotNil(t, c.OrderResults)
	assert.Empty(t, c.OrderResults)
	assert.Equal(t, Unknown, c.Specialty)
	assert.Equal(t, Unknown, c.Patient.Personality)
	assert.Equal(t, Unknown, c.Expected.FinalDx)
	assert.Equal(t, DefaultRubricID, c.RubricID)
	assert.Empty(t, c.Version)
}

func TestLoad_EmptyDocument(t *testing.T) {
	for _, raw := range []string{"", "# just a comment\n", "~\n", "---\n"} {
		c, err := Load([]byte(raw))
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, empty(), c, "input %q", raw)
	}
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unclosed flow", "title: [unclosed\n"},
		{"unterminated quote", "title: \"Chest pain\n"},
		{"tab indentation", "patient:\n\tpersonality: calm\n"},
		{"root is a list", "- a\n- b\n"},
		{"root is a scalar", "just some text\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestLoad_TypeMismatchTolerated(t *testing.T) {
	raw := `
title: Chest pain
objectives: {a: b}
patient:
  demographics: [24, male]
  personality: calm
qa_reveals:
  hx_onset: [not, a, string]
  hx_quality: "Sharp."
orders:
  allowed: Urinalysis
`
	c, err := Load([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Chest pain", c.Title)
	assert.Empty(t, c.Objectives)
	assert.Equal(t, Unknown, c.Patient.Demographics.Age)
	assert.Equal(t, "calm", c.Patient.Personality)
	assert.Equal(t, map[intent.TopicTag]string{intent.TagQuality: "Sharp."}, c.Reveals)
	assert.Empty(t, c.OrdersAllowed)
	assert.Len(t, c.Warnings, 4)
}

func TestLoad_RevealKeysNormalize(t *testing.T) {
	raw := `
qa_reveals:
  hx_flank_pain: "No."
  pregnancy: "Not pregnant."
  hx_smoking: "Never smoked."
`
	c, err := Load([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "No.", c.Reveals[intent.TagFlankPain])
	assert.Equal(t, "Not pregnant.", c.Reveals[intent.TagPregnancy])
	assert.Equal(t, "Never smoked.", c.Reveals[intent.TopicTag("smoking")])
}

func TestLoad_DuplicateTopicKeepsFirst(t *testing.T) {
	raw := `
qa_reveals:
  hx_onset: "Three days ago."
  onset: "Yesterday."
`
	c, err := Load([]byte(raw))
	require.NoError(t, err)

	// Keys are processed in sorted order: "hx_onset" before "onset".
	assert.Equal(t, "Three days ago.", c.Reveals[intent.TagOnset])
	assert.Len(t, c.Warnings, 1)
}

func TestLoad_DuplicateKeys(t *testing.T) {
	raw := `
title: First title
title: Second title
qa_reveals:
  hx_onset: "Three days ago."
  hx_onset: "Yesterday."
orders:
  allowed: [Urinalysis]
  results:
    Urinalysis: "Nitrites positive"
    Urinalysis: "Normal"
patient:
  core_story:
    chief_complaint: "Burning"
    chief_complaint: "Fever"
`
	c, err := Load([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "First title", c.Title)
	assert.Equal(t, "Three days ago.", c.Reveals[intent.TagOnset])
	assert.Equal(t, "Nitrites positive", c.OrderResults["Urinalysis"])
	assert.Equal(t, "Burning", c.Patient.Story.ChiefComplaint)

	require.Len(t, c.Warnings, 4)
	assert.Contains(t, c.Warnings[0], "title: duplicate key (line 3, first at line 2)")
	assert.Contains(t, c.Warnings[1], "qa_reveals.hx_onset: duplicate key")
	assert.Contains(t, c.Warnings[2], "orders.results.Urinalysis: duplicate key")
	assert.Contains(t, c.Warnings[3], "patient.core_story.chief_complaint: duplicate key")
}

func TestLoad_BlankAndNullValuesDefault(t *testing.T) {
	raw := `
title: ""
specialty: ~
objectives: ["", "Take a history", null]
`
	c, err := Load([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, Unknown, c.Title)
	assert.Equal(t, Unknown, c.Specialty)
	assert.Equal(t, []string{"Take a history"}, c.Objectives)
}

func TestLoad_Aliases(t *testing.T) {
	raw := `
shared: &dx "Acute uncomplicated cystitis"
expected:
  final_dx: *dx
  differentials:
    should_include: [*dx]
`
	c, err := Load([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Acute uncomplicated cystitis", c.Expected.FinalDx)
	assert.Equal(t, []string{"Acute uncomplicated cystitis"}, c.Expected.Differentials.ShouldInclude)
}

func TestCase_ResultFor(t *testing.T) {
	c := loadFixture(t)

	assert.Equal(t, "Negative", c.ResultFor("Pregnancy test"))
	assert.Equal(t, PendingResult, c.ResultFor("CBC"))
	assert.True(t, c.Allows("Urinalysis"))
	assert.False(t, c.Allows("urinalysis"))
}

func TestCase_UnlistedResults(t *testing.T) {
	c, err := Load([]byte(`
orders:
  allowed: [Urinalysis]
  results: {Urinalysis: Normal, CT abdomen: Normal, CBC: Normal}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"CBC", "CT abdomen"}, c.UnlistedResults())
}

func TestMarshal_RoundTrip(t *testing.T) {
	c := loadFixture(t)

	raw, err := Marshal(c)
	require.NoError(t, err)

	again, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestMarshal_OmitsUnknowns(t *testing.T) {
	raw, err := Marshal(empty())
	require.NoError(t, err)
	assert.Equal(t, "rubric_id: rubric_default\n", string(raw))
}
