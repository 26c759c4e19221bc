package casedoc

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/medisim/internal/intent"
)

// document is the canonical serialized form. Empty fields are omitted so
// that loading a built document applies the usual defaults.
type document struct {
	ID         string            `yaml:"id,omitempty"`
	Title      string            `yaml:"title,omitempty"`
	Specialty  string            `yaml:"specialty,omitempty"`
	Difficulty string            `yaml:"difficulty,omitempty"`
	Version    string            `yaml:"version,omitempty"`
	Objectives []string          `yaml:"objectives,omitempty"`
	RubricID   string            `yaml:"rubric_id,omitempty"`
	Patient    patientDoc        `yaml:"patient,omitempty"`
	Reveals    map[string]string `yaml:"qa_reveals,omitempty"`
	Orders     ordersDoc         `yaml:"orders,omitempty"`
	Expected   expectedDoc       `yaml:"expected,omitempty"`
}

type patientDoc struct {
	Demographics demographicsDoc `yaml:"demographics,omitempty"`
	Personality  string          `yaml:"personality,omitempty"`
	Vitals       vitalsDoc       `yaml:"baseline_vitals,omitempty"`
	Story        storyDoc        `yaml:"core_story,omitempty"`
}

type demographicsDoc struct {
	Age  string `yaml:"age,omitempty"`
	Sex  string `yaml:"sex,omitempty"`
	Name string `yaml:"name,omitempty"`
}

type vitalsDoc struct {
	Temperature     string `yaml:"temp_c,omitempty"`
	HeartRate       string `yaml:"hr,omitempty"`
	RespiratoryRate string `yaml:"rr,omitempty"`
	BloodPressure   string `yaml:"bp,omitempty"`
}

type storyDoc struct {
	ChiefComplaint string `yaml:"chief_complaint,omitempty"`
	HPISummary     string `yaml:"hpi_summary,omitempty"`
}

type ordersDoc struct {
	Allowed []string          `yaml:"allowed,omitempty"`
	Results map[string]string `yaml:"results,omitempty"`
}

type expectedDoc struct {
	KeyFindings   []string         `yaml:"key_findings,omitempty"`
	Differentials differentialsDoc `yaml:"differentials,omitempty"`
	FinalDx       string           `yaml:"final_dx,omitempty"`
	InitialPlan   []string         `yaml:"initial_plan_high_level,omitempty"`
}

type differentialsDoc struct {
	ShouldInclude          []string `yaml:"should_include,omitempty"`
	ReasonableAlternatives []string `yaml:"reasonable_alternatives,omitempty"`
}

// Marshal renders c in the canonical raw form. Values that were defaulted
// to "unknown" are omitted, so Load(Marshal(c)) reproduces c.
func Marshal(c *Case) ([]byte, error) {
	reveals := make(map[string]string, len(c.Reveals))
	for tag, text := range c.Reveals {
		reveals[intent.AuthoredKey(tag)] = text
	}

	doc := &document{
		ID:         known(c.ID),
		Title:      known(c.Title),
		Specialty:  known(c.Specialty),
		Difficulty: known(c.Difficulty),
		Version:    c.Version,
		Objectives: c.Objectives,
		RubricID:   c.RubricID,
		Patient: patientDoc{
			Demographics: demographicsDoc{
				Age:  known(c.Patient.Demographics.Age),
				Sex:  known(c.Patient.Demographics.Sex),
				Name: known(c.Patient.Demographics.Name),
			},
			Personality: known(c.Patient.Personality),
			Vitals: vitalsDoc{
				Temperature:     known(c.Patient.Vitals.Temperature),
				HeartRate:       known(c.Patient.Vitals.HeartRate),
				RespiratoryRate: known(c.Patient.Vitals.RespiratoryRate),
				BloodPressure:   known(c.Patient.Vitals.BloodPressure),
			},
			Story: storyDoc{
				ChiefComplaint: known(c.Patient.Story.ChiefComplaint),
				HPISummary:     known(c.Patient.Story.HPISummary),
			},
		},
		Reveals: reveals,
		Orders:  ordersDoc{Allowed: c.OrdersAllowed, Results: c.OrderResults},
		Expected: expectedDoc{
			KeyFindings: c.Expected.KeyFindings,
			Differentials: differentialsDoc{
				ShouldInclude:          c.Expected.Differentials.ShouldInclude,
				ReasonableAlternatives: c.Expected.Differentials.ReasonableAlternatives,
			},
			FinalDx:     known(c.Expected.FinalDx),
			InitialPlan: c.Expected.InitialPlan,
		},
	}
	return encode(doc)
}

func encode(doc *document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode case document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode case document: %w", err)
	}
	return buf.Bytes(), nil
}

func known(s string) string {
	if s == Unknown {
		return ""
	}
	return s
}
