package casedoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/abhisek/medisim/internal/intent"
)

// Payload mirrors the case authoring form. Any field may be left blank; the
// builder drops blank list rows and blank keys before serializing.
type Payload struct {
	ID         string            `json:"id,omitempty"`
	Title      string            `json:"title" validate:"required"`
	Specialty  string            `json:"specialty,omitempty"`
	Difficulty string            `json:"difficulty,omitempty" validate:"omitempty,oneof=Easy Medium Hard"`
	Version    string            `json:"version,omitempty" validate:"omitempty,caseversion"`
	RubricID   string            `json:"rubric_id" validate:"required"`
	Objectives []string          `json:"objectives,omitempty"`
	Patient    PatientPayload    `json:"patient"`
	Reveals    map[string]string `json:"qa_reveals,omitempty"`
	Orders     OrdersPayload     `json:"orders"`
	Expected   ExpectedPayload   `json:"expected"`
}

type PatientPayload struct {
	Demographics struct {
		Age  Scalar `json:"age,omitempty"`
		Sex  Scalar `json:"sex,omitempty"`
		Name Scalar `json:"name,omitempty"`
	} `json:"demographics"`
	Personality string `json:"personality,omitempty"`
	Vitals      struct {
		TempC Scalar `json:"temp_c,omitempty"`
		HR    Scalar `json:"hr,omitempty"`
		RR    Scalar `json:"rr,omitempty"`
		BP    Scalar `json:"bp,omitempty"`
	} `json:"baseline_vitals"`
	Story struct {
		ChiefComplaint string `json:"chief_complaint,omitempty"`
		HPISummary     string `json:"hpi_summary,omitempty"`
	} `json:"core_story"`
}

type OrdersPayload struct {
	Allowed []string          `json:"allowed,omitempty"`
	Results map[string]string `json:"results,omitempty"`
}

type ExpectedPayload struct {
	KeyFindings   []string `json:"key_findings,omitempty"`
	Differentials struct {
		ShouldInclude          []string `json:"should_include,omitempty"`
		ReasonableAlternatives []string `json:"reasonable_alternatives,omitempty"`
	} `json:"differentials"`
	FinalDx     string   `json:"final_dx,omitempty"`
	InitialPlan []string `json:"initial_plan_high_level,omitempty"`
}

// Scalar is a form value that may arrive as a JSON string, number or bool.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*s = Scalar(b)
		return nil
	}
	return fmt.Errorf("expected a string, number or boolean, got %s", b)
}

var fieldMessages = map[string]string{
	"required":    "is required",
	"oneof":       "must be one of Easy, Medium, Hard",
	"caseversion": "must be a semantic version such as 1.2.0",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("caseversion", func(fl validator.FieldLevel) bool {
			return ValidVersion(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Build validates p and serializes it into the canonical raw document.
// When p.ID is blank an identifier is derived from the title.
func Build(p Payload) ([]byte, error) {
	p = clean(p)

	if err := payloadValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msg := fieldMessages[fe.Tag()]
				if msg == "" {
					msg = fe.Error()
				}
				msgs = append(msgs, fe.Field()+" "+msg)
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if p.ID == "" {
		p.ID = NewCaseID(p.Title)
	}

	reveals := make(map[string]string, len(p.Reveals))
	for k, v := range p.Reveals {
		reveals[intent.AuthoredKey(intent.NormalizeTag(k))] = v
	}

	doc := &document{
		ID:         p.ID,
		Title:      p.Title,
		Specialty:  p.Specialty,
		Difficulty: p.Difficulty,
		Version:    p.Version,
		Objectives: p.Objectives,
		RubricID:   p.RubricID,
		Patient: patientDoc{
			Demographics: demographicsDoc{
				Age:  string(p.Patient.Demographics.Age),
				Sex:  string(p.Patient.Demographics.Sex),
				Name: string(p.Patient.Demographics.Name),
			},
			Personality: p.Patient.Personality,
			Vitals: vitalsDoc{
				Temperature:     string(p.Patient.Vitals.TempC),
				HeartRate:       string(p.Patient.Vitals.HR),
				RespiratoryRate: string(p.Patient.Vitals.RR),
				BloodPressure:   string(p.Patient.Vitals.BP),
			},
			Story: storyDoc{
				ChiefComplaint: p.Patient.Story.ChiefComplaint,
				HPISummary:     p.Patient.Story.HPISummary,
			},
		},
		Reveals: reveals,
		Orders:  ordersDoc{Allowed: p.Orders.Allowed, Results: p.Orders.Results},
		Expected: expectedDoc{
			KeyFindings: p.Expected.KeyFindings,
			Differentials: differentialsDoc{
				ShouldInclude:          p.Expected.Differentials.ShouldInclude,
				ReasonableAlternatives: p.Expected.Differentials.ReasonableAlternatives,
			},
			FinalDx:     p.Expected.FinalDx,
			InitialPlan: p.Expected.InitialPlan,
		},
	}
	return encode(doc)
}

// clean trims every string and drops blank list rows and map entries with
// a blank key or value.
func clean(p Payload) Payload {
	t := strings.TrimSpace
	ts := func(s Scalar) Scalar { return Scalar(t(string(s))) }

	p.ID, p.Title, p.Specialty = t(p.ID), t(p.Title), t(p.Specialty)
	p.Difficulty, p.Version, p.RubricID = t(p.Difficulty), t(p.Version), t(p.RubricID)
	p.Objectives = compact(p.Objectives)
	p.Reveals = compactMap(p.Reveals)

	d := &p.Patient.Demographics
	d.Age, d.Sex, d.Name = ts(d.Age), ts(d.Sex), ts(d.Name)
	v := &p.Patient.Vitals
	v.TempC, v.HR, v.RR, v.BP = ts(v.TempC), ts(v.HR), ts(v.RR), ts(v.BP)
	p.Patient.Personality = t(p.Patient.Personality)
	p.Patient.Story.ChiefComplaint = t(p.Patient.Story.ChiefComplaint)
	p.Patient.Story.HPISummary = t(p.Patient.Story.HPISummary)

	p.Orders.Allowed = compact(p.Orders.Allowed)
	p.Orders.Results = compactMap(p.Orders.Results)

	e := &p.Expected
	e.KeyFindings = compact(e.KeyFindings)
	e.Differentials.ShouldInclude = compact(e.Differentials.ShouldInclude)
	e.Differentials.ReasonableAlternatives = compact(e.Differentials.ReasonableAlternatives)
	e.FinalDx = t(e.FinalDx)
	e.InitialPlan = compact(e.InitialPlan)
	return p
}

func compact(xs []string) []string {
	var out []string
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func compactMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 48

// Slug lower-cases title and joins its alphanumeric runs with dashes.
func Slug(title string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "case"
	}
	return s
}

// NewCaseID returns Slug(title) with a six-hex-digit random suffix, unique
// enough to skip a storage round-trip.
func NewCaseID(title string) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%x", Slug(title), id[:3])
}
