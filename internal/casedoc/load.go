package casedoc

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/medisim/internal/intent"
)

// rawDocument is the schema of the authored YAML. Every field is kept as a
// node so that a value of the wrong shape is reported instead of aborting
// the whole decode.
type rawDocument struct {
	ID         yaml.Node `yaml:"id"`
	Title      yaml.Node `yaml:"title"`
	Specialty  yaml.Node `yaml:"specialty"`
	Difficulty yaml.Node `yaml:"difficulty"`
	Version    yaml.Node `yaml:"version"`
	Objectives yaml.Node `yaml:"objectives"`
	RubricID   yaml.Node `yaml:"rubric_id"`
	Patient    yaml.Node `yaml:"patient"`
	Reveals    yaml.Node `yaml:"qa_reveals"`
	Orders     yaml.Node `yaml:"orders"`
	Expected   yaml.Node `yaml:"expected"`
}

type rawPatient struct {
	Demographics yaml.Node `yaml:"demographics"`
	Personality  yaml.Node `yaml:"personality"`
	Vitals       yaml.Node `yaml:"baseline_vitals"`
	Story        yaml.Node `yaml:"core_story"`
}

type rawDemographics struct {
	Age  yaml.Node `yaml:"age"`
	Sex  yaml.Node `yaml:"sex"`
	Name yaml.Node `yaml:"name"`
}

type rawVitals struct {
	Temperature     yaml.Node `yaml:"temp_c"`
	HeartRate       yaml.Node `yaml:"hr"`
	RespiratoryRate yaml.Node `yaml:"rr"`
	BloodPressure   yaml.Node `yaml:"bp"`
}

type rawStory struct {
	ChiefComplaint yaml.Node `yaml:"chief_complaint"`
	HPISummary     yaml.Node `yaml:"hpi_summary"`
}

type rawOrders struct {
	Allowed yaml.Node `yaml:"allowed"`
	Results yaml.Node `yaml:"results"`
}

type rawExpected struct {
	KeyFindings   yaml.Node `yaml:"key_findings"`
	Differentials yaml.Node `yaml:"differentials"`
	FinalDx       yaml.Node `yaml:"final_dx"`
	InitialPlan   yaml.Node `yaml:"initial_plan_high_level"`
}

type rawDifferentials struct {
	ShouldInclude          yaml.Node `yaml:"should_include"`
	ReasonableAlternatives yaml.Node `yaml:"reasonable_alternatives"`
}

// Load parses a raw case document. It fails only when the text is not
// valid YAML or its root is not a mapping; every other defect is defaulted
// and recorded in Case.Warnings.
func Load(raw []byte) (*Case, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	c := empty()
	body := documentBody(&root)
	if body == nil {
		return c, nil
	}
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: root is a %s, want a mapping", ErrMalformedDocument, kindName(body))
	}

	n := &normalizer{}
	n.dedupe(body, "", map[*yaml.Node]bool{})

	var doc rawDocument
	if err := body.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	n.document(&doc, c)
	c.Warnings = n.warnings
	return c, nil
}

// documentBody unwraps the document node. It returns nil for an empty or
// null document.
func documentBody(root *yaml.Node) *yaml.Node {
	node := root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		node = node.Content[0]
	}
	node = deref(node)
	if node == nil || node.Kind == 0 || isNull(node) {
		return nil
	}
	return node
}

// normalizer fills a Case from a rawDocument, collecting warnings.
type normalizer struct {
	warnings []string
}

func (n *normalizer) document(doc *rawDocument, c *Case) {
	c.ID = n.scalar(&doc.ID, "id", c.ID)
	c.Title = n.scalar(&doc.Title, "title", c.Title)
	c.Specialty = n.scalar(&doc.Specialty, "specialty", c.Specialty)
	c.Difficulty = n.scalar(&doc.Difficulty, "difficulty", c.Difficulty)
	c.Version = n.scalar(&doc.Version, "version", "")
	c.Objectives = n.list(&doc.Objectives, "objectives")
	c.RubricID = n.scalar(&doc.RubricID, "rubric_id", c.RubricID)

	var p rawPatient
	if n.object(&doc.Patient, "patient", &p) {
		n.patient(&p, &c.Patient)
	}

	reveals := n.dict(&doc.Reveals, "qa_reveals")
	for _, key := range slices.Sorted(maps.Keys(reveals)) {
		text := reveals[key]
		tag := intent.NormalizeTag(key)
		if _, dup := c.Reveals[tag]; dup {
			n.warnf("qa_reveals.%s: duplicate of topic %q, ignored", key, tag)
			continue
		}
		c.Reveals[tag] = text
	}

	var o rawOrders
	if n.object(&doc.Orders, "orders", &o) {
		c.OrdersAllowed = n.list(&o.Allowed, "orders.allowed")
		c.OrderResults = n.dict(&o.Results, "orders.results")
	}

	var e rawExpected
	if n.object(&doc.Expected, "expected", &e) {
		c.Expected.KeyFindings = n.list(&e.KeyFindings, "expected.key_findings")
		c.Expected.FinalDx = n.scalar(&e.FinalDx, "expected.final_dx", c.Expected.FinalDx)
		c.Expected.InitialPlan = n.list(&e.InitialPlan, "expected.initial_plan_high_level")

		var d rawDifferentials
		if n.object(&e.Differentials, "expected.differentials", &d) {
			c.Expected.Differentials.ShouldInclude = n.list(&d.ShouldInclude, "expected.differentials.should_include")
			c.Expected.Differentials.ReasonableAlternatives = n.list(&d.ReasonableAlternatives, "expected.differentials.reasonable_alternatives")
		}
	}
}

func (n *normalizer) patient(p *rawPatient, out *Patient) {
	out.Personality = n.scalar(&p.Personality, "patient.personality", out.Personality)

	var d rawDemographics
	if n.object(&p.Demographics, "patient.demographics", &d) {
		out.Demographics.Age = n.scalar(&d.Age, "patient.demographics.age", out.Demographics.Age)
		out.Demographics.Sex = n.scalar(&d.Sex, "patient.demographics.sex", out.Demographics.Sex)
		out.Demographics.Name = n.scalar(&d.Name, "patient.demographics.name", out.Demographics.Name)
	}

	var v rawVitals
	if n.object(&p.Vitals, "patient.baseline_vitals", &v) {
		out.Vitals.Temperature = n.scalar(&v.Temperature, "patient.baseline_vitals.temp_c", out.Vitals.Temperature)
		out.Vitals.HeartRate = n.scalar(&v.HeartRate, "patient.baseline_vitals.hr", out.Vitals.HeartRate)
		out.Vitals.RespiratoryRate = n.scalar(&v.RespiratoryRate, "patient.baseline_vitals.rr", out.Vitals.RespiratoryRate)
		out.Vitals.BloodPressure = n.scalar(&v.BloodPressure, "patient.baseline_vitals.bp", out.Vitals.BloodPressure)
	}

	var s rawStory
	if n.object(&p.Story, "patient.core_story", &s) {
		out.Story.ChiefComplaint = n.scalar(&s.ChiefComplaint, "patient.core_story.chief_complaint", out.Story.ChiefComplaint)
		out.Story.HPISummary = n.scalar(&s.HPISummary, "patient.core_story.hpi_summary", out.Story.HPISummary)
	}
}

// dedupe drops repeated keys from every mapping under node, keeping the
// first occurrence of each.
func (n *normalizer) dedupe(node *yaml.Node, path string, seen map[*yaml.Node]bool) {
	node = deref(node)
	if node == nil || seen[node] {
		return
	}
	seen[node] = true

	switch node.Kind {
	case yaml.SequenceNode:
		for i, item := range node.Content {
			n.dedupe(item, fmt.Sprintf("%s[%d]", path, i), seen)
		}
	case yaml.MappingNode:
		keys := map[string]int{}
		kept := node.Content[:0:0]
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			key := strings.TrimSpace(deref(k).Value)
			if deref(k).Kind == yaml.ScalarNode {
				if first, dup := keys[key]; dup {
					n.warnf("%s: duplicate key (line %d, first at line %d), ignored", joinPath(path, key), k.Line, first)
					continue
				}
				keys[key] = k.Line
			}
			n.dedupe(v, joinPath(path, key), seen)
			kept = append(kept, k, v)
		}
		node.Content = kept
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (n *normalizer) warnf(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

func (n *normalizer) mismatch(path, want string, got *yaml.Node) {
	n.warnf("%s: expected a %s, found a %s (line %d); using default", path, want, kindName(got), got.Line)
}

// scalar returns the trimmed text of a scalar node, or def when the node is
// absent, null, blank or not a scalar.
func (n *normalizer) scalar(node *yaml.Node, path, def string) string {
	node = deref(node)
	if absent(node) {
		return def
	}
	if node.Kind != yaml.ScalarNode {
		n.mismatch(path, "scalar", node)
		return def
	}
	if v := strings.TrimSpace(node.Value); v != "" {
		return v
	}
	return def
}

// list returns the non-blank scalar entries of a sequence node.
func (n *normalizer) list(node *yaml.Node, path string) []string {
	out := []string{}
	node = deref(node)
	if absent(node) {
		return out
	}
	if node.Kind != yaml.SequenceNode {
		n.mismatch(path, "list", node)
		return out
	}
	for i, item := range node.Content {
		item = deref(item)
		if absent(item) {
			continue
		}
		if item.Kind != yaml.ScalarNode {
			n.mismatch(fmt.Sprintf("%s[%d]", path, i), "scalar", item)
			continue
		}
		if v := strings.TrimSpace(item.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// dict returns the scalar-to-scalar entries of a mapping node. Entries with
// blank keys or null values are skipped.
func (n *normalizer) dict(node *yaml.Node, path string) map[string]string {
	out := map[string]string{}
	node = deref(node)
	if absent(node) {
		return out
	}
	if node.Kind != yaml.MappingNode {
		n.mismatch(path, "mapping", node)
		return out
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := deref(node.Content[i]), deref(node.Content[i+1])
		if k.Kind != yaml.ScalarNode {
			n.mismatch(path+" key", "scalar", k)
			continue
		}
		key := strings.TrimSpace(k.Value)
		if key == "" || absent(v) {
			continue
		}
		if v.Kind != yaml.ScalarNode {
			n.mismatch(path+"."+key, "scalar", v)
			continue
		}
		out[key] = strings.TrimSpace(v.Value)
	}
	return out
}

// object decodes a mapping node into one of the raw* structs. It reports
// false when the node is absent or of the wrong shape.
func (n *normalizer) object(node *yaml.Node, path string, out any) bool {
	node = deref(node)
	if absent(node) {
		return false
	}
	if node.Kind != yaml.MappingNode {
		n.mismatch(path, "mapping", node)
		return false
	}
	if err := node.Decode(out); err != nil {
		n.warnf("%s: %v; using defaults", path, err)
		return false
	}
	return true
}

func deref(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

func absent(node *yaml.Node) bool {
	return node == nil || node.Kind == 0 || isNull(node)
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
