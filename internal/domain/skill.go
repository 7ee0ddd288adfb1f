package domain

import "time"

// Skill is a verified callable harvested from successful code. Names are
// unique across the persistent skill store; writes after first occurrence
// are silently ignored (spec §3).
type Skill struct {
	Name        string    `json:"name"`
	Parameters  []string  `json:"parameters"`
	Source      string    `json:"source"`
	Doc         string    `json:"doc"`
	HarvestedAt time.Time `json:"harvested_at"`
}

// NewSkill creates a Skill stamped with the current time.
func NewSkill(name string, parameters []string, source, doc string) Skill {
	return Skill{
		Name:        name,
		Parameters:  parameters,
		Source:      source,
		Doc:         doc,
		HarvestedAt: time.Now(),
	}
}

// OneLineCatalog renders the skill signature the way worker prompts list
// harvested skills (spec §4.5: "harvested-skill signatures as a one-line
// catalog").
func (s Skill) OneLineCatalog() string {
	sig := s.Name + "("
	for i, p := range s.Parameters {
		if i > 0 {
			sig += ", "
		}
		sig += p
	}
	sig += ")"
	if s.Doc != "" {
		sig += " - " + s.Doc
	}
	return sig
}

// TestPattern is a learned (category, input-type, output-type) exemplar
// used to seed future task generation. Deduplicated by
// (Category, InputType, OutputType).
type TestPattern struct {
	Category   Category  `json:"category"`
	InputType  string    `json:"input_type"`
	OutputType string    `json:"output_type"`
	ExampleIn  any       `json:"example_in"`
	ExampleOut any       `json:"example_out"`
	TaskHint   string    `json:"task_hint"`
	LearnedAt  time.Time `json:"learned_at"`
	UseCount   int       `json:"use_count"`
}

// Key returns the dedup key for a test pattern.
func (p TestPattern) Key() string {
	return string(p.Category) + "|" + p.InputType + "|" + p.OutputType
}
