// Package workflow implements the ordered article authoring state machine
// and the validation rules that gate its transitions.
package workflow

import "fmt"

// Step is one value of the ordered authoring enumeration.
type Step string

// Step constants, in workflow order
const (
	StepUpload         Step = "upload"
	StepTitleSelection Step = "title-selection"
	StepContentEditing Step = "content-editing"
	StepImageSelection Step = "image-selection"
	StepFinalization   Step = "finalization"
)

// Order is the fixed step sequence.
var Order = []Step{
	StepUpload,
	StepTitleSelection,
	StepContentEditing,
	StepImageSelection,
	StepFinalization,
}

// StepCategory constants
const (
	StepCategoryIngestion  = "ingestion"
	StepCategoryEditing    = "editing"
	StepCategoryPublishing = "publishing"
)

// StepDefinition carries display metadata for a step.
type StepDefinition struct {
	Name     Step   `json:"name"`
	Label    string `json:"label"`
	Category string `json:"category"`
}

// StepRegistry holds all step definitions
var StepRegistry = map[Step]StepDefinition{
	StepUpload: {
		Name:     StepUpload,
		Label:    "Envio de conteúdo",
		Category: StepCategoryIngestion,
	},
	StepTitleSelection: {
		Name:     StepTitleSelection,
		Label:    "Seleção de título",
		Category: StepCategoryEditing,
	},
	StepContentEditing: {
		Name:     StepContentEditing,
		Label:    "Edição de conteúdo",
		Category: StepCategoryEditing,
	},
	StepImageSelection: {
		Name:     StepImageSelection,
		Label:    "Seleção de imagem",
		Category: StepCategoryEditing,
	},
	StepFinalization: {
		Name:     StepFinalization,
		Label:    "Finalização",
		Category: StepCategoryPublishing,
	},
}

// Index returns the position of s in Order, or -1 for an unknown step.
func (s Step) Index() int {
	for i, step := range Order {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s belongs to the enumeration.
func (s Step) Valid() bool {
	return s.Index() >= 0
}

// Next returns the step after s. ok is false at the last step.
func (s Step) Next() (next Step, ok bool) {
	i := s.Index()
	if i < 0 || i == len(Order)-1 {
		return "", false
	}
	return Order[i+1], true
}

// Prev returns the step before s. ok is false at the first step.
func (s Step) Prev() (prev Step, ok bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return Order[i-1], true
}

// ParseStep converts a string into a Step.
func ParseStep(value string) (Step, error) {
	s := Step(value)
	if !s.Valid() {
		return "", &UnknownStepError{Step: value}
	}
	return s, nil
}

// UnknownStepError is returned for values outside the step enumeration.
type UnknownStepError struct {
	Step string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown workflow step: %q", e.Step)
}
