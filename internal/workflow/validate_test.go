package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition_RequiresContent(t *testing.T) {
	for _, next := range Order[1:] {
		t.Run(string(next), func(t *testing.T) {
			res := ValidateTransition(StepUpload, next, State{Files: []Asset{}, Content: ""})
			assert.False(t, res.IsValid)
			assert.Equal(t, MsgNoContent, res.Message)

			res = ValidateTransition(StepUpload, next, State{Files: []Asset{}, Content: "  \n\t "})
			assert.False(t, res.IsValid)
			assert.Equal(t, MsgNoContent, res.Message)
		})
	}
}

func TestValidateTransition_RequiresAgentConfirmation(t *testing.T) {
	res := ValidateTransition(StepUpload, StepTitleSelection, State{Content: "abc", AgentConfirmed: false})
	assert.False(t, res.IsValid)
	assert.Equal(t, MsgProcessingPending, res.Message)

	res = ValidateTransition(StepUpload, StepTitleSelection, State{Content: "abc", AgentConfirmed: true})
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Message)
}

func TestValidateTransition_FilesCountAsContent(t *testing.T) {
	state := State{Files: []Asset{{ID: "f1", Name: "nota.pdf", Size: 1024}}, AgentConfirmed: true}
	res := ValidateTransition(StepUpload, StepTitleSelection, state)
	assert.True(t, res.IsValid)
}

func TestValidateTransition_OtherTransitionsAlwaysValid(t *testing.T) {
	empty := State{}
	pairs := [][2]Step{
		{StepTitleSelection, StepContentEditing},
		{StepContentEditing, StepImageSelection},
		{StepImageSelection, StepFinalization},
		{StepFinalization, StepImageSelection},
		{StepTitleSelection, StepUpload},
	}
	for _, p := range pairs {
		res := ValidateTransition(p[0], p[1], empty)
		assert.True(t, res.IsValid, "%s -> %s", p[0], p[1])
	}
}

func TestValidateTransition_UnknownStep(t *testing.T) {
	res := ValidateTransition("draft", StepUpload, State{})
	assert.False(t, res.IsValid)
	assert.Equal(t, MsgUnknownStep, res.Message)
}

func TestValidateTransition_Deterministic(t *testing.T) {
	states := []State{
		{},
		{Content: "abc"},
		{Content: "abc", AgentConfirmed: true},
		{Files: []Asset{{ID: "1"}}},
	}
	for _, from := range Order {
		for _, to := range Order {
			for _, st := range states {
				before := st.Clone()
				first := ValidateTransition(from, to, st)
				second := ValidateTransition(from, to, st)
				assert.Equal(t, first, second)
				assert.Equal(t, before, st.Clone(), "validation must not modify state")
				if first.IsValid {
					assert.Empty(t, first.Message)
				} else {
					assert.NotEmpty(t, first.Message)
				}
			}
		}
	}
}

func TestValidator_ExtraRules(t *testing.T) {
	requireTitle := TransitionRule{
		From: StepTitleSelection,
		To:   StepContentEditing,
		Check: func(_, _ Step, s State) Result {
			if s.Title == "" {
				return Invalid("Escolha um título.")
			}
			return Valid()
		},
	}
	v := NewValidator(requireTitle)

	res := v.Validate(StepTitleSelection, StepContentEditing, State{})
	assert.False(t, res.IsValid)
	assert.Equal(t, "Escolha um título.", res.Message)

	res = v.Validate(StepTitleSelection, StepContentEditing, State{Title: "Manchete"})
	assert.True(t, res.IsValid)

	// Built-in rules still run first.
	res = v.Validate(StepUpload, StepTitleSelection, State{})
	assert.Equal(t, MsgNoContent, res.Message)
}
