package workflow

// User-facing validation messages
const (
	MsgNoContent         = "Adicione algum conteúdo ou arquivo antes de continuar."
	MsgProcessingPending = "Aguarde o processamento do conteúdo ser concluído."
	MsgLastStep          = "Este já é o último passo."
	MsgUnknownStep       = "Passo desconhecido."
)

// Result is the outcome of a transition check. Message is set only when IsValid is false.
type Result struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message,omitempty"`
}

// Valid returns a passing result.
func Valid() Result {
	return Result{IsValid: true}
}

// Invalid returns a failing result with a user-facing message.
func Invalid(message string) Result {
	return Result{IsValid: false, Message: message}
}

// Rule decides whether moving from one step to another is allowed for a state.
// Rules must not modify anything.
type Rule func(from, to Step, state State) Result

// TransitionRule binds a Rule to a transition. An empty To matches every target.
type TransitionRule struct {
	From  Step
	To    Step
	Check Rule
}

func (r TransitionRule) matches(from, to Step) bool {
	return r.From == from && (r.To == "" || r.To == to)
}

// builtinRules is the current gating table.
var builtinRules = []TransitionRule{
	{From: StepUpload, Check: requireContent},
	{From: StepUpload, Check: requireAgentConfirmation},
}

func requireContent(_, _ Step, state State) Result {
	if !state.HasContent() {
		return Invalid(MsgNoContent)
	}
	return Valid()
}

func requireAgentConfirmation(_, _ Step, state State) Result {
	if !state.AgentConfirmed {
		return Invalid(MsgProcessingPending)
	}
	return Valid()
}

// ValidateTransition checks a transition against the built-in rules only.
func ValidateTransition(from, to Step, state State) Result {
	return defaultValidator.Validate(from, to, state)
}

var defaultValidator = NewValidator()

// Validator evaluates the built-in rules followed by caller-supplied ones.
// It is immutable once built.
type Validator struct {
	rules []TransitionRule
}

// NewValidator creates a validator with the built-in rules plus extra.
func NewValidator(extra ...TransitionRule) *Validator {
	rules := make([]TransitionRule, 0, len(builtinRules)+len(extra))
	rules = append(rules, builtinRules...)
	rules = append(rules, extra...)
	return &Validator{rules: rules}
}

// Validate returns the first failing rule's result, or a valid result.
func (v *Validator) Validate(from, to Step, state State) Result {
	if !from.Valid() || !to.Valid() {
		return Invalid(MsgUnknownStep)
	}
	for _, rule := range v.rules {
		if !rule.matches(from, to) {
			continue
		}
		if res := rule.Check(from, to, state); !res.IsValid {
			return res
		}
	}
	return Valid()
}
